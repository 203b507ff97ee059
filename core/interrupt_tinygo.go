//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts sets PRIMASK and returns the previous state. A pending
// interrupt still ends a WFI issued while masked; its handler runs once the
// state is restored.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
