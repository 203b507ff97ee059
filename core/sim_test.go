package core

import "testing"

// simBoard is a virtual microcontroller for host tests. Time only moves
// when the code under test waits: on WFI it jumps to the next event, and
// every busy-poll relax call advances it by relaxUs. Tick, wake and
// external interrupts are delivered in time order.
type simBoard struct {
	t testing.TB

	nowUs   uint64
	relaxUs uint64

	tickHz   uint32
	tickOn   bool
	nextTick uint64

	refNominal uint32
	refActual  uint32 // 0 never fires
	maxPeriod  uint32
	wakeOn     bool
	wakeFired  bool
	wakeStart  uint64
	wakeCycles uint64
	periods    []uint32

	irqAt   uint64 // 0 = no external event
	irqDone bool

	wfi []SleepMode
	sys *System
}

func newSimBoard(t testing.TB) *simBoard {
	return &simBoard{
		t:          t,
		relaxUs:    100,
		tickHz:     1000,
		refNominal: 1024,
		refActual:  1024,
		maxPeriod:  25*1024 - 1,
	}
}

// simTick, simWake and simCPU give the board's three hardware faces their
// own method sets.
type (
	simTick simBoard
	simWake simBoard
	simCPU  simBoard
)

func (b *simBoard) hardware() Hardware {
	return Hardware{
		Ticker: (*simTick)(b),
		Wake:   (*simWake)(b),
		CPU:    (*simCPU)(b),
		Relax:  b.relax,
	}
}

// boot builds a System on the board. Zero config fields take defaults.
func (b *simBoard) boot(cfg Config, extra func(*Hardware)) *System {
	b.t.Helper()
	hw := b.hardware()
	if extra != nil {
		extra(&hw)
	}
	sys, err := NewSystem(hw, cfg)
	if err != nil {
		b.t.Fatalf("NewSystem: %v", err)
	}
	b.sys = sys
	return sys
}

func (b *simBoard) tickPeriodUs() uint64 { return 1000000 / uint64(b.tickHz) }

func (b *simBoard) wakeDueUs() uint64 {
	return b.wakeStart + (b.wakeCycles*1000000+uint64(b.refActual)-1)/uint64(b.refActual)
}

const (
	evNone = iota
	evTick
	evWake
	evIRQ
)

func (b *simBoard) nextEvent() (uint64, int) {
	at, kind := uint64(0), evNone
	consider := func(t uint64, k int) {
		if kind == evNone || t < at {
			at, kind = t, k
		}
	}
	if b.tickOn {
		consider(b.nextTick, evTick)
	}
	if b.wakeOn && !b.wakeFired && b.refActual != 0 {
		consider(b.wakeDueUs(), evWake)
	}
	if b.irqAt != 0 && !b.irqDone {
		consider(b.irqAt, evIRQ)
	}
	return at, kind
}

func (b *simBoard) deliver(kind int) {
	switch kind {
	case evTick:
		b.nextTick += b.tickPeriodUs()
		b.sys.HandleTickInterrupt()
	case evWake:
		b.wakeFired = true
		b.sys.HandleWakeInterrupt()
	case evIRQ:
		b.irqDone = true
		b.sys.HandleExternalInterrupt()
	}
}

// advance moves time forward by us, delivering whatever falls due.
func (b *simBoard) advance(us uint64) {
	target := b.nowUs + us
	for {
		at, kind := b.nextEvent()
		if kind == evNone || at > target {
			break
		}
		b.nowUs = at
		b.deliver(kind)
	}
	b.nowUs = target
}

func (b *simBoard) relax() { b.advance(b.relaxUs) }

func (s *simTick) EnableIRQ() {
	s.tickOn = true
	s.nextTick = s.nowUs + (*simBoard)(s).tickPeriodUs()
}

func (s *simTick) DisableIRQ() { s.tickOn = false }

func (s *simTick) RateHz() uint32 { return s.tickHz }

func (w *simWake) Start(period uint32) {
	w.periods = append(w.periods, period)
	w.wakeOn = true
	w.wakeFired = false
	w.wakeStart = w.nowUs
	w.wakeCycles = uint64(period) + 1
}

func (w *simWake) Stop() uint32 {
	w.wakeOn = false
	elapsed := (w.nowUs - w.wakeStart) * uint64(w.refActual) / 1000000
	if w.wakeFired || elapsed > w.wakeCycles {
		elapsed = w.wakeCycles
	}
	return uint32(elapsed)
}

func (w *simWake) Armed() bool { return w.wakeOn && !w.wakeFired }

func (w *simWake) Fired() bool { return w.wakeFired }

func (w *simWake) MaxPeriod() uint32 { return w.maxPeriod }

func (w *simWake) RateHz() uint32 { return w.refNominal }

func (c *simCPU) WaitForInterrupt(mode SleepMode) {
	b := (*simBoard)(c)
	b.wfi = append(b.wfi, mode)
	at, kind := b.nextEvent()
	if kind == evNone {
		b.t.Fatalf("WFI in %v mode with no interrupt source", mode)
	}
	b.advance(at - b.nowUs)
}

// manualMono is a Monotonic the test moves by hand.
type manualMono struct{ ms uint64 }

func (m *manualMono) Read() uint64 { return m.ms }

// memStore is an in-memory EpochStore.
type memStore struct {
	epoch uint32
	ok    bool
	saves int
}

func (m *memStore) LoadEpoch() (uint32, bool) { return m.epoch, m.ok }

func (m *memStore) SaveEpoch(s uint32) error {
	m.epoch, m.ok = s, true
	m.saves++
	return nil
}
