package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a timekeeping event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Mode      uint8  // Sleep mode, where relevant
	Clock     uint64 // MonotonicTick at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtSleepEnter   = 1 // span armed: v1=armed ms, v2=remaining ms
	EvtWake         = 2 // span done: v1=elapsed ms, v2=wake count
	EvtCalibrate    = 3 // calibration stored: v1=factor, v2=cycles
	EvtCalFail      = 4 // calibration absorbed: v1=kept factor
	EvtClamp        = 5 // wake span clamped: v1=requested ms, v2=armed ms
	EvtRebase       = 6 // wall clock set: v1=old seconds, v2=new seconds
	EvtBusyFallback = 7 // zero span armed: v1=remaining ms
	EvtRTCFail      = 8 // hardware RTC read failed: v1=cached seconds
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Timing capture ring buffer (non-blocking, for post-mortem)
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8 // Next write position
	timingEnabled  bool  = true
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTiming captures a timing event in the ring buffer.
// Safe to call from foreground code only.
func RecordTiming(eventType uint8, mode SleepMode, clock uint64, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Mode:      uint8(mode),
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the recorded events, oldest first.
func TimingEvents() []TimingEvent {
	out := make([]TimingEvent, 0, TimingRingSize)
	start := timingRingHead
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(start+i)%TimingRingSize]
		if evt.EventType == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func eventName(t uint8) string {
	switch t {
	case EvtSleepEnter:
		return "SLEEP"
	case EvtWake:
		return "WAKE"
	case EvtCalibrate:
		return "CALIBRATE"
	case EvtCalFail:
		return "CAL_FAIL!"
	case EvtClamp:
		return "CLAMP"
	case EvtRebase:
		return "REBASE"
	case EvtBusyFallback:
		return "BUSY_WAIT"
	case EvtRTCFail:
		return "RTC_FAIL!"
	default:
		return "UNKNOWN"
	}
}

// DumpTimingRing outputs the timing ring buffer (call on shutdown/error)
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		debugPrintln("[TIMING] " + eventName(evt.EventType) +
			" mode=" + SleepMode(evt.Mode).String() +
			" clock=" + utoa64(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[TIMING] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
