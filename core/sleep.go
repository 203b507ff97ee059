package core

import "tickhal/x/mathx"

// HibernateFlags modify a hibernate call.
type HibernateFlags uint8

const (
	// AllowInterrupts ends the call at the next span boundary once the
	// external interrupt-pending status flag is set.
	AllowInterrupts HibernateFlags = 1 << 0
)

// HibernateHook may rewrite the duration (seconds) and mode of a hibernate
// call before it runs; after it runs it receives the original duration and
// the mode actually executed.
type HibernateHook func(seconds *uint32, mode *SleepMode, flags HibernateFlags)

// Hooks are the per-application policy overrides. Nil members are no-ops.
type Hooks struct {
	PreHibernate  HibernateHook
	PostHibernate HibernateHook
}

func (h Hooks) pre(seconds *uint32, mode *SleepMode, flags HibernateFlags) {
	if h.PreHibernate != nil {
		h.PreHibernate(seconds, mode, flags)
	}
}

func (h Hooks) post(seconds *uint32, mode *SleepMode, flags HibernateFlags) {
	if h.PostHibernate != nil {
		h.PostHibernate(seconds, mode, flags)
	}
}

// SchedState is the scheduler's state machine position.
type SchedState uint8

const (
	Awake SchedState = iota
	Sleeping
)

// Outcome reports what a sleep call actually did.
type Outcome struct {
	RequestedMs uint64    // after the pre-hook
	ElapsedMs   uint64    // measured, including calibration and busy waits
	Mode        SleepMode // mode executed
	Wakes       uint32    // low-power spans executed
}

// Scheduler runs the sleep state machine. It never fails: a shallower mode
// or a span that differs from the request by counter granularity is the
// worst outcome, and it is reported through Outcome.
type Scheduler struct {
	ticker *Ticker
	wake   *WakeTimer
	cal    *Calibrator
	clock  *TimeKeeper
	cpu    LowPowerCPU
	status *Status
	relax  func()

	ceiling SleepMode
	hooks   Hooks

	state     SchedState
	mode      SleepMode
	wakes     uint32
	fallbacks uint32
}

// NewScheduler wires the scheduler to its collaborators.
func NewScheduler(t *Ticker, w *WakeTimer, cal *Calibrator, clock *TimeKeeper,
	cpu LowPowerCPU, status *Status, ceiling SleepMode, relax func()) *Scheduler {
	return &Scheduler{
		ticker:  t,
		wake:    w,
		cal:     cal,
		clock:   clock,
		cpu:     cpu,
		status:  status,
		relax:   relax,
		ceiling: ceiling,
	}
}

// SetHooks installs the pre/post hibernate hooks.
func (s *Scheduler) SetHooks(h Hooks) { s.hooks = h }

// SetCeiling sets the deepest mode hibernate may use.
func (s *Scheduler) SetCeiling(m SleepMode) error {
	if m > Max {
		return opErr(BadArgument, "ceiling", nil)
	}
	s.ceiling = m
	return nil
}

// Ceiling returns the configured mode ceiling.
func (s *Scheduler) Ceiling() SleepMode { return s.ceiling }

// State returns the current state and, when sleeping, the mode.
func (s *Scheduler) State() (SchedState, SleepMode) { return s.state, s.mode }

// Wakes is the running count of low-power spans, for diagnostics.
func (s *Scheduler) Wakes() uint32 { return s.wakes }

// Fallbacks counts spans served by busy waiting.
func (s *Scheduler) Fallbacks() uint32 { return s.fallbacks }

// resolveMode applies the inhibit flag and the ceiling. It only ever
// lowers the mode.
func (s *Scheduler) resolveMode(m SleepMode) SleepMode {
	if m > Max {
		m = Max
	}
	if s.status.Inhibited() {
		return Light
	}
	if m > s.ceiling {
		return s.ceiling
	}
	return m
}

// SleepMs pauses for ms in Light mode: not interruptible, no hooks, no
// calibration.
func (s *Scheduler) SleepMs(ms uint32) Outcome {
	out := Outcome{RequestedMs: uint64(ms), Mode: Light}
	if ms == 0 || s.state != Awake {
		return out
	}
	s.run(&out, uint64(ms), Light, false)
	return out
}

// Hibernate sleeps for seconds in up to the given mode.
func (s *Scheduler) Hibernate(seconds uint32, mode SleepMode, flags HibernateFlags) Outcome {
	if seconds == 0 || s.state != Awake {
		return Outcome{Mode: s.resolveMode(mode)}
	}
	requested := seconds
	s.hooks.pre(&seconds, &mode, flags)
	mode = s.resolveMode(mode)

	out := Outcome{Mode: mode}
	s.timed(&out, seconds, flags)
	s.hooks.post(&requested, &out.Mode, flags)
	return out
}

// HibernateUntimed sleeps until a wake source outside the scheduler fires.
// The wake timer runs at its maximum span as a stopwatch so the wall clock
// can be reconciled; its own expiries re-arm it and do not end the call.
func (s *Scheduler) HibernateUntimed(mode SleepMode, flags HibernateFlags) Outcome {
	if s.state != Awake {
		return Outcome{Mode: s.resolveMode(mode)}
	}
	var seconds uint32
	s.hooks.pre(&seconds, &mode, flags)
	mode = s.resolveMode(mode)

	out := Outcome{Mode: mode}
	if seconds > 0 {
		s.timed(&out, seconds, flags)
	} else {
		s.untimed(&out, mode, flags&AllowInterrupts != 0)
	}
	var requested uint32
	s.hooks.post(&requested, &out.Mode, flags)
	return out
}

func (s *Scheduler) timed(out *Outcome, seconds uint32, flags HibernateFlags) {
	remaining := uint64(seconds) * 1000
	out.RequestedMs = remaining

	spent := s.cal.MaybeCalibrate(remaining)
	remaining -= mathx.Min(spent, remaining)
	out.ElapsedMs += spent

	s.run(out, remaining, out.Mode, flags&AllowInterrupts != 0)
}

// run is the per-span loop shared by SleepMs and Hibernate.
func (s *Scheduler) run(out *Outcome, remaining uint64, mode SleepMode, interruptible bool) {
	s.state, s.mode = Sleeping, mode
	for remaining > 0 {
		if interruptible && s.status.InterruptPending() {
			break
		}
		want := mathx.Min(remaining, uint64(s.wake.MaxSpanMs()))
		t0 := s.ticker.Read()
		armed := s.wake.Arm(uint32(want))
		if armed == 0 {
			// Budget below one native cycle, or no counter range at all.
			RecordTiming(EvtBusyFallback, mode, t0, uint32(mathx.Min(remaining, 0xFFFFFFFF)), 0)
			s.fallbacks++
			s.busyDelay(remaining)
			out.ElapsedMs += remaining
			break
		}
		RecordTiming(EvtSleepEnter, mode, t0, armed, uint32(mathx.Min(remaining, 0xFFFFFFFF)))

		s.ticker.Disable()
		s.waitForWake(mode)
		s.ticker.Enable()
		elapsed := s.wake.Disarm()

		s.settle(elapsed, t0)
		remaining -= mathx.Min(uint64(armed), remaining)
		s.wakes++
		out.Wakes++
		out.ElapsedMs += uint64(elapsed)
		RecordTiming(EvtWake, mode, s.ticker.Read(), elapsed, s.wakes)
	}
	s.state = Awake
}

// waitForWake issues WFI until the wake timer fires. The check and the WFI
// happen with interrupts masked, so a wake that lands between them still
// ends the WFI instead of being lost. Any other interrupt, an external
// event included, goes back to sleep: spans always run to completion.
func (s *Scheduler) waitForWake(mode SleepMode) {
	for {
		state := disableInterrupts()
		if !s.wake.Pending() {
			restoreInterrupts(state)
			return
		}
		s.cpu.WaitForInterrupt(mode)
		restoreInterrupts(state)
	}
}

func (s *Scheduler) untimed(out *Outcome, mode SleepMode, interruptible bool) {
	s.state, s.mode = Sleeping, mode
	for {
		if interruptible && s.status.InterruptPending() {
			break
		}
		t0 := s.ticker.Read()
		armed := s.wake.Arm(s.wake.MaxSpanMs())
		s.ticker.Disable()
		external := s.waitExternal(mode, interruptible, armed > 0)
		s.ticker.Enable()
		elapsed := s.wake.Disarm()

		s.settle(elapsed, t0)
		s.wakes++
		out.Wakes++
		out.ElapsedMs += uint64(elapsed)
		RecordTiming(EvtWake, mode, s.ticker.Read(), elapsed, s.wakes)
		if external {
			break
		}
	}
	s.state = Awake
}

// waitExternal returns true when the core was woken by something other
// than the stopwatch, false when the stopwatch lapsed and must be re-armed.
func (s *Scheduler) waitExternal(mode SleepMode, interruptible, stopwatch bool) bool {
	for {
		state := disableInterrupts()
		if interruptible && s.status.InterruptPending() {
			restoreInterrupts(state)
			return true
		}
		if stopwatch && !s.wake.Pending() {
			restoreInterrupts(state)
			return false
		}
		s.cpu.WaitForInterrupt(mode)
		restoreInterrupts(state)
		if !stopwatch || s.wake.Pending() {
			return true
		}
	}
}

// settle credits a finished span of elapsedMs that was armed at ticker
// reading t0 to the wall clock and to Ticker.Elapsed.
func (s *Scheduler) settle(elapsedMs uint32, t0 uint64) {
	overlap := uint32(s.ticker.Read() - t0)
	s.clock.reconcile(elapsedMs, overlap)
	if elapsedMs > overlap {
		s.ticker.Credit(elapsedMs - overlap)
	}
}

func (s *Scheduler) busyDelay(ms uint64) {
	if !s.ticker.IsEnabled() {
		s.ticker.Enable()
	}
	start := s.ticker.Read()
	for s.ticker.Read()-start < ms {
		if s.relax != nil {
			s.relax()
		}
	}
}
