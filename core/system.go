package core

// System is the process-wide timing context: every piece of shared timing
// state lives here rather than in package variables, so tests can build as
// many independent instances as they like. Firmware builds one at boot with
// Init and reaches it from interrupt vectors through Current.
type System struct {
	Ticker     *Ticker
	Calibrator *Calibrator
	Wake       *WakeTimer
	Clock      *TimeKeeper
	Sleep      *Scheduler
	Status     *Status

	hw     Hardware
	cfg    Config
	timers TimerList

	calTimer     Timer
	persistTimer Timer
}

// NewSystem builds the timing core on hw. The ticker is enabled before the
// wall clock is read, and the calibrator starts from the nominal factor.
func NewSystem(hw Hardware, cfg Config) (*System, error) {
	if err := hw.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults(hw.Wake.RateHz())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &System{hw: hw, cfg: cfg, Status: &Status{}}
	s.Ticker = NewTicker(hw.Ticker)
	s.Ticker.Enable()

	s.Calibrator = NewCalibrator(s.Ticker, hw.Wake, cfg, hw.relax)
	s.Wake = NewWakeTimer(hw.Wake, s.Calibrator)

	var wall WallClock
	if hw.RTC != nil && hw.RTC.Present() {
		wall = NewHardwareClock(hw.RTC, s.Ticker)
	} else {
		var epoch uint32
		if hw.Store != nil {
			if e, ok := hw.Store.LoadEpoch(); ok {
				epoch = e
			}
		}
		wall = NewEmulatedClock(s.Ticker, epoch)
	}
	s.Clock = NewTimeKeeper(wall, s.Ticker, cfg.UptimeAtInit)
	s.Clock.store = hw.Store

	s.Sleep = NewScheduler(s.Ticker, s.Wake, s.Calibrator, s.Clock,
		hw.CPU, s.Status, cfg.ModeCeiling, hw.relax)

	now := s.Ticker.Elapsed()
	s.calTimer = Timer{WakeTime: now, Handler: s.calibrationEvent}
	s.timers.Schedule(&s.calTimer)
	if hw.Store != nil {
		s.persistTimer = Timer{WakeTime: now + uint64(cfg.PersistIntervalMs), Handler: s.persistEvent}
		s.timers.Schedule(&s.persistTimer)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *System) Config() Config { return s.cfg }

// SetCalibrationInterval changes the refresh period of the factor.
func (s *System) SetCalibrationInterval(ms uint32) error {
	if ms == 0 {
		return opErr(BadArgument, "calibration interval", nil)
	}
	s.cfg.CalibrationIntervalMs = ms
	s.Calibrator.SetInterval(ms)
	s.timers.Cancel(&s.calTimer)
	s.calTimer.WakeTime = s.Ticker.Elapsed() + uint64(ms)
	s.timers.Schedule(&s.calTimer)
	return nil
}

// Poll runs due housekeeping timers. Call it from the main loop.
func (s *System) Poll() {
	s.timers.Dispatch(s.Ticker.Elapsed())
}

// Schedule adds an application timer to the housekeeping list. WakeTime is
// a Ticker.Elapsed reading.
func (s *System) Schedule(t *Timer) { s.timers.Schedule(t) }

func (s *System) calibrationEvent(t *Timer) uint8 {
	if s.Calibrator.Due(s.Ticker.Elapsed()) {
		if err := s.Calibrator.Calibrate(); err != nil {
			DebugPrintln("[CAL] " + err.Error() + ", keeping factor " + utoa(s.Calibrator.Factor()))
		}
	}
	t.WakeTime = s.Ticker.Elapsed() + uint64(s.cfg.CalibrationIntervalMs)
	return SFReschedule
}

func (s *System) persistEvent(t *Timer) uint8 {
	s.Clock.Persist()
	t.WakeTime = s.Ticker.Elapsed() + uint64(s.cfg.PersistIntervalMs)
	return SFReschedule
}

// HandleTickInterrupt is the periodic vector's handler.
func (s *System) HandleTickInterrupt() { s.Ticker.HandleInterrupt() }

// HandleWakeInterrupt is the wake counter vector's handler.
func (s *System) HandleWakeInterrupt() { s.Wake.HandleInterrupt() }

// HandleExternalInterrupt marks an external event for interruptible sleeps.
func (s *System) HandleExternalInterrupt() { s.Status.SetInterruptPending() }

// Teardown stops the ticker and any armed wake span.
func (s *System) Teardown() {
	s.Wake.Disarm()
	s.Ticker.Disable()
	if s.hw.Store != nil {
		s.Clock.Persist()
	}
}

var current *System

// Init builds the process-wide System. Interrupt vectors bound at
// configuration time reach it through Current.
func Init(hw Hardware, cfg Config) (*System, error) {
	s, err := NewSystem(hw, cfg)
	if err != nil {
		return nil, err
	}
	current = s
	return s, nil
}

// Current returns the process-wide System, or nil before Init.
func Current() *System { return current }

// MustSystem returns the process-wide System or panics if missing.
func MustSystem() *System {
	if current == nil {
		panic("timing system not initialized")
	}
	return current
}

// Teardown stops and forgets the process-wide System.
func Teardown() {
	if current != nil {
		current.Teardown()
		current = nil
	}
}
