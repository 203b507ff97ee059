package core

import "tickhal/protocol"

// RegisterTimeCommands adds the time and sleep command set to s, bound to
// sys. Responses are registered first so IDs are stable across builds.
func RegisterTimeCommands(s *Session, sys *System) {
	reg := s.Registry()
	reg.RegisterResponse("uptime", "seconds=%u")
	reg.RegisterResponse("clock", "ms=%u")
	reg.RegisterResponse("wallclock", "seconds=%u")
	reg.RegisterResponse("datetime", "year=%hu month=%c day=%c hour=%c minute=%c second=%c")
	reg.RegisterResponse("hibernate_result", "requested=%u elapsed_ms=%u mode=%c wakes=%u")
	reg.RegisterResponse("calibration", "factor=%u cycles=%u status=%c")
	reg.RegisterResponse("sleep_stats", "wakes=%u calibrations=%u failures=%u clamps=%u")

	h := &timeCommands{s: s, sys: sys}
	reg.Register("get_uptime", "", h.getUptime)
	reg.Register("get_clock", "", h.getClock)
	reg.Register("get_wallclock", "", h.getWallclock)
	reg.Register("set_wallclock", "seconds=%u", h.setWallclock)
	reg.Register("get_datetime", "", h.getDatetime)
	reg.Register("set_datetime", "year=%hu month=%c day=%c hour=%c minute=%c second=%c", h.setDatetime)
	reg.Register("sleep_ms", "ms=%u", h.sleepMs)
	reg.Register("hibernate", "seconds=%u mode=%c flags=%c", h.hibernate)
	reg.Register("calibrate", "", h.calibrate)
	reg.Register("get_sleep_stats", "", h.getSleepStats)
	reg.Register("config_sleep", "ceiling=%c interval_s=%u", h.configSleep)
}

type timeCommands struct {
	s   *Session
	sys *System
}

// readArgs decodes len(dst) unsigned arguments in order.
func readArgs(data *[]byte, op string, dst ...*uint32) error {
	for _, p := range dst {
		v, err := protocol.ReadUint(data)
		if err != nil {
			return opErr(BadArgument, op, err)
		}
		*p = v
	}
	return nil
}

func (h *timeCommands) getUptime(data *[]byte) error {
	up := h.sys.Clock.Uptime()
	h.s.SendResponse("uptime", func(b []byte) []byte {
		return protocol.AppendUint(b, up)
	})
	return nil
}

func (h *timeCommands) getClock(data *[]byte) error {
	ms := uint32(h.sys.Ticker.Read())
	h.s.SendResponse("clock", func(b []byte) []byte {
		return protocol.AppendUint(b, ms)
	})
	return nil
}

func (h *timeCommands) getWallclock(data *[]byte) error {
	h.sendWallclock()
	return nil
}

func (h *timeCommands) sendWallclock() {
	secs := h.sys.Clock.Seconds()
	h.s.SendResponse("wallclock", func(b []byte) []byte {
		return protocol.AppendUint(b, secs)
	})
}

func (h *timeCommands) setWallclock(data *[]byte) error {
	var secs uint32
	if err := readArgs(data, "set_wallclock", &secs); err != nil {
		return err
	}
	if err := h.sys.Clock.SetSeconds(secs); err != nil {
		return err
	}
	h.sendWallclock()
	return nil
}

func (h *timeCommands) getDatetime(data *[]byte) error {
	h.sendDatetime()
	return nil
}

func (h *timeCommands) sendDatetime() {
	d := h.sys.Clock.DateTime()
	h.s.SendResponse("datetime", func(b []byte) []byte {
		b = protocol.AppendUint(b, uint32(d.Year))
		for _, v := range [...]uint8{d.Month, d.Day, d.Hour, d.Minute, d.Second} {
			b = protocol.AppendUint(b, uint32(v))
		}
		return b
	})
}

func (h *timeCommands) setDatetime(data *[]byte) error {
	var year, month, day, hour, minute, second uint32
	if err := readArgs(data, "set_datetime", &year, &month, &day, &hour, &minute, &second); err != nil {
		return err
	}
	if year > 0xFFFF || month > 0xFF || day > 0xFF || hour > 0xFF || minute > 0xFF || second > 0xFF {
		return opErr(BadArgument, "set_datetime", nil)
	}
	d := DateTime{
		Year:   uint16(year),
		Month:  uint8(month),
		Day:    uint8(day),
		Hour:   uint8(hour),
		Minute: uint8(minute),
		Second: uint8(second),
	}
	if err := h.sys.Clock.SetDateTime(d); err != nil {
		return err
	}
	h.sendDatetime()
	return nil
}

func (h *timeCommands) sendOutcome(out Outcome) {
	h.s.SendResponse("hibernate_result", func(b []byte) []byte {
		b = protocol.AppendUint(b, uint32(out.RequestedMs))
		b = protocol.AppendUint(b, uint32(out.ElapsedMs))
		b = protocol.AppendUint(b, uint32(out.Mode))
		return protocol.AppendUint(b, out.Wakes)
	})
}

func (h *timeCommands) sleepMs(data *[]byte) error {
	var ms uint32
	if err := readArgs(data, "sleep_ms", &ms); err != nil {
		return err
	}
	h.s.Defer(func() {
		h.sendOutcome(h.sys.Sleep.SleepMs(ms))
	})
	return nil
}

func (h *timeCommands) hibernate(data *[]byte) error {
	var secs, mode, flags uint32
	if err := readArgs(data, "hibernate", &secs, &mode, &flags); err != nil {
		return err
	}
	if mode > uint32(Max) {
		return opErr(BadArgument, "hibernate mode", nil)
	}
	h.s.Defer(func() {
		// Events from before the request are stale.
		h.sys.Status.ClearInterruptPending()
		out := h.sys.Sleep.Hibernate(secs, SleepMode(mode), HibernateFlags(flags))
		h.sendOutcome(out)
	})
	return nil
}

func (h *timeCommands) calibrate(data *[]byte) error {
	status := uint32(0)
	if err := h.sys.Calibrator.Calibrate(); err != nil {
		DebugPrintln("[CAL] " + err.Error())
		status = 1
	}
	factor, cycles := h.sys.Calibrator.Factor(), h.sys.Calibrator.Cycles()
	h.s.SendResponse("calibration", func(b []byte) []byte {
		b = protocol.AppendUint(b, factor)
		b = protocol.AppendUint(b, cycles)
		return protocol.AppendUint(b, status)
	})
	return nil
}

func (h *timeCommands) getSleepStats(data *[]byte) error {
	runs, failures := h.sys.Calibrator.Stats()
	wakes, clamps := h.sys.Sleep.Wakes(), h.sys.Wake.Clamps()
	h.s.SendResponse("sleep_stats", func(b []byte) []byte {
		b = protocol.AppendUint(b, wakes)
		b = protocol.AppendUint(b, runs)
		b = protocol.AppendUint(b, failures)
		return protocol.AppendUint(b, clamps)
	})
	return nil
}

func (h *timeCommands) configSleep(data *[]byte) error {
	var ceiling, intervalS uint32
	if err := readArgs(data, "config_sleep", &ceiling, &intervalS); err != nil {
		return err
	}
	if ceiling > uint32(Max) {
		return opErr(BadArgument, "config_sleep ceiling", nil)
	}
	if intervalS > 0xFFFFFFFF/1000 {
		return opErr(BadArgument, "config_sleep interval", nil)
	}
	if intervalS > 0 {
		if err := h.sys.SetCalibrationInterval(intervalS * 1000); err != nil {
			return err
		}
	}
	return h.sys.Sleep.SetCeiling(SleepMode(ceiling))
}
