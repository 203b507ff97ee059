package link

import (
	"context"
	"time"
)

// Mode is a hibernate depth as sent on the wire.
type Mode uint8

const (
	Light Mode = iota
	Deep
	Max
)

func (m Mode) String() string {
	switch m {
	case Light:
		return "light"
	case Deep:
		return "deep"
	case Max:
		return "max"
	}
	return "unknown"
}

// ParseMode accepts the names printed by String.
func ParseMode(s string) (Mode, bool) {
	for m := Light; m <= Max; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// AllowInterrupts lets an external event end a hibernate early.
const AllowInterrupts uint8 = 1

// DateTime mirrors the device calendar fields.
type DateTime struct {
	Year                             uint16
	Month, Day, Hour, Minute, Second uint8
}

// Time converts to a UTC time.Time.
func (d DateTime) Time() time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day),
		int(d.Hour), int(d.Minute), int(d.Second), 0, time.UTC)
}

// DateTimeOf splits t (in UTC) into device fields.
func DateTimeOf(t time.Time) DateTime {
	t = t.UTC()
	return DateTime{
		Year:   uint16(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
	}
}

// Outcome is a hibernate_result.
type Outcome struct {
	Requested time.Duration
	Elapsed   time.Duration
	Mode      Mode
	Wakes     uint32
}

// Calibration is a calibrate reply.
type Calibration struct {
	Factor uint32 // ms per Cycles reference cycles
	Cycles uint32
	OK     bool
}

// Stats are the device's sleep counters.
type Stats struct {
	Wakes, Calibrations, Failures, Clamps uint32
}

// Uptime returns seconds since the device's uptime origin.
func (c *Client) Uptime(ctx context.Context) (uint32, error) {
	r, err := c.Call(ctx, "get_uptime", "uptime")
	if err != nil {
		return 0, err
	}
	return r.Uint("seconds"), nil
}

// Clock returns the device's monotonic millisecond counter (low 32 bits).
func (c *Client) Clock(ctx context.Context) (uint32, error) {
	r, err := c.Call(ctx, "get_clock", "clock")
	if err != nil {
		return 0, err
	}
	return r.Uint("ms"), nil
}

// Wallclock returns the device wall time.
func (c *Client) Wallclock(ctx context.Context) (time.Time, error) {
	r, err := c.Call(ctx, "get_wallclock", "wallclock")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(r.Uint("seconds")), 0).UTC(), nil
}

// SetWallclock sets the device wall time to t, truncated to the second.
func (c *Client) SetWallclock(ctx context.Context, t time.Time) (time.Time, error) {
	r, err := c.Call(ctx, "set_wallclock", "wallclock", uint32(t.Unix()))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(r.Uint("seconds")), 0).UTC(), nil
}

func dateTimeOf(r *Response) DateTime {
	return DateTime{
		Year:   uint16(r.Uint("year")),
		Month:  uint8(r.Uint("month")),
		Day:    uint8(r.Uint("day")),
		Hour:   uint8(r.Uint("hour")),
		Minute: uint8(r.Uint("minute")),
		Second: uint8(r.Uint("second")),
	}
}

// DateTime returns the device calendar time.
func (c *Client) DateTime(ctx context.Context) (DateTime, error) {
	r, err := c.Call(ctx, "get_datetime", "datetime")
	if err != nil {
		return DateTime{}, err
	}
	return dateTimeOf(r), nil
}

// SetDateTime sets calendar fields. All-zero date fields keep the device's
// date; all-zero time fields keep its time of day.
func (c *Client) SetDateTime(ctx context.Context, d DateTime) (DateTime, error) {
	r, err := c.Call(ctx, "set_datetime", "datetime",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
	if err != nil {
		return DateTime{}, err
	}
	return dateTimeOf(r), nil
}

func outcomeOf(r *Response) Outcome {
	return Outcome{
		Requested: time.Duration(r.Uint("requested")) * time.Millisecond,
		Elapsed:   time.Duration(r.Uint("elapsed_ms")) * time.Millisecond,
		Mode:      Mode(r.Uint("mode")),
		Wakes:     r.Uint("wakes"),
	}
}

// SleepMs asks for a light, uninterruptible pause.
func (c *Client) SleepMs(ctx context.Context, ms uint32) (Outcome, error) {
	r, err := c.Call(ctx, "sleep_ms", "hibernate_result", ms)
	if err != nil {
		return Outcome{}, err
	}
	return outcomeOf(r), nil
}

// Hibernate asks the device to sleep. ctx must outlive the sleep.
func (c *Client) Hibernate(ctx context.Context, seconds uint32, mode Mode, flags uint8) (Outcome, error) {
	r, err := c.Call(ctx, "hibernate", "hibernate_result", seconds, uint8(mode), flags)
	if err != nil {
		return Outcome{}, err
	}
	return outcomeOf(r), nil
}

// Calibrate forces a calibration run.
func (c *Client) Calibrate(ctx context.Context) (Calibration, error) {
	r, err := c.Call(ctx, "calibrate", "calibration")
	if err != nil {
		return Calibration{}, err
	}
	return Calibration{Factor: r.Uint("factor"), Cycles: r.Uint("cycles"), OK: r.Uint("status") == 0}, nil
}

// Stats reads the sleep counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	r, err := c.Call(ctx, "get_sleep_stats", "sleep_stats")
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Wakes:        r.Uint("wakes"),
		Calibrations: r.Uint("calibrations"),
		Failures:     r.Uint("failures"),
		Clamps:       r.Uint("clamps"),
	}, nil
}

// ConfigSleep sets the deepest allowed mode and, when interval is non-zero,
// the calibration interval.
func (c *Client) ConfigSleep(ctx context.Context, ceiling Mode, interval time.Duration) error {
	return c.Send(ctx, "config_sleep", uint8(ceiling), uint32(interval/time.Second))
}
