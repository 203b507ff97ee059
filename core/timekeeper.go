package core

import "time"

// DateTime is a calendar view of WallSeconds in UTC.
type DateTime struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
}

func (d DateTime) dateZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }
func (d DateTime) timeZero() bool { return d.Hour == 0 && d.Minute == 0 && d.Second == 0 }

// DateTimeFromSeconds converts WallSeconds to calendar fields.
func DateTimeFromSeconds(s uint32) DateTime {
	t := time.Unix(int64(s), 0).UTC()
	return DateTime{
		Year:   uint16(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
	}
}

// Seconds converts calendar fields to WallSeconds. Out-of-range fields and
// dates outside 1970..2106 are rejected rather than normalised.
func (d DateTime) Seconds() (uint32, error) {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 || d.Day > 31 ||
		d.Hour > 23 || d.Minute > 59 || d.Second > 59 {
		return 0, opErr(BadArgument, "datetime", nil)
	}
	t := time.Date(int(d.Year), time.Month(d.Month), int(d.Day),
		int(d.Hour), int(d.Minute), int(d.Second), 0, time.UTC)
	if t.Day() != int(d.Day) {
		return 0, opErr(BadArgument, "datetime day", nil) // Feb 30 and friends
	}
	u := t.Unix()
	if u < 0 || u > 0xFFFFFFFF {
		return 0, opErr(BadArgument, "datetime range", nil)
	}
	return uint32(u), nil
}

// TimeKeeper owns the wall clock and the uptime origin.
//
// Uptime is derived as wall - origin with origin = wall_at_init -
// uptime_at_init. Rebasing the wall clock shifts origin by the same delta,
// so uptime keeps its slope across a user set.
type TimeKeeper struct {
	wall   WallClock
	mono   Monotonic
	origin int64
	store  EpochStore
}

// NewTimeKeeper anchors uptime at uptimeAtInit against the wall clock's
// current reading.
func NewTimeKeeper(wall WallClock, mono Monotonic, uptimeAtInit uint32) *TimeKeeper {
	return &TimeKeeper{
		wall:   wall,
		mono:   mono,
		origin: int64(wall.Seconds()) - int64(uptimeAtInit),
	}
}

// Wall exposes the backing clock.
func (k *TimeKeeper) Wall() WallClock { return k.wall }

// Seconds returns WallSeconds.
func (k *TimeKeeper) Seconds() uint32 { return k.wall.Seconds() }

// Uptime returns seconds since boot, unaffected by wall clock rebases.
func (k *TimeKeeper) Uptime() uint32 {
	return uint32(int64(k.wall.Seconds()) - k.origin)
}

// SetSeconds rebases the wall clock.
func (k *TimeKeeper) SetSeconds(s uint32) error {
	state := disableInterrupts()
	old := k.wall.Seconds()
	err := k.wall.SetSeconds(s)
	if err == nil {
		k.origin += int64(s) - int64(old)
	}
	restoreInterrupts(state)
	if err != nil {
		return err
	}
	RecordTiming(EvtRebase, Light, k.mono.Read(), old, s)
	k.persist(s)
	return nil
}

// DateTime returns the wall clock as calendar fields.
func (k *TimeKeeper) DateTime() DateTime {
	return DateTimeFromSeconds(k.wall.Seconds())
}

// SetDateTime sets the wall clock from calendar fields. All-zero date fields
// keep the current date; all-zero time fields keep the current time of day.
func (k *TimeKeeper) SetDateTime(d DateTime) error {
	if d.dateZero() && d.timeZero() {
		return nil
	}
	cur := k.DateTime()
	if d.dateZero() {
		d.Year, d.Month, d.Day = cur.Year, cur.Month, cur.Day
	}
	if d.timeZero() {
		d.Hour, d.Minute, d.Second = cur.Hour, cur.Minute, cur.Second
	}
	s, err := d.Seconds()
	if err != nil {
		return err
	}
	return k.SetSeconds(s)
}

// reconcile credits a finished sleep span. overlapMs is what the ticker
// itself counted between arming and disarming; it is already in the wall
// clock, so it is taken back before the measured span is added.
func (k *TimeKeeper) reconcile(elapsedMs, overlapMs uint32) {
	if overlapMs > 0 {
		k.wall.SubtractMillis(overlapMs)
	}
	k.wall.AddMillis(elapsedMs)
}

// Persist saves the current epoch if a store is attached.
func (k *TimeKeeper) Persist() {
	k.persist(k.wall.Seconds())
}

func (k *TimeKeeper) persist(s uint32) {
	if k.store == nil {
		return
	}
	if err := k.store.SaveEpoch(s); err != nil {
		DebugPrintln("[CLOCK] epoch save failed: " + err.Error())
	}
}
