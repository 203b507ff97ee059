// Package rtc backs the wall clock with a DS3231 real-time clock.
//
// The chip stores a two-digit year and a century flag that it sets when the
// year rolls from 99 to 00. The full century count lives in an EraStore;
// each time the flag is seen set, the era advances and the flag is cleared,
// so the chip always holds years 2000-2099 relative to the stored era.
package rtc

import (
	"time"

	"tickhal/core"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ds3231"
)

// EraStore persists the number of centuries past 2000.
type EraStore interface {
	LoadEra() (era uint8, ok bool)
	SaveEra(era uint8) error
}

// MemoryEraStore keeps the era in RAM. Useful when the board has no
// retained storage and for tests.
type MemoryEraStore struct {
	era uint8
	ok  bool
}

func (m *MemoryEraStore) LoadEra() (uint8, bool) { return m.era, m.ok }

func (m *MemoryEraStore) SaveEra(era uint8) error {
	m.era, m.ok = era, true
	return nil
}

// maxYear is the last calendar year whose seconds fit in a uint32.
const maxYear = 2105

// DS3231 implements core.RTCCounter.
type DS3231 struct {
	dev     ds3231.Device
	store   EraStore
	era     uint8
	present bool
}

var _ core.RTCCounter = (*DS3231)(nil)

// New wraps a DS3231 on an already configured bus. Call Configure before use.
func New(bus drivers.I2C, store EraStore) *DS3231 {
	if store == nil {
		store = &MemoryEraStore{}
	}
	return &DS3231{dev: ds3231.New(bus), store: store}
}

// Configure probes the chip, starts its oscillator if it was stopped and
// loads the persisted era.
func (r *DS3231) Configure() error {
	r.present = false
	if !r.dev.Configure() {
		return core.Wrap(core.NotInitialized, "ds3231 configure", nil)
	}
	if !r.dev.IsRunning() {
		if err := r.dev.SetRunning(true); err != nil {
			return core.Wrap(core.NotInitialized, "ds3231 start", err)
		}
	}
	if _, err := r.dev.ReadTime(); err != nil {
		return core.Wrap(core.NotInitialized, "ds3231 probe", err)
	}
	if era, ok := r.store.LoadEra(); ok {
		r.era = era
	}
	r.present = true
	return nil
}

// Present reports whether Configure found the chip.
func (r *DS3231) Present() bool { return r.present }

// Valid reports whether the chip kept time since it was last set. It is
// false after a power loss with a flat backup cell.
func (r *DS3231) Valid() bool { return r.dev.IsTimeValid() }

// Era returns the current century count past 2000.
func (r *DS3231) Era() uint8 { return r.era }

// ReadSeconds returns the chip time as seconds since 1970.
func (r *DS3231) ReadSeconds() (uint32, error) {
	if !r.present {
		return 0, core.NotInitialized
	}
	t, err := r.dev.ReadTime()
	if err != nil {
		return 0, core.Wrap(core.Unknown, "ds3231 read", err)
	}
	if t.Year() >= 2100 {
		if err := r.rollEra(t); err != nil {
			return 0, err
		}
		t = t.AddDate(-100, 0, 0)
	}
	year := t.Year() + 100*int(r.era)
	if year > maxYear {
		return 0, core.Wrap(core.BadArgument, "ds3231 read", nil)
	}
	full := time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	return uint32(full.Unix()), nil
}

// rollEra records a century rollover and clears the chip's flag.
func (r *DS3231) rollEra(t time.Time) error {
	if err := r.store.SaveEra(r.era + 1); err != nil {
		return core.Wrap(core.Unknown, "ds3231 era", err)
	}
	r.era++
	if err := r.dev.SetTime(t.AddDate(-100, 0, 0)); err != nil {
		return core.Wrap(core.Unknown, "ds3231 clear century", err)
	}
	return nil
}

// WriteSeconds sets the chip. Times before 2000 cannot be represented.
func (r *DS3231) WriteSeconds(s uint32) error {
	if !r.present {
		return core.NotInitialized
	}
	t := time.Unix(int64(s), 0).UTC()
	if t.Year() < 2000 {
		return core.Wrap(core.BadArgument, "ds3231 write", nil)
	}
	era := uint8((t.Year() - 2000) / 100)
	chip := t.AddDate(-100*int(era), 0, 0)
	if err := r.dev.SetTime(chip); err != nil {
		return core.Wrap(core.Unknown, "ds3231 write", err)
	}
	if era != r.era {
		if err := r.store.SaveEra(era); err != nil {
			return core.Wrap(core.Unknown, "ds3231 era", err)
		}
		r.era = era
	}
	return nil
}

// Temperature returns the die temperature in millidegrees Celsius.
func (r *DS3231) Temperature() (int32, error) {
	return r.dev.ReadTemperature()
}
