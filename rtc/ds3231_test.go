package rtc

import (
	"errors"
	"testing"
	"time"

	"tickhal/core"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/ds3231"
)

var _ drivers.I2C = (*fakeI2C)(nil)

// fakeI2C is a DS3231 register file.
type fakeI2C struct {
	regs [0x13]byte
	nak  bool
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.nak || addr != ds3231.Address {
		return errors.New("nak")
	}
	if len(w) == 0 {
		return errors.New("empty write")
	}
	reg := int(w[0])
	if len(r) > 0 {
		copy(r, f.regs[reg:])
		return nil
	}
	copy(f.regs[reg:], w[1:])
	return nil
}

func bcd(v int) byte { return byte(v/10<<4 | v%10) }

func (f *fakeI2C) setChip(year, month, day, hour, minute, second int, century bool) {
	f.regs[0] = bcd(second)
	f.regs[1] = bcd(minute)
	f.regs[2] = bcd(hour)
	f.regs[4] = bcd(day)
	f.regs[5] = bcd(month)
	if century {
		f.regs[5] |= 0x80
	}
	f.regs[6] = bcd(year)
}

func unix(y int, m time.Month, d, hh, mm, ss int) uint32 {
	return uint32(time.Date(y, m, d, hh, mm, ss, 0, time.UTC).Unix())
}

func newConfigured(t *testing.T, bus *fakeI2C, store EraStore) *DS3231 {
	t.Helper()
	r := New(bus, store)
	if err := r.Configure(); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return r
}

func TestAbsentChip(t *testing.T) {
	r := New(&fakeI2C{nak: true}, nil)
	if err := r.Configure(); core.CodeOf(err) != core.NotInitialized {
		t.Fatalf("Configure on silent bus: %v", err)
	}
	if r.Present() {
		t.Fatal("Present() after failed Configure")
	}
	if _, err := r.ReadSeconds(); !errors.Is(err, core.NotInitialized) {
		t.Fatalf("ReadSeconds: %v", err)
	}
	if err := r.WriteSeconds(1); !errors.Is(err, core.NotInitialized) {
		t.Fatalf("WriteSeconds: %v", err)
	}
}

func TestConfigureStartsOscillator(t *testing.T) {
	bus := &fakeI2C{}
	bus.regs[ds3231.REG_CONTROL] = 1 << ds3231.EOSC
	newConfigured(t, bus, nil)
	if bus.regs[ds3231.REG_CONTROL]&(1<<ds3231.EOSC) != 0 {
		t.Fatal("oscillator left stopped")
	}
}

func TestWriteReadSeconds(t *testing.T) {
	bus := &fakeI2C{}
	r := newConfigured(t, bus, nil)

	want := unix(2024, time.June, 1, 12, 34, 56)
	if err := r.WriteSeconds(want); err != nil {
		t.Fatal(err)
	}
	if bus.regs[6] != 0x24 || bus.regs[5] != 0x06 {
		t.Errorf("year/month registers %#x/%#x, want 0x24/0x06", bus.regs[6], bus.regs[5])
	}
	got, err := r.ReadSeconds()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ReadSeconds = %d, want %d", got, want)
	}
}

func TestWriteBefore2000(t *testing.T) {
	r := newConfigured(t, &fakeI2C{}, nil)
	err := r.WriteSeconds(unix(1999, time.December, 31, 23, 59, 59))
	if core.CodeOf(err) != core.BadArgument {
		t.Fatalf("WriteSeconds(1999) = %v, want bad_argument", err)
	}
}

func TestCenturyRollover(t *testing.T) {
	bus := &fakeI2C{}
	store := &MemoryEraStore{}
	r := newConfigured(t, bus, store)
	bus.setChip(0, 1, 1, 0, 0, 5, true)

	want := unix(2100, time.January, 1, 0, 0, 5)
	got, err := r.ReadSeconds()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ReadSeconds = %d, want %d", got, want)
	}
	if era, ok := store.LoadEra(); !ok || era != 1 {
		t.Errorf("stored era = %d, %v; want 1", era, ok)
	}
	if bus.regs[5]&0x80 != 0 {
		t.Error("century flag not cleared")
	}

	// Steady state after the rollover: same answer, no second advance.
	got, err = r.ReadSeconds()
	if err != nil || got != want || r.Era() != 1 {
		t.Errorf("second read = %d, %v, era %d", got, err, r.Era())
	}
}

func TestEraRestoredAndWritten(t *testing.T) {
	bus := &fakeI2C{}
	store := &MemoryEraStore{}
	store.SaveEra(1)
	r := newConfigured(t, bus, store)
	bus.setChip(3, 3, 15, 8, 0, 0, false)

	got, err := r.ReadSeconds()
	if err != nil {
		t.Fatal(err)
	}
	if want := unix(2103, time.March, 15, 8, 0, 0); got != want {
		t.Errorf("ReadSeconds = %d, want %d", got, want)
	}

	if err := r.WriteSeconds(unix(2050, time.July, 4, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if era, _ := store.LoadEra(); era != 0 || r.Era() != 0 {
		t.Errorf("era after writing 2050 = %d/%d, want 0", era, r.Era())
	}
	if bus.regs[6] != 0x50 {
		t.Errorf("year register %#x, want 0x50", bus.regs[6])
	}
}

func TestAsWallClockSource(t *testing.T) {
	bus := &fakeI2C{}
	r := newConfigured(t, bus, nil)
	want := unix(2030, time.January, 2, 3, 4, 5)
	if err := r.WriteSeconds(want); err != nil {
		t.Fatal(err)
	}
	clock := core.NewHardwareClock(r, monoFunc(func() uint64 { return 0 }))
	if got := clock.Seconds(); got != want {
		t.Errorf("HardwareClock.Seconds = %d, want %d", got, want)
	}
}

type monoFunc func() uint64

func (f monoFunc) Read() uint64 { return f() }
