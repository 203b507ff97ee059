package core

import "testing"

func TestWakeTimerArm(t *testing.T) {
	b := newSimBoard(t)
	sys := b.boot(Config{}, nil)
	if err := sys.Calibrator.Calibrate(); err != nil {
		t.Fatal(err)
	}

	// (250 * 512) / 500 = 256 cycles, programmed as 255.
	armed := sys.Wake.Arm(250)
	if armed != 250 {
		t.Errorf("armed = %d, want 250", armed)
	}
	if p := b.periods[len(b.periods)-1]; p != 255 {
		t.Errorf("period register = %d, want 255", p)
	}
	if !sys.Wake.Pending() {
		t.Fatal("not pending after Arm")
	}

	b.advance(250000)
	if sys.Wake.Pending() {
		t.Fatal("still pending after the span")
	}
	if got := sys.Wake.Disarm(); got != 250 {
		t.Errorf("Disarm = %d, want 250", got)
	}
}

func TestWakeTimerEarlyDisarm(t *testing.T) {
	b := newSimBoard(t)
	sys := b.boot(Config{}, nil)

	sys.Wake.Arm(1000)
	b.advance(400000)
	got := sys.Wake.Disarm()
	// 409 cycles * 500 / 512
	if got != 399 {
		t.Errorf("Disarm after 400 ms = %d, want 399", got)
	}
	if sys.Wake.Disarm() != 0 {
		t.Error("second Disarm reported time")
	}
}

func TestWakeTimerClamp(t *testing.T) {
	b := newSimBoard(t)
	sys := b.boot(Config{}, nil)

	if span := sys.Wake.MaxSpanMs(); span != 25000 {
		t.Fatalf("MaxSpanMs = %d, want 25000", span)
	}
	armed := sys.Wake.Arm(100000)
	if armed > 25000 || armed == 0 {
		t.Errorf("armed = %d, want within (0, 25000]", armed)
	}
	if p := b.periods[len(b.periods)-1]; p != b.maxPeriod {
		t.Errorf("period register = %d, want %d", p, b.maxPeriod)
	}
	if sys.Wake.Clamps() != 1 {
		t.Errorf("Clamps = %d", sys.Wake.Clamps())
	}
	sys.Wake.Disarm()
}

func TestWakeTimerBelowOneCycle(t *testing.T) {
	b := newSimBoard(t)
	b.refNominal, b.refActual = 32, 32
	sys := b.boot(Config{CalibrationCycles: 32}, nil)

	if armed := sys.Wake.Arm(20); armed != 0 {
		t.Errorf("armed = %d for a span under one 31.25 ms cycle", armed)
	}
	if len(b.periods) != 0 {
		t.Error("counter was started")
	}
}
