package core

import (
	"errors"
	"testing"
)

func TestCalibrationFactor(t *testing.T) {
	b := newSimBoard(t)
	sys := b.boot(Config{}, nil)

	if err := sys.Calibrator.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if got := sys.Calibrator.Factor(); got != 500 {
		t.Errorf("factor = %d, want 500 (512 cycles at 1024 Hz)", got)
	}
	if !sys.Calibrator.Measured() {
		t.Error("Measured() = false")
	}
	if p := b.periods[len(b.periods)-1]; p != 511 {
		t.Errorf("calibration programmed period %d, want 511", p)
	}
}

func TestCalibrationTracksSlowOscillator(t *testing.T) {
	b := newSimBoard(t)
	b.refActual = 1000 // 2.3% slow
	sys := b.boot(Config{}, nil)

	if err := sys.Calibrator.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if got := sys.Calibrator.Factor(); got != 512 {
		t.Errorf("factor = %d, want 512", got)
	}
}

func TestCalibrationFactorNeverZero(t *testing.T) {
	b := newSimBoard(t)
	b.refNominal, b.refActual = 1000000, 1000000
	sys := b.boot(Config{}, nil)

	if err := sys.Calibrator.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if got := sys.Calibrator.Factor(); got != 1 {
		t.Errorf("sub-millisecond measurement stored as %d, want 1", got)
	}
}

func TestCalibrationTimeoutKeepsFactor(t *testing.T) {
	b := newSimBoard(t)
	b.refActual = 0
	sys := b.boot(Config{}, nil)

	before := sys.Calibrator.Factor()
	err := sys.Calibrator.Calibrate()
	if !errors.Is(err, Timeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if sys.Calibrator.Factor() != before {
		t.Errorf("factor changed to %d after a failed run", sys.Calibrator.Factor())
	}
	if _, failures := sys.Calibrator.Stats(); failures != 1 {
		t.Errorf("failures = %d", failures)
	}
	if b.wakeOn {
		t.Error("counter left running after timeout")
	}
	// 2*500+10 ms timeout, polled in 100 us steps.
	if ms := sys.Ticker.Read(); ms < 1010 || ms > 1012 {
		t.Errorf("gave up after %d ms", ms)
	}
}

func TestCalibrationSharedSource(t *testing.T) {
	b := newSimBoard(t)
	sys := b.boot(Config{ReferenceSharesTicker: true}, nil)

	if sys.Calibrator.Due(0) {
		t.Error("shared reference reported due")
	}
	if err := sys.Calibrator.Calibrate(); err != nil {
		t.Fatal(err)
	}
	if len(b.periods) != 0 || sys.Calibrator.Measured() {
		t.Error("shared reference was measured")
	}
}

func TestMaybeCalibrateRespectsBudget(t *testing.T) {
	b := newSimBoard(t)
	sys := b.boot(Config{}, nil)

	if spent := sys.Calibrator.MaybeCalibrate(400); spent != 0 {
		t.Errorf("calibrated inside a 400 ms budget, spent %d", spent)
	}
	if spent := sys.Calibrator.MaybeCalibrate(10000); spent != 500 {
		t.Errorf("spent = %d, want 500", spent)
	}
	if spent := sys.Calibrator.MaybeCalibrate(10000); spent != 0 {
		t.Errorf("calibrated again before the interval, spent %d", spent)
	}
}

func TestMaybeCalibrateGivesUpAtBudget(t *testing.T) {
	b := newSimBoard(t)
	b.refActual = 450 // 512 cycles take 1138 ms
	sys := b.boot(Config{}, nil)

	if spent := sys.Calibrator.MaybeCalibrate(600); spent != 600 {
		t.Errorf("spent = %d, want the whole 600 ms budget", spent)
	}
	if b.nowUs > 600*1000 {
		t.Errorf("measurement ran %d us into a 600 ms budget", b.nowUs)
	}
	if _, failures := sys.Calibrator.Stats(); failures != 1 {
		t.Errorf("failures = %d", failures)
	}
	if got := sys.Calibrator.Factor(); got != 500 {
		t.Errorf("factor = %d after an aborted run, want 500", got)
	}
	if b.wakeOn {
		t.Error("counter left running")
	}
}
