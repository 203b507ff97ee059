package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"ok":              OK,
		"bad_argument":    BadArgument,
		"not_initialized": NotInitialized,
		"timeout":         Timeout,
	}
	for want, e := range cases {
		if e.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, e.Error())
		}
	}
}

func TestWrappedCode(t *testing.T) {
	cause := errors.New("bus nak")
	err := opErr(Timeout, "calibrate", cause)

	if !errors.Is(err, Timeout) {
		t.Fatal("errors.Is(err, Timeout) = false")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if CodeOf(err) != Timeout {
		t.Fatalf("CodeOf = %q", CodeOf(err))
	}
	if got := err.Error(); got != "calibrate: timeout: bus nak" {
		t.Fatalf("Error() = %q", got)
	}
	if CodeOf(nil) != OK || CodeOf(BadArgument) != BadArgument {
		t.Fatal("CodeOf on plain codes")
	}
	if CodeOf(errors.New("x")) != Unknown {
		t.Fatal("CodeOf on foreign error")
	}
}

func TestCodeOfWrappedChain(t *testing.T) {
	err := fmt.Errorf("set time: %w", Wrap(NotInitialized, "rtc write", errors.New("nak")))
	if CodeOf(err) != NotInitialized {
		t.Fatalf("CodeOf = %q", CodeOf(err))
	}
	if CodeOf(fmt.Errorf("arm: %w", BadArgument)) != BadArgument {
		t.Fatal("CodeOf on wrapped plain code")
	}
}
