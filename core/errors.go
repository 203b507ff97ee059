package core

import "errors"

// Code is a stable error identifier for the timing core.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK             Code = "ok"
	BadArgument    Code = "bad_argument"    // nil handle or out-of-range parameter
	NotInitialized Code = "not_initialized" // peripheral or system not configured yet
	Timeout        Code = "timeout"         // bounded wait expired

	Unknown Code = "error" // generic fallback
)

// E keeps an operation name and an optional cause next to a Code.
type E struct {
	C   Code
	Op  string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, Timeout) match a wrapped *E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap attaches a Code and operation name to cause, which may be nil.
func Wrap(c Code, op string, cause error) error {
	return &E{C: c, Op: op, Err: cause}
}

func opErr(c Code, op string, cause error) error { return Wrap(c, op, cause) }

// CodeOf extracts a Code from an error, defaulting to Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *E
	if errors.As(err, &e) {
		return e.C
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Unknown
}
