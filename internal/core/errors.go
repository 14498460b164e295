package core

import (
	"errors"
	"fmt"
)

// ErrorKind tells a caller what to do with a failure.
type ErrorKind int

const (
	// KindFatal aborts the calling flow (e.g. a failed join).
	KindFatal ErrorKind = iota
	// KindRecoverable is logged; the flow continues.
	KindRecoverable
	// KindIgnorable is dropped silently apart from a debug log.
	KindIgnorable
)

func (k ErrorKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindRecoverable:
		return "recoverable"
	case KindIgnorable:
		return "ignorable"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

func Recoverable(op string, err error) error {
	return &Error{Kind: KindRecoverable, Op: op, Err: err}
}

func Ignorable(op string, err error) error {
	return &Error{Kind: KindIgnorable, Op: op, Err: err}
}

// KindOf classifies err. Unclassified errors are fatal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
