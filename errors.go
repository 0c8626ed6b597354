package gomux

import (
	"errors"
	"fmt"
	"io"
)

// ErrEndOfStream is returned by Source.ReadPacket when the input is exhausted.
// It terminates a remux successfully.
var ErrEndOfStream = io.EOF

// ErrorKind classifies remux failures.
type ErrorKind uint8

const (
	KindOpen       ErrorKind = iota + 1 // input could not be opened
	KindProbe                           // stream information could not be determined
	KindAllocation                      // an output resource could not be created
	KindWrite                           // header, packet or trailer write failed
	KindRead                            // reading the next packet failed
)

func (k ErrorKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindProbe:
		return "probe"
	case KindAllocation:
		return "allocation"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	}
	return "unknown"
}

// Sentinels for errors.Is matching on the kind of an *Error.
var (
	ErrOpen       = &Error{Kind: KindOpen}
	ErrProbe      = &Error{Kind: KindProbe}
	ErrAllocation = &Error{Kind: KindAllocation}
	ErrWrite      = &Error{Kind: KindWrite}
	ErrRead       = &Error{Kind: KindRead}
)

// Error is a classified remux failure.
type Error struct {
	Kind      ErrorKind
	Component string // source, sink or mapper
	Err       error
}

// NewError classifies err. An err that already carries a kind keeps it.
func NewError(kind ErrorKind, component string, err error) *Error {
	var e *Error
	if errors.As(err, &e) && e.Kind != 0 {
		if e.Component == "" {
			return &Error{Kind: e.Kind, Component: component, Err: e.Err}
		}
		return e
	}
	return &Error{Kind: kind, Component: component, Err: err}
}

func (e *Error) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s: %s error", e.Component, e.Kind)
	} else {
		msg = e.Kind.String() + " error"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
