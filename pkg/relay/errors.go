package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors for the relay.
var (
	// ErrInvalidCategory is returned for an event name or category outside the
	// fixed vocabulary.
	ErrInvalidCategory = errors.New("invalid event category")

	// ErrUnsupportedOnPlatform marks a command that the current platform cannot run.
	ErrUnsupportedOnPlatform = errors.New("operation not supported on this platform")

	// ErrConnectivityCheckFailed wraps a failure of the one-shot activation probe.
	ErrConnectivityCheckFailed = errors.New("connectivity check failed")

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrHandlerNotComparable is returned for handler values that cannot be
	// used as an identity key (funcs, maps, slices).
	ErrHandlerNotComparable = errors.New("handler must be a comparable value")

	// ErrNilCallback is returned by commands that require a reply callback.
	ErrNilCallback = errors.New("must provide a valid callback")

	// ErrHandlerPanic is matched by PanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrRelayClosed is returned once the relay's channel has been torn down.
	ErrRelayClosed = errors.New("relay is closed")
)

// PayloadDecodeError reports an inbound payload that could not be decoded.
type PayloadDecodeError struct {
	Category EventCategory
	Err      error
}

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s payload: %v", e.Category, e.Err)
}

func (e *PayloadDecodeError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Category EventCategory
	Value    any
	Stack    string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic on %s: %v", e.Category, e.Value)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
