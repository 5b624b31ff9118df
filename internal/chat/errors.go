package chat

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrAuth          = errors.New("not authenticated")
	ErrWrite         = errors.New("store write failed")
	ErrRead          = errors.New("store read failed")
	ErrSubscription  = errors.New("live subscription failed")
	ErrInvalidRecord = errors.New("invalid record")
)

// Error is a classified store failure. Kind is one of the sentinels above
// and Err is the underlying cause.
type Error struct {
	Kind   error
	Op     string
	RideID string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.RideID != "" {
		msg += " ride " + e.RideID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err as kind. A nil err returns nil. An err that already
// carries an auth kind keeps it, so auth failures are never masked.
func Wrap(kind error, op, rideID string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) && errors.Is(ce.Kind, ErrAuth) {
		return err
	}
	return &Error{Kind: kind, Op: op, RideID: rideID, Err: err}
}

// Errorf is a shorthand for an Error with a formatted cause.
func Errorf(kind error, op, rideID, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, RideID: rideID, Err: fmt.Errorf(format, args...)}
}

// IsAuth reports whether err means the current user is unknown or rejected.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}
