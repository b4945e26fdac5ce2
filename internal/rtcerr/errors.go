// Package rtcerr defines the error taxonomy shared by the call subsystem.
package rtcerr

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied     = errors.New("media device permission denied")
	ErrDeviceUnavailable    = errors.New("no usable media device")
	ErrTransportUnavailable = errors.New("signaling transport unavailable")
	ErrNegotiationFailed    = errors.New("negotiation failed")
	ErrSessionCreateFailed  = errors.New("session registry unreachable")
	ErrInviteTimeout        = errors.New("invitation timed out")
	ErrInviteDeclined       = errors.New("invitation declined")
	ErrPeerClosed           = errors.New("peer connection closed")
	ErrRoomMismatch         = errors.New("message for a different room")
)

// CallError carries the failed operation alongside the underlying cause.
type CallError struct {
	Op      string
	Err     error
	Details string
}

func (e *CallError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func New(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func Wrap(op string, err error, details string) *CallError {
	return &CallError{Op: op, Err: err, Details: details}
}

// Actionable reports whether the error should be shown to the user with a
// retry hint rather than a generic call-failed message.
func Actionable(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrDeviceUnavailable) ||
		errors.Is(err, ErrTransportUnavailable)
}
