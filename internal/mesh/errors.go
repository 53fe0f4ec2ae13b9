package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrNoSession       = errors.New("no session for peer")
	ErrUnexpectedEvent = errors.New("unexpected event for session state")
	ErrRejected        = errors.New("handshake payload rejected")
	ErrPathFailed      = errors.New("no viable network path")
	ErrChannelNotOpen  = errors.New("data channel not open")
	ErrManagerClosed   = errors.New("session manager closed")
)

// SessionError ties an error to the operation and peer it happened on.
type SessionError struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op, peer string, err error) *SessionError {
	return &SessionError{Op: op, Peer: peer, Err: err}
}

func WrapError(op, peer string, err error, details string) *SessionError {
	return &SessionError{Op: op, Peer: peer, Err: err, Details: details}
}
