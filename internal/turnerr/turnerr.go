// Package turnerr defines the typed error taxonomy a turn pipeline raises
// so the session can decide how to surface each failure to the client.
package turnerr

import "errors"

// Kind classifies a turn-level failure.
type Kind string

const (
	KindTransientProvider Kind = "transient_provider"
	KindPermanentInput    Kind = "permanent_input"
	KindModerationBlock   Kind = "moderation_block"
	KindCancelledByUser   Kind = "cancelled_by_user"
	KindProtocolError     Kind = "protocol_error"
	KindCircuitOpen       Kind = "circuit_open"
)

// Error wraps a turn failure with its taxonomy kind and the adapter that
// raised it, if any.
type Error struct {
	Kind    Kind
	Adapter string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Reason + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, adapter, reason string, cause error) *Error {
	return &Error{Kind: kind, Adapter: adapter, Reason: reason, Err: cause}
}

func Transient(adapter string, cause error) *Error {
	return New(KindTransientProvider, adapter, "transient provider failure", cause)
}

func Permanent(adapter, reason string) *Error {
	return New(KindPermanentInput, adapter, reason, nil)
}

func Blocked(reason string) *Error {
	return New(KindModerationBlock, "moderation", reason, nil)
}

func Cancelled() *Error {
	return New(KindCancelledByUser, "", "cancelled by barge-in", nil)
}

func Protocol(reason string, cause error) *Error {
	return New(KindProtocolError, "", reason, cause)
}

func CircuitOpen(adapter string) *Error {
	return New(KindCircuitOpen, adapter, "circuit open, failing fast", nil)
}

// Is reports whether err carries the given taxonomy kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
