package bus

import (
	"fmt"

	"github.com/hazyhaar/scrollguard/protocol"
)

// ErrNoHandler is returned when Call targets a message type with neither a
// remote route nor a local handler.
type ErrNoHandler struct {
	Type protocol.Type
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("bus: no handler for %s", e.Type)
}

// ErrUnknownType is returned for envelopes whose type is not part of the
// protocol.
type ErrUnknownType struct {
	Type protocol.Type
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("bus: unknown message type %q", e.Type)
}

// ErrRemote is returned when a remote daemon answers with a non-2xx status.
type ErrRemote struct {
	Type   protocol.Type
	Status int
	Body   string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("bus: remote %s: status %d: %s", e.Type, e.Status, e.Body)
}

// ErrBadPayload is returned by typed handlers when the envelope payload
// cannot be decoded.
type ErrBadPayload struct {
	Type  protocol.Type
	Cause error
}

func (e *ErrBadPayload) Error() string {
	return fmt.Sprintf("bus: bad %s payload: %v", e.Type, e.Cause)
}

func (e *ErrBadPayload) Unwrap() error { return e.Cause }

// ErrPanic wraps a recovered handler panic.
type ErrPanic struct {
	Type  protocol.Type
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("bus: %s handler panicked: %v", e.Type, e.Value)
}
