package httpserver

import (
	"errors"

	"github.com/edadma/microserve/httpparser"
)

// Sentinel error kinds, matching the taxonomy the data model assigns a
// response to: a malformed request is always a 400 and never closes the
// listener; a handler failure is always a 500; the I/O-flavoured kinds
// never produce a response at all, they just tear the connection down
// silently; a listener failure is the only kind that escapes to the
// caller of Listen.
var (
	// ErrBadRequest re-exports httpparser's sentinel so callers can
	// errors.Is against either package.
	ErrBadRequest = httpparser.ErrBadRequest

	// ErrHandlerFailure wraps a panic or rejected Deferred recovered from
	// the user's handler.
	ErrHandlerFailure = errors.New("httpserver: handler failure")

	// ErrIOError wraps an unexpected read/write failure on a connection.
	ErrIOError = errors.New("httpserver: io error")

	// ErrPeerClosed marks a connection that was closed by a read returning
	// zero bytes before a request completed.
	ErrPeerClosed = errors.New("httpserver: peer closed connection")

	// ErrIdleTimeout marks a connection closed for sitting idle past the
	// configured idle timeout.
	ErrIdleTimeout = errors.New("httpserver: idle timeout")

	// ErrListenerFailure wraps a bind/listen failure on the listening
	// socket; it is the only kind surfaced to Listen's caller rather than
	// handled internally. Accept failures are not wrapped; the accept loop
	// just stops until the next readiness event.
	ErrListenerFailure = errors.New("httpserver: listener failure")
)

func handlerFailure(cause error) error {
	return &wrapped{kind: ErrHandlerFailure, cause: cause}
}

func ioError(cause error) error {
	return &wrapped{kind: ErrIOError, cause: cause}
}

func listenerFailure(cause error) error {
	return &wrapped{kind: ErrListenerFailure, cause: cause}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.kind.Error()
	}
	return w.kind.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error { return []error{w.kind, w.cause} }
