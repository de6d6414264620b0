package eventloop

import "errors"

// Sentinel errors returned by Loop and Deferred operations.
var (
	// ErrAlreadyRunning is returned by Run when the loop is already executing.
	ErrAlreadyRunning = errors.New("eventloop: already running")

	// ErrStopped is returned by Run when called again after the loop has
	// already returned from Run.
	ErrStopped = errors.New("eventloop: loop stopped")

	// ErrFDRegistered is returned by RegisterFD for an fd already known to
	// the poller.
	ErrFDRegistered = errors.New("eventloop: fd already registered")

	// ErrFDUnknown is returned by UnregisterFD/ModifyFD for an fd the
	// poller has no record of.
	ErrFDUnknown = errors.New("eventloop: fd not registered")

	// ErrNegativeRefCount signals a ref/unref imbalance; a programmer
	// error per the loop's liveness invariant.
	ErrNegativeRefCount = errors.New("eventloop: ref count went negative")
)

// PanicError wraps a value recovered from a panic inside a microtask, timer,
// immediate, or I/O handler. The loop never propagates panics; it reports
// them as a PanicError to the configured Logger instead.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return "eventloop: recovered panic: " + panicValueString(e.Value)
}

func panicValueString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-error panic value"
}
