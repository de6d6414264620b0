package httpparser

import "errors"

// ErrBadRequest is the sentinel every parser rejection wraps, matching the
// BadRequest error kind of the error-handling design: a limit violation or
// a syntax error, both terminal for the current request and answered with
// a 400.
var ErrBadRequest = errors.New("httpparser: bad request")

// badRequest wraps ErrBadRequest with a short, caller-facing reason so the
// connection layer can echo it in the 400 body without leaking internals.
type badRequest struct {
	reason string
}

func (e *badRequest) Error() string { return "httpparser: " + e.reason }

func (e *badRequest) Unwrap() error { return ErrBadRequest }

func fail(reason string) error {
	return &badRequest{reason: reason}
}
