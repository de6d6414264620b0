package httpserver

import (
	"strconv"
	"time"

	"github.com/edadma/microserve/eventloop"
	"github.com/edadma/microserve/httpstatus"
	"github.com/edadma/microserve/kv"
)

// dateFormat is RFC 1123 in GMT, the wire format every response's Date
// header defaults to when the handler hasn't set one explicitly.
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Response is mutable until the first call to End/Send*/SendStatus,
// mirroring the data model's open -> sent transition: exactly one real
// send takes effect, every later one is a no-op that returns an
// already-completed Deferred.
type Response struct {
	loop *eventloop.Loop

	code    int
	reason  string
	headers *kv.Storage
	body    []byte

	sent     bool
	writeOut []byte

	version       string // "1.1" or "1.0", negotiated from the request
	reqConnection string // the request's raw Connection header, for keep-alive negotiation
	forceClose    func() bool // server is draining; always close regardless of negotiation, evaluated at End time
	write         func(b []byte) error
	onFinish      func(keepAlive bool)
}

// newResponse constructs an open Response. write performs the single
// contiguous socket write attempt at End time (its error is swallowed,
// per the spec: the peer may have gone away); onFinish is invoked exactly
// once with the keep-alive decision, after that write. forceClose is
// polled at End time rather than captured up front, so a drain that
// begins mid-handler still closes the in-flight response it was racing.
func newResponse(loop *eventloop.Loop, version, reqConnection string, forceClose func() bool, write func([]byte) error, onFinish func(bool)) *Response {
	return &Response{
		loop:          loop,
		code:          200,
		reason:        httpstatus.Text(200),
		headers:       kv.New(),
		version:       version,
		reqConnection: reqConnection,
		forceClose:    forceClose,
		write:         write,
		onFinish:      onFinish,
	}
}

// Status sets the status code and its canonical reason phrase.
func (r *Response) Status(code int) *Response {
	r.code = code
	r.reason = httpstatus.Text(code)
	return r
}

// Set writes a response header; the last call for a given key (compared
// case-insensitively) wins, though the key's original case is preserved
// for output.
func (r *Response) Set(key, value string) *Response {
	r.headers.Set(key, value)
	return r
}

// Header returns the first value of a response header set so far,
// case-insensitive, mirroring Request.Get for symmetry.
func (r *Response) Header(key string) string {
	return r.headers.ValueOr(key, "")
}

// WriteHead sets the status code and merges the given headers in one
// call.
func (r *Response) WriteHead(code int, headers map[string]string) *Response {
	r.Status(code)
	for k, v := range headers {
		r.Set(k, v)
	}
	return r
}

// Send sets Content-Type to text/plain unless already set, then ends the
// response with body's UTF-8 bytes.
func (r *Response) Send(body string) *eventloop.Deferred {
	r.defaultContentType("text/plain; charset=UTF-8")
	return r.End([]byte(body))
}

// SendHTML is Send with a text/html content type.
func (r *Response) SendHTML(body string) *eventloop.Deferred {
	r.defaultContentType("text/html; charset=UTF-8")
	return r.End([]byte(body))
}

// SendJSON is Send with an application/json content type. It does not
// marshal its argument - callers pass already-encoded JSON text, matching
// the spec's send_json(stringified) contract.
func (r *Response) SendJSON(body string) *eventloop.Deferred {
	r.defaultContentType("application/json; charset=UTF-8")
	return r.End([]byte(body))
}

// SendStatus sets code and sends its reason phrase as the body.
func (r *Response) SendStatus(code int) *eventloop.Deferred {
	r.Status(code)
	return r.Send(r.reason)
}

func (r *Response) defaultContentType(value string) {
	if !r.headers.Has("Content-Type") {
		r.headers.Set("Content-Type", value)
	}
}

// IsSent reports whether End has already taken effect.
func (r *Response) IsSent() bool { return r.sent }

// End is the single egress point: it marks the response sent, fills in
// the mandatory headers, computes the keep-alive decision, serialises
// the response, and invokes onFinish exactly once. A second call is an
// idempotent no-op returning an already-completed Deferred, per the
// open-to-sent-exactly-once invariant.
func (r *Response) End(body []byte) *eventloop.Deferred {
	if r.sent {
		return r.loop.CompletedDeferred(nil)
	}
	r.sent = true
	r.body = body

	if !r.headers.Has("Date") {
		r.headers.Set("Date", time.Now().UTC().Format(dateFormat))
	}
	r.headers.Set("Content-Length", strconv.Itoa(len(body)))

	keepAlive := r.keepAlive()
	if keepAlive {
		r.headers.Set("Connection", "keep-alive")
	} else {
		r.headers.Set("Connection", "close")
	}

	r.writeOut = r.serialize()

	if r.write != nil {
		_ = r.write(r.writeOut) // best-effort; a failed write just means the peer is gone
	}
	if r.onFinish != nil {
		r.onFinish(keepAlive)
	}

	d := r.loop.NewDeferred()
	d.Resolve()
	return d
}

// keepAlive implements the negotiation rule: the server's decision to
// close (forceClose, i.e. a drain in progress) is never overridden by the
// client; otherwise HTTP/1.1 stays alive unless the client asked for
// close, and HTTP/1.0 stays alive only if the client explicitly asked for
// keep-alive.
func (r *Response) keepAlive() bool {
	if r.forceClose != nil && r.forceClose() {
		return false
	}
	switch r.version {
	case "1.0":
		return containsToken(r.reqConnection, "keep-alive")
	default:
		return !containsToken(r.reqConnection, "close")
	}
}

// serialize renders the status line, headers in insertion order, the
// blank line, and the body as one contiguous buffer for a single write
// attempt.
func (r *Response) serialize() []byte {
	buf := make([]byte, 0, 256+len(r.body))
	buf = append(buf, "HTTP/"...)
	buf = append(buf, r.version...)
	buf = append(buf, ' ')
	buf = append(buf, strconv.Itoa(r.code)...)
	buf = append(buf, ' ')
	buf = append(buf, r.reason...)
	buf = append(buf, '\r', '\n')
	for _, p := range r.headers.Expose() {
		buf = append(buf, p.Key...)
		buf = append(buf, ':', ' ')
		buf = append(buf, p.Value...)
		buf = append(buf, '\r', '\n')
	}
	buf = append(buf, '\r', '\n')
	buf = append(buf, r.body...)
	return buf
}

// Bytes returns the serialized response, valid only once End has been
// called. The connection layer does not read it; the bytes reach the
// socket through the write callback inside End.
func (r *Response) Bytes() []byte { return r.writeOut }

func containsToken(headerValue, token string) bool {
	// Connection header is a comma-separated token list; match case-
	// insensitively against each token, trimming surrounding whitespace.
	start := 0
	for i := 0; i <= len(headerValue); i++ {
		if i == len(headerValue) || headerValue[i] == ',' {
			if equalFoldTrim(headerValue[start:i], token) {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func equalFoldTrim(s, token string) bool {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	if len(s) != len(token) {
		return false
	}
	for i := 0; i < len(s); i++ {
		a, b := s[i], token[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
