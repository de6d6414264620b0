package httpparser

import "github.com/edadma/microserve/kv"

// Request is immutable once the parser hands it to a caller: every field
// below is a snapshot taken at FINAL, per the data model's "immutable
// after construction" invariant. RemoteAddress is stamped by the
// connection layer, which is the only collaborator that knows it.
type Request struct {
	Method        string
	URL           string // raw, still percent-encoded
	Path          string // raw, still percent-encoded, query stripped
	Query         *kv.Storage
	Version       string
	Headers       *kv.Storage
	Body          []byte
	RemoteAddress string
}

// Get returns the first value of a request header, case-insensitive.
func (r *Request) Get(header string) string {
	return r.Headers.ValueOr(header, "")
}

// QueryValue returns the first decoded query value for key, or "" if
// absent - the "first-wins" lookup the data model requires despite
// duplicates being preserved in Query's insertion order.
func (r *Request) QueryValue(key string) string {
	return r.Query.ValueOr(key, "")
}

// BodyString returns the body decoded as UTF-8.
func (r *Request) BodyString() string {
	return string(r.Body)
}

// ContentLength mirrors the parsed Content-Length header, or -1 if the
// request has no Content-Length header (or one that is not all digits).
func (r *Request) ContentLength() int {
	if v, ok := r.Headers.Get("Content-Length"); ok {
		n := 0
		for i := 0; i < len(v); i++ {
			if v[i] < '0' || v[i] > '9' {
				return -1
			}
			n = n*10 + int(v[i]-'0')
		}
		return n
	}
	return -1
}

// Cookies parses the request's Cookie header into name/value pairs on
// every call - cookies are rare enough per request that the reference
// stacks (indigo-web's http/cookie) don't bother caching the result.
func (r *Request) Cookies() []kv.Pair {
	raw, ok := r.Headers.Get("Cookie")
	if !ok || raw == "" {
		return nil
	}

	var pairs []kv.Pair
	for _, part := range splitAndTrim(raw, ';') {
		if part == "" {
			continue
		}
		name, value := part, ""
		for i := 0; i < len(part); i++ {
			if part[i] == '=' {
				name, value = part[:i], part[i+1:]
				break
			}
		}
		pairs = append(pairs, kv.Pair{Key: trimSpace(name), Value: trimSpace(value)})
	}
	return pairs
}

func splitAndTrim(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
