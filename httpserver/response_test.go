package httpserver

import (
	"strings"
	"testing"

	"github.com/edadma/microserve/eventloop"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	return loop
}

func neverClose() bool { return false }
func alwaysClose() bool { return true }

func TestResponse_SendSetsContentTypeAndLength(t *testing.T) {
	loop := newTestLoop(t)
	var out []byte
	var finishedAlive *bool

	r := newResponse(loop, "1.1", "", neverClose, func(b []byte) error {
		out = append(out, b...)
		return nil
	}, func(alive bool) { finishedAlive = &alive })

	r.Send("héllo")

	require.True(t, r.IsSent())
	require.Contains(t, string(out), "HTTP/1.1 200 OK\r\n")
	require.Contains(t, string(out), "Content-Type: text/plain; charset=UTF-8\r\n")
	require.Contains(t, string(out), "Content-Length: 6\r\n") // UTF-8 byte length, not rune count
	require.True(t, strings.HasSuffix(string(out), "héllo"))
	require.NotNil(t, finishedAlive)
	require.True(t, *finishedAlive)
}

func TestResponse_SendJSONDoesNotReencode(t *testing.T) {
	loop := newTestLoop(t)
	var out []byte
	r := newResponse(loop, "1.1", "", neverClose, func(b []byte) error { out = b; return nil }, func(bool) {})

	r.SendJSON(`{"a":1}`)

	require.Contains(t, string(out), "Content-Type: application/json; charset=UTF-8\r\n")
	require.True(t, strings.HasSuffix(string(out), `{"a":1}`))
}

func TestResponse_SendStatusUsesReasonAsBody(t *testing.T) {
	loop := newTestLoop(t)
	var out []byte
	r := newResponse(loop, "1.1", "", neverClose, func(b []byte) error { out = b; return nil }, func(bool) {})

	r.SendStatus(404)

	require.Contains(t, string(out), "HTTP/1.1 404 Not Found\r\n")
	require.True(t, strings.HasSuffix(string(out), "Not Found"))
}

func TestResponse_EndIsIdempotent(t *testing.T) {
	loop := newTestLoop(t)
	calls := 0
	r := newResponse(loop, "1.1", "", neverClose, func(b []byte) error { calls++; return nil }, func(bool) {})

	r.Send("first")
	r.Send("second")

	require.Equal(t, 1, calls)
	require.True(t, strings.HasSuffix(string(r.Bytes()), "first"))
}

func TestResponse_KeepAlive11DefaultsAliveUnlessClientSaysClose(t *testing.T) {
	loop := newTestLoop(t)

	r1 := newResponse(loop, "1.1", "", neverClose, func([]byte) error { return nil }, nil)
	require.True(t, r1.keepAlive())

	r2 := newResponse(loop, "1.1", "close", neverClose, func([]byte) error { return nil }, nil)
	require.False(t, r2.keepAlive())

	r3 := newResponse(loop, "1.1", "keep-alive, upgrade", neverClose, func([]byte) error { return nil }, nil)
	require.True(t, r3.keepAlive())
}

func TestResponse_KeepAlive10DefaultsCloseUnlessClientAsksKeepAlive(t *testing.T) {
	loop := newTestLoop(t)

	r1 := newResponse(loop, "1.0", "", neverClose, func([]byte) error { return nil }, nil)
	require.False(t, r1.keepAlive())

	r2 := newResponse(loop, "1.0", "keep-alive", neverClose, func([]byte) error { return nil }, nil)
	require.True(t, r2.keepAlive())
}

func TestResponse_ForceCloseOverridesNegotiation(t *testing.T) {
	loop := newTestLoop(t)
	r := newResponse(loop, "1.1", "keep-alive", alwaysClose, func([]byte) error { return nil }, nil)
	require.False(t, r.keepAlive())

	var alive bool
	r2 := newResponse(loop, "1.1", "keep-alive", alwaysClose, func([]byte) error { return nil }, func(a bool) { alive = a })
	r2.Send("x")
	require.False(t, alive)
	require.Contains(t, string(r2.Bytes()), "Connection: close\r\n")
}

func TestResponse_WriteHeadMergesHeadersAndStatus(t *testing.T) {
	loop := newTestLoop(t)
	r := newResponse(loop, "1.1", "", neverClose, func([]byte) error { return nil }, func(bool) {})

	r.WriteHead(201, map[string]string{"X-Created": "yes"}).End([]byte("ok"))

	require.Contains(t, string(r.Bytes()), "HTTP/1.1 201 Created\r\n")
	require.Contains(t, string(r.Bytes()), "X-Created: yes\r\n")
}

func TestResponse_HeaderLookupReflectsSetValues(t *testing.T) {
	loop := newTestLoop(t)
	r := newResponse(loop, "1.1", "", neverClose, func([]byte) error { return nil }, func(bool) {})

	r.Set("X-Foo", "bar")
	require.Equal(t, "bar", r.Header("x-foo"))
}
