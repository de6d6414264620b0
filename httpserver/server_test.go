package httpserver

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/edadma/microserve/eventloop"
	"github.com/edadma/microserve/httpparser"
	"github.com/stretchr/testify/require"
)

// runUntilIdle drives loop.Run in a goroutine and returns a stop func that
// waits for it to return. Used because the loop blocks until its ref count
// drops to zero with no pending work, which in these tests happens when
// the test body tells the server to close.
func runUntilIdle(t *testing.T, loop *eventloop.Loop) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_ = loop.Run()
		close(done)
	}()
	return func() {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not stop in time")
		}
	}
}

func dialAndExchange(t *testing.T, addr, request string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(request))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _ := conn.Read(buf)
	return string(buf[:n])
}

func TestServer_BasicGETRoundTrip(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		require.Equal(t, "/hello", req.Path)
		resp.Send("hi there")
		return nil
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	out := dialAndExchange(t, srv.Addr(), "GET /hello HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n")
	require.Contains(t, out, "HTTP/1.1 200 OK\r\n")
	require.Contains(t, out, "hi there")

	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}

func TestServer_AsyncHandlerViaDeferred(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		d := loop.NewDeferred()
		loop.SetTimeout(1, func() {
			resp.SendJSON(`{"ok":true}`)
			d.Resolve()
		})
		return d
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	out := dialAndExchange(t, srv.Addr(), "GET /async HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n")
	require.Contains(t, out, "application/json")
	require.Contains(t, out, `{"ok":true}`)

	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}

func TestServer_FailedDeferredWithoutResponseBecomes500(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	boom := errFixture{}
	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		d := loop.NewDeferred()
		loop.SetTimeout(1, func() { d.Reject(boom) })
		return d
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	out := dialAndExchange(t, srv.Addr(), "GET /boom HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n")
	require.Contains(t, out, "HTTP/1.1 500")

	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}

func TestServer_MalformedRequestGetsBadRequestAndCloses(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		t.Fatal("handler should not run for a malformed request")
		return nil
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	out := dialAndExchange(t, srv.Addr(), "BADMETHODTOOLONGFORLIMIT / HTTP/1.1\r\nHost: h\r\n\r\n")
	require.Contains(t, out, "HTTP/1.1 400")

	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}

func TestServer_KeepAliveServesSequentialRequests(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	count := 0
	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		count++
		resp.Send(req.Path)
		return nil
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET /one HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "200")

	_, err = conn.Write([]byte("GET /two HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	rest := make([]byte, 4096)
	n, _ := conn.Read(rest)
	require.Contains(t, string(rest[:n]), "/two")
	conn.Close()

	require.Equal(t, 2, count)

	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}

func TestServer_GracefulCloseDrainsInFlightResponse(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	released := make(chan struct{})
	handlerStarted := make(chan struct{})
	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		d := loop.NewDeferred()
		close(handlerStarted)
		loop.SetTimeout(50, func() {
			resp.Send("done")
			d.Resolve()
		})
		return d
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET /slow HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	loop.NextTick(func() {
		srv.Close(func() {
			close(released)
			loop.Stop()
		})
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, _ := conn.Read(buf)
	require.Contains(t, string(buf[:n]), "done")
	conn.Close()

	wait()
	<-released
}

type errFixture struct{}

func (errFixture) Error() string { return "boom" }
