package httpserver

import (
	"net"
	"testing"
	"time"

	"github.com/edadma/microserve/eventloop"
	"github.com/edadma/microserve/httpparser"
	"github.com/stretchr/testify/require"
)

func TestServer_IdleConnectionIsClosedAfterTimeout(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		resp.Send("unused")
		return nil
	}, WithIdleTimeout(50*time.Millisecond))

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.Equal(t, 0, n)
	require.Error(t, err) // idle timeout closes the socket without ever sending a request

	conn.Close()
	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}

// connectionCount reads srv.ConnectionCount() on the loop thread via
// NextTick, since the field it reports on is otherwise only safe to touch
// from that thread.
func connectionCount(loop *eventloop.Loop, srv *Server) int {
	result := make(chan int, 1)
	loop.NextTick(func() { result <- srv.ConnectionCount() })
	return <-result
}

func TestServer_ConnectionCountTracksLiveConnections(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	handlerStarted := make(chan struct{})
	release := make(chan struct{})
	once := false
	srv := New(loop, func(req *httpparser.Request, resp *Response) *eventloop.Deferred {
		d := loop.NewDeferred()
		if !once {
			once = true
			close(handlerStarted)
			go func() {
				<-release
				loop.NextTick(func() {
					resp.Send("ok")
					d.Resolve()
				})
			}()
		} else {
			resp.Send("ok")
			d.Resolve()
		}
		return d
	})

	require.NoError(t, srv.Listen("127.0.0.1", 0, nil))
	wait := runUntilIdle(t, loop)

	conn, err := net.DialTimeout("tcp", srv.Addr(), 2*time.Second)
	require.NoError(t, err)
	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	require.Equal(t, 1, connectionCount(loop, srv))

	close(release)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	_, _ = conn.Read(buf)
	conn.Close()

	require.Eventually(t, func() bool { return connectionCount(loop, srv) == 0 }, time.Second, 5*time.Millisecond)

	loop.NextTick(func() { srv.Close(func() { loop.Stop() }) })
	wait()
}
