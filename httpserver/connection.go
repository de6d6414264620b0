package httpserver

import (
	"golang.org/x/sys/unix"

	"github.com/edadma/microserve/eventloop"
	"github.com/edadma/microserve/httpparser"
)

// connection owns one accepted socket's lifecycle: non-blocking reads fed
// byte by byte into a parser, one Request/Response pair dispatched to the
// handler per completed parse, and an idle timer rearmed on every byte of
// forward progress. It holds exactly one loop ref for as long as it is
// registered, released on close.
type connection struct {
	srv    *Server
	id     uint64
	fd     int
	remote string

	parser  *httpparser.Parser
	readBuf []byte

	idleCancel eventloop.CancelFunc
	closed     bool
	inFlight   bool
}

func newConnection(srv *Server, fd int, remote string, id uint64) *connection {
	p := httpparser.New()
	p.SetMaxBodyLength(srv.cfg.maxBodyBytes)
	c := &connection{
		srv:     srv,
		id:      id,
		fd:      fd,
		remote:  remote,
		parser:  p,
		readBuf: make([]byte, srv.cfg.readBufferSize),
	}
	return c
}

func (c *connection) start() {
	c.srv.loop.Ref()
	c.rearmIdle()
	if err := c.srv.loop.RegisterFD(c.fd, eventloop.EventRead, c.onReadable); err != nil {
		c.srv.cfg.logger.Error("httpserver: register connection fd failed", "err", err)
		c.close(ioError(err))
		return
	}
}

func (c *connection) rearmIdle() {
	if c.idleCancel != nil {
		c.idleCancel()
	}
	c.idleCancel = c.srv.loop.SetTimeout(c.srv.cfg.idleTimeout.Milliseconds(), func() {
		c.srv.cfg.logger.Debug("httpserver: idle timeout", "id", c.id)
		c.close(ErrIdleTimeout)
	})
}

func (c *connection) onReadable(eventloop.IOEvents) {
	if c.closed {
		return
	}

	n, err := unix.Read(c.fd, c.readBuf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		c.close(ioError(err))
		return
	}
	if n == 0 {
		c.close(ErrPeerClosed)
		return
	}

	c.rearmIdle()
	c.feed(c.readBuf[:n])
}

// feed drives the parser over buf, dispatching a request each time a
// parse completes and resetting for the remainder - the same buffer may
// hold a full pipelined request plus the start of the next one.
func (c *connection) feed(buf []byte) {
	for i := 0; i < len(buf); i++ {
		if c.closed {
			return
		}
		done, err := c.parser.Feed(buf[i])
		if err != nil {
			c.srv.cfg.logger.Debug("httpserver: parse failure", "id", c.id, "err", err)
			c.failBadRequest(err)
			return
		}
		if !done {
			continue
		}

		req := c.parser.Result(c.remote)
		c.parser.Reset()
		c.dispatch(req)
	}
}

func (c *connection) failBadRequest(err error) {
	resp := newResponse(c.srv.loop, "1.1", "close", alwaysTrue, c.write, func(bool) {})
	resp.Status(400).Send(err.Error())
	c.close(httpparser.ErrBadRequest)
}

func alwaysTrue() bool { return true }

func (c *connection) dispatch(req *httpparser.Request) {
	c.inFlight = true
	resp := newResponse(c.srv.loop, req.Version, req.Get("Connection"), func() bool { return c.srv.closing }, c.write, func(keepAlive bool) {
		c.inFlight = false
		c.onResponseFinished(keepAlive)
	})

	d := c.safeInvokeHandler(req, resp)
	if d == nil {
		return
	}
	d.OnSettle(func(err error) {
		if err != nil && !resp.IsSent() {
			c.srv.cfg.logger.Error("httpserver: handler rejected", "id", c.id, "err", err)
			resp.Status(500).Send(handlerFailure(err).Error())
		}
	})
}

// safeInvokeHandler recovers a panicking handler and converts it into the
// same rejected-Deferred path an async failure takes, so End/close still
// happens exactly once either way.
func (c *connection) safeInvokeHandler(req *httpparser.Request, resp *Response) (d *eventloop.Deferred) {
	defer func() {
		if r := recover(); r != nil {
			c.srv.cfg.logger.Error("httpserver: handler panicked", "id", c.id, "panic", r)
			d = c.srv.loop.CompletedDeferred(&eventloop.PanicError{Value: r})
		}
	}()
	return c.srv.handler(req, resp)
}

func (c *connection) onResponseFinished(keepAlive bool) {
	if c.closed {
		return
	}
	if keepAlive && !c.srv.closing {
		c.rearmIdle()
		return
	}
	c.close(nil)
}

func (c *connection) write(b []byte) error {
	_, err := unix.Write(c.fd, b)
	return err
}

// close tears the connection down exactly once: cancels its idle timer,
// unregisters and closes the fd, removes it from the server's live set,
// and releases the loop ref start acquired. cause is nil for an orderly
// close after a non-keep-alive response.
func (c *connection) close(cause error) {
	if c.closed {
		return
	}
	c.closed = true

	if c.idleCancel != nil {
		c.idleCancel()
		c.idleCancel = nil
	}
	_ = c.srv.loop.UnregisterFD(c.fd)
	_ = unix.Close(c.fd)

	c.srv.removeConnection(c)
	c.srv.loop.Unref()

	if cause != nil {
		c.srv.cfg.logger.Debug("httpserver: connection closed", "id", c.id, "remote", c.remote, "cause", cause)
	}
}
