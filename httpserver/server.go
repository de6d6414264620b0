package httpserver

import (
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/edadma/microserve/eventloop"
	"github.com/edadma/microserve/httpparser"
)

// Handler processes a completed request and produces a response. It
// returns a Deferred the connection layer watches for async failures;
// returning the loop's CompletedDeferred(nil) (or calling resp.End
// synchronously and returning nil) are both valid for a handler that
// finishes inline.
type Handler func(req *httpparser.Request, resp *Response) *eventloop.Deferred

// Server is the accept loop: one non-blocking listening socket registered
// with the event loop, fanning accepted connections out to Handler. It
// holds one loop ref for as long as it is listening, matching the
// connections it owns each holding their own.
type Server struct {
	loop    *eventloop.Loop
	handler Handler
	cfg     *config

	listenFD   int
	actualPort int
	host       string

	closing bool
	conns   map[*connection]struct{}

	nextConnID uint64
	onDrain    func()
}

// New constructs a Server bound to loop, dispatching completed requests to
// handler.
func New(loop *eventloop.Loop, handler Handler, opts ...Option) *Server {
	return &Server{
		loop:     loop,
		handler:  handler,
		cfg:      newConfig(opts),
		listenFD: -1,
		conns:    make(map[*connection]struct{}),
	}
}

// Listen binds host:port (port 0 picks an ephemeral port), registers the
// listening socket for accept readiness, and schedules onListening as a
// microtask once bound - mirroring the data model's requirement that
// listening callbacks never run synchronously inside Listen itself.
func (s *Server) Listen(host string, port int, onListening func()) error {
	fd, actualPort, err := listen(host, port)
	if err != nil {
		return listenerFailure(err)
	}
	s.listenFD = fd
	s.actualPort = actualPort
	s.host = host

	s.loop.Ref()
	if err := s.loop.RegisterFD(fd, eventloop.EventRead, s.onAcceptable); err != nil {
		s.loop.Unref()
		_ = unix.Close(fd)
		s.listenFD = -1
		return listenerFailure(err)
	}

	s.cfg.logger.Info("httpserver: listening", "addr", host+":"+strconv.Itoa(actualPort))

	if onListening != nil {
		s.loop.NextTick(onListening)
	}
	return nil
}

func (s *Server) onAcceptable(eventloop.IOEvents) {
	acceptAll(s.listenFD, func(fd int, remoteAddr string) {
		s.nextConnID++
		conn := newConnection(s, fd, remoteAddr, s.nextConnID)
		s.conns[conn] = struct{}{}
		conn.start()
		s.cfg.logger.Debug("httpserver: connection accepted", "id", conn.id, "remote", conn.remote)
	})
}

// ActualPort returns the bound listening port, useful after Listen(..., 0,
// ...) picked an ephemeral one.
func (s *Server) ActualPort() int { return s.actualPort }

// Addr returns "host:port" for the bound listening socket.
func (s *Server) Addr() string {
	host := s.host
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(s.actualPort)
}

// ConnectionCount reports the number of live connections.
func (s *Server) ConnectionCount() int { return len(s.conns) }

// Close begins a graceful drain: the listening socket stops accepting
// immediately, every live connection is marked to close after its current
// response (or immediately, if idle), and onDrain runs as a microtask once
// the last connection is gone. Idempotent - a second call is a no-op.
func (s *Server) Close(onDrain func()) {
	if s.closing {
		return
	}
	s.closing = true
	s.onDrain = onDrain

	if s.listenFD >= 0 {
		_ = s.loop.UnregisterFD(s.listenFD)
		_ = unix.Close(s.listenFD)
		s.loop.Unref()
		s.listenFD = -1
	}

	if len(s.conns) == 0 {
		s.finishDrain()
		return
	}

	// Snapshot before iterating: close mutates s.conns via removeConnection.
	snapshot := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		snapshot = append(snapshot, c)
	}
	for _, c := range snapshot {
		if !c.inFlight {
			c.close(nil)
		}
	}
}

func (s *Server) removeConnection(c *connection) {
	delete(s.conns, c)
	if s.closing && len(s.conns) == 0 {
		s.finishDrain()
	}
}

func (s *Server) finishDrain() {
	if s.onDrain == nil {
		return
	}
	onDrain := s.onDrain
	s.onDrain = nil
	s.loop.NextTick(onDrain)
}
