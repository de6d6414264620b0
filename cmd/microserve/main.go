// Command microserve is a minimal demo binary: it wires an event loop and
// an HTTP server together, registers a couple of illustrative routes by
// hand, and runs until interrupted.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edadma/microserve/eventloop"
	"github.com/edadma/microserve/httpparser"
	"github.com/edadma/microserve/httpserver"
)

func main() {
	logger := httpserver.NewSlogLogger(slog.NewJSONHandler(os.Stdout, nil))

	loop, err := eventloop.New(eventloop.WithLogger(logger))
	if err != nil {
		logger.Error("failed to construct event loop", "err", err)
		os.Exit(1)
	}

	srv := httpserver.New(loop, route, httpserver.WithServerLogger(logger))

	if err := srv.Listen("0.0.0.0", 8080, func() {
		logger.Info("listening", "addr", srv.Addr())
	}); err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		loop.NextTick(func() {
			srv.Close(func() { loop.Stop() })
		})
	}()

	if err := loop.Run(); err != nil {
		logger.Error("loop exited with error", "err", err)
		os.Exit(1)
	}
}

func route(req *httpparser.Request, resp *httpserver.Response) *eventloop.Deferred {
	switch req.Path {
	case "/":
		resp.Send("hello from microserve")
	case "/healthz":
		resp.SendJSON(`{"status":"ok"}`)
	case "/echo":
		resp.Send(req.BodyString())
	default:
		resp.SendStatus(404)
	}
	return nil
}
