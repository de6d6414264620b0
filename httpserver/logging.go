package httpserver

import (
	"log/slog"
	"os"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// SlogLogger adapts a logiface logger fronting slog onto the Logger
// interface the event loop and this package's connection/server code
// report diagnostics through. args are attached as key/value pairs the
// same way slog.Logger.Info does, via alternating Str/Any fields.
type SlogLogger struct {
	logger *logiface.Logger[*islog.Event]
}

// NewSlogLogger builds a SlogLogger over handler, defaulting to a JSON
// handler on os.Stderr when handler is nil.
func NewSlogLogger(handler slog.Handler) *SlogLogger {
	if handler == nil {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return &SlogLogger{logger: islog.L.New(islog.L.WithSlogHandler(handler))}
}

func (s *SlogLogger) Debug(msg string, args ...any) { s.log(s.logger.Debug(), msg, args) }
func (s *SlogLogger) Info(msg string, args ...any)  { s.log(s.logger.Info(), msg, args) }
func (s *SlogLogger) Error(msg string, args ...any) { s.log(s.logger.Err(), msg, args) }

func (s *SlogLogger) log(b *logiface.Builder[*islog.Event], msg string, args []any) {
	if b == nil {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		if key == "" {
			continue
		}
		switch v := args[i+1].(type) {
		case string:
			b = b.Str(key, v)
		case error:
			b = b.Str(key, v.Error())
		default:
			b = b.Any(key, v)
		}
	}
	b.Log(msg)
}
