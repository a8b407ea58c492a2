package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger writing to w. Records use timestamp, severity
// and message as key names and carry the service and environment.
func New(w io.Writer, service, env string, level slog.Leveler) *slog.Logger {
	return slog.New(newHandler(w, level).WithAttrs(baseAttrs(service, env)))
}

// Setup installs a JSON logger writing to w as the slog default and bridges
// the standard library logger onto it. A nil w logs to stdout.
func Setup(w io.Writer, service, env string, level slog.Leveler) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := newHandler(w, level).WithAttrs(baseAttrs(service, env))
	base := slog.New(handler)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// ParseLevel maps debug, info, warn and error onto slog levels. Anything
// else is info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
}

func baseAttrs(service, env string) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}
