package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/tuya-ir-bridge/internal/infrastructure/config"
)

// serviceName is attached to every record as the "service" attribute.
const serviceName = "tuyair"

// Logger wraps slog.Logger with the bridge's default attributes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the config.
//
// Output is JSON unless format is "text"; level filtering follows cfg.Level
// (the DEBUG environment toggle has already been folded into it by config.Load).
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}
	return newWithWriter(output, cfg, version)
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	sessionLog := logger.With("device_id", d.ID)
//	sessionLog.Info("subscribed") // Includes device_id
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ForDevice returns a child logger tagged with one device's identity.
func (l *Logger) ForDevice(id, name string) *Logger {
	return l.With("device_id", id, "device_name", name)
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Discard returns a logger that drops every record. Intended for tests.
func Discard() *Logger {
	return newWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}
