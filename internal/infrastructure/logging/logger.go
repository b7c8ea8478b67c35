package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Logger wraps slog.Logger with relay-specific functionality.
//
// Records go to the console and, when a file path is configured,
// to a size-rotated log file as well.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	// file is the rotating file sink, nil when file logging is disabled.
	file io.Closer
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for production, text for development)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Console destination plus optional rotating file
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var console io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		console = os.Stderr
	default:
		console = os.Stdout
	}

	output := console
	var file *lumberjack.Logger
	if cfg.File.Path != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		output = io.MultiWriter(console, file)
	}

	l := newWithWriter(output, cfg, version)
	if file != nil {
		l.file = file
	}
	return l
}

// newWithWriter builds a Logger writing to w. Split out so tests can capture output.
func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "gray-logic-relay"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
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
// The child shares the parent's file sink; only the parent should be closed.
//
// Example:
//
//	relayLog := logger.With("component", "relay")
//	relayLog.Info("listening") // Includes component=relay
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Close releases the log file, if any. Console output needs no cleanup.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON to stdout at info level and has no file sink.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
