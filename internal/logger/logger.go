// Package logger provides the process-wide structured logger used by every
// component of the pipeline (ingestor, subvert worker, tournament engine,
// reader server, and CLI).
package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
	level         = new(slog.LevelVar)
)

// Init initializes the default logger with a JSON handler writing to
// os.Stdout at the given level ("debug", "info", "warn", "error"; unknown
// values fall back to info). Safe to call more than once; only the first
// call takes effect.
func Init(levelName string) {
	once.Do(func() {
		level.Set(parseLevel(levelName))
		defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(defaultLogger)
		defaultLogger.Info("logger initialized", "level", level.Level().String())
	})
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the process-wide logger, initializing it at info level if
// Init has not yet been called.
func Get() *slog.Logger {
	Init("info")
	return defaultLogger
}

// Info logs an informational message on the default logger.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message on the default logger.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message on the default logger, attaching err under
// the "error" key when non-nil.
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Get().Error(msg, args...)
}

// Debug logs a debug message on the default logger.
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
