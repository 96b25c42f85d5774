// Package logging is the process-wide log sink for imagededup. It keeps a small
// package-level API and routes everything through a log/slog handler that writes
// to stderr and, when configured, to a log file as well.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	logger  = newLogger(os.Stderr, slog.LevelInfo, false)
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

func newLogger(w io.Writer, level slog.Level, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// SetupLogger configures the log sink. When logFilePath is set, records go to
// both stderr and the file.
func SetupLogger(logFilePath string, level string, jsonFormat bool) error {
	mu.Lock()
	defer mu.Unlock()

	if isSetup {
		return nil
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if logFilePath != "" {
		logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, logFile)
	}

	logger = newLogger(out, lvl, jsonFormat)
	logger.Info("log started", "at", time.Now().Format(time.RFC3339), "file", logFilePath)

	isSetup = true
	return nil
}

// SetOutput replaces the sink with a debug-level text logger writing to w.
// Tests use it to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w, slog.LevelDebug, false)
}

// CloseLogger closes the log file and restores the stderr sink
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Info("log closed", "at", time.Now().Format(time.RFC3339))
		logFile.Close()
		logFile = nil
	}
	logger = newLogger(os.Stderr, slog.LevelInfo, false)
	isSetup = false
}

// Logger returns the current slog logger
func Logger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// LogInfo logs an informational message with structured attributes
func LogInfo(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// DebugLog logs a message at debug level
func DebugLog(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// LogWarning logs a warning message
func LogWarning(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// LogError logs an error message
func LogError(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// LogImageProcessed logs the outcome of one image
func LogImageProcessed(name, id string, err error) {
	if err != nil {
		Logger().Warn("image failed", "name", name, "image_id", id, "error", err)
		return
	}
	Logger().Debug("image processed", "name", name, "image_id", id)
}
