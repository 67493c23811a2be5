// Package logging holds the process-wide structured logger.
//
// Call Init once at startup. GetLogger falls back to an INFO text logger on
// stderr when Init was never called, so packages may log from tests safely.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	logger  *slog.Logger
	logFile *os.File
	mu      sync.RWMutex
)

type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"`
}

// Init replaces the global logger. Calling it again closes the previous log file.
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	var writer io.Writer = os.Stderr
	var file *os.File
	if config.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0o750); err != nil {
			return err
		}

		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		writer = f
		file = f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(config.Level)}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	var err error
	if logFile != nil {
		err = logFile.Close()
	}
	logger = slog.New(handler)
	logFile = file
	return err
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var err error
	if logFile != nil {
		err = logFile.Close()
		logFile = nil
	}
	logger = nil
	return err
}

func GetLogger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

// WithComponent tags records with the subsystem that produced them.
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

func WithPage(pageId int64) *slog.Logger {
	return GetLogger().With("page_id", pageId)
}

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

// ValidLevel reports whether level names a supported log level.
func ValidLevel(level string) error {
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return errors.New("unknown log level " + level)
}
