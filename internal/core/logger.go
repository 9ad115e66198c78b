package core

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger provides structured logging for yad2watch. Every cycle outcome is
// written both to stdout and to a rotating log file.
type Logger struct {
	*slog.Logger
	features map[string]*slog.Logger
	file     *lumberjack.Logger
}

// NewLogger creates a logger that writes to stdout only.
func NewLogger() *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &Logger{
		Logger:   slog.New(handler),
		features: make(map[string]*slog.Logger),
	}
}

// NewFileLogger creates a logger that writes to stdout and to a rotating
// file at path (5 MB per file, 3 backups).
func NewFileLogger(path string) *Logger {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &Logger{
		Logger:   slog.New(handler),
		features: make(map[string]*slog.Logger),
		file:     file,
	}
}

// ForFeature returns a logger specific to a feature
func (l *Logger) ForFeature(featureName string) *Logger {
	if featureLogger, exists := l.features[featureName]; exists {
		return &Logger{
			Logger:   featureLogger,
			features: l.features,
			file:     l.file,
		}
	}

	featureLogger := l.Logger.With("feature", featureName)
	l.features[featureName] = featureLogger

	return &Logger{
		Logger:   featureLogger,
		features: l.features,
		file:     l.file,
	}
}

// Close flushes and closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
