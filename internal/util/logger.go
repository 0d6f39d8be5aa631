package util

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger with printf-style helpers.
type Logger struct {
	entry    *logrus.Logger
	filePath string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance.
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger(logrus.InfoLevel, "", os.Stdout)
	})
	return defaultLogger
}

// NewLogger creates a new logger writing to out and, when filePath is set,
// mirroring every level into that file.
func NewLogger(level logrus.Level, filePath string, out io.Writer) *Logger {
	l := &Logger{
		entry: &logrus.Logger{
			Out:       out,
			Formatter: &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"},
			Hooks:     make(logrus.LevelHooks),
			Level:     level,
		},
		filePath: filePath,
	}

	if filePath != "" {
		if err := EnsureDir(filepath.Dir(filePath)); err == nil {
			l.entry.Hooks.Add(lfshook.NewHook(lfshook.PathMap{
				logrus.DebugLevel: filePath,
				logrus.InfoLevel:  filePath,
				logrus.WarnLevel:  filePath,
				logrus.ErrorLevel: filePath,
				logrus.FatalLevel: filePath,
				logrus.PanicLevel: filePath,
			}, &logrus.JSONFormatter{}))
		}
	}

	return l
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level logrus.Level) {
	l.entry.SetLevel(level)
}

// ParseLevel parses a string log level, falling back to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.entry.WithFields(fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message using the default logger.
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Info logs an info message using the default logger.
func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Error logs an error message using the default logger.
func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// WithFields returns a structured entry on the default logger.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// InitLogger initializes the default logger with config.
func InitLogger(level string, filePath string) {
	once.Do(func() {
		defaultLogger = NewLogger(ParseLevel(level), filePath, os.Stdout)
	})
}
