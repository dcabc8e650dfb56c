package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger writes leveled messages to a log file and mirrors them to stdout.
type Logger struct {
	file   *os.File
	logger *log.Logger
}

// NewLogger opens (appending) the log file at logPath, creating directories
// as needed.
func NewLogger(logPath string) (*Logger, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
	}, nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) logf(level, format string, v ...interface{}) {
	msg := fmt.Sprintf("["+level+"] "+format, v...)
	l.logger.Println(msg)
	fmt.Println(msg)
}

// Info logs an info message.
func (l *Logger) Info(format string, v ...interface{}) { l.logf("INFO", format, v...) }

// Warn logs a warning.
func (l *Logger) Warn(format string, v ...interface{}) { l.logf("WARN", format, v...) }

// Error logs an error message.
func (l *Logger) Error(format string, v ...interface{}) { l.logf("ERROR", format, v...) }

// Debug logs a debug message.
func (l *Logger) Debug(format string, v ...interface{}) { l.logf("DEBUG", format, v...) }

// GetLogPath returns the default, date-stamped log path.
func GetLogPath() string {
	return filepath.Join(".", "logs", fmt.Sprintf("littlechat-%s.log", time.Now().Format("2006-01-02")))
}
