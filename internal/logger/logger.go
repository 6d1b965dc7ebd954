package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	currentLevel LogLevel = INFO
	logger       *logrus.Logger
)

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&lineFormatter{})

	// Set log level from environment
	level, err := ParseLevel(os.Getenv("STACKMIG_LOG_LEVEL"))
	if err != nil {
		level = INFO
	}
	SetLevel(level)
}

// ParseLevel converts a level name to a LogLevel. The empty string is INFO.
func ParseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL", "CRITICAL":
		return FATAL, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// SetLevel sets the logging level
func SetLevel(level LogLevel) {
	currentLevel = level
	switch level {
	case DEBUG:
		logger.SetLevel(logrus.DebugLevel)
	case INFO:
		logger.SetLevel(logrus.InfoLevel)
	case WARN:
		logger.SetLevel(logrus.WarnLevel)
	case ERROR:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.FatalLevel)
	}
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	return currentLevel
}

// Configure applies a level name and a format ("text" or "json"). Empty
// values leave the current setting unchanged. A nil writer keeps the current
// output.
func Configure(level, format string, out io.Writer) error {
	if level != "" {
		lvl, err := ParseLevel(level)
		if err != nil {
			return err
		}
		SetLevel(lvl)
	}

	switch strings.ToLower(format) {
	case "":
	case "text":
		logger.SetFormatter(&lineFormatter{})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"})
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}

	if out != nil {
		logger.SetOutput(out)
	}
	return nil
}

// lineFormatter renders "[timestamp] [LEVEL] message"
type lineFormatter struct{}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}
	return []byte(fmt.Sprintf("[%s] [%s] %s\n", entry.Time.Format("2006-01-02 15:04:05"), level, entry.Message)), nil
}

// shouldLog checks if a message at the given level should be logged
func shouldLog(level LogLevel) bool {
	return level >= currentLevel
}

func formatMessage(format string, args ...interface{}) string {
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	if shouldLog(DEBUG) {
		logger.Debug(formatMessage(format, args...))
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if shouldLog(INFO) {
		logger.Info(formatMessage(format, args...))
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if shouldLog(WARN) {
		logger.Warn(formatMessage(format, args...))
	}
}
