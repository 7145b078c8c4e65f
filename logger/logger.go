package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the application-wide logger
var Logger *logrus.Logger

// Initialize configures the logger. level is one of debug, info, warn, error
// (case-insensitive); format is "json" or "text".
func Initialize(level, format string) {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(parseLevel(level))

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	Logger = l
	Logger.WithFields(logrus.Fields{
		"log_level":  l.GetLevel().String(),
		"log_format": format,
	}).Info("Logging system initialized")
}

func parseLevel(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetOutput redirects log output, mostly used by tests to silence or capture logs
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// GetLogger returns the configured logger, initializing defaults on first use
func GetLogger() *logrus.Logger {
	if Logger == nil {
		Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	}
	return Logger
}

// WithContext creates a logger with additional context fields
func WithContext(fields map[string]interface{}) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithComponent tags entries with the emitting component
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// WithUser creates a logger with user context
func WithUser(userID string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"user_id":   userID,
		"component": "controller",
	})
}

// WithRequest creates a logger scoped to one repair request
func WithRequest(requestID string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"request_id": requestID,
		"component":  "request_service",
	})
}

// WithError creates a logger with error context
func WithError(err error, component string) *logrus.Entry {
	fields := logrus.Fields{
		"error":     err.Error(),
		"component": component,
	}

	if GetLogger().GetLevel() >= logrus.DebugLevel {
		fields["stack_trace"] = getStackTrace()
	}

	return GetLogger().WithFields(fields)
}

func getStackTrace() string {
	var stack []string
	for i := 2; i < 10; i++ {
		if pc, file, line, ok := runtime.Caller(i); ok {
			fn := runtime.FuncForPC(pc)
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}
	return strings.Join(stack, "\n")
}

func Debug(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Debug(msg)
}

func Info(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Info(msg)
}

func Warn(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Warn(msg)
}

func Error(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Error(msg)
}

func Fatal(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Fatal(msg)
}
