package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var logrusLevels = map[Level]logrus.Level{
	DEBUG: logrus.DebugLevel,
	INFO:  logrus.InfoLevel,
	WARN:  logrus.WarnLevel,
	ERROR: logrus.ErrorLevel,
}

// Logger provides structured JSON logging with optional secret redaction.
type Logger struct {
	log          *logrus.Logger
	redactSecret bool
}

var defaultLogger = New(os.Stderr)

// New creates a Logger writing JSON entries to w.
func New(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return &Logger{log: l, redactSecret: true}
}

// Default returns the package-level logger.
func Default() *Logger { return defaultLogger }

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.SetLevel(l) }

// SetOutput redirects the default logger.
func SetOutput(w io.Writer) { defaultLogger.log.SetOutput(w) }

// SetRedactSecrets enables or disables credential redaction for the default logger.
func SetRedactSecrets(r bool) { defaultLogger.redactSecret = r }

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a Level.
// Unknown strings fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.Debug(msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.Info(msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.Warn(msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.Error(msg, fields...) }

// SetLevel sets the minimum level of l.
func (l *Logger) SetLevel(level Level) { l.log.SetLevel(logrusLevels[level]) }

func (l *Logger) Debug(msg string, fields ...interface{}) { l.emit(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.emit(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.emit(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.emit(ERROR, msg, fields...) }

func (l *Logger) emit(level Level, msg string, fields ...interface{}) {
	lv := logrusLevels[level]
	if !l.log.IsLevelEnabled(lv) {
		return
	}

	// Parse key-value pairs from fields
	entry := make(logrus.Fields, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fields[i+1]
		if l.redactSecret && isSecretKey(key) {
			val = RedactSecret(fmt.Sprintf("%v", val))
		}
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		entry[key] = val
	}

	l.log.WithFields(entry).Log(lv, msg)
}
