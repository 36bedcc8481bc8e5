package mqtt311

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug is the debug log level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the info log level.
	LogLevelInfo
	// LogLevelWarn is the warn log level.
	LogLevelWarn
	// LogLevelError is the error log level.
	LogLevelError
	// LogLevelNone disables all logging.
	LogLevelNone
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a level name to a LogLevel. Unknown names map to
// LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "NONE", "OFF":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}

// LogFields represents key-value pairs for structured logging.
type LogFields map[string]any

// Logger defines the interface for logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, fields LogFields)

	// Info logs an info message.
	Info(msg string, fields LogFields)

	// Warn logs a warning message.
	Warn(msg string, fields LogFields)

	// Error logs an error message.
	Error(msg string, fields LogFields)

	// WithFields returns a new logger with the given fields added.
	WithFields(fields LogFields) Logger
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Debug does nothing.
func (n *NoOpLogger) Debug(_ string, _ LogFields) {}

// Info does nothing.
func (n *NoOpLogger) Info(_ string, _ LogFields) {}

// Warn does nothing.
func (n *NoOpLogger) Warn(_ string, _ LogFields) {}

// Error does nothing.
func (n *NoOpLogger) Error(_ string, _ LogFields) {}

// WithFields returns the same logger.
func (n *NoOpLogger) WithFields(_ LogFields) Logger {
	return n
}

// StdLogger is a simple logger using the standard library log package.
type StdLogger struct {
	logger *log.Logger
	level  LogLevel
	fields LogFields
}

// NewStdLogger creates a new standard library based logger.
func NewStdLogger(w io.Writer, level LogLevel) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		level:  level,
		fields: make(LogFields),
	}
}

// Debug logs a debug message.
func (s *StdLogger) Debug(msg string, fields LogFields) {
	if s.level <= LogLevelDebug {
		s.log("DEBUG", msg, fields)
	}
}

// Info logs an info message.
func (s *StdLogger) Info(msg string, fields LogFields) {
	if s.level <= LogLevelInfo {
		s.log("INFO", msg, fields)
	}
}

// Warn logs a warning message.
func (s *StdLogger) Warn(msg string, fields LogFields) {
	if s.level <= LogLevelWarn {
		s.log("WARN", msg, fields)
	}
}

// Error logs an error message.
func (s *StdLogger) Error(msg string, fields LogFields) {
	if s.level <= LogLevelError {
		s.log("ERROR", msg, fields)
	}
}

// WithFields returns a new logger with the given fields added.
func (s *StdLogger) WithFields(fields LogFields) Logger {
	newFields := make(LogFields, len(s.fields)+len(fields))
	for k, v := range s.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &StdLogger{logger: s.logger, level: s.level, fields: newFields}
}

func (s *StdLogger) log(level, msg string, fields LogFields) {
	all := make(LogFields, len(s.fields)+len(fields))
	for k, v := range s.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}

	if len(all) == 0 {
		s.logger.Printf("[%s] %s", level, msg)
		return
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, all[k])
	}

	s.logger.Printf("[%s] %s%s", level, msg, b.String())
}
