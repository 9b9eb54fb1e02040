package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// ANSI color codes for console output
const (
	ColorReset        = "\033[0m"
	ColorGray         = "\033[37m"
	ColorGreen        = "\033[32m"
	ColorCyan         = "\033[36m"
	ColorBrightRed    = "\033[91m"
	ColorBrightYellow = "\033[93m"
	ColorBrightGray   = "\033[90m"
)

// Column widths for better alignment
const (
	ServiceNameWidth = 20 // Fixed width for service names
	LogLevelWidth    = 7  // Fixed width for log levels (ERROR, WARN, etc.)
)

// LogEntry represents a single log entry
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
	Fields  map[string]string
}

// Logger provides structured logging with streaming support
type Logger struct {
	serviceName string
	version     string

	mu             sync.RWMutex
	subscribers    []chan LogEntry
	colorEnabled   bool
	disableConsole bool
}

// New creates a new logger instance
func New(serviceName, version string) *Logger {
	return &Logger{
		serviceName:  serviceName,
		version:      version,
		subscribers:  make([]chan LogEntry, 0),
		colorEnabled: isTerminal(),
	}
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// getColorForLevel returns the appropriate color for a log level
func (l *Logger) getColorForLevel(level string) string {
	if !l.colorEnabled {
		return ""
	}

	switch level {
	case "DEBUG":
		return ColorBrightGray
	case "INFO":
		return ColorGreen
	case "WARN":
		return ColorBrightYellow
	case "ERROR", "FATAL":
		return ColorBrightRed
	default:
		return ColorReset
	}
}

// formatServiceName truncates and pads service name for consistent column width
func formatServiceName(serviceName string) string {
	if len(serviceName) > ServiceNameWidth {
		return serviceName[:ServiceNameWidth-1] + "…"
	}
	return fmt.Sprintf("%-*s", ServiceNameWidth, serviceName)
}

// formatLogLevel pads log level for consistent column width
func formatLogLevel(level string) string {
	return fmt.Sprintf("%-*s", LogLevelWidth, level)
}

// Subscribe returns a channel to receive log entries
func (l *Logger) Subscribe() <-chan LogEntry {
	ch := make(chan LogEntry, 100)

	l.mu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.mu.Unlock()

	return ch
}

// DisableConsoleOutput disables console output
func (l *Logger) DisableConsoleOutput() {
	l.mu.Lock()
	l.disableConsole = true
	l.mu.Unlock()
}

func (l *Logger) log(level, message string, fields map[string]string) {
	now := time.Now()
	entry := LogEntry{
		Time:    now,
		Level:   level,
		Message: message,
		Fields:  fields,
	}

	l.mu.RLock()
	shouldOutputToConsole := !l.disableConsole
	l.mu.RUnlock()

	if shouldOutputToConsole {
		timestamp := now.Format("2006-01-02 15:04:05.000")

		color := l.getColorForLevel(level)
		resetColor := ""
		if l.colorEnabled {
			resetColor = ColorReset
		}

		consoleLogLine := fmt.Sprintf("%s[%s] [%s] [%s%s%s] %s%s",
			ColorCyan, timestamp, formatServiceName(l.serviceName),
			color, formatLogLevel(level), resetColor, message, resetColor)

		fmt.Println(consoleLogLine)
	}

	l.mu.RLock()
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			// Skip if channel is full
		}
	}
	l.mu.RUnlock()
}

// Debug logs a debug message
func (l *Logger) Debug(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("DEBUG", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("DEBUG", message, nil)
	}
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", fmt.Sprintf(format, args...), nil)
}

// Info logs an info message
func (l *Logger) Info(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("INFO", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("INFO", message, nil)
	}
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log("INFO", fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("WARN", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("WARN", message, nil)
	}
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log("WARN", fmt.Sprintf(format, args...), nil)
}

// Error logs an error message
func (l *Logger) Error(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("ERROR", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("ERROR", message, nil)
	}
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", fmt.Sprintf(format, args...), nil)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, args ...interface{}) {
	if len(args) > 0 {
		l.log("FATAL", fmt.Sprintf(message, args...), nil)
	} else {
		l.log("FATAL", message, nil)
	}
	os.Exit(1)
}

// WithFields logs an info message with structured fields
func (l *Logger) WithFields(message string, fields map[string]string) {
	l.log("INFO", message, fields)
}
