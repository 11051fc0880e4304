// Package log provides logging functionality to both console and file.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes output to both console and a rotating log file.
type Logger struct {
	mu      sync.Mutex
	file    io.WriteCloser
	console io.Writer
	errOut  io.Writer
	writer  io.Writer
	debug   bool
}

// New creates a new logger that writes to both console and a log file.
// The log file lives in logDir and is rotated by size.
func New(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "prepsync.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	return &Logger{
		file:    file,
		console: os.Stdout,
		errOut:  os.Stderr,
		writer:  io.MultiWriter(os.Stdout, file),
	}, nil
}

// NewWriter returns a logger that sends everything to w.
func NewWriter(w io.Writer) *Logger {
	return &Logger{
		console: w,
		errOut:  w,
		writer:  w,
	}
}

// Discard drops all output.
var Discard = NewWriter(io.Discard)

// SetDebug enables Debugf output.
func (l *Logger) SetDebug(on bool) {
	l.mu.Lock()
	l.debug = on
	l.mu.Unlock()
}

// Printf writes a formatted message to console and log file.
func (l *Logger) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprint(l.writer, msg)
}

// Println writes a message to console and log file with a newline.
func (l *Logger) Println(args ...interface{}) {
	msg := fmt.Sprintln(args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprint(l.writer, msg)
}

// Errorf writes a timestamped error line to stderr and the log file.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.line(l.errOut, "ERROR", format, args...)
}

// Warnf writes a timestamped warning line to stderr and the log file.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.line(l.errOut, "WARN", format, args...)
}

// Debugf writes a timestamped line when debug is on. It goes to the log file
// only, or to the error writer of a logger without a file.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.mu.Lock()
	on := l.debug
	l.mu.Unlock()
	if !on {
		return
	}
	var console io.Writer
	if l.file == nil {
		console = l.errOut
	}
	l.line(console, "DEBUG", format, args...)
}

func (l *Logger) line(console io.Writer, level, format string, args ...interface{}) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	formatted := fmt.Sprintf("[%s] %s %s\n", timestamp, level, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if console != nil {
		_, _ = fmt.Fprint(console, formatted)
	}
	if l.file != nil {
		_, _ = fmt.Fprint(l.file, formatted)
	}
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Global logger instance
var globalLogger *Logger

// Init initializes the global logger.
// Also redirects Go's standard log package to the log file.
func Init(logDir string) error {
	logger, err := New(logDir)
	if err != nil {
		return err
	}
	globalLogger = logger

	stdlog.SetOutput(logger.file)
	stdlog.SetFlags(stdlog.Ldate | stdlog.Ltime)

	return nil
}

// Default returns the global logger, or a stderr-only logger before Init.
func Default() *Logger {
	if globalLogger != nil {
		return globalLogger
	}
	return &Logger{console: os.Stdout, errOut: os.Stderr, writer: os.Stdout}
}

// Printf uses the global logger to print formatted output.
func Printf(format string, args ...interface{}) {
	Default().Printf(format, args...)
}

// Println uses the global logger to print output with newline.
func Println(args ...interface{}) {
	Default().Println(args...)
}

// Errorf uses the global logger to print formatted error output.
func Errorf(format string, args ...interface{}) {
	Default().Errorf(format, args...)
}

// Warnf uses the global logger to print a warning.
func Warnf(format string, args ...interface{}) {
	Default().Warnf(format, args...)
}

// Close closes the global logger.
func Close() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}
