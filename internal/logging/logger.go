// Package logging provides unified logging functionality for pwmcfg.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger provides logging capabilities for pwmcfg.
type Logger interface {
	// Trace outputs fine-grained protocol traffic (only in debug mode)
	Trace(format string, args ...interface{})

	// Debug outputs debug information (only in debug mode)
	Debug(format string, args ...interface{})

	// Log writes to the log file with timestamp
	Log(format string, args ...interface{})

	// Info writes informational message to log file
	Info(format string, args ...interface{})

	// Warn outputs warning to log file (stderr when no file is attached)
	Warn(format string, args ...interface{})

	// Error outputs error to log file (stderr when no file is attached)
	Error(format string, args ...interface{})

	// SetScript sets the current command name for context
	SetScript(script string)

	// SetContext sets an extra context label (for example the active profile)
	SetContext(context string)

	// StartTimer starts a timer for measuring operation duration
	StartTimer(operation string) *Timer

	// Close closes the log file
	Close() error
}

// Timer represents a timer for measuring operation duration
type Timer struct {
	operation string
	start     time.Time
	logger    *logrusLogger
}

// Stop stops the timer and logs the elapsed time
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.logger != nil {
		t.logger.logWithLevel(logrus.InfoLevel, "%s completed in %v", t.operation, elapsed)
	}
	return elapsed
}

// StopWithResult stops the timer and logs the result
func (t *Timer) StopWithResult(success bool, detail string) time.Duration {
	elapsed := time.Since(t.start)
	if t.logger != nil {
		status := "completed"
		level := logrus.InfoLevel
		if !success {
			status = "failed"
			level = logrus.WarnLevel
		}
		if detail != "" {
			t.logger.logWithLevel(level, "%s %s in %v: %s", t.operation, status, elapsed, detail)
		} else {
			t.logger.logWithLevel(level, "%s %s in %v", t.operation, status, elapsed)
		}
	}
	return elapsed
}

type logrusLogger struct {
	log     *logrus.Logger
	file    *os.File
	script  string
	context string
	debug   bool
	mu      sync.Mutex
}

// New creates a new Logger that writes to the specified file.
func New(logPath string, debug bool) (Logger, error) {
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &logrusLogger{
		log:   newLogrus(file, debug),
		file:  file,
		debug: debug,
	}
	return l, nil
}

// NewStdout creates a logger that only writes warnings and errors to stderr
// (everything in debug mode).
func NewStdout(debug bool) Logger {
	lg := newLogrus(os.Stderr, debug)
	if !debug {
		lg.SetLevel(logrus.WarnLevel)
	}
	return &logrusLogger{
		log:   lg,
		debug: debug,
	}
}

// NewWriter creates a logger writing to an arbitrary writer. Used by tests and
// by the reference server.
func NewWriter(w io.Writer, debug bool) Logger {
	return &logrusLogger{
		log:   newLogrus(w, debug),
		debug: debug,
	}
}

func newLogrus(w io.Writer, debug bool) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetFormatter(&lineFormatter{})
	if debug {
		lg.SetLevel(logrus.TraceLevel)
	} else {
		lg.SetLevel(logrus.InfoLevel)
	}
	return lg
}

func (l *logrusLogger) SetScript(script string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.script = script
}

func (l *logrusLogger) SetContext(context string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.context = context
}

func (l *logrusLogger) getContext() string {
	// Note: caller should hold the lock when calling this method
	if l.context != "" {
		return fmt.Sprintf("%s:%s", l.script, l.context)
	}
	return l.script
}

const loggingPkg = "github.com/dongho-jung/pwmcfg/internal/logging."

// getCaller returns the first caller outside this package, shortened to
// "pkg.Func" form.
func getCaller(skip int) string {
	for ; skip < 16; skip++ {
		pc, _, _, ok := runtime.Caller(skip)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		name := fn.Name()
		if strings.HasPrefix(name, loggingPkg) {
			continue
		}
		// Extract just the function name from the full path
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		return name
	}
	return "unknown"
}

// logWithLevel writes a log entry with the specified level
func (l *logrusLogger) logWithLevel(level logrus.Level, format string, args ...interface{}) {
	if !l.log.IsLevelEnabled(level) {
		return
	}

	l.mu.Lock()
	ctx := l.getContext()
	l.mu.Unlock()

	caller := getCaller(2)

	l.log.WithFields(logrus.Fields{
		"context": ctx,
		"caller":  caller,
	}).Log(level, fmt.Sprintf(format, args...))
}

func (l *logrusLogger) Trace(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.logWithLevel(logrus.TraceLevel, format, args...)
}

func (l *logrusLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.logWithLevel(logrus.DebugLevel, format, args...)
}

func (l *logrusLogger) Log(format string, args ...interface{}) {
	l.logWithLevel(logrus.InfoLevel, format, args...)
}

func (l *logrusLogger) Info(format string, args ...interface{}) {
	l.logWithLevel(logrus.InfoLevel, format, args...)
}

func (l *logrusLogger) Warn(format string, args ...interface{}) {
	l.logWithLevel(logrus.WarnLevel, format, args...)
}

func (l *logrusLogger) Error(format string, args ...interface{}) {
	l.logWithLevel(logrus.ErrorLevel, format, args...)
}

func (l *logrusLogger) StartTimer(operation string) *Timer {
	l.logWithLevel(logrus.DebugLevel, "%s started", operation)
	return &Timer{
		operation: operation,
		start:     time.Now(),
		logger:    l,
	}
}

func (l *logrusLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		l.log.SetOutput(io.Discard)
		return err
	}
	return nil
}

// levelCodes maps logrus levels to the short codes written in the log file.
var levelCodes = map[logrus.Level]string{
	logrus.TraceLevel: "L0",
	logrus.DebugLevel: "L1",
	logrus.InfoLevel:  "L2",
	logrus.WarnLevel:  "L3",
	logrus.ErrorLevel: "L4",
	logrus.FatalLevel: "L5",
	logrus.PanicLevel: "L5",
}

// LevelCode returns the short code used for a level in log lines.
func LevelCode(level logrus.Level) string {
	if code, ok := levelCodes[level]; ok {
		return code
	}
	return "L?"
}

// lineFormatter renders entries as
// [timestamp] [code] [context] [caller] message
type lineFormatter struct{}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	ctx, _ := entry.Data["context"].(string)
	caller, _ := entry.Data["caller"].(string)
	fmt.Fprintf(&b, "[%s] [%s] [%s] [%s] %s",
		entry.Time.Format("06-01-02 15:04:05.0"),
		LevelCode(entry.Level),
		ctx,
		caller,
		entry.Message)

	for k, v := range entry.Data {
		if k == "context" || k == "caller" {
			continue
		}
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Global logger instance
var globalLogger Logger = NewStdout(os.Getenv("PWMCFG_DEBUG") == "1")

// SetGlobal sets the global logger instance.
func SetGlobal(l Logger) {
	globalLogger = l
}

// Global returns the global logger instance.
func Global() Logger {
	return globalLogger
}

// Trace logs protocol traffic using the global logger.
func Trace(format string, args ...interface{}) {
	globalLogger.Trace(format, args...)
}

// Debug logs debug information using the global logger.
func Debug(format string, args ...interface{}) {
	globalLogger.Debug(format, args...)
}

// Log logs information using the global logger.
func Log(format string, args ...interface{}) {
	globalLogger.Log(format, args...)
}

// Info logs informational message using the global logger.
func Info(format string, args ...interface{}) {
	globalLogger.Info(format, args...)
}

// Warn logs a warning using the global logger.
func Warn(format string, args ...interface{}) {
	globalLogger.Warn(format, args...)
}

// Error logs an error using the global logger.
func Error(format string, args ...interface{}) {
	globalLogger.Error(format, args...)
}

// StartTimer starts a timer for measuring operation duration using the global logger.
func StartTimer(operation string) *Timer {
	return globalLogger.StartTimer(operation)
}
