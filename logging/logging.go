/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package logging provides the tarforge status stream: a leveled console
// logger carried through context.Context. All logging should go through the
// context-based functions (InfoContext, WarnContext, ...) so that the logger
// configured by the command layer reaches every component.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

// OutputType represents the output format for logs.
type OutputType int

// Output types for different log formats
const (
	PlainOutput OutputType = iota
	ColorOutput
	JSONOutput
)

// Log levels, ordered from least to most severe.
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// CustomLogger writes leveled, optionally colored messages to a console
// writer. Raw program output (compiler and BuildKit logs) goes to stdout.
type CustomLogger struct {
	mu            sync.Mutex
	LogLevel      slog.Level
	OutputType    OutputType
	Quiet         bool
	Verbose       bool
	ConsoleWriter io.Writer
	OutputWriter  io.Writer
}

// NewCustomLoggerWithOptions creates a CustomLogger from raw CLI/config values.
func NewCustomLoggerWithOptions(logLevelStr, outputFormat string, quiet, verbose bool) *CustomLogger {
	logLevel := DetermineLogLevel(logLevelStr)
	if verbose && logLevel > slog.LevelDebug {
		logLevel = slog.LevelDebug
	}

	return &CustomLogger{
		LogLevel:      logLevel,
		OutputType:    DetermineOutputType(outputFormat),
		Quiet:         quiet,
		Verbose:       verbose,
		ConsoleWriter: os.Stderr,
		OutputWriter:  os.Stdout,
	}
}

// formatMessage renders message with a level prefix matching the output type.
func (l *CustomLogger) formatMessage(level LogLevel, message string, args ...interface{}) string {
	formattedMsg := message
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(message, args...)
	}

	switch l.OutputType {
	case ColorOutput:
		switch level {
		case DebugLevel:
			return color.HiBlackString("[DEBUG] %s", formattedMsg)
		case InfoLevel:
			return color.HiGreenString("[INFO] %s", formattedMsg)
		case WarnLevel:
			return color.HiYellowString("[WARN] %s", formattedMsg)
		case ErrorLevel:
			return color.HiRedString("[ERROR] %s", formattedMsg)
		}
	case PlainOutput:
		return fmt.Sprintf("[%s] %s", level, formattedMsg)
	}
	return formattedMsg
}

// shouldShowLocked must be called while holding l.mu.
// Quiet shows only errors, verbose shows everything, otherwise the
// configured level applies.
func (l *CustomLogger) shouldShowLocked(level LogLevel) bool {
	if l.Quiet {
		return level == ErrorLevel
	}
	if l.Verbose {
		return true
	}
	return slogLevel(level) >= l.LogLevel
}

func (l *CustomLogger) log(level LogLevel, message string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldShowLocked(level) || l.ConsoleWriter == nil {
		return
	}

	now := time.Now()
	var line string
	if l.OutputType == JSONOutput {
		msg := message
		if len(args) > 0 {
			msg = fmt.Sprintf(message, args...)
		}
		encoded, err := json.Marshal(map[string]string{
			"time":  now.Format(time.RFC3339),
			"level": level.String(),
			"msg":   msg,
		})
		if err != nil {
			return
		}
		line = string(encoded)
	} else {
		line = fmt.Sprintf("[%s] %s", now.Format("2006-01-02 15:04:05"), l.formatMessage(level, message, args...))
	}

	if _, err := fmt.Fprintln(l.ConsoleWriter, line); err != nil {
		fmt.Fprintln(os.Stderr, line)
	}
}

// Info logs an informational message.
func (l *CustomLogger) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Warn logs a warning message.
func (l *CustomLogger) Warn(format string, args ...interface{}) {
	l.log(WarnLevel, format, args...)
}

// Debug logs a debug message.
func (l *CustomLogger) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Error logs an error message. It accepts either an error, a format string,
// or any other value as the first argument.
func (l *CustomLogger) Error(firstArg interface{}, args ...interface{}) {
	switch v := firstArg.(type) {
	case error:
		if len(args) == 0 {
			l.log(ErrorLevel, "%s", v.Error())
		} else {
			l.log(ErrorLevel, v.Error(), args...)
		}
	case string:
		l.log(ErrorLevel, v, args...)
	default:
		l.log(ErrorLevel, "%v", v)
	}
}

// Print writes raw program output to the output writer without adding a
// newline. Suppressed in quiet mode.
func (l *CustomLogger) Print(data string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Quiet || l.OutputWriter == nil {
		return
	}
	_, _ = fmt.Fprint(l.OutputWriter, data)
}

// Writer returns an io.Writer that forwards each written line as a debug
// message. It is used to stream external command output.
func (l *CustomLogger) Writer(prefix string) io.Writer {
	return &lineWriter{logger: l, prefix: prefix}
}

type lineWriter struct {
	logger *CustomLogger
	prefix string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:idx]), "\r")
		w.buf = w.buf[idx+1:]
		if line != "" {
			w.logger.Debug("%s%s", w.prefix, line)
		}
	}
	return len(p), nil
}

// DetermineLogLevel converts a string to slog.Level.
func DetermineLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DetermineOutputType maps a format name to an OutputType.
func DetermineOutputType(format string) OutputType {
	switch strings.ToLower(format) {
	case "json":
		return JSONOutput
	case "color":
		return ColorOutput
	default:
		return PlainOutput
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewCustomLoggerWithOptions("info", "text", false, false)
)

// Initialize configures the process default logger. It is returned by
// FromContext when a context carries no logger.
func Initialize(logLevel, logFormat string, quiet, verbose bool) error {
	if logLevel != "" {
		switch strings.ToLower(logLevel) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("unknown log level %q", logLevel)
		}
	}

	l := NewCustomLoggerWithOptions(logLevel, logFormat, quiet, verbose)

	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	return nil
}

// Default returns the process default logger.
func Default() *CustomLogger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// WithLogger returns a new context carrying l.
func WithLogger(ctx context.Context, l *CustomLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext retrieves the logger from ctx, falling back to the process
// default logger.
func FromContext(ctx context.Context) *CustomLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*CustomLogger); ok && l != nil {
			return l
		}
	}
	return Default()
}

// InfoContext logs an informational message using the logger from ctx.
func InfoContext(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).Info(message, args...)
}

// WarnContext logs a warning message using the logger from ctx.
func WarnContext(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).Warn(message, args...)
}

// DebugContext logs a debug message using the logger from ctx.
func DebugContext(ctx context.Context, message string, args ...interface{}) {
	FromContext(ctx).Debug(message, args...)
}

// ErrorContext logs an error message using the logger from ctx.
func ErrorContext(ctx context.Context, firstArg interface{}, args ...interface{}) {
	FromContext(ctx).Error(firstArg, args...)
}

// PrintContext writes raw output using the logger from ctx.
func PrintContext(ctx context.Context, data string) {
	FromContext(ctx).Print(data)
}
