package pkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Stack component identifiers.
const (
	ComponentHost   Component = "host"   // Host lifecycle and bring-up
	ComponentSlot   Component = "slot"   // Per-slot request dispatch
	ComponentCard   Component = "card"   // Card-addressed general commands
	ComponentMemory Component = "memory" // Memory card transfers and erase
	ComponentHAL    Component = "hal"    // Host controller HAL
	ComponentPHY    Component = "phy"    // Delay-line programming
	ComponentSim    Component = "sim"    // Simulated controller and cards
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger receives all stack logging. Replace it with SetLogger,
	// or rebuild it with SetLogFormat and SetLogOutput.
	DefaultLogger *slog.Logger

	logLevel  = new(slog.LevelVar)
	logFormat = LogFormatText
	logOutput = io.Writer(os.Stderr)

	// logMutex protects the three variables above and DefaultLogger.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(newHandler(logFormat, logOutput, nil))
}

// newHandler builds a handler of the given format. A nil opts follows the
// package log level.
func newHandler(format LogFormat, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	if format == LogFormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogLevel sets the minimum log level for all stack logging.
func SetLogLevel(level slog.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel.Level()
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat rebuilds the default logger in the given format, keeping
// the current output and level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logFormat = format
	DefaultLogger = slog.New(newHandler(logFormat, logOutput, nil))
}

// SetLogOutput rebuilds the default logger to write to w, keeping the
// current format and level.
func SetLogOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOutput = w
	DefaultLogger = slog.New(newHandler(logFormat, logOutput, nil))
}

// NewLogger creates a new text logger writing to the given writer.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(LogFormatText, w, opts))
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(newHandler(LogFormatJSON, w, opts))
}

// CommandAttr groups a command index and argument for logging. The
// argument is rendered in hex so address and register fields stay
// readable.
func CommandAttr(index uint8, arg uint32) slog.Attr {
	return slog.Group("cmd",
		slog.Int("index", int(index)),
		slog.String("arg", fmt.Sprintf("0x%08X", arg)))
}

// logAt emits msg tagged with component. Disabled levels return before
// the attribute slice is built, since command dispatch logs at debug
// level on every request.
func logAt(level slog.Level, component Component, msg string, args []any) {
	logMutex.RLock()
	logger := DefaultLogger
	logMutex.RUnlock()

	ctx := context.Background()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, append([]any{"component", string(component)}, args...)...)
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	logAt(slog.LevelDebug, component, msg, args)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	logAt(slog.LevelInfo, component, msg, args)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logAt(slog.LevelWarn, component, msg, args)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logAt(slog.LevelError, component, msg, args)
}
