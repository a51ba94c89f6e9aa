// Package logging provides structured logging for idrac2ntfy using Go's
// standard log/slog package.
//
// It offers logfmt or JSON output, a process-wide level that can be changed at
// runtime (used by configuration hot reload), component-aware loggers, and
// context-aware helpers that attach the trap correlation ID.
//
// # Basic Usage
//
//	err := logging.Init(logging.Config{Level: "info", Format: "logfmt"})
//	if err != nil {
//		panic(err)
//	}
//	defer logging.Shutdown()
//
//	logging.Info("listener started", "address", "0.0.0.0:162")
//
// # Component-Aware Logging
//
//	log := logging.NewComponentLogger("dispatcher", "ntfy")
//	log.Warn("delivery failed", "status", 503)
//	// Output: ... component=dispatcher component_type=ntfy status=503
//
// # Context-Aware Logging
//
//	ctx = logging.WithTrapID(ctx, "0b7e...")
//	log.InfoContext(ctx, "alert classified")
//	// Output: ... trap_id=0b7e...
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output formats.
const (
	// FormatLogfmt writes key=value lines through slog's text handler.
	FormatLogfmt = "logfmt"
	FormatJSON   = "json"
)

// Config holds logger settings.
type Config struct {
	// Level is one of debug, info, warn, error (case-insensitive).
	Level string `json:"level" yaml:"level"`

	// Format is logfmt or json.
	Format string `json:"format" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `json:"output" yaml:"output"`

	// AddSource includes file:line in each record.
	AddSource bool `json:"add_source" yaml:"add_source"`
}

// DefaultConfig returns info level logfmt on stdout.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatLogfmt,
		Output: "stdout",
	}
}

var (
	globalMu       sync.RWMutex
	globalLogger   *slog.Logger
	globalCloser   io.Closer
	globalLevelVar *slog.LevelVar
)

// New creates an independent logger. The returned closer is non-nil only
// when Output is a file.
func New(config Config) (*slog.Logger, io.Closer, error) {
	logger, _, closer, err := build(config)
	return logger, closer, err
}

// Init configures the global logger and installs it as slog's default.
func Init(config Config) error {
	logger, levelVar, closer, err := build(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	prev := globalCloser
	globalLogger = logger
	globalCloser = closer
	globalLevelVar = levelVar
	globalMu.Unlock()

	slog.SetDefault(logger)

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// InitWithDefaults configures the global logger with DefaultConfig.
func InitWithDefaults() error {
	return Init(DefaultConfig())
}

// Shutdown closes the global log file, if any.
func Shutdown() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalCloser != nil {
		err := globalCloser.Close()
		globalCloser = nil
		return err
	}
	return nil
}

// SetLevel changes the level of the global logger at runtime.
func SetLevel(level string) error {
	if !ValidateLevel(level) {
		return invalidLevelError(level)
	}

	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLevelVar != nil {
		globalLevelVar.Set(parseLevel(level))
	}
	return nil
}

// ValidateLevel reports whether level is a supported level name.
func ValidateLevel(level string) bool {
	switch strings.ToLower(level) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	default:
		return false
	}
}

// ValidateFormat reports whether format is a supported output format.
func ValidateFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatLogfmt, FormatJSON:
		return true
	default:
		return false
	}
}

// Get returns the global logger, initializing it with defaults on first use.
func Get() *slog.Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()

	if logger != nil {
		return logger
	}
	if err := InitWithDefaults(); err != nil {
		return slog.Default()
	}

	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug logs at debug level on the global logger.
func Debug(msg string, args ...any) { Get().Debug(msg, args...) }

// Info logs at info level on the global logger.
func Info(msg string, args ...any) { Get().Info(msg, args...) }

// Warn logs at warn level on the global logger.
func Warn(msg string, args ...any) { Get().Warn(msg, args...) }

// Error logs at error level on the global logger.
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func build(config Config) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	if !ValidateLevel(config.Level) {
		return nil, nil, nil, invalidLevelError(config.Level)
	}
	if !ValidateFormat(config.Format) {
		return nil, nil, nil, fmt.Errorf("invalid log format: %q, must be one of: %s, %s",
			config.Format, FormatLogfmt, FormatJSON)
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(config.Level))

	var writer io.Writer
	var closer io.Closer
	switch strings.ToLower(config.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := openLogFile(config.Output)
		if err != nil {
			return nil, nil, nil, err
		}
		writer = file
		closer = file
	}

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == FormatJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler), levelVar, closer, nil
}

func invalidLevelError(level string) error {
	return fmt.Errorf("invalid log level: %q, must be one of: %s, %s, %s, %s",
		level, LevelDebug, LevelInfo, LevelWarn, LevelError)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openLogFile opens filePath for appending, refusing system directories and
// symlinks.
func openLogFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return nil, errors.New("log file path cannot be empty")
	}

	cleanPath := filepath.Clean(filePath)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid log file path: contains directory traversal: %s", cleanPath)
	}

	if filepath.IsAbs(cleanPath) {
		for _, p := range []string{"/etc/", "/proc/", "/sys/", "/dev/", "/run/secrets"} {
			if strings.HasPrefix(cleanPath+"/", p) {
				return nil, fmt.Errorf("log file path not allowed: %s", cleanPath)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", cleanPath, err)
	}

	if info, err := os.Lstat(cleanPath); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("refusing to open symlink for log file: %s", cleanPath)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("log path must be a regular file: %s", cleanPath)
		}
	}

	file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cleanPath, err)
	}
	return file, nil
}
