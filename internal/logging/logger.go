package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota - 4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// ParseLevel maps a config string to a Level. Unknown values mean Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type Config struct {
	Level  Level
	Format string // "json", "text", "dev"
	Output io.Writer
}

type logger struct {
	slog *slog.Logger
}

// Patterns for sensitive data filtering. The Chronicle API key travels in an
// X-Api-Key header and in pairing responses; never let it reach the log.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)["\s]*[:=]["\s]*([^\s"&]+)`),
	regexp.MustCompile(`(?i)x-api-key:\s*([^\s"&]+)`),
}

// NewLogger creates a structured logger with the given configuration.
func NewLogger(config *Config) Logger {
	if config == nil {
		config = &Config{Level: LevelInfo, Format: "text", Output: os.Stdout}
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: slog.Level(config.Level)}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(config.Output, opts)
	case "dev":
		handler = NewDevHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &logger{slog: slog.New(handler)}
}

func (l *logger) Debug(msg string, args ...any) {
	l.slog.Debug(sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) Info(msg string, args ...any) {
	l.slog.Info(sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) Warn(msg string, args ...any) {
	l.slog.Warn(sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) Error(msg string, args ...any) {
	l.slog.Error(sanitize(msg), sanitizeArgs(args)...)
}

func (l *logger) With(args ...any) Logger {
	return &logger{slog: l.slog.With(sanitizeArgs(args)...)}
}

// sanitize removes sensitive information from log messages.
func sanitize(msg string) string {
	for _, pattern := range sensitivePatterns {
		msg = pattern.ReplaceAllStringFunc(msg, func(match string) string {
			for _, sep := range []string{":", "="} {
				if parts := strings.SplitN(match, sep, 2); len(parts) == 2 {
					return parts[0] + sep + " [REDACTED]"
				}
			}
			return "[REDACTED]"
		})
	}
	return msg
}

func sanitizeArgs(args []any) []any {
	sanitized := make([]any, len(args))
	for i, arg := range args {
		if str, ok := arg.(string); ok {
			sanitized[i] = sanitize(str)
		} else {
			sanitized[i] = arg
		}
	}
	return sanitized
}

// DevHandler is a compact colored handler for local development.
type DevHandler struct {
	opts   *slog.HandlerOptions
	output io.Writer
	attrs  []slog.Attr
}

func NewDevHandler(output io.Writer, opts *slog.HandlerOptions) *DevHandler {
	return &DevHandler{opts: opts, output: output}
}

func (h *DevHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *DevHandler) Handle(_ context.Context, record slog.Record) error {
	var levelColor string
	switch record.Level {
	case slog.LevelDebug:
		levelColor = "\033[36m"
	case slog.LevelInfo:
		levelColor = "\033[32m"
	case slog.LevelWarn:
		levelColor = "\033[33m"
	case slog.LevelError:
		levelColor = "\033[31m"
	default:
		levelColor = "\033[0m"
	}

	line := fmt.Sprintf("%s[%s %s]\033[0m %s",
		levelColor,
		record.Time.Format(time.TimeOnly),
		strings.ToUpper(record.Level.String()),
		record.Message)

	for _, attr := range h.attrs {
		line += fmt.Sprintf(" %s=%v", attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", attr.Key, attr.Value)
		return true
	})
	line += "\n"

	_, err := h.output.Write([]byte(line))
	return err
}

func (h *DevHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &DevHandler{opts: h.opts, output: h.output, attrs: merged}
}

func (h *DevHandler) WithGroup(_ string) slog.Handler {
	return h
}

// Global logger instance.
var defaultLogger Logger

// SetDefault sets the default global logger.
func SetDefault(l Logger) {
	defaultLogger = l
}

// Default returns the default global logger.
func Default() Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// Convenience functions using the default logger.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
