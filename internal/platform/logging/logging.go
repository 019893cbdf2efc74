package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config captures logging configuration options.
type Config struct {
	Level    string
	Dir      string
	Filename string
	// Console overrides stdout, mostly for tests.
	Console io.Writer
}

var (
	colorReset = "\x1b[0m"
	colorTime  = "\x1b[90m"
	colorDebug = "\x1b[36m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
)

var tagColors = map[string]string{
	"Boot":      "\x1b[96m",
	"Session":   "\x1b[94m",
	"Gateway":   "\x1b[95m",
	"Nav":       "\x1b[93m",
	"Bridge":    "\x1b[92m",
	"URLGuard":  "\x1b[91m",
	"WebView":   "\x1b[36m",
	"WebSocket": "\x1b[92m",
	"HTTP":      "\x1b[95m",
	"Store":     "\x1b[97m",
}

// textHandler renders "[time] [LEVEL] message {attrs}" lines for the console.
type textHandler struct {
	writer io.Writer
	level  slog.Level
	mu     *sync.Mutex
	attrs  []slog.Attr
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	timeStr := r.Time.Format("2006-01-02 15:04:05.000")

	var levelColor string
	switch {
	case r.Level >= slog.LevelError:
		levelColor = colorError
	case r.Level >= slog.LevelWarn:
		levelColor = colorWarn
	case r.Level >= slog.LevelInfo:
		levelColor = colorInfo
	default:
		levelColor = colorDebug
	}

	msg := r.Message
	if tag, ok := messageTag(msg); ok {
		if c, known := tagColors[tag]; known {
			msg = c + msg + colorReset
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s %s[%s]%s %s",
		colorTime, timeStr, colorReset,
		levelColor, r.Level.String(), colorReset,
		msg)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		b.WriteString(" {")
		for _, a := range h.attrs {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		})
		b.WriteString(" }")
	}
	b.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &textHandler{writer: h.writer, level: h.level, mu: h.mu, attrs: merged}
}

func (h *textHandler) WithGroup(string) slog.Handler {
	return h
}

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// Logger provides printf-style helpers on top of a structured slog logger.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// New creates a Logger writing text to the console and, when Dir is set,
// JSON lines to Dir/Filename.
func New(cfg Config) (*Logger, error) {
	level := ParseLevel(cfg.Level)

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	handlers := fanout{&textHandler{writer: console, level: level, mu: &sync.Mutex{}}}

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "shell.log"
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	return &Logger{slogger: slog.New(handlers), file: file}, nil
}

// NewDiscard returns a logger that drops everything. Handy in tests.
func NewDiscard() *Logger {
	return &Logger{slogger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))}
}

// ParseLevel maps a config level string onto slog levels; unknown means info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Slog exposes the structured logger for new integrations.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

func (l *Logger) Debug(format string, args ...any) {
	l.slogger.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	l.slogger.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slogger.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slogger.Error(fmt.Sprintf(format, args...))
}

// InfoTag logs with a "[tag]" prefix so the console can colour by module.
func (l *Logger) InfoTag(tag, format string, args ...any) {
	l.slogger.Info(tagged(tag, format, args...))
}

func (l *Logger) WarnTag(tag, format string, args ...any) {
	l.slogger.Warn(tagged(tag, format, args...))
}

func (l *Logger) ErrorTag(tag, format string, args ...any) {
	l.slogger.Error(tagged(tag, format, args...))
}

func (l *Logger) DebugTag(tag, format string, args ...any) {
	l.slogger.Debug(tagged(tag, format, args...))
}

// Tagged returns a view of l that prefixes every message with "[tag]".
func (l *Logger) Tagged(tag string) *TaggedLogger {
	return &TaggedLogger{base: l, tag: tag}
}

// Close flushes and closes the JSON file sink.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// TaggedLogger satisfies the printf-style Logger contract used by domain
// packages while keeping the module tag.
type TaggedLogger struct {
	base *Logger
	tag  string
}

func (t *TaggedLogger) Debug(format string, args ...any) { t.base.DebugTag(t.tag, format, args...) }
func (t *TaggedLogger) Info(format string, args ...any)  { t.base.InfoTag(t.tag, format, args...) }
func (t *TaggedLogger) Warn(format string, args ...any)  { t.base.WarnTag(t.tag, format, args...) }
func (t *TaggedLogger) Error(format string, args ...any) { t.base.ErrorTag(t.tag, format, args...) }

func tagged(tag, format string, args ...any) string {
	return "[" + tag + "] " + fmt.Sprintf(format, args...)
}

func messageTag(msg string) (string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", false
	}
	end := strings.IndexByte(msg, ']')
	if end <= 1 {
		return "", false
	}
	return msg[1:end], true
}
