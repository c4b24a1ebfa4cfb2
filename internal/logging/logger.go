// Package logging provides the structured logger used by the srcpatch
// commands.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel accepts a level name in any case. An empty value means info.
func ParseLevel(value string) (Level, error) {
	if strings.TrimSpace(value) == "" {
		return LevelInfo, nil
	}
	level := Level(strings.ToUpper(strings.TrimSpace(value)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", value)
	}
	return level, nil
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger writes structured entries. The context carries the run id.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, err error, fields ...Field)
	With(fields ...Field) Logger
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...Field)        {}
func (Nop) Info(context.Context, string, ...Field)         {}
func (Nop) Warn(context.Context, string, ...Field)         {}
func (Nop) Error(context.Context, string, error, ...Field) {}
func (n Nop) With(...Field) Logger                         { return n }

// TextLogger writes one line per entry:
//
//	[2024-05-01T10:00:00Z] [INFO] message fields=[k=v run_id=...]
type TextLogger struct {
	fields []Field
	min    Level
	out    *syncWriter
	now    func() time.Time
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line+"\n")
}

// New returns a logger writing entries at or above min to w. A nil writer
// discards output.
func New(min Level, w io.Writer) *TextLogger {
	if w == nil {
		w = io.Discard
	}
	if _, ok := levelRank[min]; !ok {
		min = LevelInfo
	}
	return &TextLogger{min: min, out: &syncWriter{w: w}, now: time.Now}
}

// Enabled reports whether entries at level are written.
func (l *TextLogger) Enabled(level Level) bool {
	return levelRank[level] >= levelRank[l.min]
}

func (l *TextLogger) log(ctx context.Context, level Level, msg string, err error, fields []Field) {
	if !l.Enabled(level) {
		return
	}
	all := make([]Field, 0, len(l.fields)+len(fields)+1)
	all = append(all, l.fields...)
	all = append(all, fields...)
	if id := RunID(ctx); id != "" {
		all = append(all, F("run_id", id))
	}

	parts := []string{
		fmt.Sprintf("[%s]", l.now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("[%s]", level),
	}
	if err != nil {
		parts = append(parts, fmt.Sprintf("[error=%q]", err.Error()))
	}
	parts = append(parts, msg)
	if len(all) > 0 {
		kv := make([]string, len(all))
		for i, f := range all {
			kv[i] = fmt.Sprintf("%s=%v", f.Key, f.Value)
		}
		parts = append(parts, fmt.Sprintf("fields=[%s]", strings.Join(kv, " ")))
	}
	l.out.writeLine(strings.Join(parts, " "))
}

func (l *TextLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelDebug, msg, nil, fields)
}

func (l *TextLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelInfo, msg, nil, fields)
}

func (l *TextLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, LevelWarn, msg, nil, fields)
}

func (l *TextLogger) Error(ctx context.Context, msg string, err error, fields ...Field) {
	l.log(ctx, LevelError, msg, err, fields)
}

// With returns a logger that adds fields to every entry.
func (l *TextLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &TextLogger{fields: merged, min: l.min, out: l.out, now: l.now}
}

type runIDKey struct{}

// WithRunID stores the id correlating all entries of one command run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the id stored by WithRunID, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// NewRunID derives a run id from the current time.
func NewRunID() string {
	return fmt.Sprintf("%x", time.Now().UnixNano())
}
