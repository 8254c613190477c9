// Package observability defines the logging and tracing hooks the library
// reports through. Components default to the no-op implementations.
package observability

import (
	"context"
	"log/slog"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type Field interface {
	Key() string
	Value() interface{}
}

type field struct {
	key string
	val interface{}
}

func (f field) Key() string        { return f.key }
func (f field) Value() interface{} { return f.val }

func String(key, value string) Field          { return field{key, value} }
func Int(key string, value int) Field         { return field{key, value} }
func Int64(key string, value int64) Field     { return field{key, value} }
func Float64(key string, value float64) Field { return field{key, value} }
func Bool(key string, value bool) Field       { return field{key, value} }
func Error(key string, err error) Field       { return field{key, err} }

type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}

// slogLogger forwards to a *slog.Logger.
type slogLogger struct{ l *slog.Logger }

// NewSlogLogger adapts a standard library structured logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}

func (s slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, attrs(fields)...) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, attrs(fields)...) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, attrs(fields)...) }
func (s slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, attrs(fields)...) }
func (s slogLogger) With(fields ...Field) Logger {
	return slogLogger{l: s.l.With(attrs(fields)...)}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		v := f.Value()
		if err, ok := v.(error); ok && err != nil {
			v = err.Error()
		}
		out = append(out, slog.Any(f.Key(), v))
	}
	return out
}

// Tracer provides distributed tracing hooks for library operations.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Span represents a tracing span.
type Span interface {
	SetTag(key string, value interface{})
	SetError(err error)
	Finish()
}

type nopTracer struct{}

func (nopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// NopTracer returns a tracer that does nothing.
func NopTracer() Tracer { return nopTracer{} }

// TracerOrNop returns t, or the no-op tracer when t is nil.
func TracerOrNop(t Tracer) Tracer {
	if t == nil {
		return nopTracer{}
	}
	return t
}

type nopSpan struct{}

func (nopSpan) SetTag(string, interface{}) {}
func (nopSpan) SetError(error)             {}
func (nopSpan) Finish()                    {}

// Span and metric names emitted by the library.
const (
	SpanOpen        = "reader.open"
	SpanExtractPage = "extract.page"
	SpanApplyEdits  = "editor.apply_edits"
	SpanRecognize   = "ocr.recognize"

	MetricParseTime    = "pdf.parse.duration"
	MetricObjectCount  = "pdf.objects.count"
	MetricPageCount    = "pdf.pages.count"
	MetricRegionCount  = "regions.count"
	MetricEditTime     = "edit.duration"
	MetricHistoryDepth = "history.depth"
	MetricQueueDepth   = "gate.queue.depth"
)
