package observability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Span identifies one timed operation. Spans started from a context that
// already carries a span record it as their parent, so a pipeline run can be
// matched to the HTTP request that triggered it.
type Span struct {
	ID        string
	ParentID  string
	Component string
	Operation string
	Start     time.Time
}

type spanKey struct{}

// SpanFromContext returns the innermost span carried by ctx.
func SpanFromContext(ctx context.Context) (Span, bool) {
	span, ok := ctx.Value(spanKey{}).(Span)
	return span, ok
}

// StartSpan opens a span under whatever span ctx carries. With spans disabled
// the context is returned untouched and the end func is a no-op.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return ctx, func(error) {}
	}

	span := Span{
		ID:        uuid.NewString()[:8],
		Component: component,
		Operation: operation,
		Start:     time.Now(),
	}
	if parent, ok := SpanFromContext(ctx); ok {
		span.ParentID = parent.ID
	}
	ctx = context.WithValue(ctx, spanKey{}, span)

	logger.LogAttrs(ctx, slog.LevelDebug, "[OBSERVABILITY] span start", span.attrs()...)

	return ctx, func(err error) {
		level := slog.LevelDebug
		attrs := append(span.attrs(), slog.Duration("duration", time.Since(span.Start)))
		if err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("error", err))
		}
		logger.LogAttrs(ctx, level, "[OBSERVABILITY] span end", attrs...)
	}
}

func (s Span) attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("span", s.ID),
		slog.String("component", s.Component),
		slog.String("operation", s.Operation),
	}
	if s.ParentID != "" {
		attrs = append(attrs, slog.String("parent", s.ParentID))
	}
	return attrs
}

// RecordMetric writes a datapoint to the debug log, tagged with the current
// span. Prometheus collectors in metrics.go are the durable record; this is
// for reading a single request's timings next to its log lines.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	if span, ok := SpanFromContext(ctx); ok {
		attrs = append(attrs, slog.String("span", span.ID))
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, labels[k]))
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "[OBSERVABILITY] metric", attrs...)
}
