package observability

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

var spanSeq atomic.Uint64

// StartSpan opens a span around an operation and returns the completion
// callback. Start and end records share a span id so a log pipeline can
// pair them. When instrumentation is off both calls cost one atomic load.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	s := currentSink()
	if s == nil || s.logger == nil || !s.cfg.Enabled {
		return ctx, func(error) {}
	}

	id := spanSeq.Add(1)
	start := time.Now()
	s.logger.LogAttrs(ctx, slog.LevelDebug, "span start",
		slog.Uint64("span", id),
		slog.String("component", component),
		slog.String("operation", operation),
	)

	return ctx, func(err error) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.Uint64("span", id),
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		}
		s.logger.LogAttrs(ctx, level, "span end", attrs...)
	}
}

// RecordMetric emits one best-effort datapoint.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	s := currentSink()
	if s == nil || s.logger == nil || !s.cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "metric", attrs...)
}
