package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Recorder emits lightweight spans and metrics through slog and keeps
// running totals per metric series. A nil Recorder is a no-op.
type Recorder struct {
	logger  *slog.Logger
	enabled bool

	mu     sync.Mutex
	series map[string]*Series
}

// Series is the running aggregate of one metric and label set.
type Series struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Count  int64             `json:"count"`
	Sum    float64           `json:"sum"`
	Max    float64           `json:"max"`
}

// New creates a Recorder. When enabled is false spans and datapoints are
// still aggregated but never logged.
func New(logger *slog.Logger, enabled bool) *Recorder {
	return &Recorder{logger: logger, enabled: enabled, series: make(map[string]*Series)}
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.enabled
}

// StartSpan records the lifecycle of one operation. The returned func ends
// the span and records its duration under "<component>.duration_ms".
func (r *Recorder) StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	if r == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	if r.Enabled() && r.logger != nil {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "obs span start",
			slog.String("component", component),
			slog.String("operation", operation),
		)
	}

	return ctx, func(err error) {
		elapsed := time.Since(start)
		r.RecordMetric(ctx, component+".duration_ms", float64(elapsed.Milliseconds()), map[string]string{
			"operation": operation,
		})
		if !r.Enabled() || r.logger == nil {
			return
		}

		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.Any("error", err))
		}
		r.logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}

// RecordMetric adds one datapoint to the series for name and labels.
func (r *Recorder) RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	if r == nil {
		return
	}

	key := seriesKey(name, labels)
	r.mu.Lock()
	s, ok := r.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &Series{Name: name, Labels: copied}
		r.series[key] = s
	}
	s.Count++
	s.Sum += value
	if value > s.Max {
		s.Max = value
	}
	r.mu.Unlock()

	if !r.Enabled() || r.logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "obs metric", attrs...)
}

// Snapshot returns every series sorted by name then labels.
func (r *Recorder) Snapshot() []Series {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Series, 0, len(keys))
	for _, k := range keys {
		s := *r.series[k]
		out = append(out, s)
	}
	r.mu.Unlock()
	return out
}

func seriesKey(name string, labels map[string]string) string {
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
