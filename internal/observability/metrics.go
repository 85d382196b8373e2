package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics are the OTEL instruments recorded by the response pipeline.
// Instruments created from the no-op provider are valid and cost nothing.
type PipelineMetrics struct {
	responses   metric.Int64Counter
	tokens      metric.Int64Counter
	cacheHits   metric.Int64Counter
	fallbacks   metric.Int64Counter
	failures    metric.Int64Counter
	genDuration metric.Float64Histogram
}

// NewPipelineMetrics registers the pipeline instruments on the global meter.
func NewPipelineMetrics() *PipelineMetrics {
	m := Meter()
	pm := &PipelineMetrics{}
	// Instrument creation only fails on invalid names; the no-op fallback keeps recording safe.
	pm.responses, _ = m.Int64Counter("farum.responses", metric.WithDescription("Replies produced by the pipeline"))
	pm.tokens, _ = m.Int64Counter("farum.tokens", metric.WithDescription("Tokens consumed by generation"), metric.WithUnit("{token}"))
	pm.cacheHits, _ = m.Int64Counter("farum.cache.hits", metric.WithDescription("Replies served from the response cache"))
	pm.fallbacks, _ = m.Int64Counter("farum.fallbacks", metric.WithDescription("Replies produced by the local fallback responder"))
	pm.failures, _ = m.Int64Counter("farum.failures", metric.WithDescription("Requests answered with an error message"))
	pm.genDuration, _ = m.Float64Histogram("farum.generation.duration", metric.WithUnit("ms"))
	return pm
}

func (pm *PipelineMetrics) RecordResponse(ctx context.Context, emotion string, cached bool) {
	if pm == nil || pm.responses == nil {
		return
	}
	pm.responses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("emotion", emotion),
		attribute.Bool("cached", cached),
	))
	if cached {
		pm.cacheHits.Add(ctx, 1)
	}
}

func (pm *PipelineMetrics) RecordTokens(ctx context.Context, prompt, completion int) {
	if pm == nil || pm.tokens == nil {
		return
	}
	pm.tokens.Add(ctx, int64(prompt), metric.WithAttributes(attribute.String("kind", "prompt")))
	pm.tokens.Add(ctx, int64(completion), metric.WithAttributes(attribute.String("kind", "completion")))
}

func (pm *PipelineMetrics) RecordGeneration(ctx context.Context, ms float64) {
	if pm == nil || pm.genDuration == nil {
		return
	}
	pm.genDuration.Record(ctx, ms)
}

func (pm *PipelineMetrics) RecordFallback(ctx context.Context) {
	if pm == nil || pm.fallbacks == nil {
		return
	}
	pm.fallbacks.Add(ctx, 1)
}

func (pm *PipelineMetrics) RecordFailure(ctx context.Context, kind string) {
	if pm == nil || pm.failures == nil {
		return
	}
	pm.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
