// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
)

// Backend is a decorator that wraps a providers.Backend to record metrics.
// Every method except PromptModel passes through to the wrapped backend.
type Backend struct {
	providers.Backend
	aggregator *Aggregator
}

// cachingBackend keeps the prompt cache capability visible through the
// decorator.
type cachingBackend struct {
	*Backend
	cache providers.CachingBackend
}

// NewBackend creates a metrics-enabled backend that wraps an existing one.
func NewBackend(wrapped providers.Backend, aggregator *Aggregator) providers.Backend {
	logging.LogEvent("[METRICS] Wrapping backend %s with metrics", wrapped.Name())
	b := &Backend{Backend: wrapped, aggregator: aggregator}
	if c, ok := wrapped.(providers.CachingBackend); ok {
		return &cachingBackend{Backend: b, cache: c}
	}
	return b
}

// PromptModel times the wrapped call and records the outcome.
func (b *Backend) PromptModel(ctx context.Context, req providers.PromptRequest) providers.PromptResponse {
	start := time.Now()
	resp := b.Backend.PromptModel(ctx, req)
	if b.aggregator == nil {
		return resp
	}

	sample := Sample{
		Model:       b.Name(),
		Backend:     string(b.Kind()),
		Latency:     time.Since(start),
		PromptChars: len(providers.JoinPrompts(req.System, req.User)),
		Failed:      resp.Err != nil,
	}
	if resp.Completion != nil {
		sample.CompletionChars = len(*resp.Completion)
	}
	b.aggregator.Record(sample)
	return resp
}

// Unwrap returns the decorated backend.
func (b *Backend) Unwrap() providers.Backend {
	return b.Backend
}

func (c *cachingBackend) UsesPromptCache() bool {
	return c.cache.UsesPromptCache()
}

func (c *cachingBackend) PrimeCache(ctx context.Context, systemPrompt string) error {
	return c.cache.PrimeCache(ctx, systemPrompt)
}
