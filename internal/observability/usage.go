// Package observability exports Model Gateway usage accounting. It is a
// simplified, local-logging stand-in for a real tracing SaaS (no
// maintained Go SDK for one ships in this stack); every generation is
// logged as a structured event with stage, provider, model, token counts,
// and latency.
package observability

import (
	"log/slog"
	"sync"
	"time"

	"subvertnews/internal/llm"
)

// GenerationEvent is one completed Model Gateway call.
type GenerationEvent struct {
	Stage         string
	Provider      string
	Model         string
	InputTokens   int
	OutputTokens  int
	CacheCreation int
	CacheRead     int
	LatencyMs     int64
}

// UsageTracker accumulates per-model token totals for the life of the
// process and logs every generation event as it arrives. It is read-mostly
// under a mutex, matching the process-wide cache lifecycle the rest of the
// pipeline uses for the WordBank and LLM clients.
type UsageTracker struct {
	log *slog.Logger

	mu     sync.Mutex
	totals map[string]*modelTotals
}

type modelTotals struct {
	calls         int
	inputTokens   int
	outputTokens  int
	cacheCreation int
	cacheRead     int
}

// NewUsageTracker creates a tracker that logs through log.
func NewUsageTracker(log *slog.Logger) *UsageTracker {
	return &UsageTracker{log: log, totals: make(map[string]*modelTotals)}
}

// Track records one generation event, both logging it immediately and
// folding it into the running per-model totals.
func (u *UsageTracker) Track(evt GenerationEvent) {
	u.log.Info("model gateway generation",
		"stage", evt.Stage,
		"provider", evt.Provider,
		"model", evt.Model,
		"input_tokens", evt.InputTokens,
		"output_tokens", evt.OutputTokens,
		"cache_creation", evt.CacheCreation,
		"cache_read", evt.CacheRead,
		"latency_ms", evt.LatencyMs,
	)

	u.mu.Lock()
	defer u.mu.Unlock()
	t, ok := u.totals[evt.Model]
	if !ok {
		t = &modelTotals{}
		u.totals[evt.Model] = t
	}
	t.calls++
	t.inputTokens += evt.InputTokens
	t.outputTokens += evt.OutputTokens
	t.cacheCreation += evt.CacheCreation
	t.cacheRead += evt.CacheRead
}

// ModelTotals is a snapshot of a single model's accumulated usage.
type ModelTotals struct {
	Calls         int
	InputTokens   int
	OutputTokens  int
	CacheCreation int
	CacheRead     int
}

// Snapshot returns a copy of the current per-model totals, for a
// diagnostics endpoint or a shutdown summary log line.
func (u *UsageTracker) Snapshot() map[string]ModelTotals {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]ModelTotals, len(u.totals))
	for model, t := range u.totals {
		out[model] = ModelTotals{
			Calls:         t.calls,
			InputTokens:   t.inputTokens,
			OutputTokens:  t.outputTokens,
			CacheCreation: t.cacheCreation,
			CacheRead:     t.cacheRead,
		}
	}
	return out
}

// LogSummary writes one log line per tracked model, intended for a
// graceful-shutdown hook.
func (u *UsageTracker) LogSummary() {
	for model, t := range u.Snapshot() {
		u.log.Info("model usage summary",
			"model", model,
			"calls", t.Calls,
			"input_tokens", t.InputTokens,
			"output_tokens", t.OutputTokens,
			"cache_creation", t.CacheCreation,
			"cache_read", t.CacheRead,
		)
	}
}

// Since returns the latency of an operation started at start, in
// milliseconds, for callers building a GenerationEvent.
func Since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// LLMUsageHook adapts UsageTracker into the llm.UsageHook signature the
// Model Gateway calls after every completed Call.
func (u *UsageTracker) LLMUsageHook() llm.UsageHook {
	return func(stage llm.Stage, provider, model string, usage llm.Usage, latency time.Duration) {
		u.Track(GenerationEvent{
			Stage:         string(stage),
			Provider:      provider,
			Model:         model,
			InputTokens:   usage.InputTokens,
			OutputTokens:  usage.OutputTokens,
			CacheCreation: usage.CacheCreation,
			CacheRead:     usage.CacheRead,
			LatencyMs:     latency.Milliseconds(),
		})
	}
}
