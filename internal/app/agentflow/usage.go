package agentflow

import (
	"sync/atomic"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// TokenUsageStats are process-wide pipeline counters, kept for observability.
type TokenUsageStats struct {
	requests         atomic.Int64
	generations      atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	totalTokens      atomic.Int64
	reasoningTokens  atomic.Int64
	cacheHits        atomic.Int64
	fallbacks        atomic.Int64
	errors           atomic.Int64
}

// UsageSnapshot is a copy of TokenUsageStats at one point in time.
type UsageSnapshot struct {
	Requests         int64 `json:"requests"`
	Generations      int64 `json:"generations"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	ReasoningTokens  int64 `json:"reasoning_tokens"`
	CacheHits        int64 `json:"cache_hits"`
	Fallbacks        int64 `json:"fallbacks"`
	Errors           int64 `json:"errors"`
}

func (s *TokenUsageStats) record(u domain.TokenUsage) {
	s.generations.Add(1)
	s.promptTokens.Add(int64(u.PromptTokens))
	s.completionTokens.Add(int64(u.CompletionTokens))
	s.totalTokens.Add(int64(u.TotalTokens))
	s.reasoningTokens.Add(int64(u.ReasoningTokens))
}

func (s *TokenUsageStats) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		Requests:         s.requests.Load(),
		Generations:      s.generations.Load(),
		PromptTokens:     s.promptTokens.Load(),
		CompletionTokens: s.completionTokens.Load(),
		TotalTokens:      s.totalTokens.Load(),
		ReasoningTokens:  s.reasoningTokens.Load(),
		CacheHits:        s.cacheHits.Load(),
		Fallbacks:        s.fallbacks.Load(),
		Errors:           s.errors.Load(),
	}
}
