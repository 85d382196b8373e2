// Package sessionmemory keeps a short, per-user window of recent emotion
// analyses and derives streaks and trends from it.
package sessionmemory

import (
	"sync"
	"time"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// DefaultCapacity is the number of analyses kept per user.
const DefaultCapacity = 20

const trendWindow = 3

type buffer struct {
	entries  []domain.TimedAnalysis
	lastSeen time.Time
}

// Store is the process-local session memory. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	users    map[domain.UserID]*buffer
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		users:    make(map[domain.UserID]*buffer),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add appends an analysis for userID, dropping the oldest entry once the
// buffer is full.
func (s *Store) Add(userID domain.UserID, a domain.EmotionAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.users[userID]
	if !ok {
		b = &buffer{}
		s.users[userID] = b
	}
	b.entries = append(b.entries, domain.TimedAnalysis{Analysis: a, At: now})
	if over := len(b.entries) - s.capacity; over > 0 {
		b.entries = append([]domain.TimedAnalysis(nil), b.entries[over:]...)
	}
	b.lastSeen = now
}

// Recent returns up to n of the latest analyses, oldest first. n <= 0 returns
// the whole buffer.
func (s *Store) Recent(userID domain.UserID, n int) []domain.EmotionAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.users[userID]
	if !ok {
		return nil
	}
	entries := b.entries
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]domain.EmotionAnalysis, len(entries))
	for i, e := range entries {
		out[i] = e.Analysis
	}
	return out
}

// Trends summarises the buffer of userID. An unknown or empty buffer yields
// the zero state: no streaks, no dominant emotion, stable trend.
func (s *Store) Trends(userID domain.UserID) domain.EmotionalTrends {
	s.mu.Lock()
	var entries []domain.TimedAnalysis
	if b, ok := s.users[userID]; ok {
		entries = append(entries, b.entries...)
	}
	s.mu.Unlock()

	return Compute(entries)
}

// Clear forgets everything about userID.
func (s *Store) Clear(userID domain.UserID) {
	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
}

// EvictIdle drops buffers not written to within maxIdle and returns how many
// were removed.
func (s *Store) EvictIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	n := 0
	for id, b := range s.users {
		if b.lastSeen.Before(cutoff) {
			delete(s.users, id)
			n++
		}
	}
	return n
}

// Len is the number of users currently tracked.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Compute derives trends from entries ordered oldest first.
func Compute(entries []domain.TimedAnalysis) domain.EmotionalTrends {
	out := domain.EmotionalTrends{Trend: domain.TrendStable}
	if len(entries) == 0 {
		return out
	}
	out.Entries = len(entries)

	out.NegativeStreak = trailing(entries, func(a domain.EmotionAnalysis) bool {
		return a.Category == domain.CategoryNegative
	})
	out.AnxietyStreak = trailing(entries, func(a domain.EmotionAnalysis) bool {
		return a.MainEmotion == domain.EmotionAnxiety
	})
	out.SadnessStreak = trailing(entries, func(a domain.EmotionAnalysis) bool {
		return a.MainEmotion == domain.EmotionSadness
	})

	if len(entries) > 1 {
		changes := 0
		for i := 1; i < len(entries); i++ {
			if entries[i].Analysis.MainEmotion != entries[i-1].Analysis.MainEmotion {
				changes++
			}
		}
		out.Volatility = float64(changes) / float64(len(entries)-1)
	}

	sum := 0
	counts := make(map[domain.Emotion]int)
	lastIdx := make(map[domain.Emotion]int)
	for i, e := range entries {
		sum += e.Analysis.Intensity
		counts[e.Analysis.MainEmotion]++
		lastIdx[e.Analysis.MainEmotion] = i
	}
	out.AverageIntensity = float64(sum) / float64(len(entries))

	// Ties go to the emotion seen most recently.
	best := -1
	for emo, c := range counts {
		if c > best || (c == best && lastIdx[emo] > lastIdx[out.DominantEmotion]) {
			best = c
			out.DominantEmotion = emo
		}
	}

	out.Trend = trend(entries)
	return out
}

func trailing(entries []domain.TimedAnalysis, match func(domain.EmotionAnalysis) bool) int {
	n := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if !match(entries[i].Analysis) {
			break
		}
		n++
	}
	return n
}

func trend(entries []domain.TimedAnalysis) string {
	if len(entries) < trendWindow {
		return domain.TrendStable
	}
	w := entries[len(entries)-trendWindow:]

	increasing, decreasing := true, true
	for i := 1; i < len(w); i++ {
		prev, cur := w[i-1].Analysis.Intensity, w[i].Analysis.Intensity
		if cur <= prev {
			increasing = false
		}
		if cur >= prev {
			decreasing = false
		}
	}

	switch {
	case increasing && w[len(w)-1].Analysis.Category == domain.CategoryNegative:
		return domain.TrendWorsening
	case decreasing && w[0].Analysis.Category == domain.CategoryNegative:
		return domain.TrendImproving
	default:
		return domain.TrendStable
	}
}
