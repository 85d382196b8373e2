package sessionmemory

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

func neg(e domain.Emotion, intensity int) domain.EmotionAnalysis {
	return domain.EmotionAnalysis{MainEmotion: e, Intensity: intensity, Category: domain.CategoryNegative}
}

func pos(e domain.Emotion, intensity int) domain.EmotionAnalysis {
	return domain.EmotionAnalysis{MainEmotion: e, Intensity: intensity, Category: domain.CategoryPositive}
}

func TestTrendsEmptyIsZeroState(t *testing.T) {
	s := New()

	got := s.Trends("nobody")

	want := domain.EmotionalTrends{Trend: domain.TrendStable}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trends mismatch (-want +got):\n%s", diff)
	}
}

func TestAddEvictsOldestPastCapacity(t *testing.T) {
	s := New(WithCapacity(3))
	for i := 1; i <= 5; i++ {
		s.Add("u1", neg(domain.EmotionSadness, i))
	}

	recent := s.Recent("u1", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, 3, recent[0].Intensity)
	assert.Equal(t, 5, recent[2].Intensity)

	last2 := s.Recent("u1", 2)
	require.Len(t, last2, 2)
	assert.Equal(t, 4, last2[0].Intensity)
}

func TestDefaultCapacity(t *testing.T) {
	s := New()
	for i := 0; i < 30; i++ {
		s.Add("u1", neg(domain.EmotionAnxiety, 5))
	}
	assert.Len(t, s.Recent("u1", 0), DefaultCapacity)
}

func TestTrendsStreaksAndStats(t *testing.T) {
	s := New()
	for _, a := range []domain.EmotionAnalysis{
		pos(domain.EmotionJoy, 6),
		neg(domain.EmotionSadness, 5),
		neg(domain.EmotionAnxiety, 6),
		neg(domain.EmotionAnxiety, 7),
	} {
		s.Add("u1", a)
	}

	got := s.Trends("u1")

	want := domain.EmotionalTrends{
		Entries:          4,
		NegativeStreak:   3,
		AnxietyStreak:    2,
		SadnessStreak:    0,
		Volatility:       2.0 / 3.0,
		AverageIntensity: 6,
		DominantEmotion:  domain.EmotionAnxiety,
		Trend:            domain.TrendWorsening,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("trends mismatch (-want +got):\n%s", diff)
	}
}

func TestTrendDirection(t *testing.T) {
	tests := []struct {
		name    string
		entries []domain.EmotionAnalysis
		want    string
	}{
		{
			name:    "rising and ending negative",
			entries: []domain.EmotionAnalysis{neg(domain.EmotionAnxiety, 4), neg(domain.EmotionAnxiety, 6), neg(domain.EmotionAnxiety, 8)},
			want:    domain.TrendWorsening,
		},
		{
			name:    "falling from negative",
			entries: []domain.EmotionAnalysis{neg(domain.EmotionSadness, 8), neg(domain.EmotionSadness, 6), pos(domain.EmotionCalm, 3)},
			want:    domain.TrendImproving,
		},
		{
			name:    "rising but ending positive",
			entries: []domain.EmotionAnalysis{neg(domain.EmotionSadness, 3), pos(domain.EmotionJoy, 5), pos(domain.EmotionJoy, 7)},
			want:    domain.TrendStable,
		},
		{
			name:    "plateau is not monotonic",
			entries: []domain.EmotionAnalysis{neg(domain.EmotionAnger, 6), neg(domain.EmotionAnger, 6), neg(domain.EmotionAnger, 8)},
			want:    domain.TrendStable,
		},
		{
			name:    "too short",
			entries: []domain.EmotionAnalysis{neg(domain.EmotionAnger, 2), neg(domain.EmotionAnger, 9)},
			want:    domain.TrendStable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, a := range tt.entries {
				s.Add("u1", a)
			}
			assert.Equal(t, tt.want, s.Trends("u1").Trend)
		})
	}
}

func TestDominantEmotionTieGoesToMostRecent(t *testing.T) {
	s := New()
	s.Add("u1", neg(domain.EmotionAnger, 5))
	s.Add("u1", neg(domain.EmotionSadness, 5))
	s.Add("u1", neg(domain.EmotionAnger, 5))
	s.Add("u1", neg(domain.EmotionSadness, 5))

	assert.Equal(t, domain.EmotionSadness, s.Trends("u1").DominantEmotion)
}

func TestClearAndEvictIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))

	s.Add("old", neg(domain.EmotionSadness, 5))
	now = now.Add(2 * time.Hour)
	s.Add("fresh", neg(domain.EmotionSadness, 5))
	s.Add("gone", neg(domain.EmotionSadness, 5))
	s.Clear("gone")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1, s.EvictIdle(time.Hour))
	assert.Nil(t, s.Recent("old", 0))
	assert.Len(t, s.Recent("fresh", 0), 1)
}
