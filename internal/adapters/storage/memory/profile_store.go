package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// ProfileStore implements domain.ProfileStore and domain.SentimentLog in
// memory.
type ProfileStore struct {
	mu        sync.RWMutex
	profiles  map[domain.UserID]*domain.UserProfile
	records   map[domain.UserID]*domain.TherapeuticRecord
	goals     map[domain.UserID]map[string]*domain.Goal
	sentiment map[domain.UserID][]domain.SentimentRecord
	now       func() time.Time
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles:  make(map[domain.UserID]*domain.UserProfile),
		records:   make(map[domain.UserID]*domain.TherapeuticRecord),
		goals:     make(map[domain.UserID]map[string]*domain.Goal),
		sentiment: make(map[domain.UserID][]domain.SentimentRecord),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ProfileStore) GetProfile(_ context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *ProfileStore) UpsertProfile(_ context.Context, profile *domain.UserProfile) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	now := s.now()
	if prev, ok := s.profiles[profile.UserID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.profiles[profile.UserID] = &cp

	out := cp
	return &out, nil
}

func (s *ProfileStore) GetTherapeuticRecord(_ context.Context, userID domain.UserID) (*domain.TherapeuticRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRecord(r), nil
}

func (s *ProfileStore) UpsertTherapeuticRecord(_ context.Context, record *domain.TherapeuticRecord) (*domain.TherapeuticRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyRecord(record)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	s.records[record.UserID] = cp
	return copyRecord(cp), nil
}

func copyRecord(r *domain.TherapeuticRecord) *domain.TherapeuticRecord {
	cp := *r
	if r.EmotionCounts != nil {
		cp.EmotionCounts = make(map[string]int, len(r.EmotionCounts))
		for k, v := range r.EmotionCounts {
			cp.EmotionCounts[k] = v
		}
	}
	cp.TechniquesUsed = append([]string(nil), r.TechniquesUsed...)
	cp.CompletedProtocols = append([]string(nil), r.CompletedProtocols...)
	return &cp
}

// UpsertGoal stores goal, assigning an ID to new goals.
func (s *ProfileStore) UpsertGoal(_ context.Context, goal *domain.Goal) (*domain.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *goal
	now := s.now()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Status == "" {
		cp.Status = domain.GoalActive
	}
	userGoals, ok := s.goals[cp.UserID]
	if !ok {
		userGoals = make(map[string]*domain.Goal)
		s.goals[cp.UserID] = userGoals
	}
	if prev, ok := userGoals[cp.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	userGoals[cp.ID] = &cp

	out := cp
	return &out, nil
}

// ListGoals returns the user's goals, oldest first.
func (s *ProfileStore) ListGoals(_ context.Context, userID domain.UserID) ([]*domain.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Goal, 0, len(s.goals[userID]))
	for _, g := range s.goals[userID] {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RecordSentiment implements domain.SentimentLog.
func (s *ProfileStore) RecordSentiment(_ context.Context, rec domain.SentimentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.sentiment[rec.UserID] = append(s.sentiment[rec.UserID], rec)
	return nil
}

// Sentiment returns the sentiment trail of a user, oldest first.
func (s *ProfileStore) Sentiment(userID domain.UserID) []domain.SentimentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SentimentRecord(nil), s.sentiment[userID]...)
}
