package journal

import (
	"context"
	"fmt"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service holds the logic of reading journal entries
type Service struct {
	store domain.JournalStore
}

// NewService creates a journal service from a JournalStore
func NewService(store domain.JournalStore) *Service {
	return &Service{
		store: store,
	}
}

// GetUserJournal returns the last `limit` journal entries for a user, oldest
// first. limit <= 0 means DefaultLimit and is capped at MaxLimit.
func (s *Service) GetUserJournal(
	ctx context.Context,
	userID domain.UserID,
	limit int,
) ([]*domain.JournalEntry, error) {
	if userID == "" {
		return nil, domain.NewValidationError("MISSING_USER", "user id is required")
	}

	if s.store == nil {
		return []*domain.JournalEntry{}, nil
	}

	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	entries, err := s.store.ListJournalEntriesByUser(ctx, userID, limit)
	if err != nil {
		return nil, domain.NewStorageError(fmt.Sprintf("list journal of %s", userID), err)
	}
	if entries == nil {
		entries = []*domain.JournalEntry{}
	}
	return entries, nil
}
