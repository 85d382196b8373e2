package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

type failingStore struct{}

func (failingStore) AppendJournalEntry(context.Context, *domain.JournalEntry) error { return nil }
func (failingStore) ListJournalEntriesByUser(context.Context, domain.UserID, int) ([]*domain.JournalEntry, error) {
	return nil, errors.New("disk on fire")
}

func TestGetUserJournal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewJournalStore()
	for _, summary := range []string{"uno", "dos", "tres"} {
		require.NoError(t, store.AppendJournalEntry(ctx, &domain.JournalEntry{UserID: "u1", ProblemSummary: summary}))
	}
	svc := NewService(store)

	got, err := svc.GetUserJournal(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dos", got[0].ProblemSummary)
	assert.Equal(t, "tres", got[1].ProblemSummary)

	got, err = svc.GetUserJournal(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetUserJournalErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(nil).GetUserJournal(ctx, "", 5)
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	got, err := NewService(nil).GetUserJournal(ctx, "u1", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NewService(failingStore{}).GetUserJournal(ctx, "u1", 5)
	assert.True(t, domain.IsKind(err, domain.KindStorage))
}
