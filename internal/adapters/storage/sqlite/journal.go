package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// AppendJournalEntry implements domain.JournalStore.
func (s *Store) AppendJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = domain.JournalEntryID(s.newID())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = entry.CreatedAt
	}

	plan := entry.ActionPlan
	if plan == nil {
		plan = []domain.JournalAction{}
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("sqlite: encode action plan: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_entries
		  (id, user_id, session_id, protocol, problem_summary, action_plan_json, reflection, mood_before, mood_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(entry.ID), string(entry.UserID), string(entry.SessionID), entry.Protocol,
		entry.ProblemSummary, string(planJSON), entry.Reflection, entry.MoodBefore, entry.MoodAfter,
		toMillis(entry.CreatedAt), toMillis(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: append journal entry: %w", err)
	}
	return nil
}

// ListJournalEntriesByUser returns the last limit entries of a user in
// chronological order. If limit <= 0, returns all.
func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, protocol, problem_summary, action_plan_json, reflection, mood_before, mood_after, created_at, updated_at
		FROM (
		  SELECT * FROM journal_entries WHERE user_id = ?
		  ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at, id`, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list journal entries: %w", err)
	}
	defer rows.Close()

	out := []*domain.JournalEntry{}
	for rows.Next() {
		var (
			e                    domain.JournalEntry
			id, session, planRaw string
			created, updated     int64
		)
		if err := rows.Scan(&id, &session, &e.Protocol, &e.ProblemSummary, &planRaw,
			&e.Reflection, &e.MoodBefore, &e.MoodAfter, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: scan journal entry: %w", err)
		}
		if err := json.Unmarshal([]byte(planRaw), &e.ActionPlan); err != nil {
			return nil, fmt.Errorf("sqlite: decode action plan: %w", err)
		}
		e.ID = domain.JournalEntryID(id)
		e.UserID = userID
		e.SessionID = domain.SessionID(session)
		e.CreatedAt = fromMillis(created)
		e.UpdatedAt = fromMillis(updated)
		out = append(out, &e)
	}
	return out, rows.Err()
}
