package domain

import (
	"context"
	"time"
)

// JournalEntryID identifies a journal entry
type JournalEntryID string

// ActionStatus represents the status of an action in the plan
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusDone    ActionStatus = "done"
)

// JournalAction represents a concrete step within an action plan
type JournalAction struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      ActionStatus `json:"status"`
	Notes       string       `json:"notes,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// JournalEntry is the long-term trace of a completed piece of work,
// typically written when an intervention protocol finishes.
type JournalEntry struct {
	ID        JournalEntryID `json:"id"`
	SessionID SessionID      `json:"session_id,omitempty"`
	UserID    UserID         `json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Protocol that produced the entry, empty for free-form reflections
	Protocol string `json:"protocol,omitempty"`

	ProblemSummary string          `json:"problem_summary"`
	ActionPlan     []JournalAction `json:"action_plan"`
	Reflection     string          `json:"reflection"`

	// Emotional state before and after the work
	MoodBefore string `json:"mood_before"`
	MoodAfter  string `json:"mood_after"`
}

// JournalStore defines the minimum operations to persist the journal
type JournalStore interface {
	AppendJournalEntry(ctx context.Context, entry *JournalEntry) error
	ListJournalEntriesByUser(ctx context.Context, userID UserID, limit int) ([]*JournalEntry, error)
}
