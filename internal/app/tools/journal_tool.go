package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// JournalToolName is the name the journal tool registers under.
const JournalToolName = "journal_store"

// JournalTool uses a domain.JournalStore to save reflections
// and long-term action plans.
type JournalTool struct {
	store domain.JournalStore
	now   func() time.Time
}

// NewJournalTool creates a new JournalTool.
// store can be any of the storage backends.
func NewJournalTool(store domain.JournalStore) *JournalTool {
	return &JournalTool{
		store: store,
		now:   time.Now,
	}
}

func (t *JournalTool) Name() string {
	return JournalToolName
}

// Call expects an input with this shape:
//
//	{
//	  "protocol": "grounding_5_4_3_2_1",
//	  "problem_summary": "texto...",
//	  "reflection": "texto...",
//	  "mood_before": "ansioso",
//	  "mood_after": "más tranquilo",
//	  "actions": [
//	    {
//	      "description": "Salir a caminar 10 minutos",
//	      "status": "pending",
//	      "notes": "Hacerlo hoy después de cenar"
//	    }
//	  ]
//	}
//
// UserID comes in ToolContext and is required. The conversation id is
// optional: entries written by the response pipeline are not tied to a
// stored session.
func (t *JournalTool) Call(
	ctx context.Context,
	tctx ToolContext,
	input map[string]any,
) (map[string]any, error) {
	if tctx.UserID == "" {
		return nil, fmt.Errorf("%s: missing UserID in ToolContext", JournalToolName)
	}

	now := t.now().UTC()

	entry := &domain.JournalEntry{
		ID:             domain.JournalEntryID(uuid.NewString()),
		SessionID:      domain.SessionID(tctx.ConversationID),
		UserID:         tctx.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Protocol:       getString(input, "protocol"),
		ProblemSummary: getString(input, "problem_summary"),
		Reflection:     getString(input, "reflection"),
		MoodBefore:     getString(input, "mood_before"),
		MoodAfter:      getString(input, "mood_after"),
		ActionPlan:     parseActions(input["actions"], now),
	}

	if err := t.store.AppendJournalEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("%s: append failed: %w", JournalToolName, err)
	}

	return map[string]any{
		"status":        "ok",
		"entry_id":      string(entry.ID),
		"session_id":    string(entry.SessionID),
		"user_id":       string(entry.UserID),
		"created_at":    entry.CreatedAt,
		"actions_count": len(entry.ActionPlan),
	}, nil
}

// --- internal helpers --- //

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// parseActions accepts both decoded JSON ([]any of objects) and the typed
// form used by in-process callers.
func parseActions(raw any, now time.Time) []domain.JournalAction {
	var list []map[string]any
	switch v := raw.(type) {
	case []map[string]any:
		list = v
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				list = append(list, obj)
			}
		}
	default:
		return nil
	}

	var actions []domain.JournalAction
	for _, obj := range list {
		desc := getString(obj, "description")
		if desc == "" {
			continue
		}

		status := domain.ActionStatus(getString(obj, "status"))
		if status != domain.ActionStatusDone {
			status = domain.ActionStatusPending
		}

		actions = append(actions, domain.JournalAction{
			ID:          uuid.NewString(),
			Description: desc,
			Status:      status,
			Notes:       getString(obj, "notes"),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	return actions
}
