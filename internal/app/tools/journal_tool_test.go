package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/adapters/storage/memory"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

func TestJournalToolCall(t *testing.T) {
	ctx := context.Background()
	store := memory.NewJournalStore()
	tool := NewJournalTool(store)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tool.now = func() time.Time { return fixed }

	out, err := tool.Call(ctx, ToolContext{UserID: "u1"}, map[string]any{
		"protocol":        "grounding",
		"problem_summary": "ansiedad antes de rendir",
		"mood_before":     "ansioso",
		"actions": []any{
			map[string]any{"description": "Respirar 4-7-8", "status": "done"},
			map[string]any{"description": ""},
			map[string]any{"description": "Caminar", "status": "whatever"},
			"not an object",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 2, out["actions_count"])

	entries, err := store.ListJournalEntriesByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, domain.JournalEntryID(out["entry_id"].(string)), e.ID)
	assert.Equal(t, "grounding", e.Protocol)
	assert.Equal(t, fixed, e.CreatedAt)
	assert.Empty(t, e.SessionID)
	require.Len(t, e.ActionPlan, 2)
	assert.Equal(t, domain.ActionStatusDone, e.ActionPlan[0].Status)
	assert.Equal(t, domain.ActionStatusPending, e.ActionPlan[1].Status)
	assert.NotEqual(t, e.ActionPlan[0].ID, e.ActionPlan[1].ID)
}

func TestJournalToolTypedActions(t *testing.T) {
	actions := parseActions([]map[string]any{{"description": "Escribir tres cosas buenas"}}, time.Now())
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionStatusPending, actions[0].Status)
	assert.Nil(t, parseActions("nope", time.Now()))
}

func TestJournalToolRequiresUser(t *testing.T) {
	_, err := NewJournalTool(memory.NewJournalStore()).Call(context.Background(), ToolContext{ConversationID: "s1"}, nil)
	assert.ErrorContains(t, err, "missing UserID")
}

func TestFuncAdapter(t *testing.T) {
	var got ToolContext
	tool := Func{ToolName: "echo", Fn: func(_ context.Context, tctx ToolContext, input map[string]any) (map[string]any, error) {
		got = tctx
		return input, nil
	}}

	out, err := tool.Call(context.Background(), ToolContext{UserID: "u1", ConversationID: "c1"}, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "echo", tool.Name())
	assert.Equal(t, "v", out["k"])
	assert.Equal(t, domain.UserID("u1"), got.UserID)
}
