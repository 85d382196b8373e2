package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-companion/internal/adapters/llm"
	"github.com/PabloGalante/farum-companion/internal/app/agentflow"
	"github.com/PabloGalante/farum-companion/internal/app/protocol"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	orch, err := agentflow.New(agentflow.Deps{Completer: llm.NewMockLLM()}, agentflow.Options{})
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	return New(orch, slog.New(slog.NewTextHandler(io.Discard, nil)), "test")
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestRespondTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleRespond(ctx, callRequest("farum_respond", map[string]any{
		"user_id": "u1",
		"content": "Hoy tuve un buen día en el trabajo",
		"mode":    string(domain.ModeCheckIn),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, parseToolText(t, result))

	var resp domain.Response
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.NotEmpty(t, resp.Content)
	assert.False(t, resp.Context.Error)
	require.NotNil(t, resp.Context.Contextual)
	assert.Equal(t, domain.StyleBrief, resp.Context.Contextual.Style)

	result, err = s.handleRespond(ctx, callRequest("farum_respond", map[string]any{"user_id": "u1", "content": ""}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	assert.True(t, resp.Context.Error)
	assert.Equal(t, agentflow.CodeEmptyMessage, resp.Context.ErrorCode)

	result, err = s.handleRespond(ctx, callRequest("farum_respond", map[string]any{"content": "hola"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestTrendsTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleRespond(ctx, callRequest("farum_respond", map[string]any{"user_id": "u1", "content": "Estoy un poco cansado"}))
	require.NoError(t, err)

	result, err := s.handleTrends(ctx, callRequest("farum_trends", map[string]any{"user_id": "u1"}))
	require.NoError(t, err)
	var trends domain.EmotionalTrends
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &trends))
	assert.Equal(t, 1, trends.Entries)

	result, err = s.handleTrends(ctx, callRequest("farum_trends", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestProtocolsTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleProtocols(ctx, callRequest("farum_protocols", nil))
	require.NoError(t, err)
	var all []protocol.Protocol
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &all))
	assert.Len(t, all, len(protocol.DefaultProtocols()))

	result, err = s.handleProtocols(ctx, callRequest("farum_protocols", map[string]any{"name": protocol.Panic}))
	require.NoError(t, err)
	var one protocol.Protocol
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &one))
	assert.Equal(t, protocol.Panic, one.Name)

	result, err = s.handleProtocols(ctx, callRequest("farum_protocols", map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
