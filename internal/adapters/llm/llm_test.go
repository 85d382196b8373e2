package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

func TestMockLLMScriptThenEcho(t *testing.T) {
	boom := domain.NewRateLimitError(errors.New("slow down"))
	m := NewMockLLM(MockStep{Reply: "uno"}, MockStep{Err: boom}, MockStep{})
	req := domain.CompletionRequest{Messages: []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "hola"},
	}}
	ctx := context.Background()

	resp, err := m.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "uno", resp.Content)

	_, err = m.Complete(ctx, req)
	assert.ErrorIs(t, err, boom)

	_, err = m.Complete(ctx, req)
	assert.True(t, domain.IsKind(err, domain.KindEmptyGeneration))

	resp, err = m.Complete(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, `"hola"`)
	assert.Len(t, m.Calls(), 4)
}

func TestMockLLMHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockLLM().Complete(ctx, domain.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestToGenaiContents(t *testing.T) {
	system, contents := toGenaiContents([]domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "a"},
		{Role: domain.RoleUser, Content: "hola"},
		{Role: domain.RoleAssistant, Content: "qué tal"},
		{Role: domain.RoleSystem, Content: "b"},
	})

	assert.Equal(t, "a\n\nb", system)
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "qué tal", contents[1].Parts[0].Text)
}

func TestMapVertexError(t *testing.T) {
	err := mapVertexError(fmt.Errorf("call: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}))
	assert.True(t, domain.IsKind(err, domain.KindRateLimit))

	err = mapVertexError(genai.APIError{Code: 503, Status: "UNAVAILABLE"})
	assert.True(t, domain.IsKind(err, domain.KindServer))

	err = mapVertexError(errors.New("dial tcp: refused"))
	assert.Equal(t, domain.KindUnknown, domain.KindOf(err))
}
