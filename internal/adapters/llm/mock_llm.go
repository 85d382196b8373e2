package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

// MockStep is one scripted outcome: a reply, or an error when Err is set.
type MockStep struct {
	Reply string
	Err   error
}

// MockLLM is a deterministic completer for local mode and tests. It plays
// its script in order and then falls back to an echo reply.
type MockLLM struct {
	mu     sync.Mutex
	script []MockStep
	calls  []domain.CompletionRequest
}

func NewMockLLM(script ...MockStep) *MockLLM {
	return &MockLLM{script: script}
}

// Complete implements domain.Completer.
func (m *MockLLM) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var step *MockStep
	if len(m.script) > 0 {
		step = &m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if step != nil {
		if step.Err != nil {
			return nil, step.Err
		}
		if step.Reply == "" {
			return nil, domain.NewEmptyGenerationError("stop")
		}
		return m.reply(step.Reply), nil
	}

	// Here we could use minimum rules to give Farum some personality
	last := lastUserMessage(req.Messages)
	return m.reply(fmt.Sprintf("Te escucho. Dijiste %q. Contame un poco más sobre cómo te hace sentir eso.", last)), nil
}

func (m *MockLLM) reply(text string) *domain.CompletionResponse {
	n := len([]rune(text)) / 4
	return &domain.CompletionResponse{
		Content:      text,
		FinishReason: "stop",
		Usage:        domain.TokenUsage{PromptTokens: 10, CompletionTokens: n, TotalTokens: 10 + n},
	}
}

// Calls returns the requests received so far.
func (m *MockLLM) Calls() []domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CompletionRequest(nil), m.calls...)
}

func lastUserMessage(msgs []domain.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
