package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-companion/internal/domain"
)

type VertexClient struct {
	client    *genai.Client
	modelName string
}

// NewVertexClient creates a completer based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, projectID, location, modelName string) (*VertexClient, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("vertex: project and location must be set")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex: creating client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// Complete implements domain.Completer using Vertex AI. System messages are
// folded into the system instruction; assistant turns become model turns.
func (v *VertexClient) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	system, contents := toGenaiContents(req.Messages)

	temp := float32(0.7)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
		TopP:        &topP,
	}
	if system != "" {
		// According to official examples, the role here is usually RoleUser, not "system"
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.MaxCompletionTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxCompletionTokens)
	}

	model := req.Model
	if model == "" {
		model = v.modelName
	}

	res, err := v.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, mapVertexError(err)
	}

	out := &domain.CompletionResponse{Content: res.Text()}
	if len(res.Candidates) > 0 && res.Candidates[0] != nil {
		out.FinishReason = strings.ToLower(string(res.Candidates[0].FinishReason))
	}
	if u := res.UsageMetadata; u != nil {
		out.Usage = domain.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
			ReasoningTokens:  int(u.ThoughtsTokenCount),
		}
	}

	if strings.TrimSpace(out.Content) == "" {
		return nil, domain.NewEmptyGenerationError(out.FinishReason)
	}
	return out, nil
}

func toGenaiContents(msgs []domain.ChatMessage) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant, domain.RoleAgent:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func mapVertexError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return domain.ErrorFromStatus(apiErr.Code, fmt.Errorf("vertex: %s: %w", apiErr.Status, err))
	}
	return fmt.Errorf("vertex generate content: %w", err)
}
