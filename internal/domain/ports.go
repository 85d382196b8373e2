package domain

import "context"

// CompletionRequest is the generation request sent to the text backend.
type CompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
}

// TokenUsage reports the tokens consumed by one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens,omitempty"`
}

// CompletionResponse is the first choice of a completion.
type CompletionResponse struct {
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
}

// Completer defines how the core application interacts with an LLM service.
// Implementations must map transport failures to *Error kinds
// (authentication, rate limit, server, empty generation).
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProfileStore persists user profiles, therapeutic records and goals.
// Get methods return ErrNotFound when the document does not exist.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID UserID) (*UserProfile, error)
	UpsertProfile(ctx context.Context, profile *UserProfile) (*UserProfile, error)
	GetTherapeuticRecord(ctx context.Context, userID UserID) (*TherapeuticRecord, error)
	UpsertTherapeuticRecord(ctx context.Context, record *TherapeuticRecord) (*TherapeuticRecord, error)
	UpsertGoal(ctx context.Context, goal *Goal) (*Goal, error)
	ListGoals(ctx context.Context, userID UserID) ([]*Goal, error)
}

// SentimentLog receives the best-effort per-message sentiment trail.
type SentimentLog interface {
	RecordSentiment(ctx context.Context, rec SentimentRecord) error
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	ListSessionsByUser(ctx context.Context, userID UserID, limit int) ([]*Session, error)
}

// MessageStore defines message's persistence
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessagesBySession(ctx context.Context, sessionID SessionID, limit int) ([]*Message, error)
}
