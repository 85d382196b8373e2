package domain

// Message represents a any message in a timeline (user or agent)
type Message struct {
	ID        MessageID
	SessionID SessionID
	Author    Role
	Text      string
	CreatedAt Timestamp

	// Metadata holds additional information about the message
	Tags        []string
	Mode        InteractionMode
	ReplyTo     *MessageID
	ContentType string // e.g., "text", "reflection", "protocol_step"
}

// Session represent a concrete "relationship" between a user and the agent (could last days)
type Session struct {
	ID        SessionID
	UserID    UserID
	CreatedAt Timestamp
	UpdatedAt Timestamp

	// Basic session's config
	PreferredMode InteractionMode
	Title         string
}

// IncomingMessage is the unit of work of the response pipeline.
type IncomingMessage struct {
	Content        string         `json:"content"`
	UserID         UserID         `json:"user_id"`
	ConversationID ConversationID `json:"conversation_id,omitempty"`
}

// ChatMessage is a single turn of history as the pipeline and the LLM see it.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryFromMessages converts a stored timeline into chat turns.
func HistoryFromMessages(msgs []*Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Text == "" {
			continue
		}
		role := RoleUser
		if m.Author == RoleAgent || m.Author == RoleAssistant {
			role = RoleAssistant
		}
		out = append(out, ChatMessage{Role: role, Content: m.Text})
	}
	return out
}

// Contextual is the situational reading of the current turn.
type Contextual struct {
	Intent string          `json:"intent"`
	Phase  string          `json:"phase"`
	Style  ResponseStyle   `json:"style"`
	Trends EmotionalTrends `json:"trends"`
}

// Context is the optional precomputed input of the pipeline. Any nil part is
// filled in by the orchestrator.
type Context struct {
	Emotional   *EmotionAnalysis   `json:"emotional,omitempty"`
	Contextual  *Contextual        `json:"contextual,omitempty"`
	Profile     *UserProfile       `json:"profile,omitempty"`
	Therapeutic *TherapeuticRecord `json:"therapeutic,omitempty"`
	History     []ChatMessage      `json:"history,omitempty"`
	Mode        InteractionMode    `json:"mode,omitempty"`
}

// TherapeuticInfo names the technique attached to a reply.
type TherapeuticInfo struct {
	Technique string `json:"technique"`
	Type      string `json:"type"`
	Category  string `json:"category"`
}

// ProtocolInfo describes the intervention step a reply was shaped by.
type ProtocolInfo struct {
	Name      string `json:"name"`
	Step      int    `json:"step"`
	StepName  string `json:"step_name"`
	Completed bool   `json:"completed,omitempty"`
}

// ResponseContext travels back with every reply, successful or not.
type ResponseContext struct {
	Emotional   *EmotionAnalysis `json:"emotional,omitempty"`
	Contextual  *Contextual      `json:"contextual,omitempty"`
	Therapeutic *TherapeuticInfo `json:"therapeutic,omitempty"`
	Protocol    *ProtocolInfo    `json:"protocol,omitempty"`
	Cached      bool             `json:"cached,omitempty"`
	Fallback    bool             `json:"fallback,omitempty"`

	Error        bool   `json:"error,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	Timestamp Timestamp `json:"timestamp"`
}

// Response is what the pipeline returns: always a content + context pair.
type Response struct {
	Content string          `json:"content"`
	Context ResponseContext `json:"context"`
}
