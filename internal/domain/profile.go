package domain

import "time"

// UserProfile is the long-lived preference document of a user.
type UserProfile struct {
	UserID         UserID          `json:"user_id" firestore:"user_id"`
	DisplayName    string          `json:"display_name,omitempty" firestore:"display_name"`
	PreferredStyle ResponseStyle   `json:"preferred_style,omitempty" firestore:"preferred_style"`
	PreferredMode  InteractionMode `json:"preferred_mode,omitempty" firestore:"preferred_mode"`
	Language       string          `json:"language,omitempty" firestore:"language"`
	CreatedAt      time.Time       `json:"created_at" firestore:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" firestore:"updated_at"`
}

// TherapeuticRecord accumulates what has been worked on with a user.
type TherapeuticRecord struct {
	UserID             UserID         `json:"user_id" firestore:"user_id"`
	LastEmotion        Emotion        `json:"last_emotion,omitempty" firestore:"last_emotion"`
	LastIntensity      int            `json:"last_intensity,omitempty" firestore:"last_intensity"`
	EmotionCounts      map[string]int `json:"emotion_counts,omitempty" firestore:"emotion_counts"`
	TechniquesUsed     []string       `json:"techniques_used,omitempty" firestore:"techniques_used"`
	CompletedProtocols []string       `json:"completed_protocols,omitempty" firestore:"completed_protocols"`
	Interactions       int            `json:"interactions" firestore:"interactions"`
	UpdatedAt          time.Time      `json:"updated_at" firestore:"updated_at"`
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
)

// Goal is something the user said they want to achieve.
type Goal struct {
	ID          string     `json:"id" firestore:"id"`
	UserID      UserID     `json:"user_id" firestore:"user_id"`
	Description string     `json:"description" firestore:"description"`
	Status      GoalStatus `json:"status" firestore:"status"`
	CreatedAt   time.Time  `json:"created_at" firestore:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" firestore:"updated_at"`
}

// SentimentRecord is the projection of an analysis kept for later review.
type SentimentRecord struct {
	ID             string         `json:"id"`
	UserID         UserID         `json:"user_id"`
	ConversationID ConversationID `json:"conversation_id,omitempty"`
	Emotion        Emotion        `json:"emotion"`
	Intensity      int            `json:"intensity"`
	Category       Category       `json:"category"`
	Topic          string         `json:"topic,omitempty"`
	Protocol       string         `json:"protocol,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Apply folds one analysed turn into the record.
func (r *TherapeuticRecord) Apply(a EmotionAnalysis, technique, completedProtocol string, now time.Time) {
	r.LastEmotion = a.MainEmotion
	r.LastIntensity = a.Intensity
	if r.EmotionCounts == nil {
		r.EmotionCounts = make(map[string]int)
	}
	r.EmotionCounts[string(a.MainEmotion)]++
	if technique != "" && !contains(r.TechniquesUsed, technique) {
		r.TechniquesUsed = append(r.TechniquesUsed, technique)
	}
	if completedProtocol != "" {
		r.CompletedProtocols = append(r.CompletedProtocols, completedProtocol)
	}
	r.Interactions++
	r.UpdatedAt = now
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
