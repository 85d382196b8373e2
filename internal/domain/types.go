package domain

import "time"

type SessionID string
type UserID string
type MessageID string
type ConversationID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAgent     Role = "agent"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type InteractionMode string

const (
	ModeCheckIn    InteractionMode = "check_in"    // Short conversation, Emotional Status
	ModeDeepDive   InteractionMode = "deep_dive"   // Deeper Exploration
	ModeActionPlan InteractionMode = "action_plan" // Goal-Oriented
)

// ResponseStyle controls how long and layered a reply should be.
type ResponseStyle string

const (
	StyleBrief   ResponseStyle = "brief"
	StyleDeep    ResponseStyle = "deep"
	StyleDefault ResponseStyle = "default"
)

// StyleForMode maps the session interaction mode to a response style.
func StyleForMode(mode InteractionMode) ResponseStyle {
	switch mode {
	case ModeCheckIn:
		return StyleBrief
	case ModeDeepDive:
		return StyleDeep
	default:
		return StyleDefault
	}
}

type Timestamp = time.Time
