package chat

import "time"

// Role tags a message in the prompt history.
type Role int

const (
	RolePersona Role = iota + 1
	RoleUser
	RoleAssistant
	// RoleDirective marks a transient reminder that is never stored.
	RoleDirective
)

func (r Role) String() string {
	switch r {
	case RolePersona:
		return "persona"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleDirective:
		return "directive"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r >= RolePersona && r <= RoleDirective
}

// Message is one element of a conversation history or outbound payload.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// TurnRecord persists a single turn for audit and export. Records are append-only.
type TurnRecord struct {
	ID                string    `json:"id"`
	SessionID         string    `json:"sessionId"`
	Timestamp         time.Time `json:"timestamp"`
	UserMessage       string    `json:"userMessage"`
	AssistantResponse string    `json:"assistantResponse"`
	Sentiment         float64   `json:"sentiment"`
	NegativeCount     float64   `json:"negativeCount"`
	TurnCount         int       `json:"turnCount"`
}
