package chat

import (
	"time"

	"github.com/zhouzirui/z-clinic/backend/internal/model/persona"
)

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseActive     Phase = "ACTIVE"
	PhaseEnded      Phase = "ENDED"
)

// Session captures the mutable state of one simulated conversation.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`

	Phase          Phase     `json:"phase"`
	TurnCount      int       `json:"turnCount"`
	NegativeCount  float64   `json:"negativeCount"`
	LastActivityAt time.Time `json:"lastActivityAt"`

	// ContinuationHandle is empty when the upstream keeps no memory for this session.
	ContinuationHandle string `json:"continuationHandle,omitempty"`

	Persona persona.Context `json:"-"`
	History []Message       `json:"-"`
}

// Reset discards every mutable field and returns the session to NOT_STARTED.
func (s *Session) Reset() {
	s.Phase = PhaseNotStarted
	s.TurnCount = 0
	s.NegativeCount = 0
	s.LastActivityAt = time.Time{}
	s.ContinuationHandle = ""
	s.Persona = persona.Context{}
	s.History = nil
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() Session {
	c := *s
	c.History = append([]Message(nil), s.History...)
	return c
}
