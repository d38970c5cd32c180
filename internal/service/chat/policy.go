package chat

import (
	"time"

	"github.com/zhouzirui/z-clinic/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/z-clinic/backend/internal/config"
)

// strikeLimit is the negative counter value that ends a session.
const strikeLimit = 2.0

// Fixed notices returned instead of generated text.
const (
	NoticeBoundary = "I need you to understand that using my correct name and treating me with respect isn't optional - " +
		"it's essential for this therapy to work. I want to continue, but only if you can acknowledge and respect my identity."
	NoticeTermination = "I've made it clear that I need to be treated with respect. Since that's not happening, " +
		"I'm ending this session. I hope you'll reflect on how your words impact others. Goodbye."
	NoticeEnded       = "Session has ended. Please restart to begin a new session."
	NoticeNotStarted  = "Session has not started yet. Please start the session first."
	NoticeTooLong     = "Your message is too long. Please shorten it and try again."
	NoticeEmpty       = "Please enter a message."
	NoticeTimeElapsed = "We've reached the end of our time for today. Thank you for the session. Please restart to begin a new session."
)

// Policy holds the limits the state machine enforces.
type Policy struct {
	NegativeThreshold float64
	MaxMessageLength  int
	MaxTurns          int
	MaxInputTokens    int
	// HistoryLimit caps exchanges resent in full-history mode; 0 keeps all.
	HistoryLimit int
	// InactivityTimeout ends idle ACTIVE sessions; 0 disables expiry.
	InactivityTimeout time.Duration
	// WarningIncrement marks that the boundary warning was issued. It never
	// pushes the counter to strikeLimit on its own.
	WarningIncrement float64
	// PersistTimeout bounds each transcript append.
	PersistTimeout time.Duration
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		NegativeThreshold: sentiment.DefaultNegativeThreshold,
		MaxMessageLength:  500,
		MaxTurns:          20,
		MaxInputTokens:    1000,
		InactivityTimeout: 30 * time.Minute,
		WarningIncrement:  0.1,
		PersistTimeout:    5 * time.Second,
	}
}

// PolicyFromConfig overlays configured values on DefaultPolicy.
func PolicyFromConfig(cfg config.SessionConfig) Policy {
	p := DefaultPolicy()
	p.NegativeThreshold = cfg.NegativeThreshold
	if cfg.MaxMessageLength > 0 {
		p.MaxMessageLength = cfg.MaxMessageLength
	}
	if cfg.MaxTurns > 0 {
		p.MaxTurns = cfg.MaxTurns
	}
	if cfg.MaxInputTokens > 0 {
		p.MaxInputTokens = cfg.MaxInputTokens
	}
	p.HistoryLimit = cfg.HistoryLimit
	p.InactivityTimeout = cfg.InactivityTimeout
	return p
}

func (p Policy) turnsRemaining(turns int) int {
	if remaining := p.MaxTurns - turns; remaining > 0 {
		return remaining
	}
	return 0
}
