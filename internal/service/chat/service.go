package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-clinic/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/z-clinic/backend/internal/analysis/tokens"
	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/model/persona"
	"github.com/zhouzirui/z-clinic/backend/internal/observability"
	"github.com/zhouzirui/z-clinic/backend/internal/service/ai"
	"github.com/zhouzirui/z-clinic/backend/internal/store/transcript"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
	// ErrInvalidState is returned when an operation is not allowed in the current phase.
	ErrInvalidState = errors.New("invalid session state")
	// ErrPersonaNotFound aliases the resolver error so callers need one import.
	ErrPersonaNotFound = ai.ErrPersonaNotFound
)

// Outcome classifies how a turn was handled.
type Outcome string

const (
	OutcomeStarted    Outcome = "started"
	OutcomeReply      Outcome = "reply"
	OutcomeRejected   Outcome = "rejected"
	OutcomeTerminated Outcome = "terminated"
	OutcomeInactive   Outcome = "inactive"
)

// TurnResult is what every session operation hands back to its caller.
type TurnResult struct {
	Response       string  `json:"response"`
	Handle         string  `json:"responseId,omitempty"`
	Ended          bool    `json:"ended"`
	TurnsRemaining int     `json:"turnsRemaining"`
	Outcome        Outcome `json:"outcome"`
}

// Status is the read-only view of a session.
type Status struct {
	SessionID      string     `json:"sessionId"`
	Phase          chat.Phase `json:"phase"`
	Ended          bool       `json:"ended"`
	TurnCount      int        `json:"turnCount"`
	TurnsRemaining int        `json:"turnsRemaining"`
	NegativeCount  float64    `json:"negativeCount"`
}

// PersonaResolver resolves the persona context a session carries from start to end.
type PersonaResolver interface {
	Resolve(ctx context.Context, personaID string) (persona.Context, error)
}

// ResolverFunc adapts a plain function to PersonaResolver.
type ResolverFunc func(ctx context.Context, personaID string) (persona.Context, error)

// Resolve implements PersonaResolver.
func (f ResolverFunc) Resolve(ctx context.Context, personaID string) (persona.Context, error) {
	return f(ctx, personaID)
}

// Dependencies wires the collaborators of the state machine. Only Resolver is
// required; everything else has a working default.
type Dependencies struct {
	Resolver         PersonaResolver
	Generator        ai.Generator
	Scorer           sentiment.Scorer
	Tokens           tokens.Counter
	Transcripts      transcript.Store
	Metrics          *observability.Metrics
	DefaultPersonaID string
	Now              func() time.Time
}

// entry guards one session. Its mutex is held across the whole turn,
// including the upstream call.
type entry struct {
	mu      sync.Mutex
	session chat.Session
	// removed is set under mu when the janitor evicts the entry.
	removed bool
}

// Service owns the session registry and drives every turn.
type Service struct {
	policy Policy

	resolver    PersonaResolver
	generator   ai.Generator
	scorer      sentiment.Scorer
	tokens      tokens.Counter
	transcripts transcript.Store
	metrics     *observability.Metrics
	personaID   string
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService builds the session service.
func NewService(policy Policy, deps Dependencies) *Service {
	s := &Service{
		policy:      policy,
		resolver:    deps.Resolver,
		generator:   deps.Generator,
		scorer:      deps.Scorer,
		tokens:      deps.Tokens,
		transcripts: deps.Transcripts,
		metrics:     deps.Metrics,
		personaID:   deps.DefaultPersonaID,
		now:         deps.Now,
		sessions:    make(map[string]*entry),
	}

	if s.resolver == nil {
		s.resolver = ResolverFunc(func(_ context.Context, id string) (persona.Context, error) {
			return persona.Context{PersonaID: id}, nil
		})
	}
	if s.generator == nil {
		s.generator = ai.Unavailable(deps.Metrics)
	}
	if s.scorer == nil {
		s.scorer = sentiment.Lexicon
	}
	if s.tokens == nil {
		s.tokens = tokens.NewEstimator(tokens.DefaultEncoding)
	}
	if s.transcripts == nil {
		s.transcripts = transcript.NewMemoryStore()
	}
	if s.personaID == "" {
		s.personaID = persona.DefaultID
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Policy returns the limits in force.
func (s *Service) Policy() Policy {
	return s.policy
}

// CreateSession provisions a NOT_STARTED session bound to a persona.
func (s *Service) CreateSession(ctx context.Context, personaID string) (chat.Session, error) {
	if personaID == "" {
		personaID = s.personaID
	}
	if _, err := s.resolver.Resolve(ctx, personaID); err != nil {
		return chat.Session{}, err
	}

	e := s.newEntry(uuid.NewString(), personaID)

	s.mu.Lock()
	s.sessions[e.session.ID] = e
	s.mu.Unlock()

	return e.session.Clone(), nil
}

// Start moves a NOT_STARTED session to ACTIVE. The session is created if this
// is its first interaction. It produces no generated text.
func (s *Service) Start(ctx context.Context, sessionID string) (TurnResult, error) {
	e, err := s.acquire(sessionID, true)
	if err != nil {
		return TurnResult{}, err
	}
	defer e.mu.Unlock()
	sess := &e.session

	if sess.Phase != chat.PhaseNotStarted {
		return TurnResult{}, fmt.Errorf("%w: cannot start a session in phase %s, restart it first", ErrInvalidState, sess.Phase)
	}

	pc, err := s.resolver.Resolve(ctx, sess.PersonaID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("resolve persona %s: %w", sess.PersonaID, err)
	}

	sess.Persona = pc
	sess.TurnCount = 0
	sess.NegativeCount = 0
	sess.ContinuationHandle = ""
	sess.History = nil
	sess.Phase = chat.PhaseActive
	sess.LastActivityAt = s.now().UTC()

	s.metrics.SessionEvent(observability.EventStarted)
	s.metrics.ActiveDelta(1)
	log.Printf("[chat] session %s started with persona %s", sess.ID, sess.PersonaID)

	return TurnResult{
		TurnsRemaining: s.policy.turnsRemaining(0),
		Outcome:        OutcomeStarted,
	}, nil
}

// Restart discards every mutable field and returns the session to NOT_STARTED.
// It is valid from any phase and idempotent. An unknown id already reads as
// NOT_STARTED, so nothing is registered for it.
func (s *Service) Restart(_ context.Context, sessionID string) error {
	e, err := s.acquire(sessionID, false)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	if e.session.Phase == chat.PhaseActive {
		s.metrics.ActiveDelta(-1)
	}
	e.session.Reset()
	e.session.LastActivityAt = s.now().UTC()
	s.metrics.SessionEvent(observability.EventRestarted)
	return nil
}

// Status reports the phase and remaining turns. It never mutates and never
// creates a session: an unknown id reads as NOT_STARTED.
func (s *Service) Status(_ context.Context, sessionID string) (Status, error) {
	e, err := s.lookup(sessionID, false)
	if errors.Is(err, ErrSessionNotFound) {
		return Status{
			SessionID:      sessionID,
			Phase:          chat.PhaseNotStarted,
			TurnsRemaining: s.policy.turnsRemaining(0),
		}, nil
	}
	if err != nil {
		return Status{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.session
	if e.removed {
		sess = chat.Session{ID: sess.ID, Phase: chat.PhaseNotStarted}
	}

	return Status{
		SessionID:      sess.ID,
		Phase:          sess.Phase,
		Ended:          sess.Phase == chat.PhaseEnded,
		TurnCount:      sess.TurnCount,
		TurnsRemaining: s.policy.turnsRemaining(sess.TurnCount),
		NegativeCount:  sess.NegativeCount,
	}, nil
}

// Session returns a snapshot of a known session.
func (s *Service) Session(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID, false)
	if err != nil {
		return chat.Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return chat.Session{}, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Transcript returns the stored turn records of a session in append order.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.TurnRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionIDRequired
	}
	return s.transcripts.List(ctx, sessionID)
}

// Export writes the line-delimited transcript of a session to w.
func (s *Service) Export(ctx context.Context, sessionID string, w io.Writer) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionIDRequired
	}
	return transcript.Export(ctx, s.transcripts, sessionID, w)
}

// ActiveCount returns how many sessions are ACTIVE.
func (s *Service) ActiveCount() int {
	count := 0
	for _, e := range s.entries() {
		e.mu.Lock()
		if e.session.Phase == chat.PhaseActive {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

// lookup finds the entry for id. With create set, an unknown id gets a fresh
// NOT_STARTED session bound to the default persona.
func (s *Service) lookup(sessionID string, create bool) (*entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}
	if !create {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[sessionID]; ok {
		return e, nil
	}
	e = s.newEntry(sessionID, s.personaID)
	s.sessions[sessionID] = e
	return e, nil
}

// acquire returns the locked entry for id, retrying when the janitor evicted
// the entry between lookup and lock.
func (s *Service) acquire(sessionID string, create bool) (*entry, error) {
	for {
		e, err := s.lookup(sessionID, create)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		if !e.removed {
			return e, nil
		}
		e.mu.Unlock()
	}
}

// Len returns the number of registered sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) newEntry(id, personaID string) *entry {
	return &entry{session: chat.Session{
		ID:        id,
		PersonaID: personaID,
		CreatedAt: s.now().UTC(),
		Phase:     chat.PhaseNotStarted,
	}}
}

func (s *Service) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e)
	}
	return out
}
