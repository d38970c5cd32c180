package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/zhouzirui/z-clinic/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/z-clinic/backend/internal/analysis/text"
	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/observability"
	"github.com/zhouzirui/z-clinic/backend/internal/service/ai"
)

// SubmitTurn handles one clinician message. A non-empty handle overrides the
// stored continuation handle for this turn, but only while the upstream keeps
// one for the session. Validation rejections and policy endings come back as a
// TurnResult, not an error. An unknown id is answered as NOT_STARTED and is not
// registered.
func (s *Service) SubmitTurn(ctx context.Context, sessionID, message, handle string) (TurnResult, error) {
	e, err := s.acquire(sessionID, false)
	if errors.Is(err, ErrSessionNotFound) {
		return s.inactive(&chat.Session{Phase: chat.PhaseNotStarted}), nil
	}
	if err != nil {
		return TurnResult{}, err
	}
	defer e.mu.Unlock()
	sess := &e.session

	if sess.Phase != chat.PhaseActive {
		return s.inactive(sess), nil
	}

	// 先截断再清洗：超出长度上限的原始字符永远不会进入评分、提示词或记录。
	msg := text.Normalize(text.Truncate(message, s.policy.MaxMessageLength))
	if msg == "" {
		return s.reject(sess, NoticeEmpty), nil
	}
	if n := s.tokens.Count(msg); s.policy.MaxInputTokens > 0 && n > s.policy.MaxInputTokens {
		return s.reject(sess, NoticeTooLong), nil
	}

	if sess.TurnCount >= s.policy.MaxTurns {
		s.end(sess, observability.EventEndedTurnLimit)
		s.record(ctx, sess, msg, NoticeTimeElapsed, 0)
		log.Printf("[chat] session %s reached the turn limit (%d)", sess.ID, s.policy.MaxTurns)
		return s.terminated(sess, NoticeTimeElapsed), nil
	}

	score := s.scorer.Score(msg)
	s.metrics.ObserveSentiment(score)

	negative := sentiment.IsNegative(score, s.policy.NegativeThreshold)
	if negative {
		sess.NegativeCount++
		if sess.NegativeCount >= strikeLimit {
			s.end(sess, observability.EventEndedHostility)
			s.record(ctx, sess, msg, NoticeTermination, score)
			log.Printf("[chat] session %s ended after repeated hostile messages (negative=%.1f)", sess.ID, sess.NegativeCount)
			return s.terminated(sess, NoticeTermination), nil
		}
	}

	// A stored handle means the last reply came from an upstream that keeps
	// memory; without one the caller's handle would strip persona and history.
	if handle == "" || sess.ContinuationHandle == "" {
		handle = sess.ContinuationHandle
	}
	payload := ai.Assemble(ai.AssembleInput{
		Persona:      sess.Persona,
		History:      sess.History,
		UserMessage:  msg,
		Handle:       handle,
		HistoryLimit: s.policy.HistoryLimit,
	})

	// 生成调用一旦开始就执行到完成或超时，不受调用方取消影响。
	result := s.generator.Generate(context.WithoutCancel(ctx), payload, handle)

	response := result.Text
	if negative {
		response = NoticeBoundary + " " + response
		if sess.NegativeCount+s.policy.WarningIncrement < strikeLimit {
			sess.NegativeCount += s.policy.WarningIncrement
		}
		s.metrics.SessionEvent(observability.EventBoundaryWarning)
	}

	now := s.now().UTC()
	sess.TurnCount++
	sess.ContinuationHandle = result.Handle
	sess.LastActivityAt = now
	if !result.Failed {
		sess.History = append(sess.History,
			chat.Message{Role: chat.RoleUser, Content: msg, CreatedAt: now},
			chat.Message{Role: chat.RoleAssistant, Content: result.Text, CreatedAt: now},
		)
	}

	s.record(ctx, sess, msg, response, score)
	s.metrics.ObserveTurn(string(OutcomeReply))

	return TurnResult{
		Response:       response,
		Handle:         result.Handle,
		TurnsRemaining: s.policy.turnsRemaining(sess.TurnCount),
		Outcome:        OutcomeReply,
	}, nil
}

func (s *Service) inactive(sess *chat.Session) TurnResult {
	s.metrics.SessionEvent(observability.EventRejectedInactive)
	s.metrics.ObserveTurn(string(OutcomeInactive))

	notice := NoticeNotStarted
	if sess.Phase == chat.PhaseEnded {
		notice = NoticeEnded
	}
	return TurnResult{
		Response:       notice,
		Ended:          sess.Phase == chat.PhaseEnded,
		TurnsRemaining: s.policy.turnsRemaining(sess.TurnCount),
		Outcome:        OutcomeInactive,
	}
}

func (s *Service) reject(sess *chat.Session, notice string) TurnResult {
	if notice == NoticeTooLong {
		s.metrics.SessionEvent(observability.EventRejectedTooLong)
	}
	s.metrics.ObserveTurn(string(OutcomeRejected))

	return TurnResult{
		Response:       notice,
		Handle:         sess.ContinuationHandle,
		TurnsRemaining: s.policy.turnsRemaining(sess.TurnCount),
		Outcome:        OutcomeRejected,
	}
}

func (s *Service) terminated(sess *chat.Session, notice string) TurnResult {
	s.metrics.ObserveTurn(string(OutcomeTerminated))
	return TurnResult{
		Response:       notice,
		Ended:          true,
		TurnsRemaining: s.policy.turnsRemaining(sess.TurnCount),
		Outcome:        OutcomeTerminated,
	}
}

// end moves an ACTIVE session to ENDED and drops its continuation handle.
func (s *Service) end(sess *chat.Session, event string) {
	if sess.Phase == chat.PhaseActive {
		s.metrics.ActiveDelta(-1)
	}
	sess.Phase = chat.PhaseEnded
	sess.ContinuationHandle = ""
	sess.LastActivityAt = s.now().UTC()
	s.metrics.SessionEvent(event)
}

// record appends a turn record. Failures are logged and dropped; they never
// change what the caller receives.
func (s *Service) record(ctx context.Context, sess *chat.Session, userMessage, response string, score float64) {
	rec := chat.TurnRecord{
		SessionID:         sess.ID,
		Timestamp:         s.now().UTC(),
		UserMessage:       userMessage,
		AssistantResponse: response,
		Sentiment:         score,
		NegativeCount:     sess.NegativeCount,
		TurnCount:         sess.TurnCount,
	}

	persistCtx := context.WithoutCancel(ctx)
	if s.policy.PersistTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(persistCtx, s.policy.PersistTimeout)
		defer cancel()
	}

	if err := s.transcripts.Append(persistCtx, rec); err != nil {
		s.metrics.TranscriptError()
		log.Printf("[transcript] dropped record for session %s: %v", sess.ID, err)
	}
}

// StartJanitor expires idle sessions and evicts dormant ones until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.policy.InactivityTimeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireInactive()
			}
		}
	}()
}

// expireInactive ends ACTIVE sessions idle past the timeout, then evicts
// NOT_STARTED and ENDED entries idle past it. Sessions whose lock is held are
// skipped: a turn in flight is activity.
func (s *Service) expireInactive() (expired, evicted int) {
	now := s.now().UTC()

	for _, e := range s.entries() {
		if !e.mu.TryLock() {
			continue
		}
		sess := &e.session
		if !e.removed && sess.Phase == chat.PhaseActive && now.Sub(idleSince(sess)) >= s.policy.InactivityTimeout {
			s.end(sess, observability.EventEndedInactivity)
			expired++
			log.Printf("[chat] session %s expired after %s of inactivity", sess.ID, s.policy.InactivityTimeout)
		}
		e.mu.Unlock()
	}

	s.mu.Lock()
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		sess := &e.session
		if sess.Phase != chat.PhaseActive && now.Sub(idleSince(sess)) >= s.policy.InactivityTimeout {
			e.removed = true
			delete(s.sessions, id)
			evicted++
			s.metrics.SessionEvent(observability.EventEvicted)
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	if evicted > 0 {
		log.Printf("[chat] evicted %d idle sessions", evicted)
	}
	return expired, evicted
}

func idleSince(sess *chat.Session) time.Time {
	if sess.LastActivityAt.IsZero() {
		return sess.CreatedAt
	}
	return sess.LastActivityAt
}
