package transcript

import (
	"context"
	"sync"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// MemoryStore is a simple in-process transcript store for local/dev use.
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*sessionLog
}

// sessionLog is the per-session row; its lock serializes appends to one session.
type sessionLog struct {
	mu      sync.Mutex
	records []chat.TurnRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]*sessionLog)}
}

func (s *MemoryStore) Append(_ context.Context, record chat.TurnRecord) error {
	record, err := prepare(record)
	if err != nil {
		return err
	}

	log := s.sessionLog(record.SessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	log.records = append(log.records, record)
	return nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string) ([]chat.TurnRecord, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	s.mu.RLock()
	log, ok := s.logs[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	return append([]chat.TurnRecord(nil), log.records...), nil
}

func (s *MemoryStore) Close() error { return nil }

// sessionLog returns the log for id, creating it on first append.
func (s *MemoryStore) sessionLog(id string) *sessionLog {
	s.mu.RLock()
	log, ok := s.logs[id]
	s.mu.RUnlock()
	if ok {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok = s.logs[id]; ok {
		return log
	}
	log = &sessionLog{}
	s.logs[id] = log
	return log
}
