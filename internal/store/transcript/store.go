// Package transcript keeps the append-only log of every session turn.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// ErrSessionIDRequired is returned when a record or query has no session id.
var ErrSessionIDRequired = errors.New("session id required")

// Store persists turn records. Appends for one session are serialized; appends
// for different sessions do not block each other. List returns records in
// append order.
type Store interface {
	Append(ctx context.Context, record chat.TurnRecord) error
	List(ctx context.Context, sessionID string) ([]chat.TurnRecord, error)
	Close() error
}

// Backend kinds understood by NewStore.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// NewStore creates a postgres or sqlite store when a DSN is configured, otherwise in-memory.
func NewStore(ctx context.Context, dsn string) (Store, error) {
	backend, target, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendPostgres:
		return NewPostgresStore(ctx, target)
	case BackendSQLite:
		return NewSQLiteStore(target)
	default:
		return NewMemoryStore(), nil
	}
}

// ParseDSN maps a DSN onto a backend and the connection target it should use.
func ParseDSN(dsn string) (backend, target string, err error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)

	switch {
	case dsn == "" || lower == "memory" || lower == "memory://":
		return BackendMemory, "", nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return BackendPostgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		path := dsn[len("sqlite://"):]
		if path == "" {
			return "", "", fmt.Errorf("invalid TRANSCRIPT_DSN %q: missing sqlite path", dsn)
		}
		return BackendSQLite, path, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return BackendSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("invalid TRANSCRIPT_DSN %q (expected postgres://, sqlite:// or a *.db path)", dsn)
	}
}

// prepare validates a record and fills in its id and timestamp. Timestamps are
// kept at microsecond precision in UTC so every backend round-trips them.
func prepare(record chat.TurnRecord) (chat.TurnRecord, error) {
	if strings.TrimSpace(record.SessionID) == "" {
		return chat.TurnRecord{}, ErrSessionIDRequired
	}
	if record.ID == "" {
		record.ID = ulid.Make().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.Timestamp = record.Timestamp.UTC().Truncate(time.Microsecond)
	return record, nil
}
