package transcript

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// PostgresStore persists transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transcript_sessions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS transcript_turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES transcript_sessions (id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			user_message TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			sentiment DOUBLE PRECISION NOT NULL,
			negative_count DOUBLE PRECISION NOT NULL,
			turn_count INTEGER NOT NULL DEFAULT 0,
			UNIQUE (session_id, seq)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Append writes one record. The transaction-scoped advisory lock keyed by the
// session id serializes appends to the same session only.
func (s *PostgresStore) Append(ctx context.Context, record chat.TurnRecord) error {
	record, err := prepare(record)
	if err != nil {
		return err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, record.SessionID); err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO transcript_sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			record.SessionID,
		); err != nil {
			return fmt.Errorf("ensure session row: %w", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO transcript_turns
			   (id, session_id, seq, created_at, user_message, assistant_response, sentiment, negative_count, turn_count)
			 VALUES ($1, $2,
			   (SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript_turns WHERE session_id = $2),
			   $3, $4, $5, $6, $7, $8)`,
			record.ID,
			record.SessionID,
			record.Timestamp,
			record.UserMessage,
			record.AssistantResponse,
			record.Sentiment,
			record.NegativeCount,
			record.TurnCount,
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string) ([]chat.TurnRecord, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, created_at, user_message, assistant_response, sentiment, negative_count, turn_count
		 FROM transcript_turns WHERE session_id = $1 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var records []chat.TurnRecord
	for rows.Next() {
		var r chat.TurnRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Timestamp, &r.UserMessage, &r.AssistantResponse, &r.Sentiment, &r.NegativeCount, &r.TurnCount); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
