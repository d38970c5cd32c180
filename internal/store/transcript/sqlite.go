package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

// SQLiteStore persists transcripts in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Verify the backends implement Store
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps appends ordered.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcript_sessions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transcript_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		user_message TEXT NOT NULL,
		assistant_response TEXT NOT NULL,
		sentiment REAL NOT NULL,
		negative_count REAL NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES transcript_sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_transcript_turns_session ON transcript_turns(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Append(ctx context.Context, record chat.TurnRecord) error {
	record, err := prepare(record)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO transcript_sessions (id, created_at) VALUES (?, ?)`,
		record.SessionID, record.Timestamp.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("ensure session row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcript_turns
			(id, session_id, seq, created_at, user_message, assistant_response, sentiment, negative_count, turn_count)
		VALUES (?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript_turns WHERE session_id = ?),
			?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.SessionID,
		record.SessionID,
		record.Timestamp.Format(time.RFC3339Nano),
		record.UserMessage,
		record.AssistantResponse,
		record.Sentiment,
		record.NegativeCount,
		record.TurnCount,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context, sessionID string) ([]chat.TurnRecord, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, created_at, user_message, assistant_response, sentiment, negative_count, turn_count
		FROM transcript_turns WHERE session_id = ? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var records []chat.TurnRecord
	for rows.Next() {
		var (
			r       chat.TurnRecord
			created string
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &created, &r.UserMessage, &r.AssistantResponse, &r.Sentiment, &r.NegativeCount, &r.TurnCount); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", created, err)
		}
		r.Timestamp = ts.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
