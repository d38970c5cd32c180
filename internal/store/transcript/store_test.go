package transcript

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

func record(sessionID string, i int) chat.TurnRecord {
	return chat.TurnRecord{
		SessionID:         sessionID,
		Timestamp:         time.Date(2025, 3, 1, 10, 0, i, 123456789, time.UTC),
		UserMessage:       fmt.Sprintf("clinician message %d", i),
		AssistantResponse: fmt.Sprintf("patient reply %d", i),
		Sentiment:         -0.25 + float64(i)/10,
		NegativeCount:     float64(i) / 10,
		TurnCount:         i + 1,
	}
}

// exercise runs the shared contract against any backend.
func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	session := "sess-" + uuid.NewString()

	got, err := store.List(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, got)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, record(session, i)))
	}
	require.NoError(t, store.Append(ctx, record(session+"-other", 0)))

	got, err = store.List(ctx, session)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i, r := range got {
		want := record(session, i)
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, session, r.SessionID)
		assert.Equal(t, want.UserMessage, r.UserMessage)
		assert.Equal(t, want.AssistantResponse, r.AssistantResponse)
		assert.Equal(t, want.Sentiment, r.Sentiment)
		assert.Equal(t, want.NegativeCount, r.NegativeCount)
		assert.Equal(t, want.TurnCount, r.TurnCount)
		assert.True(t, want.Timestamp.Truncate(time.Microsecond).Equal(r.Timestamp), "timestamp %v != %v", r.Timestamp, want.Timestamp)
	}

	assert.ErrorIs(t, store.Append(ctx, chat.TurnRecord{UserMessage: "no session"}), ErrSessionIDRequired)
	_, err = store.List(ctx, "")
	assert.ErrorIs(t, err, ErrSessionIDRequired)
}

// exerciseConcurrent checks that concurrent appends to one session keep every record.
func exerciseConcurrent(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	session := "sess-" + uuid.NewString()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Append(ctx, record(session, i)))
		}(i)
	}
	wg.Wait()

	got, err := store.List(ctx, session)
	require.NoError(t, err)
	assert.Len(t, got, writers)

	ids := make(map[string]bool, len(got))
	for _, r := range got {
		ids[r.ID] = true
	}
	assert.Len(t, ids, writers)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
	exerciseConcurrent(t, NewMemoryStore())
}

func TestMemoryStoreListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, record("a", 0)))

	got, err := s.List(ctx, "a")
	require.NoError(t, err)
	got[0].UserMessage = "tampered"

	again, err := s.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "clinician message 0", again[0].UserMessage)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exercise(t, s)
	exerciseConcurrent(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "transcripts.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, record("persist", 0)))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.List(ctx, "persist")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "patient reply 0", got[0].AssistantResponse)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exercise(t, s)
	exerciseConcurrent(t, s)
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		dsn     string
		backend string
		target  string
		wantErr bool
	}{
		{dsn: "", backend: BackendMemory},
		{dsn: "memory", backend: BackendMemory},
		{dsn: "postgres://u:p@localhost/db", backend: BackendPostgres, target: "postgres://u:p@localhost/db"},
		{dsn: "postgresql://localhost/db", backend: BackendPostgres, target: "postgresql://localhost/db"},
		{dsn: "sqlite://./data/t.db", backend: BackendSQLite, target: "./data/t.db"},
		{dsn: "transcripts.db", backend: BackendSQLite, target: "transcripts.db"},
		{dsn: "sqlite://", wantErr: true},
		{dsn: "mysql://localhost/db", wantErr: true},
	}

	for _, tc := range cases {
		backend, target, err := ParseDSN(tc.dsn)
		if tc.wantErr {
			assert.Error(t, err, tc.dsn)
			continue
		}
		require.NoError(t, err, tc.dsn)
		assert.Equal(t, tc.backend, backend, tc.dsn)
		assert.Equal(t, tc.target, target, tc.dsn)
	}
}

func TestNewStorePicksBackend(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, "redis://nope")
	assert.Error(t, err)
}

func TestJSONLRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(ctx, record("round", i)))
	}
	require.NoError(t, s.Append(ctx, chat.TurnRecord{
		SessionID:         "round",
		UserMessage:       "quotes \" and <tags> & newlines\nhere",
		AssistantResponse: "I've made it clear that I need to be treated with respect.",
		Sentiment:         -0.6,
		NegativeCount:     2.1,
	}))

	original, err := s.List(ctx, "round")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, s, "round", &buf))
	assert.Equal(t, len(original), strings.Count(buf.String(), "\n"))

	parsed, err := ReadJSONL(&buf, "round")
	require.NoError(t, err)
	require.Len(t, parsed, len(original))

	for i := range original {
		assert.True(t, original[i].Timestamp.Equal(parsed[i].Timestamp))
		assert.Equal(t, original[i].UserMessage, parsed[i].UserMessage)
		assert.Equal(t, original[i].AssistantResponse, parsed[i].AssistantResponse)
		assert.Equal(t, original[i].Sentiment, parsed[i].Sentiment)
		assert.Equal(t, original[i].NegativeCount, parsed[i].NegativeCount)
		assert.Equal(t, "round", parsed[i].SessionID)
	}
}

func TestJSONLFieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, []chat.TurnRecord{record("s", 0)}))

	line := buf.String()
	for _, field := range []string{`"timestamp"`, `"user_message"`, `"assistant_response"`, `"sentiment"`, `"negative_count"`} {
		assert.Contains(t, line, field)
	}
	assert.Contains(t, line, `"timestamp":"2025-03-01T10:00:00.123456789Z"`)
}

func TestReadJSONLRejectsGarbage(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{not json}\n"), "s")
	assert.Error(t, err)

	got, err := ReadJSONL(strings.NewReader("\n\n"), "s")
	require.NoError(t, err)
	assert.Empty(t, got)
}
