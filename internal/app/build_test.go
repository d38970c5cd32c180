package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-clinic/backend/internal/config"
	"github.com/zhouzirui/z-clinic/backend/internal/service/ai"
	"github.com/zhouzirui/z-clinic/backend/internal/store/transcript"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server: config.ServerConfig{Addr: ":0"},
		AI:     config.AIConfig{MaxOutputTokens: 500, RequestTimeout: time.Second},
		Session: config.SessionConfig{
			NegativeThreshold: -0.3,
			MaxMessageLength:  500,
			MaxTurns:          20,
			MaxInputTokens:    1000,
			InactivityTimeout: time.Minute,
			PersonaID:         "monae",
			BackgroundFile:    filepath.Join(t.TempDir(), "missing.txt"),
			TokenEncoding:     "o200k_base",
		},
		Store:   config.StoreConfig{TranscriptDSN: "sqlite://" + filepath.Join(t.TempDir(), "t.db")},
		Metrics: config.MetricsConfig{Enabled: true, Namespace: "buildtest"},
	}
}

func TestBuildWithoutProvider(t *testing.T) {
	res, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Equal(t, "unavailable", res.Generator.Name())
	assert.IsType(t, &transcript.SQLiteStore{}, res.Transcripts)
	require.NotNil(t, res.Metrics)

	ctx := context.Background()
	_, err = res.Sessions.Start(ctx, "b1")
	require.NoError(t, err)
	turn, err := res.Sessions.SubmitTurn(ctx, "b1", "Hi Monae, how are you?", "")
	require.NoError(t, err)
	assert.Equal(t, ai.FallbackReply, turn.Response)

	records, err := res.Transcripts.List(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	resp := httptest.NewRecorder()
	res.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), `buildtest_generation_failures_total{provider="unavailable"} 1`))
}

func TestBuildMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	cfg.Store.TranscriptDSN = ""

	res, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Cleanup() })

	assert.Nil(t, res.Metrics)
	assert.IsType(t, &transcript.MemoryStore{}, res.Transcripts)
}

func TestBuildRejectsBadDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.TranscriptDSN = "mysql://nope"

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
