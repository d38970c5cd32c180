package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-clinic/backend/internal/config"
	"github.com/zhouzirui/z-clinic/backend/internal/model/chat"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []observation
}

type observation struct {
	provider string
	err      error
}

func (o *recordingObserver) ObserveGeneration(provider string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observation{provider: provider, err: err})
}

func (o *recordingObserver) snapshot() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observation(nil), o.calls...)
}

const responseBody = `{
  "id": "resp_abc",
  "object": "response",
  "created_at": 1700000000,
  "status": "completed",
  "model": "gpt-4o",
  "output": [
    {
      "type": "message",
      "id": "msg_1",
      "status": "completed",
      "role": "assistant",
      "content": [
        {"type": "output_text", "text": "Monae: Hi. I'm a little nervous. Clinician: great", "annotations": []}
      ]
    }
  ]
}`

func newTestOpenAI(t *testing.T, handler http.HandlerFunc, timeout time.Duration) (*OpenAIGenerator, *recordingObserver) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	obs := &recordingObserver{}
	gen := NewOpenAIGenerator(config.AIConfig{
		OpenAIAPIKey:    "test-key",
		OpenAIModel:     "gpt-4o",
		OpenAIBaseURL:   srv.URL + "/v1/",
		MaxOutputTokens: 500,
		RequestTimeout:  timeout,
	}, obs)
	return gen, obs
}

func TestOpenAIGeneratorFirstTurn(t *testing.T) {
	var body map[string]any
	gen, obs := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/responses"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody))
	}, time.Second)

	payload := Assemble(AssembleInput{Persona: testPersona(), UserMessage: "Hello Monae"})
	res := gen.Generate(context.Background(), payload, "")

	assert.False(t, res.Failed)
	assert.Equal(t, "Hi. I'm a little nervous.", res.Text)
	assert.Equal(t, "resp_abc", res.Handle)
	assert.True(t, res.Continuation)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["store"])
	assert.EqualValues(t, 500, body["max_output_tokens"])
	assert.Equal(t, "persona:monae", body["prompt_cache_key"])
	assert.NotContains(t, body, "previous_response_id")

	input, ok := body["input"].([]any)
	require.True(t, ok)
	require.Len(t, input, 2)
	first := input[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "You are Monae.", first["content"])

	calls := obs.snapshot()
	require.Len(t, calls, 1)
	assert.NoError(t, calls[0].err)
	assert.Equal(t, "openai", calls[0].provider)
}

func TestOpenAIGeneratorContinuationSendsPreviousResponseID(t *testing.T) {
	var body map[string]any
	gen, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody))
	}, time.Second)

	payload := Assemble(AssembleInput{
		Persona:     testPersona(),
		History:     exchange("hello", "hi"),
		UserMessage: "What brings you in?",
		Handle:      "resp_prev",
	})
	res := gen.Generate(context.Background(), payload, "resp_prev")

	assert.False(t, res.Failed)
	assert.Equal(t, "resp_prev", body["previous_response_id"])
	input := body["input"].([]any)
	require.Len(t, input, 1)
	assert.Equal(t, "user", input[0].(map[string]any)["role"])
}

func TestOpenAIGeneratorFallsBackOnUpstreamError(t *testing.T) {
	gen, obs := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}, time.Second)

	res := gen.Generate(context.Background(), Assemble(AssembleInput{UserMessage: "hi"}), "")

	assert.True(t, res.Failed)
	assert.Equal(t, FallbackReply, res.Text)
	assert.Empty(t, res.Handle)
	assert.False(t, res.Continuation)

	calls := obs.snapshot()
	require.Len(t, calls, 1)
	assert.Error(t, calls[0].err)
}

func TestOpenAIGeneratorFallsBackOnTimeout(t *testing.T) {
	gen, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	res := gen.Generate(context.Background(), Assemble(AssembleInput{UserMessage: "hi"}), "")
	assert.True(t, res.Failed)
	assert.Equal(t, FallbackReply, res.Text)
	assert.Empty(t, res.Handle)
}

func TestOpenAIGeneratorFallsBackOnEmptyOutput(t *testing.T) {
	gen, obs := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"resp_empty","object":"response","output":[]}`))
	}, time.Second)

	res := gen.Generate(context.Background(), Assemble(AssembleInput{UserMessage: "hi"}), "")
	assert.True(t, res.Failed)
	assert.Empty(t, res.Handle)

	calls := obs.snapshot()
	require.Len(t, calls, 1)
	assert.ErrorIs(t, calls[0].err, ErrEmptyReply)
}

func TestInputItemsSkipsUnknownRoles(t *testing.T) {
	items := inputItems([]chat.Message{
		{Role: chat.Role(99), Content: "ignored"},
		{Role: chat.RoleUser, Content: "kept"},
	})
	assert.Len(t, items, 1)
}
