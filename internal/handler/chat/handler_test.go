package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-clinic/backend/internal/model/persona"
	"github.com/zhouzirui/z-clinic/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/z-clinic/backend/internal/service/chat"
	"github.com/zhouzirui/z-clinic/backend/internal/store/transcript"
)

type echoGenerator struct{}

func (echoGenerator) Name() string { return "echo" }

func (echoGenerator) Generate(_ context.Context, p ai.Payload, _ string) ai.Result {
	return ai.Result{Text: "you said: " + p.UserMessage(), Handle: "resp_echo", Continuation: true}
}

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	chatSvc := chatservice.NewService(chatservice.DefaultPolicy(), chatservice.Dependencies{
		Resolver: chatservice.ResolverFunc(func(_ context.Context, id string) (persona.Context, error) {
			if id != persona.DefaultID {
				return persona.Context{}, chatservice.ErrPersonaNotFound
			}
			return persona.Context{PersonaID: id, Name: "Monae", Instructions: "You are Monae."}, nil
		}),
		Generator:   echoGenerator{},
		Transcripts: transcript.NewMemoryStore(),
	})

	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)
	return r, chatSvc
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateSessionDefaultPersona(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(t, r, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, resp.Code)

	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, persona.DefaultID, body["personaId"])
	assert.Equal(t, "NOT_STARTED", body["phase"])
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(t, r, http.MethodPost, "/sessions", `{"personaId":"non-existent"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/sessions", `{"personaId":`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStartChatAndContinuation(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(t, r, http.MethodPost, "/sessions/abc/start", "")
	require.Equal(t, http.StatusOK, resp.Code)
	raw := resp.Body.String()
	assert.Contains(t, raw, `"responseId":null`)
	assert.Contains(t, raw, `"response":""`)
	assert.Contains(t, raw, `"turnsRemaining":20`)

	resp = do(t, r, http.MethodPost, "/sessions/abc/start", "")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = do(t, r, http.MethodPost, "/sessions/abc/chat", `{"message":"How are you today?"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	turn := decode[TurnResponse](t, resp)
	assert.Equal(t, "you said: How are you today?", turn.Response)
	require.NotNil(t, turn.ResponseID)
	assert.Equal(t, "resp_echo", *turn.ResponseID)
	assert.False(t, turn.Ended)
	assert.Equal(t, 19, turn.TurnsRemaining)
	assert.Equal(t, "reply", turn.Outcome)
}

func TestChatValidation(t *testing.T) {
	r, _ := setupRouter(t)

	resp := do(t, r, http.MethodPost, "/sessions/abc/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/sessions/abc/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/sessions/abc/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	turn := decode[TurnResponse](t, resp)
	assert.Equal(t, chatservice.NoticeNotStarted, turn.Response)
	assert.Equal(t, "inactive", turn.Outcome)
}

func TestHostileSessionEndsAndRestarts(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/sessions/s1/start", "").Code)

	resp := do(t, r, http.MethodPost, "/sessions/s1/chat", `{"message":"You are stupid and useless"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	turn := decode[TurnResponse](t, resp)
	assert.True(t, strings.HasPrefix(turn.Response, chatservice.NoticeBoundary))

	resp = do(t, r, http.MethodPost, "/sessions/s1/chat", `{"message":"Your voice is ugly and fake"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	turn = decode[TurnResponse](t, resp)
	assert.True(t, turn.Ended)
	assert.Nil(t, turn.ResponseID)
	assert.Equal(t, chatservice.NoticeTermination, turn.Response)

	resp = do(t, r, http.MethodGet, "/sessions/s1/status", "")
	require.Equal(t, http.StatusOK, resp.Code)
	status := decode[chatservice.Status](t, resp)
	assert.True(t, status.Ended)

	resp = do(t, r, http.MethodPost, "/sessions/s1/restart", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"success":true}`, resp.Body.String())

	resp = do(t, r, http.MethodGet, "/sessions/s1/status", "")
	status = decode[chatservice.Status](t, resp)
	assert.False(t, status.Ended)
	assert.Equal(t, "NOT_STARTED", string(status.Phase))
	assert.Equal(t, 20, status.TurnsRemaining)
}

func TestTranscriptExport(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/sessions/t1/start", "").Code)
	for _, msg := range []string{"hello", "how is work going?"} {
		require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/sessions/t1/chat", `{"message":"`+msg+`"}`).Code)
	}

	resp := do(t, r, http.MethodGet, "/sessions/t1/transcript", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, transcript.ContentType, resp.Header().Get("Content-Type"))

	records, err := transcript.ReadJSONL(resp.Body, "t1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "hello", records[0].UserMessage)
	assert.Equal(t, "you said: how is work going?", records[1].AssistantResponse)
}
