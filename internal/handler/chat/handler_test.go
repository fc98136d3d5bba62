package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatModel "github.com/zhouzirui/ernie-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/persona"
	"github.com/zhouzirui/ernie-chat/backend/internal/middleware"
	chatservice "github.com/zhouzirui/ernie-chat/backend/internal/service/chat"
)

type stubCompleter struct {
	reply string
	err   error
	calls int
}

func (s *stubCompleter) Complete(context.Context, string, []chatModel.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

type testEnv struct {
	router      *chi.Mux
	completer   *stubCompleter
	historyPath string
	logs        *bytes.Buffer
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	personas := persona.NewMemoryStore(persona.Persona{
		Name:           "Ernie",
		Role:           "You are helpful.",
		Model:          "ernie-4.0-8k",
		SensitiveWords: []string{"foo"},
	})
	historyPath := filepath.Join(t.TempDir(), "chat_history.json")
	store := chatservice.NewTranscriptStore(historyPath, func() string { return personas.Current().Role }, zerolog.Nop())
	completer := &stubCompleter{reply: "hello there"}
	svc := chatservice.NewService(store, personas, completer, nil, zerolog.Nop())

	logs := &bytes.Buffer{}
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(zerolog.New(logs)))
	New(svc).RegisterRoutes(r)
	return &testEnv{router: r, completer: completer, historyPath: historyPath, logs: logs}
}

func (e *testEnv) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestChatReturnsReplyAndPersists(t *testing.T) {
	env := setupRouter(t)

	resp := env.do(http.MethodPost, "/chat", `{"message":"hi"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "hello there", decode(t, resp)["response"])

	raw, err := os.ReadFile(env.historyPath)
	require.NoError(t, err)
	var saved []chatModel.Message
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, []chatModel.Message{
		chatModel.UserMessage("hi"),
		chatModel.AssistantMessage("hello there"),
	}, saved)
}

func TestChatSensitiveWordSkipsCompletion(t *testing.T) {
	env := setupRouter(t)

	resp := env.do(http.MethodPost, "/chat", `{"message":"say foo"}`, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, chatservice.RefusalMessage, decode(t, resp)["response"])
	assert.Zero(t, env.completer.calls)
}

func TestChatRejectsBadInput(t *testing.T) {
	env := setupRouter(t)

	cases := []struct {
		name   string
		body   string
		header http.Header
	}{
		{name: "malformed json", body: `{"message":`},
		{name: "empty message", body: `{"message":"  "}`},
		{name: "invalid user", body: `{"message":"hi"}`, header: http.Header{middleware.UserHeader: {"not-a-uuid"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(http.MethodPost, "/chat", tc.body, tc.header)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.NotEmpty(t, decode(t, resp)["error"])
		})
	}
	assert.Zero(t, env.completer.calls)
}

func TestChatCompletionFailure(t *testing.T) {
	env := setupRouter(t)
	env.completer.err = errors.New(`completion endpoint returned 401: {"error":"bad key sk-123"}`)

	resp := env.do(http.MethodPost, "/chat", `{"message":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), decode(t, resp)["error"])
	assert.NotContains(t, resp.Body.String(), "sk-123")
	assert.Contains(t, env.logs.String(), "sk-123")

	history := env.do(http.MethodGet, "/get_chat_history", "", nil)
	require.Equal(t, http.StatusOK, history.Code)
	assert.Empty(t, decode(t, history)["history"])
}

func TestHistoryAndReset(t *testing.T) {
	env := setupRouter(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/chat", `{"message":"hi"}`, nil).Code)

	resp := env.do(http.MethodGet, "/get_chat_history", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	history, ok := decode(t, resp)["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 2)
	first := history[0].(map[string]any)
	assert.Equal(t, "user", first["sender"])
	assert.Equal(t, "hi", first["text"])
	assert.Equal(t, "bot", history[1].(map[string]any)["sender"])

	resp = env.do(http.MethodPost, "/reset_chat", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "success", decode(t, resp)["status"])

	resp = env.do(http.MethodGet, "/get_chat_history", "", nil)
	assert.JSONEq(t, `{"history":[]}`, resp.Body.String())
}

func TestSessionsAreIsolated(t *testing.T) {
	env := setupRouter(t)

	resp := env.do(http.MethodPost, "/new_session", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	id, _ := decode(t, resp)["user_id"].(string)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	header := http.Header{middleware.UserHeader: {id}}
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/chat", `{"message":"hi"}`, header).Code)

	own := env.do(http.MethodGet, "/get_chat_history?user="+id, "", nil)
	assert.Len(t, decode(t, own)["history"], 2)

	def := env.do(http.MethodGet, "/get_chat_history", "", nil)
	assert.JSONEq(t, `{"history":[]}`, def.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(chatservice.ErrInvalidUser))
	assert.Equal(t, http.StatusBadRequest, StatusFor(chatservice.ErrEmptyMessage))
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(chatservice.ErrCompletionUnavailable))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestUnknownUserLeavesNoFile(t *testing.T) {
	env := setupRouter(t)
	stranger := uuid.NewString()
	header := http.Header{middleware.UserHeader: {stranger}}

	resp := env.do(http.MethodGet, "/get_chat_history", "", header)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"history":[]}`, resp.Body.String())

	resp = env.do(http.MethodPost, "/reset_chat", "", header)
	require.Equal(t, http.StatusOK, resp.Code)

	entries, err := os.ReadDir(filepath.Dir(env.historyPath))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, chatservice.ErrEmptyMessage.Error(), PublicMessage(chatservice.ErrEmptyMessage))
	assert.Equal(t, "Internal Server Error", PublicMessage(errors.New("upstream body")))
}
