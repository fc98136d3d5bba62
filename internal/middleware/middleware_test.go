package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/get_config", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "/get_config", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.EqualValues(t, 3, line["bytes"])
}

func TestUserFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/get_chat_history?user=from-query", nil)
	assert.Equal(t, "from-query", UserFromRequest(req))

	req.Header.Set(UserHeader, " from-header ")
	assert.Equal(t, "from-header", UserFromRequest(req), "header wins over query")

	raw := httptest.NewRequest(http.MethodGet, "/get_chat_history", nil)
	raw.Header.Add("x-user-id", "lower")
	assert.Equal(t, "lower", UserFromRequest(raw))

	assert.Empty(t, UserFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
}
