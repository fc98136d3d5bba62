package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestQianfanGenerateSendsTranscript(t *testing.T) {
	var got completionRequest
	srv := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`)
	})

	m, err := NewQianfanModel(srv.URL, "secret", "ernie-default", time.Second)
	require.NoError(t, err)

	reply, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("be kind"),
		schema.UserMessage("hi"),
	}, model.WithModel("ernie-4.0-8k"))
	require.NoError(t, err)

	assert.Equal(t, schema.Assistant, reply.Role)
	assert.Equal(t, "hello there", reply.Content)
	assert.Equal(t, "ernie-4.0-8k", got.Model)
	assert.Equal(t, []wireMessage{{Role: "system", Content: "be kind"}, {Role: "user", Content: "hi"}}, got.Messages)
}

func TestQianfanGenerateDefaultModel(t *testing.T) {
	var got completionRequest
	srv := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":""}}]}`)
	})

	m, err := NewQianfanModel(srv.URL, "secret", "ernie-default", 0)
	require.NoError(t, err)

	reply, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "", reply.Content)
	assert.Equal(t, "ernie-default", got.Model)
}

func TestQianfanGenerateMalformed(t *testing.T) {
	cases := map[string]string{
		"no choices":   `{"choices":[]}`,
		"no message":   `{"choices":[{}]}`,
		"no content":   `{"choices":[{"message":{"role":"assistant"}}]}`,
		"not json":     `<html>oops</html>`,
		"missing keys": `{}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			m, err := NewQianfanModel(srv.URL, "k", "m", time.Second)
			require.NoError(t, err)

			_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestQianfanGenerateErrors(t *testing.T) {
	srv := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	})
	m, err := NewQianfanModel(srv.URL, "k", "m", time.Second)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), nil)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad key")

	srv = newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"code":"invalid_model","message":"model not found"}}`)
	})
	m, err = NewQianfanModel(srv.URL, "k", "m", time.Second)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "invalid_model", apiErr.Code)
}

func TestQianfanStreamYieldsSingleChunk(t *testing.T) {
	srv := newCompletionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"whole"}}]}`)
	})
	m, err := NewQianfanModel(srv.URL, "k", "m", time.Second)
	require.NoError(t, err)

	stream, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "whole", chunk.Content)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewQianfanModelValidation(t *testing.T) {
	_, err := NewQianfanModel("", "k", "m", 0)
	assert.Error(t, err)
	_, err = NewQianfanModel("http://x", "", "m", 0)
	assert.Error(t, err)
}
