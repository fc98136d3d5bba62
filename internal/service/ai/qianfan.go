package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.BaseChatModel = (*QianfanModel)(nil)

// ErrMalformedResponse means the completion body lacked choices[0].message.content.
var ErrMalformedResponse = errors.New("malformed completion response")

// StatusError reports a non-2xx answer from the completion endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion http %d: %s", e.StatusCode, e.Body)
}

// APIError is an error object returned inside a 2xx completion body.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("completion api error %s: %s", e.Code, e.Message)
}

// QianfanModel calls an OpenAI style chat completions endpoint with bearer auth.
type QianfanModel struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewQianfanModel builds a model for endpoint. defaultModel is used when the
// caller passes no model.WithModel option. A zero timeout leaves the client
// without a deadline.
func NewQianfanModel(endpoint, apiKey, defaultModel string, timeout time.Duration) (*QianfanModel, error) {
	if endpoint == "" {
		return nil, errors.New("completion endpoint empty")
	}
	if apiKey == "" {
		return nil, errors.New("completion api key empty")
	}
	return &QianfanModel{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    defaultModel,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"error"`
}

// Generate sends the whole message list and returns the first choice.
func (m *QianfanModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Model: &m.model}, opts...)
	modelName := m.model
	if options.Model != nil {
		modelName = *options.Model
	}

	reqBody := completionRequest{Model: modelName, Messages: make([]wireMessage, 0, len(input))}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		reqBody.Messages = append(reqBody.Messages, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var payload completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Error != nil && payload.Error.Message != "" {
		return nil, &APIError{Code: string(bytes.Trim(payload.Error.Code, `"`)), Message: payload.Error.Message}
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message == nil || payload.Choices[0].Message.Content == nil {
		return nil, ErrMalformedResponse
	}

	return schema.AssistantMessage(*payload.Choices[0].Message.Content, nil), nil
}

// Stream has no incremental transport; it yields the full reply as one chunk.
func (m *QianfanModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
