package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/ernie-chat/backend/internal/config"
	"github.com/zhouzirui/ernie-chat/backend/internal/logging"
	"github.com/zhouzirui/ernie-chat/backend/internal/metrics"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/chat"
)

// Service is the completion client used by the conversation service.
type Service struct {
	chatModel model.BaseChatModel
	provider  string
	logger    zerolog.Logger
}

// NewService picks the provider named in cfg. apiKey and defaultModel come from
// the persona file.
func NewService(ctx context.Context, cfg config.AIConfig, apiKey, defaultModel string, logger zerolog.Logger) (*Service, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err = cfg.NewArkChatModel(ctx, defaultModel)
	default:
		chatModel, err = NewQianfanModel(cfg.CompletionURL, apiKey, defaultModel, cfg.Timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	svc := NewServiceWithModel(chatModel, cfg.Provider, logger)
	svc.logger.Info().Str("api_key", logging.Redact(apiKey)).Str("model", defaultModel).Msg("completion client ready")
	return svc, nil
}

// NewServiceWithModel wraps an existing chat model.
func NewServiceWithModel(chatModel model.BaseChatModel, provider string, logger zerolog.Logger) *Service {
	return &Service{
		chatModel: chatModel,
		provider:  provider,
		logger:    logging.Component(logger, "ai").With().Str("provider", provider).Logger(),
	}
}

// Complete sends the full transcript, system message included, and returns the
// reply text.
func (s *Service) Complete(ctx context.Context, modelName string, messages []chat.Message) (string, error) {
	input := toSchemaMessages(messages)

	start := time.Now()
	response, err := s.chatModel.Generate(ctx, input, model.WithModel(modelName))
	elapsed := time.Since(start)
	metrics.ObserveCompletion(modelName, elapsed, err == nil)
	if err != nil {
		s.logger.Error().Err(err).Str("model", modelName).Dur("elapsed", elapsed).Msg("completion failed")
		return "", fmt.Errorf("completion: %w", err)
	}
	if response == nil {
		return "", ErrMalformedResponse
	}

	s.logger.Debug().Str("model", modelName).Int("messages", len(input)).Int("length", len(response.Content)).Dur("elapsed", elapsed).Msg("generated response")
	return response.Content, nil
}

func toSchemaMessages(messages []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, &schema.Message{Role: schema.RoleType(msg.Role), Content: msg.Content})
	}
	return out
}
