package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/ernie-chat/backend/internal/metrics"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/persona"
)

var (
	ErrEmptyMessage          = errors.New("message is required")
	ErrCompletionUnavailable = errors.New("completion client unavailable")
)

// Completer produces the assistant reply for a full transcript.
type Completer interface {
	Complete(ctx context.Context, model string, messages []chat.Message) (string, error)
}

// PersonaWriter persists an updated persona.
type PersonaWriter func(p persona.Persona) error

// Service orchestrates sensitive-word filtering, transcript mutation and
// completion calls. Turns of one user are serialized; different users run in
// parallel.
type Service struct {
	transcripts  *TranscriptStore
	personas     persona.Store
	completer    Completer
	writePersona PersonaWriter
	logger       zerolog.Logger

	configMu sync.Mutex
	locksMu  sync.Mutex
	locks    map[string]*userLock
}

// userLock is dropped from the map once nobody holds or waits for it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewService wires the conversation service. completer may be nil, in which
// case only locally answered turns succeed. writePersona may be nil to keep
// config changes in memory.
func NewService(transcripts *TranscriptStore, personas persona.Store, completer Completer, writePersona PersonaWriter, logger zerolog.Logger) *Service {
	return &Service{
		transcripts:  transcripts,
		personas:     personas,
		completer:    completer,
		writePersona: writePersona,
		logger:       logger.With().Str("component", "chat").Logger(),
		locks:        make(map[string]*userLock),
	}
}

func (s *Service) lockUser(user string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[user]
	if !ok {
		l = &userLock{}
		s.locks[user] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, user)
		}
		s.locksMu.Unlock()
	}
}

// Generate runs one chat turn and returns the assistant text.
func (s *Service) Generate(ctx context.Context, user, text string) (string, error) {
	user, err := NormalizeUser(user)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	unlock := s.lockUser(user)
	defer unlock()

	current := s.personas.Current()

	length, err := s.transcripts.Append(user, chat.UserMessage(text))
	if err != nil {
		return "", err
	}

	if word, ok := matchSensitive(text, current.SensitiveWords); ok {
		if _, err := s.transcripts.Append(user, chat.AssistantMessage(RefusalMessage)); err != nil {
			return "", err
		}
		s.persist(user)
		metrics.IncChatTurn(metrics.OutcomeBlocked)
		s.logger.Info().Str("user", user).Str("word", word).Msg("sensitive word blocked")
		return RefusalMessage, nil
	}

	if s.completer == nil {
		_ = s.transcripts.Truncate(user, length-1)
		metrics.IncChatTurn(metrics.OutcomeFailed)
		return "", ErrCompletionUnavailable
	}

	messages, err := s.transcripts.Messages(user)
	if err != nil {
		return "", err
	}

	reply, err := s.completer.Complete(ctx, current.Model, messages)
	if err != nil {
		// Drop the dangling user turn so a retry does not duplicate it.
		_ = s.transcripts.Truncate(user, length-1)
		metrics.IncChatTurn(metrics.OutcomeFailed)
		return "", err
	}

	if _, err := s.transcripts.Append(user, chat.AssistantMessage(reply)); err != nil {
		return "", err
	}
	s.persist(user)
	metrics.IncChatTurn(metrics.OutcomeReplied)
	s.logger.Debug().Str("user", user).Int("length", len(reply)).Msg("turn completed")
	return reply, nil
}

// persist is best effort: the reply is already in memory and the next
// mutation rewrites the whole file.
func (s *Service) persist(user string) {
	if err := s.transcripts.Persist(user); err != nil {
		s.logger.Error().Err(err).Str("user", user).Msg("persist transcript failed")
	}
}

// Reset truncates the user's transcript back to the system message.
func (s *Service) Reset(_ context.Context, user string) error {
	user, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	unlock := s.lockUser(user)
	defer unlock()

	if err := s.transcripts.Reset(user); err != nil {
		return fmt.Errorf("reset transcript: %w", err)
	}
	s.logger.Info().Str("user", user).Msg("transcript reset")
	return nil
}

// UpdateConfig applies the editable persona fields, writes them to the config
// file and resets the caller's transcript so the new persona takes effect.
func (s *Service) UpdateConfig(ctx context.Context, user string, update persona.Update) (persona.Persona, error) {
	user, err := NormalizeUser(user)
	if err != nil {
		return persona.Persona{}, err
	}

	s.configMu.Lock()
	current := s.personas.Current()
	next := current.Apply(update)

	if s.writePersona != nil {
		if err := s.writePersona(next); err != nil {
			s.configMu.Unlock()
			metrics.IncConfigSave(false)
			return persona.Persona{}, fmt.Errorf("save config: %w", err)
		}
	}
	s.personas.Replace(next)
	s.configMu.Unlock()
	metrics.IncConfigSave(true)

	if next.Role != current.Role {
		s.transcripts.RefreshSystem(next.Role)
	}
	s.logger.Info().Str("user", user).Str("bot_name", next.Name).Str("model", next.Model).Msg("persona updated")

	if err := s.Reset(ctx, user); err != nil {
		return persona.Persona{}, err
	}
	return next.Public(), nil
}

// Config returns the non-secret persona snapshot.
func (s *Service) Config() persona.Persona {
	return s.personas.Current().Public()
}

// History returns the display list for user, never nil.
func (s *Service) History(_ context.Context, user string) ([]chat.DisplayMessage, error) {
	user, err := NormalizeUser(user)
	if err != nil {
		return nil, err
	}

	history := slices.Collect(s.transcripts.Display(user))
	if history == nil {
		history = []chat.DisplayMessage{}
	}
	return history, nil
}
