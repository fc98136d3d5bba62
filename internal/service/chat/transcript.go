package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/ernie-chat/backend/internal/metrics"
	"github.com/zhouzirui/ernie-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ernie-chat/backend/pkg/utils"
)

// DefaultUser owns the conversation when a request names no user.
const DefaultUser = "default_user"

var ErrInvalidUser = errors.New("invalid user id")

// NormalizeUser maps an empty id to DefaultUser and any UUID form to its
// canonical string. Everything else is rejected, which also keeps ids safe to
// use in file names.
func NormalizeUser(user string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" || user == DefaultUser {
		return DefaultUser, nil
	}
	id, err := uuid.Parse(user)
	if err != nil {
		return "", ErrInvalidUser
	}
	return id.String(), nil
}

// TranscriptStore keeps one message list per user. Index 0 of every list is
// the system message carrying the current bot role; the rest is mirrored to a
// JSON file after every mutation.
type TranscriptStore struct {
	mu          sync.RWMutex
	transcripts map[string][]chat.Message
	historyPath string
	system      func() string
	now         func() time.Time
	logger      zerolog.Logger
}

// NewTranscriptStore creates a store. historyPath is the default user's file;
// other users get chat_history_<uuid>.json in the same directory. system
// supplies the current bot role whenever a transcript is seeded.
func NewTranscriptStore(historyPath string, system func() string, logger zerolog.Logger) *TranscriptStore {
	return &TranscriptStore{
		transcripts: make(map[string][]chat.Message),
		historyPath: historyPath,
		system:      system,
		now:         time.Now,
		logger:      logger.With().Str("component", "transcript").Logger(),
	}
}

func (s *TranscriptStore) pathFor(user string) string {
	if user == DefaultUser {
		return s.historyPath
	}
	return filepath.Join(filepath.Dir(s.historyPath), "chat_history_"+user+".json")
}

// Load (re)reads the user's persisted messages and places them after a fresh
// system message. A missing or malformed file yields an empty history.
func (s *TranscriptStore) Load(user string) error {
	user, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	loaded := s.readFile(user)

	s.mu.Lock()
	s.transcripts[user] = loaded
	s.mu.Unlock()
	return nil
}

func (s *TranscriptStore) readFile(user string) []chat.Message {
	seeded := []chat.Message{chat.SystemMessage(s.system())}

	path := s.pathFor(user)
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("read history failed, starting empty")
		}
		return seeded
	}

	var saved []chat.Message
	if err := json.Unmarshal(b, &saved); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("history file malformed, starting empty")
		return seeded
	}

	for _, msg := range saved {
		// The system entry is never persisted; anything else unknown is noise.
		if msg.Role != chat.RoleUser && msg.Role != chat.RoleAssistant {
			continue
		}
		seeded = append(seeded, msg)
	}
	return seeded
}

// ensureLocked returns the user's transcript, loading it on first access.
// Callers hold s.mu for writing.
func (s *TranscriptStore) ensureLocked(user string) []chat.Message {
	msgs, ok := s.transcripts[user]
	if !ok {
		msgs = s.readFile(user)
		s.transcripts[user] = msgs
	}
	return msgs
}

// Append adds messages and returns the new transcript length.
func (s *TranscriptStore) Append(user string, msgs ...chat.Message) (int, error) {
	user, err := NormalizeUser(user)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.ensureLocked(user), msgs...)
	s.transcripts[user] = list
	return len(list), nil
}

// Truncate drops everything past length n. The system message always stays.
func (s *TranscriptStore) Truncate(user string, n int) error {
	user, err := NormalizeUser(user)
	if err != nil {
		return err
	}
	if n < 1 {
		n = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.transcripts[user]
	if !ok {
		return nil
	}
	if n < len(list) {
		s.transcripts[user] = list[:n:n]
	}
	return nil
}

// Messages returns a copy of the full transcript, system message included.
// Users not yet in memory are read from their file without being cached, so
// lookups of unknown ids leave no trace.
func (s *TranscriptStore) Messages(user string) ([]chat.Message, error) {
	user, err := NormalizeUser(user)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	list, ok := s.transcripts[user]
	if ok {
		out := make([]chat.Message, len(list))
		copy(out, list)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	return s.readFile(user), nil
}

// loaded reports whether user has an in-memory transcript.
func (s *TranscriptStore) loaded(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.transcripts[user]
	return ok
}

// Persist overwrites the user's file with the transcript minus the system
// message.
func (s *TranscriptStore) Persist(user string) error {
	msgs, err := s.Messages(user)
	if err != nil {
		return err
	}
	user, _ = NormalizeUser(user)

	history := make([]chat.Message, 0, len(msgs))
	history = append(history, msgs[1:]...)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(history); err != nil {
		return err
	}

	if err := utils.WriteFileAtomic(s.pathFor(user), buf.Bytes()); err != nil {
		metrics.IncPersistFailure()
		return err
	}
	return nil
}

// Reset discards everything but a freshly seeded system message, then persists.
// A user with neither a transcript nor a file is already empty; nothing is
// written for it.
func (s *TranscriptStore) Reset(user string) error {
	user, err := NormalizeUser(user)
	if err != nil {
		return err
	}

	if !s.loaded(user) {
		if _, err := os.Stat(s.pathFor(user)); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	s.mu.Lock()
	s.transcripts[user] = []chat.Message{chat.SystemMessage(s.system())}
	s.mu.Unlock()

	metrics.IncReset()
	return s.Persist(user)
}

// RefreshSystem rewrites the system message of every loaded transcript.
func (s *TranscriptStore) RefreshSystem(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for user, list := range s.transcripts {
		if len(list) == 0 {
			s.transcripts[user] = []chat.Message{chat.SystemMessage(content)}
			continue
		}
		list[0] = chat.SystemMessage(content)
	}
}

// Display yields the user's transcript as front-end records. The sequence is
// recomputed on every range; timestamps are the time of that read.
func (s *TranscriptStore) Display(user string) iter.Seq[chat.DisplayMessage] {
	return func(yield func(chat.DisplayMessage) bool) {
		msgs, err := s.Messages(user)
		if err != nil {
			return
		}

		now := s.now()
		for _, msg := range msgs {
			if msg.Role == chat.RoleSystem {
				continue
			}
			if !yield(chat.ToDisplay(msg, now)) {
				return
			}
		}
	}
}
