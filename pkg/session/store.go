package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"product-rec-agent/internal/entity"
	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/internal/repository/contract"
)

const (
	DefaultKey = "product-rec-sessions"
	logModule  = "SESSION_STORE"
)

// Store owns the persisted session collection. The whole collection is written as one blob
// after every mutation, most recent session first.
type Store struct {
	repo   contract.BlobRepository
	key    string
	logger logger.ILogger
	now    func() time.Time

	mu       sync.Mutex
	sessions []entity.ChatSession
}

type StoreOption func(*Store)

func WithKey(key string) StoreOption {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(l logger.ILogger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(repo contract.BlobRepository, opts ...StoreOption) *Store {
	s := &Store{
		repo:     repo,
		key:      DefaultKey,
		logger:   logger.NewNopLogger(),
		now:      time.Now,
		sessions: []entity.ChatSession{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the collection once. Missing, unreadable or corrupt data yields an empty collection.
func (s *Store) Load(ctx context.Context) []entity.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = []entity.ChatSession{}

	raw, err := s.repo.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn(logModule, "Failed to read sessions, starting empty", map[string]interface{}{
			"key":   s.key,
			"error": err.Error(),
		})
		return s.copyLocked()
	}
	if len(raw) == 0 {
		return s.copyLocked()
	}

	var stored []entity.ChatSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn(logModule, "Discarding corrupt session data", map[string]interface{}{
			"key":   s.key,
			"error": err.Error(),
		})
		return s.copyLocked()
	}

	for _, sess := range stored {
		if sess.Id == "" {
			continue
		}
		sess.Messages = normalizeMessages(sess.Messages)
		s.sessions = append(s.sessions, sess)
	}
	return s.copyLocked()
}

// LoadAll returns the in-memory collection in stored order.
func (s *Store) LoadAll() []entity.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Upsert rebuilds the session from messages, replaces it in place or prepends it, and persists.
// Persistence failures are logged, never returned.
func (s *Store) Upsert(ctx context.Context, sessionId string, messages []entity.ChatMessage) entity.ChatSession {
	sess := BuildSession(sessionId, messages, s.now().UnixMilli())

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.sessions {
		if s.sessions[i].Id == sessionId {
			s.sessions[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		s.sessions = append([]entity.ChatSession{sess}, s.sessions...)
	}

	s.persistLocked(ctx)
	return sess
}

// Delete removes the session with the given id. It reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, sessionId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]entity.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Id != sessionId {
			kept = append(kept, sess)
		}
	}
	if len(kept) == len(s.sessions) {
		return false
	}

	s.sessions = kept
	s.persistLocked(ctx)
	return true
}

func (s *Store) Get(sessionId string) (entity.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.Id == sessionId {
			return cloneSession(sess), true
		}
	}
	return entity.ChatSession{}, false
}

// Search filters the collection case-insensitively on the preview and every message's content.
func (s *Store) Search(query string) []entity.ChatSession {
	return Filter(s.LoadAll(), query)
}

// Filter is Search over an arbitrary collection.
func Filter(sessions []entity.ChatSession, query string) []entity.ChatSession {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return sessions
	}

	out := []entity.ChatSession{}
	for _, sess := range sessions {
		if matches(sess, q) {
			out = append(out, sess)
		}
	}
	return out
}

func matches(sess entity.ChatSession, q string) bool {
	if strings.Contains(strings.ToLower(sess.FirstMessagePreview), q) {
		return true
	}
	for _, m := range sess.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			return true
		}
	}
	return false
}

func (s *Store) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(s.sessions)
	if err != nil {
		s.logger.Warn(logModule, "Failed to encode sessions", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := s.repo.Put(ctx, s.key, raw); err != nil {
		s.logger.Warn(logModule, "Failed to persist sessions", map[string]interface{}{
			"key":   s.key,
			"count": len(s.sessions),
			"error": err.Error(),
		})
	}
}

func (s *Store) copyLocked() []entity.ChatSession {
	out := make([]entity.ChatSession, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = cloneSession(sess)
	}
	return out
}

func cloneSession(sess entity.ChatSession) entity.ChatSession {
	sess.Messages = append([]entity.ChatMessage{}, sess.Messages...)
	return sess
}
