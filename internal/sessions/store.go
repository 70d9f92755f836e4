// Package sessions persists per-conversation message history. A session is
// an append-only transcript keyed by "channel:chat_id"; the agent loop loads
// it, appends one user and one assistant entry per turn, and saves.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aisbot/aisbot/internal/config"
	"github.com/aisbot/aisbot/internal/observability"
	"github.com/aisbot/aisbot/pkg/models"
)

// ErrNotFound is returned by Get for keys that have no session.
var ErrNotFound = errors.New("session not found")

// Session is the transcript for one conversation.
type Session struct {
	Key      string                  `json:"key"`
	Messages []models.SessionMessage `json:"messages"`
	Created  time.Time               `json:"created"`
	Updated  time.Time               `json:"updated"`
}

// NewSession creates an empty session for a key.
func NewSession(key string) *Session {
	now := time.Now()
	return &Session{Key: key, Created: now, Updated: now}
}

// AddMessage appends one entry to the transcript.
func (s *Session) AddMessage(role, content string) {
	s.Messages = append(s.Messages, models.SessionMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	s.Updated = time.Now()
}

// History returns a copy of the transcript.
func (s *Session) History() []models.SessionMessage {
	out := make([]models.SessionMessage, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Store is the session persistence contract.
type Store interface {
	// GetOrCreate loads the session for key, creating an empty one when
	// none exists yet.
	GetOrCreate(ctx context.Context, key string) (*Session, error)

	// Get loads an existing session; ErrNotFound when absent.
	Get(ctx context.Context, key string) (*Session, error)

	// Save persists the session's current transcript.
	Save(ctx context.Context, session *Session) error

	// List returns all known session keys, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes a session and its transcript.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// New builds the configured store: "sqlite" opens the archive database,
// "memory" keeps everything in process, anything else is the default file
// store under <workspace>/sessions.
func New(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (Store, error) {
	switch cfg.Sessions.Backend {
	case "sqlite":
		store, err := NewSQLiteStore(cfg.SessionArchivePath(), logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("open session archive: %w", err)
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return NewFileStore(cfg.SessionsDir(), logger, metrics), nil
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeKey maps a session key to a filesystem-safe name.
func sanitizeKey(key string) string {
	safe := unsafeKeyChars.ReplaceAllString(key, "_")
	if safe == "" {
		return "session"
	}
	return safe
}
