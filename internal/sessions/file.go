package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aisbot/aisbot/internal/observability"
)

// FileStore keeps one JSON transcript per session under a directory.
// Sessions are loaded from disk on first touch and cached; Save rewrites
// the whole file through a temp-and-rename.
type FileStore struct {
	dir     string
	logger  *observability.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	cache map[string]*Session
}

// NewFileStore creates a store rooted at dir. Logger and metrics may be nil.
func NewFileStore(dir string, logger *observability.Logger, metrics *observability.Metrics) *FileStore {
	return &FileStore{
		dir:     dir,
		logger:  logger,
		metrics: metrics,
		cache:   make(map[string]*Session),
	}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// GetOrCreate returns the cached session for key, reloading it from disk or
// creating a fresh one when the cache misses.
func (s *FileStore) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.cache[key]; ok {
		return session, nil
	}

	session, err := s.load(key)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		session = NewSession(key)
	}
	s.cache[key] = session
	return session, nil
}

// Get loads an existing session without creating one.
func (s *FileStore) Get(ctx context.Context, key string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.cache[key]; ok {
		return session, nil
	}
	session, err := s.load(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.cache[key] = session
	return session, nil
}

// Save writes the transcript to disk.
func (s *FileStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.Key == "" {
		return fmt.Errorf("session key is required")
	}

	start := time.Now()
	err := s.write(session)
	s.record("save", err, start)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[session.Key] = session
	s.mu.Unlock()
	return nil
}

// List returns the keys of every persisted session, sorted. Keys are
// recovered from the transcript contents, not the sanitized filenames.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var session Session
		if err := json.Unmarshal(data, &session); err != nil || session.Key == "" {
			continue
		}
		keys = append(keys, session.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the transcript file and drops the cache entry.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) load(key string) (*Session, error) {
	start := time.Now()
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.record("load", err, start)
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.record("load", err, start)
		return nil, fmt.Errorf("parse session %s: %w", key, err)
	}
	if session.Key == "" {
		session.Key = key
	}
	s.record("load", nil, start)
	return &session, nil
}

func (s *FileStore) write(session *Session) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize session %s: %w", session.Key, err)
	}

	path := s.path(session.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) record(op string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreOperation(op, "file", status, time.Since(start).Seconds())
}
