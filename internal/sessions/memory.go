package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps sessions in process memory. Used for tests and for runs
// that should leave no transcript behind.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[key]; ok {
		return cloneSession(session), nil
	}
	session := NewSession(key)
	m.sessions[key] = cloneSession(session)
	return session, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.Key == "" {
		return fmt.Errorf("session key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Key] = cloneSession(session)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneSession(s *Session) *Session {
	clone := &Session{Key: s.Key, Created: s.Created, Updated: s.Updated}
	clone.Messages = s.History()
	return clone
}
