package rates

import (
	"context"
	"sync"
	"time"
)

// memorySession is a Session held in process memory.
type memorySession struct {
	mu         sync.RWMutex
	data       map[string][]byte
	lastAccess time.Time
}

func newMemorySession() *memorySession {
	return &memorySession{data: make(map[string][]byte), lastAccess: time.Now()}
}

func (m *memorySession) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *memorySession) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memorySession) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memorySession) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// MemorySessions is an in-process SessionStore. Sessions idle for longer
// than the configured TTL are dropped the next time any session is opened.
type MemorySessions struct {
	mu        sync.Mutex
	sessions  map[string]*memorySession
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewMemorySessions creates a MemorySessions store. A ttl of zero keeps
// sessions forever.
func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Open returns the session for sessionID, creating it on first use.
func (s *MemorySessions) Open(_ context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	session, ok := s.sessions[sessionID]
	if !ok {
		session = newMemorySession()
		s.sessions[sessionID] = session
	}
	session.mu.Lock()
	session.lastAccess = now
	session.mu.Unlock()
	return session, nil
}

// Len returns the number of live sessions.
func (s *MemorySessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// sweep runs at most once a minute; caller holds s.mu.
func (s *MemorySessions) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now
	for id, session := range s.sessions {
		session.mu.RLock()
		idle := now.Sub(session.lastAccess)
		session.mu.RUnlock()
		if idle > s.ttl {
			delete(s.sessions, id)
		}
	}
}

var _ SessionStore = (*MemorySessions)(nil)
