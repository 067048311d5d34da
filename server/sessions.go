package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/rbot/host"
)

// ErrTooManySessions is returned when the session limit is reached.
var ErrTooManySessions = errors.New("server: too many sessions")

// Session is one bot being played through the service.
type Session struct {
	ID      string
	Name    string
	Program string
	Created time.Time

	worker   *Worker
	ticks    atomic.Int64
	lastUsed atomic.Int64 // unix nanoseconds
}

// Ticks returns the number of ticks played.
func (s *Session) Ticks() int64 { return s.ticks.Load() }

func (s *Session) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

func (s *Session) idleSince(cutoff time.Time) bool {
	return s.lastUsed.Load() < cutoff.UnixNano()
}

// SessionStore manages sessions and their workers.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	max      int
}

// NewSessionStore creates a store holding at most max sessions (0 means
// no limit).
func NewSessionStore(max int) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		max:      max,
	}
}

// Create starts a worker for bot and registers a new session.
func (s *SessionStore) Create(name, program string, bot *host.Bot) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && len(s.sessions) >= s.max {
		return nil, ErrTooManySessions
	}

	now := time.Now()
	session := &Session{
		ID:      uuid.NewString(),
		Name:    name,
		Program: program,
		Created: now,
		worker:  NewWorker(bot),
	}
	session.touch(now)
	s.sessions[session.ID] = session
	return session, nil
}

// Get retrieves a session by ID and marks it used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		session.touch(time.Now())
	}
	return session, ok
}

// Len returns the number of open sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Destroy removes a session and stops its worker.
func (s *SessionStore) Destroy(id string) (*Session, bool) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		session.worker.Stop()
	}
	return session, ok
}

// Sweep closes sessions that have not been used within ttl.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	return len(s.evict(s.idle(cutoff), cutoff))
}

// idle lists the sessions last used before cutoff.
func (s *SessionStore) idle(cutoff time.Time) []string {
	var ids []string
	s.mu.RLock()
	for id, session := range s.sessions {
		if session.idleSince(cutoff) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	return ids
}

// evict removes the listed sessions that are still idle; a Get between
// idle and evict keeps a session open.
func (s *SessionStore) evict(ids []string, cutoff time.Time) []*Session {
	var closed []*Session
	s.mu.Lock()
	for _, id := range ids {
		session, ok := s.sessions[id]
		if !ok || !session.idleSince(cutoff) {
			continue
		}
		delete(s.sessions, id)
		closed = append(closed, session)
	}
	s.mu.Unlock()

	for _, session := range closed {
		session.worker.Stop()
		log.Infof("closed idle session %s", session.ID)
	}
	return closed
}

// StartSweeper runs periodic idle sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// CloseAll destroys every session.
func (s *SessionStore) CloseAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	for _, id := range ids {
		s.Destroy(id)
	}
}
