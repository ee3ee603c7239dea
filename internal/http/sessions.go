package http

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"expenses/internal/cache"
	"expenses/internal/session"
)

// SessionHeader carries the token returned by login.
const SessionHeader = "X-Session-Token"

const (
	defaultSessionIdle = 30 * time.Minute
	maxSessions        = 10000
)

// SessionFactory builds an empty, logged-out session.
type SessionFactory func() *session.Session

// sessionEntry serializes the requests of one client; a Session is not safe
// for concurrent use.
type sessionEntry struct {
	mu      sync.Mutex
	session *session.Session
}

// sessionManager maps tokens to sessions. Sessions idle for longer than
// maxIdle are dropped, as is the least recently used one beyond maxSessions.
type sessionManager struct {
	entries    *cache.LRUCache[*sessionEntry]
	newSession SessionFactory
}

func newSessionManager(factory SessionFactory, maxIdle time.Duration) *sessionManager {
	if maxIdle <= 0 {
		maxIdle = defaultSessionIdle
	}
	return &sessionManager{
		entries:    cache.NewIdleCache[*sessionEntry](maxSessions, maxIdle),
		newSession: factory,
	}
}

func (m *sessionManager) create() (string, *sessionEntry) {
	token := uuid.NewString()
	e := &sessionEntry{session: m.newSession()}
	m.entries.Set(token, e)
	return token, e
}

func (m *sessionManager) get(token string) (*sessionEntry, bool) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, false
	}
	return m.entries.Get(token)
}

func (m *sessionManager) remove(token string) {
	m.entries.Delete(token)
}

func (m *sessionManager) len() int {
	return m.entries.Size()
}
