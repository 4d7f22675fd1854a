package session

import (
	"sync"

	"github.com/voxaid/voxaid/internal/logging"
)

// Registry tracks the live session per user. Exactly one session may be
// active per userID: starting a new one displaces the old, which the caller
// must close (terminate-older policy).
type Registry struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	maxUnflushed int
}

// NewRegistry creates a registry; maxUnflushed is passed to each new buffer.
func NewRegistry(maxUnflushed int) *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		maxUnflushed: maxUnflushed,
	}
}

// Start creates and registers a session for userID. If the user already had a
// live session it is removed from the registry and returned as displaced so
// the caller can run its teardown (final flush included).
func (r *Registry) Start(userID string) (sess, displaced *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	displaced = r.sessions[userID]
	if displaced != nil {
		logging.Warnf("[registry] user %s reconnected, terminating older session %s", userID, displaced.ID)
	}
	sess = New(userID, r.maxUnflushed)
	r.sessions[userID] = sess
	return sess, displaced
}

// Get returns the live session for userID, if any.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Remove deregisters a session. A newer session for the same user is left
// alone; only the exact instance is removed.
func (r *Registry) Remove(sess *Session) {
	if sess == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[sess.UserID]; ok && current.ID == sess.ID {
		delete(r.sessions, sess.UserID)
	}
}

// Active returns all live sessions.
func (r *Registry) Active() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
