package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/pkg/cryptox"
)

// Session is one browser session. Its mutex serialises every auth operation
// on it, so concurrent requests carrying the same cookie run one at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	state    domain.SessionState
	identity domain.Identity
	guard    *SessionGuard

	// lastSeen is unix nanos, kept outside mu so the registry can read it
	// while an operation holds the session.
	lastSeen atomic.Int64
}

// NewSession returns an anonymous session owning guard. A nil guard gets
// the defaults.
func NewSession(id string, guard *SessionGuard, now time.Time) *Session {
	if guard == nil {
		guard = NewSessionGuard()
	}
	s := &Session{
		ID:        id,
		CreatedAt: now,
		state:     domain.StateAnonymous,
		guard:     guard,
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// State returns where the session is in the login flow.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated is true only in StateAuthenticated. A session that must
// change its password is not authenticated yet.
func (s *Session) IsAuthenticated() bool {
	return s.State() == domain.StateAuthenticated
}

// CurrentUser returns the signed-in identity.
func (s *Session) CurrentUser() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateAuthenticated {
		return domain.Identity{}, false
	}
	return s.identity, true
}

// Snapshot returns state and identity together. The identity is also set
// in StateMustChangePassword.
func (s *Session) Snapshot() (domain.SessionState, domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.identity
}

// Guard returns the session's failure counter.
func (s *Session) Guard() *SessionGuard { return s.guard }

// RequireAuthenticated returns ErrPasswordExpired for a session that still
// has to change its password and ErrNotAuthenticated for an anonymous one.
func (s *Session) RequireAuthenticated() (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case domain.StateAuthenticated:
		return s.identity, nil
	case domain.StateMustChangePassword:
		return domain.Identity{}, ErrPasswordExpired
	}
	return domain.Identity{}, ErrNotAuthenticated
}

func (s *Session) setAnonymousLocked() {
	s.state = domain.StateAnonymous
	s.identity = domain.Identity{}
}

// SessionRegistry holds live sessions in memory keyed by ID.
type SessionRegistry struct {
	// IdleTimeout evicts sessions not seen for this long. Zero disables.
	IdleTimeout time.Duration
	// TTL evicts sessions this long after creation. Zero disables.
	TTL time.Duration

	GlobalMaxAttempts  int
	GlobalLockDuration time.Duration

	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session_not_found")

func (r *SessionRegistry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Create starts a new anonymous session with a fresh SessionGuard.
func (r *SessionRegistry) Create() (*Session, error) {
	id, err := cryptox.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := r.now()
	guard := &SessionGuard{
		MaxAttempts:  r.GlobalMaxAttempts,
		LockDuration: r.GlobalLockDuration,
		Now:          r.Now,
	}
	sess := NewSession(id, guard, now)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*Session)
	}
	r.sessions[id] = sess
	return sess, nil
}

// Get returns a live session and marks it as seen. Expired sessions are
// dropped and reported as ErrSessionNotFound.
func (r *SessionRegistry) Get(id string) (*Session, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if r.expired(sess, now) {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}

	sess.lastSeen.Store(now.UnixNano())
	return sess, nil
}

// Rotate moves sess to a fresh ID and returns the replacement, which keeps
// the state, identity and guard. The old ID stops resolving. Call it after
// a successful login so a cookie planted before sign-in is worthless.
func (r *SessionRegistry) Rotate(sess *Session) (*Session, error) {
	id, err := cryptox.NewSessionID()
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	next := &Session{
		ID:        id,
		CreatedAt: sess.CreatedAt,
		state:     sess.state,
		identity:  sess.identity,
		guard:     sess.guard,
	}
	sess.setAnonymousLocked()
	sess.mu.Unlock()
	next.lastSeen.Store(r.now().UnixNano())

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions == nil {
		r.sessions = make(map[string]*Session)
	}
	delete(r.sessions, sess.ID)
	r.sessions[id] = next
	return next, nil
}

// Delete forgets a session. Deleting an unknown ID is a no-op.
func (r *SessionRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Sweep evicts every expired session and returns how many went.
func (r *SessionRegistry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for id, sess := range r.sessions {
		if r.expired(sess, now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of sessions held, expired or not.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) expired(sess *Session, now time.Time) bool {
	if r.TTL > 0 && !now.Before(sess.CreatedAt.Add(r.TTL)) {
		return true
	}
	if r.IdleTimeout > 0 {
		seen := time.Unix(0, sess.lastSeen.Load())
		if !now.Before(seen.Add(r.IdleTimeout)) {
			return true
		}
	}
	return false
}
