package rendezvous

import (
	"errors"
	"sync"
	"time"
)

// ErrAtCapacity is returned when a new code would exceed max_sessions.
var ErrAtCapacity = errors.New("rendezvous: session registry at capacity")

// Registry is the server's session map (§3, §4.5). A read/write mutex
// guards the map itself; each Session additionally owns its own mutex
// for slot mutation, per the concurrency contract in §5.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	ttl         time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry(maxSessions int, ttl time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		ttl:         ttl,
	}
}

// GetOrCreate returns the session for code, creating it if absent. It
// enforces max_sessions on creation only — an existing session is
// always returned regardless of current registry size, since capacity
// is a cap on the number of distinct pending codes, not occupants.
func (r *Registry) GetOrCreate(code string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[code]; ok {
		return s, nil
	}
	if len(r.sessions) >= r.maxSessions {
		return nil, ErrAtCapacity
	}
	s := newSession(code, r.ttl)
	r.sessions[code] = s
	return s, nil
}

// Remove deletes code from the registry.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// Count reports the number of live codes. It can transiently read 0 in
// the narrow window between both peers leaving and the next cleanup
// pass — tests must allow that (§9 Open Question).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cleanup scans for sessions whose TTL has elapsed and removes them,
// closing both sockets. Runs every 60 s per §4.5.
func (r *Registry) Cleanup(now time.Time) {
	r.mu.Lock()
	var expired []*Session
	for code, s := range r.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(r.sessions, code)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		sender, receiver := s.Peers()
		if sender != nil {
			_ = sender.Conn.Close()
		}
		if receiver != nil {
			_ = receiver.Conn.Close()
		}
	}
}

// RunCleanup starts the background TTL sweep and blocks until stop is
// closed. Call it in its own goroutine.
func (r *Registry) RunCleanup(stop <-chan struct{}) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.Cleanup(now)
		}
	}
}

// removeIfEmpty deletes code from the registry if its session now has
// no occupants in either slot. Called after a peer disconnects during
// signaling (§3: "a session is removable once both slots are empty").
func (r *Registry) removeIfEmpty(code string, s *Session) {
	if !s.Empty() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[code]; ok && cur == s {
		delete(r.sessions, code)
	}
}
