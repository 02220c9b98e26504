package rendezvous

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Peer is one side of a signaling session (§3, server-side Peer).
type Peer struct {
	Conn       *websocket.Conn
	Role       Role
	Info       PeerInfo
	WantsRelay bool

	writeMu sync.Mutex
}

func newPeer(conn *websocket.Conn, role Role, info PeerInfo) *Peer {
	return &Peer{Conn: conn, Role: role, Info: info}
}

// writeJSON serializes and writes a text frame, serialized against
// concurrent writers: this peer's own handler and the other peer's
// handler (which forwards frames to this connection) can both write
// to it at the same time.
func (p *Peer) writeJSON(v interface{}) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Conn.WriteJSON(v)
}

func (p *Peer) writeBinary(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.Conn.WriteMessage(websocket.BinaryMessage, data)
}

// Session is one pending or active code, server-side (§3).
type Session struct {
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time

	mu       sync.Mutex
	sender   *Peer
	receiver *Peer

	// relayActive becomes true once both peers' wants_relay flags are
	// set and relay_active has been sent; it never reverts (§3).
	relayActive bool

	// relayDone is completed by the sender's handler when it finishes
	// forwarding, and awaited by the receiver's handler, so the
	// receiver's connection does not close mid-relay (§9 Design Notes).
	relayDone chan struct{}
	closeOnce sync.Once

	// limiter is shared by both forwarding pumps so aggregate
	// throughput across both directions is bounded (§4.5).
	limiterOnce sync.Once
	limiter     *rate.Limiter
}

func newSession(code string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		relayDone: make(chan struct{}),
	}
}

// peerSlot returns the pointer to the slot for role, so callers can
// read/write it under the session lock.
func (s *Session) peerSlot(role Role) **Peer {
	if role == RoleSender {
		return &s.sender
	}
	return &s.receiver
}

// Admit installs p in its role's slot if empty. Returns false if the
// slot is already occupied (CODE_IN_USE).
func (s *Session) Admit(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.peerSlot(p.Role)
	if *slot != nil {
		return false
	}
	*slot = p
	return true
}

// Peers returns both peers currently installed (either may be nil).
func (s *Session) Peers() (sender, receiver *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender, s.receiver
}

// Other returns the peer opposite role, or nil if not yet joined.
func (s *Session) Other(role Role) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == RoleSender {
		return s.receiver
	}
	return s.sender
}

// Remove clears the slot held by p. Returns true if both slots are now
// empty (the session can be garbage collected).
func (s *Session) Remove(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == p {
		s.sender = nil
	}
	if s.receiver == p {
		s.receiver = nil
	}
	return s.sender == nil && s.receiver == nil
}

// Empty reports whether both slots are currently empty.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sender == nil && s.receiver == nil
}

// RequestRelay sets p's wants_relay flag and reports whether both
// sides now want relay (the transition into relay_active).
func (s *Session) RequestRelay(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.WantsRelay = true
	return s.sender != nil && s.receiver != nil && s.sender.WantsRelay && s.receiver.WantsRelay
}

// EnterRelay marks the session as actively relaying. Monotonic: once
// set it is never cleared (§3).
func (s *Session) EnterRelay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayActive = true
}

// RelayActive reports whether the session has entered the binary
// forwarding phase.
func (s *Session) RelayActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayActive
}

// MarkRelayDone signals relayDone exactly once. The sender's handler
// calls this when it finishes forwarding; the receiver's handler awaits
// it before tearing its connection down.
func (s *Session) MarkRelayDone() {
	s.closeOnce.Do(func() { close(s.relayDone) })
}

// RelayDone returns the channel the receiver's handler waits on.
func (s *Session) RelayDone() <-chan struct{} {
	return s.relayDone
}

// Expired reports whether the session's TTL has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
