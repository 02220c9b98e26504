package rendezvous

import (
	"testing"
	"time"
)

func TestSessionAdmitRejectsDuplicateRole(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	p1 := newPeer(nil, RoleSender, PeerInfo{})
	p2 := newPeer(nil, RoleSender, PeerInfo{})

	if !s.Admit(p1) {
		t.Fatal("first sender admission should succeed")
	}
	if s.Admit(p2) {
		t.Fatal("second sender admission should fail: slot occupied")
	}
}

func TestSessionRemoveReportsEmpty(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	sender := newPeer(nil, RoleSender, PeerInfo{})
	receiver := newPeer(nil, RoleReceiver, PeerInfo{})
	s.Admit(sender)
	s.Admit(receiver)

	if s.Remove(sender) {
		t.Fatal("should not be empty with receiver still present")
	}
	if !s.Remove(receiver) {
		t.Fatal("should be empty once both peers removed")
	}
	if !s.Empty() {
		t.Fatal("Empty() should report true")
	}
}

func TestSessionRequestRelayRequiresBothSides(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	sender := newPeer(nil, RoleSender, PeerInfo{})
	receiver := newPeer(nil, RoleReceiver, PeerInfo{})
	s.Admit(sender)
	s.Admit(receiver)

	if s.RequestRelay(sender) {
		t.Fatal("transition should not trigger until both sides request relay")
	}
	if !s.RequestRelay(receiver) {
		t.Fatal("transition should trigger once both sides request relay")
	}
	// A third call (e.g. a duplicate message) must not re-report a transition.
	if s.RequestRelay(receiver) {
		t.Fatal("transition must only fire once")
	}
}

func TestSessionRelayActiveMonotonic(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	if s.RelayActive() {
		t.Fatal("new session should not start in relay mode")
	}
	s.EnterRelay()
	if !s.RelayActive() {
		t.Fatal("EnterRelay should set RelayActive")
	}
}

func TestSessionMarkRelayDoneIdempotent(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	done := s.RelayDone()

	s.MarkRelayDone()
	s.MarkRelayDone() // must not panic on double-close

	select {
	case <-done:
	default:
		t.Fatal("RelayDone channel should be closed")
	}
}

func TestSessionExpired(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	if s.Expired(time.Now()) {
		t.Fatal("freshly created session should not be expired")
	}
	if !s.Expired(s.ExpiresAt.Add(time.Second)) {
		t.Fatal("session should be expired after its TTL")
	}
}

func TestSessionOtherReturnsOppositeRole(t *testing.T) {
	s := newSession("4-cinder-marsh", time.Minute)
	sender := newPeer(nil, RoleSender, PeerInfo{})
	s.Admit(sender)

	if s.Other(RoleReceiver) != sender {
		t.Fatal("Other(RoleReceiver) should return the sender")
	}
	if s.Other(RoleSender) != nil {
		t.Fatal("Other(RoleSender) should be nil until a receiver joins")
	}
}
