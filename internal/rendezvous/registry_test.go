package rendezvous

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryGetOrCreateReturnsSameSession(t *testing.T) {
	r := NewRegistry(10, time.Minute)
	s1, err := r.GetOrCreate("4-cinder-marsh")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	s2, err := r.GetOrCreate("4-cinder-marsh")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if s1 != s2 {
		t.Fatal("GetOrCreate should return the same session for the same code")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistryEnforcesCapacityOnNewCodesOnly(t *testing.T) {
	r := NewRegistry(1, time.Minute)
	if _, err := r.GetOrCreate("4-cinder-marsh"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	// Re-fetching the existing code must succeed even at capacity.
	if _, err := r.GetOrCreate("4-cinder-marsh"); err != nil {
		t.Fatalf("GetOrCreate (existing): %v", err)
	}
	if _, err := r.GetOrCreate("9-quartz-ridge"); !errors.Is(err, ErrAtCapacity) {
		t.Fatalf("GetOrCreate (new, over capacity) = %v, want ErrAtCapacity", err)
	}
}

func TestRegistryCleanupRemovesExpired(t *testing.T) {
	r := NewRegistry(10, time.Millisecond)
	if _, err := r.GetOrCreate("4-cinder-marsh"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	r.Cleanup(time.Now().Add(time.Hour))
	if r.Count() != 0 {
		t.Fatalf("Count() = %d after cleanup, want 0", r.Count())
	}
}

func TestRegistryRemoveIfEmptyKeepsOccupiedSessions(t *testing.T) {
	r := NewRegistry(10, time.Minute)
	s, err := r.GetOrCreate("4-cinder-marsh")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	sender := newPeer(nil, RoleSender, PeerInfo{})
	s.Admit(sender)

	r.removeIfEmpty("4-cinder-marsh", s)
	if r.Count() != 1 {
		t.Fatal("occupied session should not be removed")
	}

	s.Remove(sender)
	r.removeIfEmpty("4-cinder-marsh", s)
	if r.Count() != 0 {
		t.Fatal("empty session should be removed")
	}
}
