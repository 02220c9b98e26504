package orchestrator

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/quantarax/relay/internal/crypto"
	"github.com/quantarax/relay/internal/protocol"
	"github.com/quantarax/relay/internal/rendezvous"
	"github.com/quantarax/relay/internal/transport"
)

// clientSession is the state the spec's client-side Session data model
// names: id, role, code, derived key, transport, file list, current
// file index, cancellation flag, progress tracker (§3).
type clientSession struct {
	ID   uuid.UUID
	Role rendezvous.Role
	Code string

	key [32]byte

	mu        sync.Mutex
	transport transport.Transport
	kind      transport.Kind

	files            []protocol.FileDescriptor
	currentFileIndex int

	cancelled    atomic.Bool
	cancelReason atomic.Value // string

	tracker *Tracker
	publish func(ProgressEvent)

	// acceptCh resolves the receiver's accept_transfer(accept) call; a
	// single-shot channel per §4.6 AwaitUserDecision.
	acceptCh chan bool
}

func newClientSession(role rendezvous.Role, code string) *clientSession {
	return &clientSession{
		ID:       uuid.New(),
		Role:     role,
		Code:     code,
		acceptCh: make(chan bool, 1),
	}
}

func (s *clientSession) setTransport(t transport.Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
	s.kind = t.Kind()
}

func (s *clientSession) getTransport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *clientSession) cancel(reason string) {
	if s.cancelled.CompareAndSwap(false, true) {
		s.cancelReason.Store(reason)
	}
}

func (s *clientSession) isCancelled() bool {
	return s.cancelled.Load()
}

func (s *clientSession) reason() string {
	r, _ := s.cancelReason.Load().(string)
	return r
}

func (s *clientSession) emitState(state string) {
	if s.publish == nil {
		return
	}
	s.publish(ProgressEvent{SessionID: s.ID, Type: EventStateChanged, State: state})
}

func (s *clientSession) emitError(kind ErrorKind, msg string) {
	if s.publish == nil {
		return
	}
	s.publish(ProgressEvent{SessionID: s.ID, Type: EventError, ErrorKind: kind, ErrorMessage: msg})
}

func (s *clientSession) emitTransport(kind transport.Kind) {
	if s.publish == nil {
		return
	}
	s.publish(ProgressEvent{SessionID: s.ID, Type: EventConnectionTypeChanged, Transport: kind.String()})
}

func (s *clientSession) emitProgress(currentFile string) {
	if s.publish == nil || s.tracker == nil {
		return
	}
	transferred, total, speed, eta, percent := s.tracker.Snapshot()
	s.publish(ProgressEvent{
		SessionID:        s.ID,
		Type:             EventTransferProgress,
		BytesTransferred: transferred,
		BytesTotal:       total,
		SpeedBps:         speed,
		ETASeconds:       eta,
		CurrentFile:      currentFile,
		Percent:          percent,
	})
}

// closeTransport tears down the underlying connection;
// called on completion, cancellation, and error alike so a socket is
// never leaked (§5 Cancellation semantics).
func (s *clientSession) closeTransport() {
	if t := s.getTransport(); t != nil {
		_ = t.Close()
	}
}

// sessionKeys bundles what Streaming needs beyond the shared key: the
// sender's own nonce counter (receivers decrypt using the nonce the
// sender already put on the wire, so they need none of their own).
type sessionKeys struct {
	key   [32]byte
	nonce *crypto.NonceCounter
}
