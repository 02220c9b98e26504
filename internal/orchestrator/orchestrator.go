// Package orchestrator implements the client-side transfer engine: the
// sender and receiver state machines, the progress event stream, and
// the imperative command surface (start_send, start_receive,
// accept_transfer, cancel_transfer) that a UI or CLI drives (§4.6).
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/quantarax/relay/internal/audit"
	"github.com/quantarax/relay/internal/codewords"
	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/rendezvous"
)

// Orchestrator owns every in-flight client session and the single
// progress-event publisher they all report through (§6 Client command
// surface: "events are dispatched on a single stream keyed by session
// id").
type Orchestrator struct {
	RendezvousAddr string
	DownloadDir    string

	logger  *observability.Logger
	audit   *audit.Log
	metrics *observability.Metrics
	events  *Publisher

	mu       sync.Mutex
	sessions map[uuid.UUID]*clientSession
}

// New builds an Orchestrator. auditLog and metrics may both be nil to
// disable audit logging and Prometheus instrumentation respectively —
// neither is core to a transfer's correctness.
func New(rendezvousAddr, downloadDir string, logger *observability.Logger, auditLog *audit.Log, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		RendezvousAddr: rendezvousAddr,
		DownloadDir:    downloadDir,
		logger:         logger,
		audit:          auditLog,
		metrics:        metrics,
		events:         NewPublisher(64),
		sessions:       make(map[uuid.UUID]*clientSession),
	}
}

// Subscribe opens a feed of progress events, optionally scoped to one
// session (pass uuid.Nil for every session).
func (o *Orchestrator) Subscribe(sessionID uuid.UUID) *Subscription {
	return Subscribe(o.events, sessionID)
}

// Unsubscribe closes a feed opened with Subscribe.
func (o *Orchestrator) Unsubscribe(sub *Subscription) {
	o.events.Unsubscribe(sub)
}

// SendResult is what start_send returns to its caller (§6).
type SendResult struct {
	Code      string
	SessionID uuid.UUID
}

// StartSend begins offering filePaths to whoever redeems the
// generated transfer code. It returns as soon as a code has been
// minted; the rest of the sender state machine runs in the
// background, reporting through the event stream.
func (o *Orchestrator) StartSend(ctx context.Context, filePaths []string) (SendResult, error) {
	code, err := codewords.Generate()
	if err != nil {
		return SendResult{}, newError(ErrorKindTransfer, err)
	}

	sess := newClientSession(rendezvous.RoleSender, code.String())
	sess.publish = o.events.Publish
	o.addSession(sess)

	go o.runSend(ctx, sess, filePaths)

	return SendResult{Code: code.String(), SessionID: sess.ID}, nil
}

// StartReceive begins redeeming a transfer code. It returns as soon as
// the code has been parsed; registration with the rendezvous server and
// the rest of the flow, up to and including the user's eventual
// accept/decline, happen in the background. The session keeps the
// parsed code's canonical rendering, so a code typed in another case
// still names the same rendezvous session and PAKE password.
func (o *Orchestrator) StartReceive(ctx context.Context, code string) (uuid.UUID, error) {
	parsed, err := codewords.Parse(code)
	if err != nil {
		return uuid.Nil, newError(ErrorKindTransfer, err)
	}

	sess := newClientSession(rendezvous.RoleReceiver, parsed.String())
	sess.publish = o.events.Publish
	o.addSession(sess)

	go o.runReceive(ctx, sess)

	return sess.ID, nil
}

// AcceptTransfer resolves a receiver's AwaitUserDecision suspension
// point with the user's choice.
func (o *Orchestrator) AcceptTransfer(sessionID uuid.UUID, accept bool) error {
	sess := o.getSession(sessionID)
	if sess == nil {
		return newError(ErrorKindTransfer, fmt.Errorf("unknown session %s", sessionID))
	}
	select {
	case sess.acceptCh <- accept:
		return nil
	default:
		return newError(ErrorKindTransfer, fmt.Errorf("session %s is not awaiting a decision", sessionID))
	}
}

// CancelTransfer trips a session's cancellation flag (§4.6
// Cancellation). The running state machine observes it at its next
// suspension point and tears down.
func (o *Orchestrator) CancelTransfer(sessionID uuid.UUID) error {
	sess := o.getSession(sessionID)
	if sess == nil {
		return newError(ErrorKindTransfer, fmt.Errorf("unknown session %s", sessionID))
	}
	sess.cancel("user")
	// A running state machine is almost always blocked in a transport
	// Recv with no context deadline; closing the socket here is what
	// actually wakes it up to observe the flag (§4.6 Cancellation: a
	// cancellation token checked at every suspension point).
	sess.closeTransport()
	return nil
}

func (o *Orchestrator) addSession(s *clientSession) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[s.ID] = s
}

func (o *Orchestrator) getSession(id uuid.UUID) *clientSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[id]
}

func (o *Orchestrator) removeSession(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, id)
}
