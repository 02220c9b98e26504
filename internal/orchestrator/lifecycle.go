package orchestrator

import (
	"context"
	"time"

	"github.com/quantarax/relay/internal/audit"
	"github.com/quantarax/relay/internal/protocol"
)

// outcome captures how a run ended, for the audit entry written once
// the state machine reaches a terminal state.
type outcome struct {
	status string // "completed" | "cancelled" | "declined" | "error"
	kind   ErrorKind
	errMsg string
}

// teardown drives a session to its terminal state once its main flow
// returns err (nil for a clean finish): it notifies the peer with a
// best-effort Cancel frame when appropriate, always closes the
// transport, and reports the outcome through the event stream (§4.6
// Cancellation and failure semantics). Sender and Receiver render the
// same three terminal labels (Completed/Cancelled/Errored), so one
// implementation serves both state machines.
func teardown(ctx context.Context, sess *clientSession, err error) outcome {
	defer sess.closeTransport()

	if err == nil {
		sess.emitState("Completed")
		return outcome{status: "completed"}
	}

	kind := ErrorKindTransfer
	if re, ok := err.(*Error); ok {
		kind = re.Kind
	}

	if kind == ErrorKindCancelled {
		if t := sess.getTransport(); t != nil {
			_ = t.Send(ctx, protocol.NewCancel(sess.reason()))
		}
		sess.emitState("Cancelled")
		return outcome{status: "cancelled", kind: kind, errMsg: err.Error()}
	}

	// FileDecline is itself the terminal signal: the state machine that
	// hit this branch has already emitted its own state for it
	// ("Declined" on the sender, "Cancelled" on the receiver) and, if it
	// was the one declining, already sent the FileDecline frame. No further
	// Cancel notification is needed.
	if kind == ErrorKindPeerRejected {
		return outcome{status: "declined", kind: kind, errMsg: err.Error()}
	}

	if t := sess.getTransport(); t != nil {
		_ = t.Send(ctx, protocol.NewCancel(string(kind)))
	}
	sess.emitError(kind, err.Error())
	sess.emitState("Errored")
	return outcome{status: "error", kind: kind, errMsg: err.Error()}
}

// writeAudit appends the finished transfer to the audit log, if one is
// configured. It is deliberately best-effort: a failed audit write
// must never mask the transfer's own outcome.
func (o *Orchestrator) writeAudit(sess *clientSession, fileCount int, totalBytes uint64, started time.Time, oc outcome) {
	if o.audit == nil {
		return
	}
	_ = o.audit.WriteEntry(audit.Entry{
		Timestamp:  started,
		SessionID:  sess.ID.String(),
		Role:       string(sess.Role),
		Code:       sess.Code,
		Transport:  sess.kind.String(),
		FileCount:  fileCount,
		TotalBytes: totalBytes,
		Status:     oc.status,
		ErrorKind:  string(oc.kind),
		Error:      oc.errMsg,
		Duration:   time.Since(started).Seconds(),
	})
}
