package orchestrator

import "fmt"

// ErrorKind buckets a transfer failure by cause so the UI and the
// audit log can react differently (retry, surface to user, alert) per
// kind rather than parsing error strings (§7).
type ErrorKind string

const (
	ErrorKindCrypto       ErrorKind = "crypto"
	ErrorKindNetwork      ErrorKind = "network"
	ErrorKindProtocol     ErrorKind = "protocol"
	ErrorKindTransfer     ErrorKind = "transfer"
	ErrorKindSignaling    ErrorKind = "signaling"
	ErrorKindCancelled    ErrorKind = "cancelled"
	ErrorKindPeerRejected ErrorKind = "peer_rejected"
)

// Error wraps an underlying error with the Kind a caller should act
// on. All orchestrator-surfaced errors are of this type.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func wrapf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
