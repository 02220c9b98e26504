package orchestrator

import (
	"context"
	"fmt"

	"github.com/quantarax/relay/internal/protocol"
	"github.com/quantarax/relay/internal/transport"
)

// netErr classifies a transport-level error: if this side's own
// cancellation flag is already set, the error is the expected result
// of CancelTransfer closing the socket out from under a blocked
// Recv/Send, not a genuine network failure.
func netErr(sess *clientSession, err error) error {
	if sess.isCancelled() {
		return newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
	}
	return newError(ErrorKindNetwork, err)
}

// recvControl reads the next non-Ping/Pong message. Ping/Pong may be
// interleaved anywhere in the stream (§4.2), so every control-message
// wait point tolerates and discards them rather than mistaking one for
// a protocol violation.
func recvControl(ctx context.Context, tr transport.Transport) (protocol.Message, error) {
	for {
		m, err := tr.Recv(ctx)
		if err != nil {
			return protocol.Message{}, err
		}
		switch m.Tag {
		case protocol.TagPing:
			_ = tr.Send(ctx, protocol.NewPong())
			continue
		case protocol.TagPong:
			continue
		default:
			return m, nil
		}
	}
}
