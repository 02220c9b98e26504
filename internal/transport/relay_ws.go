package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/quantarax/relay/internal/protocol"
)

// RelayTransport is a thin adapter over an already-open WebSocket to
// the rendezvous server (§4.4). It does not interpret frame contents;
// ciphertext passes through as opaque bytes. Per the single-connection
// resolution of the relay-reuse open question (DESIGN.md), this wraps
// the very same WebSocket used for signaling, after relay_active.
type RelayTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewRelayTransport wraps conn once both peers have acknowledged
// relay_active and the client-side signaling read loop has stopped.
func NewRelayTransport(conn *websocket.Conn) *RelayTransport {
	return &RelayTransport{conn: conn}
}

// Send encodes m and writes it as a single binary WebSocket message.
// The frame's length prefix is redundant under WebSocket message
// framing but retained so both transports share one codec (§4.2).
func (t *RelayTransport) Send(ctx context.Context, m protocol.Message) error {
	var buf bytes.Buffer
	if err := protocol.WriteFrame(&buf, m); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		return fmt.Errorf("relay write: %w", err)
	}
	return nil
}

// Recv reads one binary WebSocket message and decodes it. A close
// frame or read error propagates as end-of-stream to the caller.
func (t *RelayTransport) Recv(ctx context.Context) (protocol.Message, error) {
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, fmt.Errorf("relay read: %w", err)
	}
	if kind != websocket.BinaryMessage {
		return protocol.Message{}, fmt.Errorf("relay read: unexpected frame kind %d", kind)
	}
	return protocol.ReadFrame(bytes.NewReader(data))
}

// Kind reports this transport as the relay carrier.
func (t *RelayTransport) Kind() Kind { return KindRelay }

// Close closes the underlying WebSocket connection.
func (t *RelayTransport) Close() error {
	return t.conn.Close()
}
