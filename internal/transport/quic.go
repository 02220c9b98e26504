package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/quantarax/relay/internal/protocol"
)

const (
	// KeepAlivePeriod and IdleTimeout match §4.3 exactly.
	KeepAlivePeriod = 5 * time.Second
	IdleTimeout     = 30 * time.Second

	// DialPublicTimeout and DialLocalTimeout bound the two dial
	// candidates tried in TransportSelect.
	DialPublicTimeout = 5 * time.Second
	DialLocalTimeout  = 3 * time.Second
)

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: KeepAlivePeriod,
		MaxIdleTimeout:  IdleTimeout,
	}
}

// QUICTransport is the direct-transport Transport implementation: a
// single bidirectional QUIC stream carries every peer-protocol frame,
// as required by §4.2 (one stream, strict per-file ordering).
type QUICTransport struct {
	conn   *quic.Conn
	stream *quic.Stream
}

// DialDirect dials addr with the given timeout, opens the one
// bidirectional stream, and returns a ready Transport. Callers race
// this against DirectListener.Accept per the TransportSelect dial policy.
func DialDirect(ctx context.Context, addr string, tlsConfig *tls.Config, timeout time.Duration) (*QUICTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := quic.DialAddr(dialCtx, addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("open stream to %s: %w", addr, err)
	}

	return &QUICTransport{conn: conn, stream: stream}, nil
}

// DirectListener accepts the peer's connection attempt when this side
// is racing a dial with a listen.
type DirectListener struct {
	listener *quic.Listener
}

// ListenDirect opens a QUIC listener on addr (":0" for an ephemeral
// port). Addr() reports the bound address so it can be announced
// through signaling as this side's peer network info.
func ListenDirect(addr string, tlsConfig *tls.Config) (*DirectListener, error) {
	l, err := quic.ListenAddr(addr, tlsConfig, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &DirectListener{listener: l}, nil
}

// Addr returns the bound local address.
func (l *DirectListener) Addr() string {
	return l.listener.Addr().String()
}

// Accept blocks for one incoming connection and accepts its single
// bidirectional stream.
func (l *DirectListener) Accept(ctx context.Context) (*QUICTransport, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "stream accept failed")
		return nil, fmt.Errorf("accept stream: %w", err)
	}
	return &QUICTransport{conn: conn, stream: stream}, nil
}

// Close closes the listener. Once a connection is accepted, callers
// should close the listener to stop accepting further attempts.
func (l *DirectListener) Close() error {
	return l.listener.Close()
}

// Send encodes and writes one peer-protocol frame to the stream.
func (t *QUICTransport) Send(ctx context.Context, m protocol.Message) error {
	return protocol.WriteFrame(t.stream, m)
}

// Recv reads and decodes one peer-protocol frame from the stream.
func (t *QUICTransport) Recv(ctx context.Context) (protocol.Message, error) {
	return protocol.ReadFrame(t.stream)
}

// Kind reports this transport as the direct carrier.
func (t *QUICTransport) Kind() Kind { return KindDirect }

// Close closes the stream and the underlying connection.
func (t *QUICTransport) Close() error {
	_ = t.stream.Close()
	return t.conn.CloseWithError(0, "session closed")
}
