package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantarax/relay/internal/rendezvous"
)

// signalingTimeout bounds connect, register, and the wait for
// peer_joined (§5 Timeouts: signaling 30s).
const signalingTimeout = 30 * time.Second

// keyExchangeTimeout bounds each of the PAKE exchange and the
// certificate fingerprint exchange that follows it, so a silent peer
// during key agreement produces Errored instead of a wedged goroutine
// (§5 Timeouts: PAKE 30s).
const keyExchangeTimeout = 30 * time.Second

// relayAckTimeout bounds the wait for relay_active once relay fallback
// has been requested (§5 Timeouts: relay ack 10s).
const relayAckTimeout = 10 * time.Second

// signalingClient is the client side of the rendezvous WebSocket: dial,
// register, and exchange the small set of JSON envelopes that precede
// direct-or-relay transport selection.
type signalingClient struct {
	conn *websocket.Conn
}

// dialSignaling connects to addr/ws/code and completes the register
// step, returning the peer's announced network info once both sides
// have joined.
func dialSignaling(ctx context.Context, addr, code string, role rendezvous.Role, local rendezvous.PeerInfo) (*signalingClient, rendezvous.PeerInfo, error) {
	url := fmt.Sprintf("%s/%s", addr, code)

	dialer := websocket.Dialer{HandshakeTimeout: signalingTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, rendezvous.PeerInfo{}, wrapf(ErrorKindSignaling, "dial rendezvous: %w", err)
	}
	c := &signalingClient{conn: conn}
	c.setDeadline(signalingTimeout)
	defer c.clearDeadline()

	if err := conn.WriteJSON(rendezvous.Envelope{
		Type:     rendezvous.TypeRegister,
		Role:     role,
		PeerInfo: &local,
	}); err != nil {
		conn.Close()
		return nil, rendezvous.PeerInfo{}, wrapf(ErrorKindSignaling, "register: %w", err)
	}

	var env rendezvous.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		conn.Close()
		return nil, rendezvous.PeerInfo{}, wrapf(ErrorKindSignaling, "await peer_joined: %w", err)
	}
	if env.Type == rendezvous.TypeError {
		conn.Close()
		return nil, rendezvous.PeerInfo{}, wrapf(ErrorKindSignaling, "rendezvous rejected registration: %s (%s)", env.Message, env.Code)
	}
	if env.Type != rendezvous.TypePeerJoined || env.PeerInfo == nil {
		conn.Close()
		return nil, rendezvous.PeerInfo{}, wrapf(ErrorKindSignaling, "unexpected frame %q awaiting peer_joined", env.Type)
	}

	return c, *env.PeerInfo, nil
}

// sendPayload writes msgType with a base64-encoded binary payload
// (spake2 and cert_fingerprint both carry opaque bytes over the JSON
// text frame, §6).
func (c *signalingClient) sendPayload(msgType string, payload []byte) error {
	return c.conn.WriteJSON(rendezvous.Envelope{
		Type:    msgType,
		Payload: base64.StdEncoding.EncodeToString(payload),
	})
}

// recvPayload blocks for the next frame of msgType and decodes its
// payload.
func (c *signalingClient) recvPayload(msgType string) ([]byte, error) {
	var env rendezvous.Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		return nil, wrapf(ErrorKindSignaling, "await %s: %w", msgType, err)
	}
	if env.Type == rendezvous.TypeError {
		return nil, wrapf(ErrorKindSignaling, "rendezvous error: %s (%s)", env.Message, env.Code)
	}
	if env.Type == rendezvous.TypePeerDisconnected {
		return nil, wrapf(ErrorKindSignaling, "peer disconnected during signaling: %s", env.Message)
	}
	if env.Type != msgType {
		return nil, wrapf(ErrorKindProtocol, "unexpected frame %q, want %q", env.Type, msgType)
	}
	return base64.StdEncoding.DecodeString(env.Payload)
}

// setDeadline bounds every subsequent read on the signaling connection
// until cleared or overwritten, so a peer that goes silent mid-phase
// produces a definite timeout error instead of a goroutine blocked
// forever in ReadJSON (§5 Timeouts).
func (c *signalingClient) setDeadline(d time.Duration) {
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
}

// clearDeadline removes any deadline set by setDeadline.
func (c *signalingClient) clearDeadline() {
	_ = c.conn.SetReadDeadline(time.Time{})
}

// requestRelay asks the rendezvous server to enter relay mode and
// waits for relay_active (§4.6 TransportSelect, relay fallback).
func (c *signalingClient) requestRelay() error {
	if err := c.conn.WriteJSON(rendezvous.Envelope{Type: rendezvous.TypeRelayRequest}); err != nil {
		return wrapf(ErrorKindSignaling, "relay_request: %w", err)
	}
	c.setDeadline(relayAckTimeout)
	defer c.clearDeadline()
	for {
		var env rendezvous.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return wrapf(ErrorKindSignaling, "await relay_active: %w", err)
		}
		switch env.Type {
		case rendezvous.TypeRelayActive:
			return nil
		case rendezvous.TypeRelayRequest:
			continue // echo of the peer's own request, keep waiting
		default:
			return wrapf(ErrorKindSignaling, "unexpected frame %q awaiting relay_active", env.Type)
		}
	}
}

// announceRelayReady sends relay_ready, the signal the rendezvous
// server waits for before it starts binary forwarding on this side.
func (c *signalingClient) announceRelayReady() error {
	return c.conn.WriteJSON(rendezvous.Envelope{Type: rendezvous.TypeRelayReady})
}

func (c *signalingClient) close() error {
	_ = c.conn.WriteJSON(rendezvous.Envelope{Type: rendezvous.TypeDisconnect})
	return c.conn.Close()
}

// localPeerInfo builds this process's announced network info from a
// QUIC listener's bound address (§3 Peer network info).
func localPeerInfo(listenAddr string) rendezvous.PeerInfo {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return rendezvous.PeerInfo{}
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return rendezvous.PeerInfo{LocalIP: host, LocalPort: port}
}
