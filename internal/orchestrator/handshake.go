package orchestrator

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/quantarax/relay/internal/crypto"
	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/rendezvous"
	"github.com/quantarax/relay/internal/transport"
)

// pakeSender runs the sender's half of the key exchange: it speaks
// first, then waits for the receiver's reply (§4.6 KeyExchange).
func pakeSender(sc *signalingClient, code string) ([32]byte, error) {
	sc.setDeadline(keyExchangeTimeout)
	defer sc.clearDeadline()

	msg, initiator, err := crypto.PAKEInitiate(code)
	if err != nil {
		return [32]byte{}, newError(ErrorKindCrypto, err)
	}
	if err := sc.sendPayload(rendezvous.TypeSpake2, msg); err != nil {
		return [32]byte{}, err
	}
	peerMsg, err := sc.recvPayload(rendezvous.TypeSpake2)
	if err != nil {
		return [32]byte{}, err
	}
	key, err := initiator.Finish(peerMsg)
	if err != nil {
		return [32]byte{}, newError(ErrorKindCrypto, err)
	}
	return key, nil
}

// pakeReceiver runs the receiver's half: it waits for the sender's
// opening message before it can compute its own reply.
func pakeReceiver(sc *signalingClient, code string) ([32]byte, error) {
	sc.setDeadline(keyExchangeTimeout)
	defer sc.clearDeadline()

	peerMsg, err := sc.recvPayload(rendezvous.TypeSpake2)
	if err != nil {
		return [32]byte{}, err
	}
	reply, key, err := crypto.PAKERespond(code, peerMsg)
	if err != nil {
		return [32]byte{}, newError(ErrorKindCrypto, err)
	}
	if err := sc.sendPayload(rendezvous.TypeSpake2, reply); err != nil {
		return [32]byte{}, err
	}
	return key, nil
}

// exchangeFingerprints sends this side's own certificate fingerprint,
// AEAD-sealed under the PAKE key, and returns the peer's fingerprint
// once decrypted (§4.3). Both sides send before they receive, so
// neither blocks waiting on the other to go first.
func exchangeFingerprints(sc *signalingClient, key [32]byte, nonce *crypto.NonceCounter, ownFingerprint [32]byte) ([32]byte, error) {
	sc.setDeadline(keyExchangeTimeout)
	defer sc.clearDeadline()

	n := nonce.Next()
	sealed, err := crypto.Seal(key[:], n[:], nil, ownFingerprint[:])
	if err != nil {
		return [32]byte{}, newError(ErrorKindCrypto, err)
	}
	wire := append(append([]byte{}, n[:]...), sealed...)
	if err := sc.sendPayload(rendezvous.TypeCertFingerprint, wire); err != nil {
		return [32]byte{}, err
	}

	peerWire, err := sc.recvPayload(rendezvous.TypeCertFingerprint)
	if err != nil {
		return [32]byte{}, err
	}
	if len(peerWire) < crypto.NonceSize {
		return [32]byte{}, newError(ErrorKindProtocol, fmt.Errorf("cert_fingerprint payload too short"))
	}
	peerNonce := peerWire[:crypto.NonceSize]
	peerCiphertext := peerWire[crypto.NonceSize:]
	plain, err := crypto.Open(key[:], peerNonce, nil, peerCiphertext)
	if err != nil {
		return [32]byte{}, newError(ErrorKindCrypto, err)
	}
	var fp [32]byte
	copy(fp[:], plain)
	return fp, nil
}

type dialResult struct {
	t   *transport.QUICTransport
	err error
}

// selectTransport implements §4.6 TransportSelect: dial the peer's
// public address, then its local address on failure, racing the whole
// chain against Accept on this side's own listener. Whichever side of
// the race produces a connection first wins; the loser is closed. If
// neither the dial chain nor the accept produces a connection, fall
// back to the relay.
func selectTransport(ctx context.Context, listener *transport.DirectListener, peer rendezvous.PeerInfo, clientTLS *tls.Config, sc *signalingClient, metrics *observability.Metrics) (transport.Transport, error) {
	raceCtx, cancel := context.WithTimeout(ctx, transport.DialPublicTimeout+transport.DialLocalTimeout)
	defer cancel()

	ch := make(chan dialResult, 2)

	go func() {
		if addr, ok := publicAddr(peer); ok {
			t, err := transport.DialDirect(raceCtx, addr, clientTLS, transport.DialPublicTimeout)
			if metrics != nil {
				metrics.RecordQUICConnection(err == nil)
			}
			if err == nil {
				ch <- dialResult{t: t}
				return
			}
		}
		if addr, ok := localAddr(peer); ok {
			t, err := transport.DialDirect(raceCtx, addr, clientTLS, transport.DialLocalTimeout)
			if metrics != nil {
				metrics.RecordQUICConnection(err == nil)
			}
			if err == nil {
				ch <- dialResult{t: t}
				return
			}
		}
		ch <- dialResult{err: fmt.Errorf("dial: no candidate address succeeded")}
	}()

	go func() {
		t, err := listener.Accept(raceCtx)
		if metrics != nil {
			metrics.RecordQUICConnection(err == nil)
		}
		ch <- dialResult{t: t, err: err}
	}()

	var winner *transport.QUICTransport
	for i := 0; i < 2; i++ {
		res := <-ch
		switch {
		case res.err == nil && winner == nil:
			winner = res.t
			cancel()
		case res.t != nil:
			_ = res.t.Close()
		}
	}
	_ = listener.Close()

	if winner != nil {
		if metrics != nil {
			metrics.RecordTransportSelected(winner.Kind().String())
		}
		return winner, nil
	}

	if err := sc.requestRelay(); err != nil {
		return nil, err
	}
	if err := sc.announceRelayReady(); err != nil {
		return nil, err
	}
	rt := transport.NewRelayTransport(sc.conn)
	if metrics != nil {
		metrics.RecordTransportSelected(rt.Kind().String())
	}
	return rt, nil
}

func publicAddr(p rendezvous.PeerInfo) (string, bool) {
	if p.PublicIP == "" || p.PublicPort == 0 {
		return "", false
	}
	return fmt.Sprintf("%s:%d", p.PublicIP, p.PublicPort), true
}

func localAddr(p rendezvous.PeerInfo) (string, bool) {
	if p.LocalIP == "" || p.LocalPort == 0 {
		return "", false
	}
	return fmt.Sprintf("%s:%d", p.LocalIP, p.LocalPort), true
}
