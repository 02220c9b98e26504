package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"filippo.io/cpace"
	"golang.org/x/crypto/hkdf"
)

// Fixed group-identity strings bind each PAKE message to the role that
// produced it. They are constants, not per-session values: the transfer
// code is the only secret input.
const (
	pakeSenderIdentity   = "relay-sender"
	pakeReceiverIdentity = "relay-receiver"
)

func pakeContext() *cpace.ContextInfo {
	return cpace.NewContextInfo(pakeSenderIdentity, pakeReceiverIdentity, nil)
}

// PAKEInitiator holds the state needed to finish a PAKE run after the
// peer's message has been received over signaling. It is single-use.
type PAKEInitiator struct {
	pake *cpace.PAKE
}

// PAKEInitiate starts the sender's half of the exchange: code is the
// transfer code, used directly as the PAKE password. The returned bytes
// are sent to the peer as the `spake2` signaling payload.
func PAKEInitiate(code string) ([]byte, *PAKEInitiator, error) {
	msg, pake, err := cpace.Start(code, pakeContext())
	if err != nil {
		return nil, nil, fmt.Errorf("pake initiate: %w", err)
	}
	return msg, &PAKEInitiator{pake: pake}, nil
}

// Finish completes the exchange once the peer's message has arrived and
// derives the 32-byte session key. A wrong code on either side produces
// a key that simply does not match the peer's — there is no error here;
// the mismatch surfaces at the first AEAD verification.
func (p *PAKEInitiator) Finish(peerMsg []byte) ([32]byte, error) {
	mk, err := p.pake.Finish(peerMsg)
	if err != nil {
		return [32]byte{}, fmt.Errorf("pake finish: %w", err)
	}
	return deriveSessionKey(mk)
}

// PAKERespond runs the receiver's half: it consumes the sender's
// message and the same transfer code, and produces both the reply
// message and the finished session key in one step.
func PAKERespond(code string, peerMsg []byte) (reply []byte, key [32]byte, err error) {
	msg, mk, err := cpace.Exchange(code, pakeContext(), peerMsg)
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("pake respond: %w", err)
	}
	key, err = deriveSessionKey(mk)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return msg, key, nil
}

// deriveSessionKey stretches the raw CPace shared secret into the
// 32-byte AEAD key used directly for chunk and fingerprint encryption.
func deriveSessionKey(mk []byte) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, mk, nil, nil)
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return [32]byte{}, fmt.Errorf("derive session key: %w", err)
	}
	return key, nil
}
