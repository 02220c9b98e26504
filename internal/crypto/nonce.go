package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NonceSize is the length in bytes of a chunk AEAD nonce: a 4-byte
// session-random prefix followed by an 8-byte big-endian counter.
const NonceSize = 12

// NonceCounter generates chunk nonces for one direction of a session.
// The prefix is drawn once, at session start, independently of the
// peer's prefix; the counter increments once per chunk sent by this
// side and never wraps within a single session (a session transfers far
// fewer than 2^64 chunks).
type NonceCounter struct {
	prefix  [4]byte
	counter uint64
}

// NewNonceCounter draws a fresh random 4-byte prefix for a new session.
func NewNonceCounter() (*NonceCounter, error) {
	var prefix [4]byte
	if _, err := rand.Read(prefix[:]); err != nil {
		return nil, fmt.Errorf("generate nonce prefix: %w", err)
	}
	return &NonceCounter{prefix: prefix}, nil
}

// Next returns the nonce for the next chunk and advances the counter.
func (n *NonceCounter) Next() [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[0:4], n.prefix[:])
	binary.BigEndian.PutUint64(nonce[4:12], n.counter)
	n.counter++
	return nonce
}

// Prefix returns the session-random prefix this counter was built with.
func (n *NonceCounter) Prefix() [4]byte {
	return n.prefix
}
