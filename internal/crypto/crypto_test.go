package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

// TestSealAndOpen tests AES-GCM encryption roundtrip
func TestSealAndOpen(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 12)
	rand.Read(key)
	rand.Read(nonce)

	plaintext := []byte("hello from relay")

	ciphertext, err := Seal(key, nonce, nil, plaintext)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if len(ciphertext) != len(plaintext)+16 {
		t.Errorf("ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+16)
	}

	decrypted, err := Open(key, nonce, nil, ciphertext)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("decrypted plaintext does not match original")
	}
}

// TestAuthenticationFailure tests that tampered ciphertext is rejected
func TestAuthenticationFailure(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 12)
	rand.Read(key)
	rand.Read(nonce)

	ciphertext, err := Seal(key, nonce, nil, []byte("secret message"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	ciphertext[0] ^= 0x01

	if _, err := Open(key, nonce, nil, ciphertext); err == nil {
		t.Error("Open() should fail on tampered ciphertext")
	}
}

// TestNonceCounterUniqueness tests nonce uniqueness across 10,000 chunks
func TestNonceCounterUniqueness(t *testing.T) {
	nc, err := NewNonceCounter()
	if err != nil {
		t.Fatalf("NewNonceCounter() failed: %v", err)
	}

	seen := make(map[[NonceSize]byte]bool)
	const numChunks = 10000
	for i := 0; i < numChunks; i++ {
		nonce := nc.Next()
		if seen[nonce] {
			t.Fatalf("nonce collision detected at chunk %d", i)
		}
		seen[nonce] = true
	}
}

// TestNonceCounterPrefixStable tests the prefix never changes within a session
func TestNonceCounterPrefixStable(t *testing.T) {
	nc, err := NewNonceCounter()
	if err != nil {
		t.Fatalf("NewNonceCounter() failed: %v", err)
	}
	prefix := nc.Prefix()
	for i := 0; i < 100; i++ {
		nonce := nc.Next()
		if !bytes.Equal(nonce[0:4], prefix[:]) {
			t.Fatalf("nonce prefix changed at chunk %d", i)
		}
	}
}

// TestPAKESameCode tests both sides derive the same key from a matching code
func TestPAKESameCode(t *testing.T) {
	code := "7-guitar-palace"

	msgA, initiator, err := PAKEInitiate(code)
	if err != nil {
		t.Fatalf("PAKEInitiate() failed: %v", err)
	}

	msgB, receiverKey, err := PAKERespond(code, msgA)
	if err != nil {
		t.Fatalf("PAKERespond() failed: %v", err)
	}

	senderKey, err := initiator.Finish(msgB)
	if err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	if senderKey != receiverKey {
		t.Error("sender and receiver derived different keys from the same code")
	}
}

// TestPAKEDifferentCode tests mismatched codes yield different keys, not an error
func TestPAKEDifferentCode(t *testing.T) {
	msgA, initiator, err := PAKEInitiate("7-guitar-palace")
	if err != nil {
		t.Fatalf("PAKEInitiate() failed: %v", err)
	}

	msgB, receiverKey, err := PAKERespond("7-guitar-castle", msgA)
	if err != nil {
		t.Fatalf("PAKERespond() failed: %v", err)
	}

	senderKey, err := initiator.Finish(msgB)
	if err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}

	if senderKey == receiverKey {
		t.Error("different transfer codes should not derive the same key")
	}
}

// TestStreamingHashEmpty tests the zero-byte file digest
func TestStreamingHashEmpty(t *testing.T) {
	h := NewStreamingHash()
	sum := h.Sum()

	h2 := NewStreamingHash()
	h2.Write(nil)
	if sum != h2.Sum() {
		t.Error("empty digest is not stable across no-write and nil-write")
	}
}

// TestStreamingHashIncremental tests chunked writes match a single write
func TestStreamingHashIncremental(t *testing.T) {
	data := bytes.Repeat([]byte("relay"), 1000)

	whole := NewStreamingHash()
	whole.Write(data)

	chunked := NewStreamingHash()
	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		chunked.Write(data[i:end])
	}

	if whole.Sum() != chunked.Sum() {
		t.Error("chunked hash does not match whole-buffer hash")
	}
}

// TestCertFingerprint tests fingerprint is deterministic and content-sensitive
func TestCertFingerprint(t *testing.T) {
	a := CertFingerprint([]byte("certificate-a"))
	b := CertFingerprint([]byte("certificate-a"))
	c := CertFingerprint([]byte("certificate-b"))

	if a != b {
		t.Error("fingerprint is not deterministic")
	}
	if a == c {
		t.Error("different certificates produced the same fingerprint")
	}
}
