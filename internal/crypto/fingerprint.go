package crypto

import "crypto/sha256"

// FingerprintSize is the length of a certificate fingerprint: a plain
// SHA-256 digest of the DER-encoded certificate.
const FingerprintSize = 32

// CertFingerprint computes the SHA-256 fingerprint of a DER-encoded
// certificate, as exchanged (AEAD-wrapped) during signaling and pinned
// by the QUIC TLS verifier.
func CertFingerprint(derCert []byte) [FingerprintSize]byte {
	return sha256.Sum256(derCert)
}
