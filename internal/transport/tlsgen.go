package transport

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	relaycrypto "github.com/quantarax/relay/internal/crypto"
)

// GenerateSelfSignedCert creates a fresh self-signed certificate for one
// session. Relay never shares a CA between peers: each side pins the
// other's exact certificate fingerprint instead (§4.3).
func GenerateSelfSignedCert() (certDER []byte, certPEM []byte, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "relay-session", Organization: []string{"Relay"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
		DNSNames:     []string{"localhost"},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	return derBytes, certPEM, keyPEM, nil
}

// Fingerprint returns the SHA-256 fingerprint of a DER-encoded
// certificate, matching internal/crypto.CertFingerprint.
func Fingerprint(certDER []byte) [32]byte {
	return sha256.Sum256(certDER)
}

// PeerPin holds the one certificate fingerprint a listener will
// accept from an inbound peer. It starts unset — the listener exists
// before signaling has produced the peer's fingerprint (§4.3:
// ListenDirect is opened to learn the local bound address before
// exchangeFingerprints runs) — and is filled in by Set once the
// fingerprint exchange completes, before the accept race begins.
type PeerPin struct {
	mu  sync.Mutex
	fp  [32]byte
	set bool
}

// NewPeerPin returns an unset pin.
func NewPeerPin() *PeerPin {
	return &PeerPin{}
}

// Set records the one fingerprint an inbound connection must present.
func (p *PeerPin) Set(fp [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fp = fp
	p.set = true
}

func (p *PeerPin) verify(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	p.mu.Lock()
	fp, ok := p.fp, p.set
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer fingerprint not yet pinned")
	}
	if len(rawCerts) == 0 {
		return fmt.Errorf("no certificate presented")
	}
	got := relaycrypto.CertFingerprint(rawCerts[0])
	if got != fp {
		return fmt.Errorf("certificate fingerprint mismatch: got %x, want %x", got, fp)
	}
	return nil
}

// ServerTLSConfig builds the listener/accept-side TLS config for a
// direct QUIC endpoint. It presents the session certificate, requires
// TLS 1.3, and demands the connecting peer present a client
// certificate matching the returned PeerPin — mutual, fingerprint-
// pinned authentication on both sides of the connection (§4.3: "Each
// side configures its TLS verifier to accept exactly one
// certificate"). The pin must be filled in via Set before Accept is
// used to authenticate a real peer.
func ServerTLSConfig(certPEM, keyPEM []byte) (*tls.Config, *PeerPin, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("load key pair: %w", err)
	}
	pin := NewPeerPin()
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		MaxVersion:   tls.VersionTLS13,
		NextProtos:   []string{"relay-quic"},
		// RequireAnyClientCert skips Go's own CA-chain check (we have
		// no CA) and defers entirely to VerifyPeerCertificate below.
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: pin.verify,
	}, pin, nil
}

// PinnedClientTLSConfig builds the dial-side TLS config that accepts
// exactly one certificate: the one whose SHA-256 fingerprint matches
// expected. No CA, no name checks — this is the entire trust model.
func PinnedClientTLSConfig(certPEM, keyPEM []byte, expected [32]byte) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates:          []tls.Certificate{cert},
		MinVersion:            tls.VersionTLS13,
		MaxVersion:            tls.VersionTLS13,
		NextProtos:            []string{"relay-quic"},
		InsecureSkipVerify:    true, // we supply our own verification below
		VerifyPeerCertificate: fingerprintVerifier(expected),
	}, nil
}

// fingerprintVerifier rejects every certificate except the one pinned
// during signaling. rawCerts[0] is the leaf the peer presented.
func fingerprintVerifier(expected [32]byte) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no certificate presented")
		}
		got := relaycrypto.CertFingerprint(rawCerts[0])
		if got != expected {
			return fmt.Errorf("certificate fingerprint mismatch: got %x, want %x", got, expected)
		}
		return nil
	}
}
