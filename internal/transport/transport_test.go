package transport

import (
	"context"
	"testing"
	"time"

	"github.com/quantarax/relay/internal/protocol"
)

func TestGenerateSelfSignedCertFingerprintMatches(t *testing.T) {
	der, certPEM, keyPEM, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		t.Fatal("expected non-empty PEM output")
	}

	want := Fingerprint(der)
	if _, _, err := ServerTLSConfig(certPEM, keyPEM); err != nil {
		t.Fatalf("ServerTLSConfig: %v", err)
	}
	if _, err := PinnedClientTLSConfig(certPEM, keyPEM, want); err != nil {
		t.Fatalf("PinnedClientTLSConfig: %v", err)
	}
}

func TestPinnedClientRejectsWrongFingerprint(t *testing.T) {
	_, certPEM, keyPEM, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	var wrong [32]byte
	cfg, err := PinnedClientTLSConfig(certPEM, keyPEM, wrong)
	if err != nil {
		t.Fatalf("PinnedClientTLSConfig: %v", err)
	}
	if err := cfg.VerifyPeerCertificate([][]byte{{1, 2, 3}}, nil); err == nil {
		t.Fatal("expected fingerprint mismatch to be rejected")
	}
}

func TestQUICDirectRoundTrip(t *testing.T) {
	der, certPEM, keyPEM, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	serverTLS, peerPin, err := ServerTLSConfig(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %v", err)
	}

	listener, err := ListenDirect("127.0.0.1:0", serverTLS)
	if err != nil {
		t.Fatalf("ListenDirect: %v", err)
	}
	defer listener.Close()

	fp := Fingerprint(der)
	clientTLS, err := PinnedClientTLSConfig(certPEM, keyPEM, fp)
	if err != nil {
		t.Fatalf("PinnedClientTLSConfig: %v", err)
	}
	// The client and server share one self-signed cert in this test,
	// so pinning the same fingerprint the server will present is also
	// the fingerprint the server must see from the client.
	peerPin.Set(fp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverConnCh := make(chan *QUICTransport, 1)
	serverErrCh := make(chan error, 1)
	go func() {
		conn, err := listener.Accept(ctx)
		if err != nil {
			serverErrCh <- err
			return
		}
		serverConnCh <- conn
	}()

	clientConn, err := DialDirect(ctx, listener.Addr(), clientTLS, 3*time.Second)
	if err != nil {
		t.Fatalf("DialDirect: %v", err)
	}
	defer clientConn.Close()

	var serverConn *QUICTransport
	select {
	case serverConn = <-serverConnCh:
	case err := <-serverErrCh:
		t.Fatalf("Accept: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for server accept")
	}
	defer serverConn.Close()

	msg := protocol.NewPing()
	if err := clientConn.Send(ctx, msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := serverConn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Tag != protocol.TagPing {
		t.Fatalf("got tag %v, want Ping", got.Tag)
	}

	complete := protocol.NewTransferComplete()
	if err := serverConn.Send(ctx, complete); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err = clientConn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Tag != protocol.TagTransferComplete {
		t.Fatalf("got %+v, want TransferComplete", got)
	}

	if clientConn.Kind() != KindDirect {
		t.Fatalf("Kind() = %v, want KindDirect", clientConn.Kind())
	}
}

// TestQUICDirectRejectsUnpinnedClientCert confirms the accept side
// authenticates the connecting peer's certificate too: a dialer
// presenting a certificate other than the one pinned on the listener
// must be refused, not just the reverse (dial-side pinning was
// already covered by TestPinnedClientRejectsWrongFingerprint).
func TestQUICDirectRejectsUnpinnedClientCert(t *testing.T) {
	serverDER, serverCertPEM, serverKeyPEM, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert (server): %v", err)
	}
	serverTLS, peerPin, err := ServerTLSConfig(serverCertPEM, serverKeyPEM)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %v", err)
	}
	serverFP := Fingerprint(serverDER)
	var wrongClientFP [32]byte // never matches the impostor's real fingerprint
	peerPin.Set(wrongClientFP)

	listener, err := ListenDirect("127.0.0.1:0", serverTLS)
	if err != nil {
		t.Fatalf("ListenDirect: %v", err)
	}
	defer listener.Close()

	// The impostor dials with its own, different self-signed cert but
	// correctly pins the server's fingerprint, so only the server's
	// verification of the client cert is under test.
	_, impostorCertPEM, impostorKeyPEM, err := GenerateSelfSignedCert()
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert (impostor): %v", err)
	}
	clientTLS, err := PinnedClientTLSConfig(impostorCertPEM, impostorKeyPEM, serverFP)
	if err != nil {
		t.Fatalf("PinnedClientTLSConfig: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acceptErrCh := make(chan error, 1)
	go func() {
		_, err := listener.Accept(ctx)
		acceptErrCh <- err
	}()

	if _, err := DialDirect(ctx, listener.Addr(), clientTLS, 3*time.Second); err == nil {
		t.Fatal("expected DialDirect to fail against a listener pinned to a different client fingerprint")
	}
	select {
	case err := <-acceptErrCh:
		if err == nil {
			t.Fatal("expected Accept to reject the unpinned client certificate")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for Accept to fail")
	}
}
