package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantarax/relay/internal/codewords"
	"github.com/quantarax/relay/internal/crypto"
	"github.com/quantarax/relay/internal/protocol"
	"github.com/quantarax/relay/internal/rendezvous"
	"github.com/quantarax/relay/internal/transport"
)

// runReceive drives the full receiver state machine for one session
// (§4.6 Receiver state machine: the mirror of the sender with
// AwaitOffer/AwaitUserDecision in place of Offering).
func (o *Orchestrator) runReceive(ctx context.Context, sess *clientSession) {
	started := time.Now()
	defer o.removeSession(sess.ID)

	fileCount, totalBytes, err := o.receiveFlow(ctx, sess)
	oc := teardown(ctx, sess, err)
	o.writeAudit(sess, fileCount, totalBytes, started, oc)
}

func (o *Orchestrator) receiveFlow(ctx context.Context, sess *clientSession) (int, uint64, error) {
	if _, err := codewords.Parse(sess.Code); err != nil {
		return 0, 0, newError(ErrorKindTransfer, err)
	}

	sess.emitState(ReceiverSignaling.String())
	certDER, certPEM, keyPEM, err := transport.GenerateSelfSignedCert()
	if err != nil {
		return 0, 0, newError(ErrorKindCrypto, err)
	}
	serverTLS, peerPin, err := transport.ServerTLSConfig(certPEM, keyPEM)
	if err != nil {
		return 0, 0, newError(ErrorKindCrypto, err)
	}
	listener, err := transport.ListenDirect(":0", serverTLS)
	if err != nil {
		return 0, 0, newError(ErrorKindNetwork, err)
	}
	local := localPeerInfo(listener.Addr())

	sess.emitState(ReceiverAwaitPeer.String())
	sc, peerInfo, err := dialSignaling(ctx, o.RendezvousAddr, sess.Code, rendezvous.RoleReceiver, local)
	if err != nil {
		_ = listener.Close()
		return 0, 0, err
	}
	defer sc.close()

	sess.emitState(ReceiverKeyExchange.String())
	key, err := pakeReceiver(sc, sess.Code)
	if err != nil {
		_ = listener.Close()
		return 0, 0, err
	}
	nonce, err := crypto.NewNonceCounter()
	if err != nil {
		_ = listener.Close()
		return 0, 0, newError(ErrorKindCrypto, err)
	}

	sess.emitState(ReceiverFingerprintExchange.String())
	peerFP, err := exchangeFingerprints(sc, key, nonce, transport.Fingerprint(certDER))
	if err != nil {
		_ = listener.Close()
		return 0, 0, err
	}

	sess.emitState(ReceiverTransportSelect.String())
	clientTLS, err := transport.PinnedClientTLSConfig(certPEM, keyPEM, peerFP)
	if err != nil {
		_ = listener.Close()
		return 0, 0, newError(ErrorKindCrypto, err)
	}
	peerPin.Set(peerFP)
	tr, err := selectTransport(ctx, listener, peerInfo, clientTLS, sc, o.metrics)
	if err != nil {
		return 0, 0, err
	}
	sess.setTransport(tr)
	sess.emitTransport(tr.Kind())

	sess.emitState(ReceiverAwaitOffer.String())
	offer, err := recvControl(ctx, tr)
	if err != nil {
		return 0, 0, netErr(sess, err)
	}
	if offer.Tag != protocol.TagFileOffer {
		return 0, 0, newError(ErrorKindProtocol, fmt.Errorf("expected FileOffer, got %s", offer.Tag))
	}

	var totalBytes uint64
	offered := make([]OfferedFile, len(offer.Files))
	for i, f := range offer.Files {
		totalBytes += f.Size
		offered[i] = OfferedFile{Name: f.Name, Size: f.Size}
	}

	sess.emitState(ReceiverAwaitUserDecision.String())
	sess.publish(ProgressEvent{
		SessionID:  sess.ID,
		Type:       EventFileOffer,
		Files:      offered,
		BytesTotal: totalBytes,
	})

	accept, err := awaitDecision(sess)
	if err != nil {
		return len(offer.Files), totalBytes, err
	}
	if !accept {
		_ = tr.Send(ctx, protocol.NewFileDecline())
		sess.emitState(ReceiverCancelled.String())
		return len(offer.Files), totalBytes, newError(ErrorKindPeerRejected, fmt.Errorf("declined the offer"))
	}

	if badDesc, err := firstInvalidDescriptor(o.DownloadDir, offer.Files); err != nil {
		_ = tr.Send(ctx, protocol.NewFileDecline())
		sess.emitState(ReceiverCancelled.String())
		return len(offer.Files), totalBytes, newError(ErrorKindPeerRejected, fmt.Errorf("rejected descriptor %q: %w", badDesc, err))
	}

	if err := tr.Send(ctx, protocol.NewFileAccept()); err != nil {
		return len(offer.Files), totalBytes, netErr(sess, err)
	}

	sess.tracker = NewTracker(totalBytes)
	sess.emitState(ReceiverStreaming.String())
	for idx, desc := range offer.Files {
		if sess.isCancelled() {
			return len(offer.Files), totalBytes, newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
		}
		if err := o.receiveOneFile(ctx, sess, tr, uint16(idx), desc, key); err != nil {
			return len(offer.Files), totalBytes, err
		}
	}

	done, err := recvControl(ctx, tr)
	if err != nil {
		return len(offer.Files), totalBytes, netErr(sess, err)
	}
	if done.Tag != protocol.TagTransferComplete {
		return len(offer.Files), totalBytes, newError(ErrorKindProtocol, fmt.Errorf("expected TransferComplete, got %s", done.Tag))
	}
	return len(offer.Files), totalBytes, nil
}

// awaitDecision blocks until the user's accept_transfer call resolves
// acceptCh, or cancellation trips first (§4.6 AwaitUserDecision).
func awaitDecision(sess *clientSession) (bool, error) {
	for {
		select {
		case accept := <-sess.acceptCh:
			return accept, nil
		case <-time.After(200 * time.Millisecond):
			if sess.isCancelled() {
				return false, newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
			}
		}
	}
}

func (o *Orchestrator) receiveOneFile(ctx context.Context, sess *clientSession, tr transport.Transport, fileIndex uint16, desc protocol.FileDescriptor, key [32]byte) error {
	dest, err := destinationPath(o.DownloadDir, desc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return newError(ErrorKindTransfer, fmt.Errorf("create directory for %s: %w", dest, err))
	}
	fh, err := os.Create(dest)
	if err != nil {
		return newError(ErrorKindTransfer, fmt.Errorf("create %s: %w", dest, err))
	}
	cleanup := func() {
		fh.Close()
		os.Remove(dest)
	}

	hash := crypto.NewStreamingHash()
	var expected uint32

	for {
		if sess.isCancelled() {
			cleanup()
			return newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
		}
		m, err := recvControl(ctx, tr)
		if err != nil {
			cleanup()
			return netErr(sess, err)
		}

		switch m.Tag {
		case protocol.TagFileChunk:
			if m.FileIndex != fileIndex || m.ChunkIndex != expected {
				cleanup()
				return newError(ErrorKindProtocol, fmt.Errorf("out-of-order chunk: file %d/%d chunk %d, want file %d chunk %d", m.FileIndex, fileIndex, m.ChunkIndex, fileIndex, expected))
			}
			plaintext, err := crypto.Open(key[:], m.Nonce[:], nil, m.Ciphertext)
			if err != nil {
				if o.metrics != nil {
					o.metrics.RecordChunkVerifyFailure()
				}
				cleanup()
				return newError(ErrorKindCrypto, fmt.Errorf("chunk %d of %s: %w", m.ChunkIndex, desc.Name, err))
			}
			if _, err := fh.Write(plaintext); err != nil {
				cleanup()
				return newError(ErrorKindTransfer, fmt.Errorf("write %s: %w", dest, err))
			}
			hash.Write(plaintext)
			sess.tracker.Add(uint64(len(plaintext)))
			sess.emitProgress(desc.Name)
			expected++

		case protocol.TagFileComplete:
			if m.FileIndex != fileIndex {
				cleanup()
				return newError(ErrorKindProtocol, fmt.Errorf("FileComplete for wrong file index %d, want %d", m.FileIndex, fileIndex))
			}
			if hash.Sum() != m.SHA256 {
				cleanup()
				return newError(ErrorKindTransfer, fmt.Errorf("checksum mismatch for %s", desc.Name))
			}
			if err := fh.Close(); err != nil {
				os.Remove(dest)
				return newError(ErrorKindTransfer, fmt.Errorf("finalize %s: %w", dest, err))
			}
			if err := tr.Send(ctx, protocol.NewFileVerified(fileIndex)); err != nil {
				return netErr(sess, err)
			}
			sess.publish(ProgressEvent{SessionID: sess.ID, Type: EventFileCompleted, FileName: desc.Name})
			return nil

		default:
			cleanup()
			return newError(ErrorKindProtocol, fmt.Errorf("unexpected message %s mid-file", m.Tag))
		}
	}
}
