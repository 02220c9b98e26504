package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/quantarax/relay/internal/codewords"
	"github.com/quantarax/relay/internal/config"
	"github.com/quantarax/relay/internal/crypto"
	"github.com/quantarax/relay/internal/protocol"
	"github.com/quantarax/relay/internal/rendezvous"
	"github.com/quantarax/relay/internal/transport"
)

// runSend drives the full sender state machine for one session, from
// Signaling through Completed/Cancelled/Errored (§4.6 Sender state
// machine). It is always invoked on its own goroutine; every exit path
// reports through sess.publish and, if configured, the audit log.
func (o *Orchestrator) runSend(ctx context.Context, sess *clientSession, filePaths []string) {
	started := time.Now()

	defer o.removeSession(sess.ID)

	files, err := buildFileList(filePaths)
	if err != nil {
		oc := teardown(ctx, sess, err)
		o.writeAudit(sess, 0, 0, started, oc)
		return
	}
	var totalBytes uint64
	for _, f := range files {
		totalBytes += f.desc.Size
	}
	sess.tracker = NewTracker(totalBytes)

	err = o.sendFlow(ctx, sess, files)
	oc := teardown(ctx, sess, err)
	o.writeAudit(sess, len(files), totalBytes, started, oc)
}

func (o *Orchestrator) sendFlow(ctx context.Context, sess *clientSession, files []sendFile) error {
	if _, err := codewords.Parse(sess.Code); err != nil {
		return newError(ErrorKindTransfer, err)
	}

	sess.emitState(SenderSignaling.String())
	certDER, certPEM, keyPEM, err := transport.GenerateSelfSignedCert()
	if err != nil {
		return newError(ErrorKindCrypto, err)
	}
	serverTLS, peerPin, err := transport.ServerTLSConfig(certPEM, keyPEM)
	if err != nil {
		return newError(ErrorKindCrypto, err)
	}
	listener, err := transport.ListenDirect(":0", serverTLS)
	if err != nil {
		return newError(ErrorKindNetwork, err)
	}
	local := localPeerInfo(listener.Addr())

	sess.emitState(SenderAwaitPeer.String())
	sc, peerInfo, err := dialSignaling(ctx, o.RendezvousAddr, sess.Code, rendezvous.RoleSender, local)
	if err != nil {
		_ = listener.Close()
		return err
	}
	defer sc.close()

	sess.emitState(SenderKeyExchange.String())
	key, err := pakeSender(sc, sess.Code)
	if err != nil {
		_ = listener.Close()
		return err
	}
	nonce, err := crypto.NewNonceCounter()
	if err != nil {
		_ = listener.Close()
		return newError(ErrorKindCrypto, err)
	}

	sess.emitState(SenderFingerprintExchange.String())
	peerFP, err := exchangeFingerprints(sc, key, nonce, transport.Fingerprint(certDER))
	if err != nil {
		_ = listener.Close()
		return err
	}

	sess.emitState(SenderTransportSelect.String())
	clientTLS, err := transport.PinnedClientTLSConfig(certPEM, keyPEM, peerFP)
	if err != nil {
		_ = listener.Close()
		return newError(ErrorKindCrypto, err)
	}
	peerPin.Set(peerFP)
	tr, err := selectTransport(ctx, listener, peerInfo, clientTLS, sc, o.metrics)
	if err != nil {
		return err
	}
	sess.setTransport(tr)
	sess.emitTransport(tr.Kind())

	if sess.isCancelled() {
		return newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
	}

	sess.emitState(SenderOffering.String())
	if err := tr.Send(ctx, protocol.NewFileOffer(sess.ID, descriptorsOf(files))); err != nil {
		return netErr(sess, err)
	}
	resp, err := recvControl(ctx, tr)
	if err != nil {
		return netErr(sess, err)
	}
	switch resp.Tag {
	case protocol.TagFileDecline:
		sess.emitState(SenderDeclined.String())
		return newError(ErrorKindPeerRejected, fmt.Errorf("peer declined the transfer"))
	case protocol.TagFileAccept:
		sess.emitState(SenderAccepted.String())
	default:
		return newError(ErrorKindProtocol, fmt.Errorf("expected FileAccept/FileDecline, got %s", resp.Tag))
	}

	sess.emitState(SenderStreaming.String())
	for idx, f := range files {
		if sess.isCancelled() {
			return newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
		}
		if err := o.streamOneFile(ctx, sess, tr, uint16(idx), f, key, nonce); err != nil {
			return err
		}
	}
	if err := tr.Send(ctx, protocol.NewTransferComplete()); err != nil {
		return netErr(sess, err)
	}
	return nil
}

// encChunk is one ciphertext chunk ready to send, produced ahead of
// the writer so file I/O and encryption never stall on network
// backpressure (§4.6 Streaming, §5 Concurrency model: 32 in-flight
// chunks).
type encChunk struct {
	msg      protocol.Message
	plainLen int
}

const inFlightChunks = 32

func (o *Orchestrator) streamOneFile(ctx context.Context, sess *clientSession, tr transport.Transport, fileIndex uint16, f sendFile, key [32]byte, nonce *crypto.NonceCounter) error {
	fh, err := os.Open(f.path)
	if err != nil {
		return newError(ErrorKindTransfer, fmt.Errorf("open %s: %w", f.path, err))
	}
	defer fh.Close()

	hash := crypto.NewStreamingHash()
	chunks := make(chan encChunk, inFlightChunks)
	produceErr := make(chan error, 1)

	go func() {
		defer close(chunks)
		buf := make([]byte, config.ChunkSize)
		var chunkIndex uint32
		for {
			n, readErr := fh.Read(buf)
			if n > 0 {
				plaintext := append([]byte(nil), buf[:n]...)
				hash.Write(plaintext)
				nval := nonce.Next()
				ciphertext, sealErr := crypto.Seal(key[:], nval[:], nil, plaintext)
				if sealErr != nil {
					produceErr <- newError(ErrorKindCrypto, sealErr)
					return
				}
				chunks <- encChunk{msg: protocol.NewFileChunk(fileIndex, chunkIndex, nval, ciphertext), plainLen: n}
				chunkIndex++
			}
			if readErr != nil {
				if readErr != io.EOF {
					produceErr <- newError(ErrorKindTransfer, fmt.Errorf("read %s: %w", f.path, readErr))
				}
				return
			}
		}
	}()

	for c := range chunks {
		if sess.isCancelled() {
			return newError(ErrorKindCancelled, fmt.Errorf("cancelled: %s", sess.reason()))
		}
		if err := tr.Send(ctx, c.msg); err != nil {
			return netErr(sess, err)
		}
		sess.tracker.Add(uint64(c.plainLen))
		sess.emitProgress(f.desc.Name)
	}
	select {
	case err := <-produceErr:
		if err != nil {
			return err
		}
	default:
	}

	digest := hash.Sum()
	if err := tr.Send(ctx, protocol.NewFileComplete(fileIndex, digest)); err != nil {
		return netErr(sess, err)
	}
	resp, err := recvControl(ctx, tr)
	if err != nil {
		return netErr(sess, err)
	}
	if resp.Tag != protocol.TagFileVerified {
		return newError(ErrorKindProtocol, fmt.Errorf("expected FileVerified, got %s", resp.Tag))
	}
	return nil
}
