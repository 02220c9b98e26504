// Package protocol implements the framed peer protocol shared by both
// the direct QUIC transport and the relay transport: a length-prefixed,
// tagged binary codec for file offers, acknowledgements, and encrypted
// chunks.
package protocol

import "github.com/google/uuid"

// Tag identifies the variant of a peer message on the wire.
type Tag uint8

const (
	TagFileOffer Tag = iota + 1
	TagFileAccept
	TagFileDecline
	TagFileChunk
	TagFileComplete
	TagFileVerified
	TagTransferComplete
	TagCancel
	TagPing
	TagPong
)

func (t Tag) String() string {
	switch t {
	case TagFileOffer:
		return "FileOffer"
	case TagFileAccept:
		return "FileAccept"
	case TagFileDecline:
		return "FileDecline"
	case TagFileChunk:
		return "FileChunk"
	case TagFileComplete:
		return "FileComplete"
	case TagFileVerified:
		return "FileVerified"
	case TagTransferComplete:
		return "TransferComplete"
	case TagCancel:
		return "Cancel"
	case TagPing:
		return "Ping"
	case TagPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// FileDescriptor describes one file in an offer. RelativePath is empty
// for single-file transfers and set (already normalized) for entries
// inside a folder transfer.
type FileDescriptor struct {
	Name         string
	Size         uint64
	RelativePath string
}

// Message is the tagged union carried by the peer protocol. Exactly one
// of the typed fields is populated according to Tag.
type Message struct {
	Tag Tag

	// FileOffer
	SessionID uuid.UUID
	Files     []FileDescriptor

	// FileChunk / FileComplete / FileVerified
	FileIndex  uint16
	ChunkIndex uint32
	Nonce      [12]byte
	Ciphertext []byte
	SHA256     [32]byte

	// Cancel
	Reason string
}

// NewFileOffer builds a FileOffer message.
func NewFileOffer(sessionID uuid.UUID, files []FileDescriptor) Message {
	return Message{Tag: TagFileOffer, SessionID: sessionID, Files: files}
}

// NewFileAccept builds a FileAccept message.
func NewFileAccept() Message { return Message{Tag: TagFileAccept} }

// NewFileDecline builds a FileDecline message.
func NewFileDecline() Message { return Message{Tag: TagFileDecline} }

// NewFileChunk builds a FileChunk message.
func NewFileChunk(fileIndex uint16, chunkIndex uint32, nonce [12]byte, ciphertext []byte) Message {
	return Message{Tag: TagFileChunk, FileIndex: fileIndex, ChunkIndex: chunkIndex, Nonce: nonce, Ciphertext: ciphertext}
}

// NewFileComplete builds a FileComplete message.
func NewFileComplete(fileIndex uint16, digest [32]byte) Message {
	return Message{Tag: TagFileComplete, FileIndex: fileIndex, SHA256: digest}
}

// NewFileVerified builds a FileVerified message.
func NewFileVerified(fileIndex uint16) Message {
	return Message{Tag: TagFileVerified, FileIndex: fileIndex}
}

// NewTransferComplete builds a TransferComplete message.
func NewTransferComplete() Message { return Message{Tag: TagTransferComplete} }

// NewCancel builds a Cancel message.
func NewCancel(reason string) Message { return Message{Tag: TagCancel, Reason: reason} }

// NewPing builds a Ping message.
func NewPing() Message { return Message{Tag: TagPing} }

// NewPong builds a Pong message.
func NewPong() Message { return Message{Tag: TagPong} }
