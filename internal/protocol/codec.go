package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// ErrUnknownTag is returned by Decode when the leading tag byte does
// not match any known message variant.
var ErrUnknownTag = errors.New("protocol: unknown message tag")

// ErrTruncated is returned by Decode when the body is shorter than the
// fields the tag requires.
var ErrTruncated = errors.New("protocol: truncated message")

// MaxFrameSize bounds a single decoded frame to guard against a
// malicious or corrupt length prefix forcing an enormous allocation.
// 262144-byte chunks plus framing overhead fit comfortably under this.
const MaxFrameSize = 1 << 22 // 4 MiB

// Encode serializes a message body (without the length prefix).
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Tag))

	switch m.Tag {
	case TagFileOffer:
		idBytes, err := m.SessionID.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("encode session id: %w", err)
		}
		buf.Write(idBytes)
		writeUint16(&buf, uint16(len(m.Files)))
		for _, f := range m.Files {
			writeString(&buf, f.Name)
			writeUint64(&buf, f.Size)
			writeString(&buf, f.RelativePath)
		}

	case TagFileAccept, TagFileDecline, TagTransferComplete, TagPing, TagPong:
		// tag only

	case TagFileChunk:
		writeUint16(&buf, m.FileIndex)
		writeUint32(&buf, m.ChunkIndex)
		buf.Write(m.Nonce[:])
		writeUint32(&buf, uint32(len(m.Ciphertext)))
		buf.Write(m.Ciphertext)

	case TagFileComplete:
		writeUint16(&buf, m.FileIndex)
		buf.Write(m.SHA256[:])

	case TagFileVerified:
		writeUint16(&buf, m.FileIndex)

	case TagCancel:
		writeString(&buf, m.Reason)

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, m.Tag)
	}

	return buf.Bytes(), nil
}

// Decode parses a message body (as produced by Encode, without the
// length prefix).
func Decode(body []byte) (Message, error) {
	if len(body) < 1 {
		return Message{}, ErrTruncated
	}
	tag := Tag(body[0])
	r := bytes.NewReader(body[1:])

	switch tag {
	case TagFileOffer:
		idBytes := make([]byte, 16)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return Message{}, fmt.Errorf("%w: session id: %v", ErrTruncated, err)
		}
		var sessionID uuid.UUID
		if err := sessionID.UnmarshalBinary(idBytes); err != nil {
			return Message{}, fmt.Errorf("decode session id: %w", err)
		}
		count, err := readUint16(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: file count: %v", ErrTruncated, err)
		}
		files := make([]FileDescriptor, 0, count)
		for i := uint16(0); i < count; i++ {
			name, err := readString(r)
			if err != nil {
				return Message{}, fmt.Errorf("%w: file name: %v", ErrTruncated, err)
			}
			size, err := readUint64(r)
			if err != nil {
				return Message{}, fmt.Errorf("%w: file size: %v", ErrTruncated, err)
			}
			relPath, err := readString(r)
			if err != nil {
				return Message{}, fmt.Errorf("%w: relative path: %v", ErrTruncated, err)
			}
			files = append(files, FileDescriptor{Name: name, Size: size, RelativePath: relPath})
		}
		return Message{Tag: tag, SessionID: sessionID, Files: files}, nil

	case TagFileAccept, TagFileDecline, TagTransferComplete, TagPing, TagPong:
		return Message{Tag: tag}, nil

	case TagFileChunk:
		fileIndex, err := readUint16(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: file index: %v", ErrTruncated, err)
		}
		chunkIndex, err := readUint32(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: chunk index: %v", ErrTruncated, err)
		}
		var nonce [12]byte
		if _, err := io.ReadFull(r, nonce[:]); err != nil {
			return Message{}, fmt.Errorf("%w: nonce: %v", ErrTruncated, err)
		}
		ctLen, err := readUint32(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: ciphertext length: %v", ErrTruncated, err)
		}
		ciphertext := make([]byte, ctLen)
		if _, err := io.ReadFull(r, ciphertext); err != nil {
			return Message{}, fmt.Errorf("%w: ciphertext: %v", ErrTruncated, err)
		}
		return Message{Tag: tag, FileIndex: fileIndex, ChunkIndex: chunkIndex, Nonce: nonce, Ciphertext: ciphertext}, nil

	case TagFileComplete:
		fileIndex, err := readUint16(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: file index: %v", ErrTruncated, err)
		}
		var digest [32]byte
		if _, err := io.ReadFull(r, digest[:]); err != nil {
			return Message{}, fmt.Errorf("%w: sha256: %v", ErrTruncated, err)
		}
		return Message{Tag: tag, FileIndex: fileIndex, SHA256: digest}, nil

	case TagFileVerified:
		fileIndex, err := readUint16(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: file index: %v", ErrTruncated, err)
		}
		return Message{Tag: tag, FileIndex: fileIndex}, nil

	case TagCancel:
		reason, err := readString(r)
		if err != nil {
			return Message{}, fmt.Errorf("%w: reason: %v", ErrTruncated, err)
		}
		return Message{Tag: tag, Reason: reason}, nil

	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
}

// WriteFrame encodes m and writes it to w as a 4-byte big-endian length
// prefix followed by the body.
func WriteFrame(w io.Writer, m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decodes it.
func ReadFrame(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return Message{}, fmt.Errorf("protocol: frame of %d bytes exceeds maximum %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("read frame body: %w", err)
	}
	return Decode(body)
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
