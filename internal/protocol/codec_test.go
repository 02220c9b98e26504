package protocol

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

// TestRoundTrip checks every message variant survives encode/decode unchanged.
func TestRoundTrip(t *testing.T) {
	sessionID := uuid.New()
	var nonce [12]byte
	copy(nonce[:], []byte("abcdefghijkl"))
	var digest [32]byte
	copy(digest[:], bytes.Repeat([]byte{0xAB}, 32))

	cases := []Message{
		NewFileOffer(sessionID, []FileDescriptor{
			{Name: "a.txt", Size: 10},
			{Name: "b.bin", Size: 0, RelativePath: "sub/dir/b.bin"},
		}),
		NewFileOffer(sessionID, nil),
		NewFileAccept(),
		NewFileDecline(),
		NewFileChunk(1, 42, nonce, []byte("ciphertext-bytes")),
		NewFileChunk(0, 0, nonce, nil),
		NewFileComplete(3, digest),
		NewFileVerified(3),
		NewTransferComplete(),
		NewCancel("user requested"),
		NewCancel(""),
		NewPing(),
		NewPong(),
	}

	for _, want := range cases {
		body, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%v) failed: %v", want.Tag, err)
		}
		got, err := Decode(body)
		if err != nil {
			t.Fatalf("Decode(%v) failed: %v", want.Tag, err)
		}
		if got.Tag != want.Tag {
			t.Fatalf("tag mismatch: got %v, want %v", got.Tag, want.Tag)
		}
		switch want.Tag {
		case TagFileOffer:
			if got.SessionID != want.SessionID {
				t.Errorf("%v: session id mismatch", want.Tag)
			}
			if len(got.Files) != len(want.Files) {
				t.Fatalf("%v: file count mismatch", want.Tag)
			}
			for i := range want.Files {
				if got.Files[i] != want.Files[i] {
					t.Errorf("%v: file %d mismatch: got %+v, want %+v", want.Tag, i, got.Files[i], want.Files[i])
				}
			}
		case TagFileChunk:
			if got.FileIndex != want.FileIndex || got.ChunkIndex != want.ChunkIndex {
				t.Errorf("%v: index mismatch", want.Tag)
			}
			if got.Nonce != want.Nonce {
				t.Errorf("%v: nonce mismatch", want.Tag)
			}
			if !bytes.Equal(got.Ciphertext, want.Ciphertext) {
				t.Errorf("%v: ciphertext mismatch", want.Tag)
			}
		case TagFileComplete:
			if got.FileIndex != want.FileIndex || got.SHA256 != want.SHA256 {
				t.Errorf("%v: mismatch", want.Tag)
			}
		case TagFileVerified:
			if got.FileIndex != want.FileIndex {
				t.Errorf("%v: file index mismatch", want.Tag)
			}
		case TagCancel:
			if got.Reason != want.Reason {
				t.Errorf("%v: reason mismatch", want.Tag)
			}
		}
	}
}

// TestWriteReadFrame exercises the length-prefixed framing over a buffer.
func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	msgs := []Message{NewPing(), NewFileAccept(), NewCancel("network")}

	for _, m := range msgs {
		if err := WriteFrame(&buf, m); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	for _, want := range msgs {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if got.Tag != want.Tag {
			t.Errorf("got tag %v, want %v", got.Tag, want.Tag)
		}
	}
}

// TestDecodeUnknownTag tests that an unrecognized tag byte is reported precisely.
func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

// TestDecodeTruncated tests that a short body is reported precisely, not panicked on.
func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{byte(TagFileChunk)})
	if err == nil {
		t.Fatal("expected error for truncated FileChunk body")
	}
}

// FuzzDecode ensures arbitrary input never panics the decoder.
func FuzzDecode(f *testing.F) {
	seeds := [][]byte{
		{},
		{byte(TagPing)},
		{byte(TagFileChunk), 0, 1, 0, 0, 0, 42},
		{byte(TagCancel), 0, 4, 'o', 'o', 'p', 's'},
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, body []byte) {
		_, _ = Decode(body)
	})
}
