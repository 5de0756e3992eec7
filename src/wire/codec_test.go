package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeBinaryFrameRoundTrip(t *testing.T) {
	h := Header{
		SessionID:  "sess-1",
		TurnID:     "turn-1",
		Seq:        42,
		Codec:      CodecPCM16,
		SampleRate: 16000,
		Channels:   1,
	}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	encoded, err := EncodeBinaryFrame(h, payload)
	if err != nil {
		t.Fatalf("EncodeBinaryFrame: %v", err)
	}

	decoded, err := DecodeBinaryFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeBinaryFrame: %v", err)
	}

	if decoded.Header != h {
		t.Fatalf("header mismatch: got %+v, want %+v", decoded.Header, h)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: got %v, want %v", decoded.Payload, payload)
	}
}

func TestDecodeBinaryFrameTooShort(t *testing.T) {
	if _, err := DecodeBinaryFrame([]byte{0, 0}); err != ErrFrameTooShort {
		t.Fatalf("got %v, want ErrFrameTooShort", err)
	}
}

func TestDecodeBinaryFrameHeaderTruncated(t *testing.T) {
	data := []byte{0, 0, 0, 200} // claims a 200-byte header with nothing after
	if _, err := DecodeBinaryFrame(data); err != ErrHeaderTruncated {
		t.Fatalf("got %v, want ErrHeaderTruncated", err)
	}
}

func TestDecodeBinaryFrameZeroHeaderLenRejected(t *testing.T) {
	data := []byte{0, 0, 0, 0, 1, 2, 3}
	if _, err := DecodeBinaryFrame(data); err != ErrHeaderTooLong {
		t.Fatalf("got %v, want ErrHeaderTooLong", err)
	}
}

func TestDecodeBinaryFrameOversizedHeaderLenRejected(t *testing.T) {
	data := make([]byte, 4)
	data[0], data[1], data[2], data[3] = 0, 0, 0x04, 0x01 // 1025, just over MaxHeaderLen
	if _, err := DecodeBinaryFrame(data); err != ErrHeaderTooLong {
		t.Fatalf("got %v, want ErrHeaderTooLong", err)
	}
}

func TestValidateOpusFrameRejectsGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xFF}, 40)
	if err := ValidateOpusFrame(garbage, 48000, 1); err == nil {
		t.Fatal("expected ValidateOpusFrame to reject non-opus payload")
	}
}

func TestChunkSizeFor(t *testing.T) {
	cases := []struct {
		codec Codec
		want  int
	}{
		{CodecMulaw, 160},
		{CodecAlaw, 160},
		{CodecPCM16, 320},
		{CodecOpus, 320},
	}
	for _, tc := range cases {
		if got := ChunkSizeFor(tc.codec); got != tc.want {
			t.Errorf("ChunkSizeFor(%s) = %d, want %d", tc.codec, got, tc.want)
		}
	}
}
