package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

func marshalHeader(h Header) ([]byte, error) {
	return json.Marshal(h)
}

func unmarshalHeader(data []byte) (*Header, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Codec identifies the audio sample encoding carried in a binary frame,
// matching the codec strings teacher's transports/websocket.go branches
// on ("mulaw", "alaw", pcm default).
type Codec string

const (
	CodecPCM16  Codec = "pcm16"
	CodecMulaw  Codec = "mulaw"
	CodecAlaw   Codec = "alaw"
	CodecOpus   Codec = "opus"
)

// Header is the JSON header prefixed to every binary audio frame:
//
//	[4-byte big-endian header length][JSON header][raw payload]
//
// This framing lets the payload stay binary (no base64 inflation) while
// keeping the metadata self-describing and debuggable.
type Header struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	TurnID     string `json:"turn_id,omitempty"`
	Seq        uint64 `json:"seq"`
	Codec      Codec  `json:"codec,omitempty"`
	Mime       string `json:"mime,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	TS         int64  `json:"ts,omitempty"`
}

// Binary frame type discriminators (spec.md §6).
const (
	FrameTypeAudioChunk = "audio.chunk"
	FrameTypeTTSChunk   = "tts.chunk"
)

// MaxHeaderLen is the [1, 1024] bound spec §4.1 places on a binary
// frame's header length prefix.
const MaxHeaderLen = 1024

var (
	ErrFrameTooShort   = errors.New("wire: frame shorter than header length prefix")
	ErrHeaderTruncated = errors.New("wire: declared header length exceeds frame size")
	ErrHeaderTooLong   = errors.New("wire: header length outside [1, 1024]")
	ErrBadOpusFrame    = errors.New("wire: payload does not decode as a valid opus frame")
)

// BinaryFrame is the decoded form of one binary websocket message.
type BinaryFrame struct {
	Header  Header
	Payload []byte
}

// EncodeBinaryFrame serializes a Header and payload into the
// length-prefixed wire format.
func EncodeBinaryFrame(h Header, payload []byte) ([]byte, error) {
	hdrBytes, err := marshalHeader(h)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+len(hdrBytes)+len(payload)))
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(hdrBytes)))
	buf.Write(lenPrefix[:])
	buf.Write(hdrBytes)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeBinaryFrame parses the length-prefixed wire format back into a
// Header and payload slice (a sub-slice of data, not copied). Per spec
// §4.1 the header length prefix must fall within [1, 1024]; anything
// outside that bound is rejected as ErrHeaderTooLong before the header
// bytes are even looked at.
func DecodeBinaryFrame(data []byte) (*BinaryFrame, error) {
	if len(data) < 4 {
		return nil, ErrFrameTooShort
	}
	hdrLen := binary.BigEndian.Uint32(data[:4])
	if hdrLen < 1 || hdrLen > MaxHeaderLen {
		return nil, ErrHeaderTooLong
	}
	if 4+int(hdrLen) > len(data) {
		return nil, ErrHeaderTruncated
	}

	h, err := unmarshalHeader(data[4 : 4+hdrLen])
	if err != nil {
		return nil, fmt.Errorf("wire: decode header: %w", err)
	}

	return &BinaryFrame{
		Header:  *h,
		Payload: data[4+hdrLen:],
	}, nil
}

// ValidateOpusFrame decodes one opus packet in validate-only mode
// (discarding the PCM output) to reject malformed audio before it
// reaches the STT provider. Only opus-coded frames are checked; pcm16,
// mulaw and alaw payloads pass through the codec unvalidated at this
// layer (the STT provider itself will reject malformed raw samples).
func ValidateOpusFrame(payload []byte, sampleRate, channels int) error {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return fmt.Errorf("wire: create opus decoder: %w", err)
	}
	// 120ms is the largest frame opus supports at 48kHz stereo; any real
	// frame decodes into a buffer well under this.
	pcm := make([]int16, 120*sampleRate/1000*channels)
	if _, err := dec.Decode(payload, pcm); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOpusFrame, err)
	}
	return nil
}

// ChunkSizeFor returns the canonical output chunk size in bytes for a
// codec, matching teacher's WebSocketOutputProcessor.handleAudioFrame
// (160 bytes for 8kHz mu-law/a-law telephony frames, 320 bytes for 16-bit
// PCM at a 20ms frame interval).
func ChunkSizeFor(c Codec) int {
	switch c {
	case CodecMulaw, CodecAlaw:
		return 160
	default:
		return 320
	}
}
