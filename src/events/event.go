// Package events defines the in-process event vocabulary that flows
// between providers, the barge-in guards, and the session orchestrator.
// It generalizes the teacher's frame category/direction model
// (src/frames/frame.go) from a processor-chain of Go types into a single
// tagged Event carrying a Kind, so the orchestrator's priority queue
// (src/queue) can route on Kind without a type switch per provider.
package events

import (
	"sync/atomic"
	"time"
)

// Direction mirrors the teacher's frames.FrameDirection: Downstream means
// user audio/text flowing toward LLM/TTS, Upstream means a control signal
// flowing back toward the transport.
type Direction int

const (
	Downstream Direction = iota
	Upstream
)

func (d Direction) String() string {
	if d == Upstream {
		return "upstream"
	}
	return "downstream"
}

// Priority mirrors the teacher's FrameCategory split (System vs Data):
// System events (errors, cancellation, interruption) always preempt Data
// events (transcripts, LLM tokens, TTS audio) in the orchestrator's queue.
type Priority int

const (
	PriorityData Priority = iota
	PrioritySystem
)

// Kind enumerates every event the pipeline can carry.
type Kind string

const (
	KindAudioChunk           Kind = "audio.chunk"
	KindSTTPartial           Kind = "stt.partial"
	KindSTTFinal             Kind = "stt.final"
	KindUserStartedSpeaking  Kind = "user.started_speaking"
	KindUserStoppedSpeaking  Kind = "user.stopped_speaking"
	KindLLMResponseStart     Kind = "llm.response_start"
	KindLLMToken             Kind = "llm.token"
	KindLLMResponseEnd       Kind = "llm.response_end"
	KindTTSStarted           Kind = "tts.started"
	KindTTSAudioChunk        Kind = "tts.audio_chunk"
	KindTTSStopped           Kind = "tts.stopped"
	KindInterruption         Kind = "interruption"
	KindError                Kind = "error"
	KindSessionStart         Kind = "session.start"
	KindSessionEnd           Kind = "session.end"
	KindHeartbeat            Kind = "heartbeat"
)

var systemKinds = map[Kind]bool{
	KindInterruption: true,
	KindError:        true,
	KindSessionStart: true,
	KindSessionEnd:   true,
	KindHeartbeat:    true,
}

// PriorityOf reports the queue priority for a Kind.
func PriorityOf(k Kind) Priority {
	if systemKinds[k] {
		return PrioritySystem
	}
	return PriorityData
}

var seq uint64

// Event is the single envelope type carried on the orchestrator's queue.
type Event struct {
	id        uint64
	Kind      Kind
	Direction Direction
	TurnID    string
	PTS       time.Time

	// Payload fields. Only the ones relevant to Kind are populated; the
	// rest are zero values. A single struct (rather than an interface
	// per kind) keeps the queue generic without reflection.
	Text       string
	Confidence float64
	IsFinal    bool
	Audio      []byte
	Err        error
	Metadata   map[string]any
}

// New builds an Event, stamping a monotonic id and PTS.
func New(kind Kind, dir Direction) *Event {
	return &Event{
		id:        atomic.AddUint64(&seq, 1),
		Kind:      kind,
		Direction: dir,
		PTS:       time.Now(),
		Metadata:  make(map[string]any),
	}
}

func (e *Event) ID() uint64 { return e.id }

func (e *Event) Priority() Priority { return PriorityOf(e.Kind) }
