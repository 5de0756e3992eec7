// Package tts defines the streaming TTS provider interface of spec §4.5,
// shared by the ElevenLabs and OpenAI backends the router can select
// between.
package tts

import (
	"context"

	"github.com/square-key-labs/agentgateway/src/providers"
	"github.com/square-key-labs/agentgateway/src/wire"
)

// AudioChunk is one piece of synthesized audio.
type AudioChunk struct {
	Data       []byte
	Codec      wire.Codec
	SampleRate int
	Channels   int
}

// Callbacks are invoked as synthesis progresses. OnStarted fires once,
// on the first audio chunk of a context; OnStopped fires once synthesis
// for that context is complete or has been cancelled.
type Callbacks struct {
	OnAudio   func(chunk AudioChunk)
	OnStarted func()
	OnStopped func()
	OnError   func(err error)
}

// Provider is the streaming TTS capability interface (spec §4.5).
type Provider interface {
	providers.Lifecycle
	Name() string
	// Connect opens a synthesis session and begins invoking cb as audio
	// arrives.
	Connect(ctx context.Context, cb Callbacks) error
	// Speak streams one text fragment into the current synthesis
	// context.
	Speak(text string) error
	// Flush signals the end of the current response, requesting any
	// buffered audio be generated and emitted.
	Flush() error
	// Interrupt closes the current synthesis context immediately,
	// discarding buffered audio (spec §4.7 barge-in).
	Interrupt() error
	Close() error
}
