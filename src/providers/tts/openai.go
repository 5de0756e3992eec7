// OpenAI backend. No repo in the example pack wires openai-go's audio
// speech endpoint (see DESIGN.md); this reuses the same client
// construction as providers/llm/openai.go (grounded on glyphoxa's
// functional-options pattern) against the non-streaming speech
// endpoint, buffering the full response body and handing it to the
// caller as one chunk — OpenAI TTS does not offer ElevenLabs' chunked
// streaming protocol.
package tts

import (
	"context"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/square-key-labs/agentgateway/src/wire"
)

// OpenAIConfig configures the OpenAI TTS backend.
type OpenAIConfig struct {
	APIKey string
	Model  string // e.g. "tts-1", "tts-1-hd"
	Voice  string // e.g. "alloy", "verse"
}

// OpenAI implements Provider over the OpenAI audio/speech endpoint.
type OpenAI struct {
	client oai.Client
	cfg    OpenAIConfig

	cb Callbacks
}

func NewOpenAITTS(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	client := oai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAI{client: client, cfg: cfg}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Initialize(ctx context.Context) error { return nil }
func (o *OpenAI) Cleanup() error                       { return nil }

func (o *OpenAI) HealthCheck(ctx context.Context) error {
	_, err := o.client.Models.List(ctx)
	return err
}

func (o *OpenAI) Connect(ctx context.Context, cb Callbacks) error {
	o.cb = cb
	return nil
}

// Speak synthesizes the given text in one request and delivers it as a
// single AudioChunk via Callbacks.OnAudio. OpenAI's speech endpoint is
// not incremental, so Speak blocks until the full clip is generated.
func (o *OpenAI) Speak(text string) error {
	if text == "" {
		return nil
	}

	resp, err := o.client.Audio.Speech.New(context.Background(), oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(o.cfg.Model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(o.cfg.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		if o.cb.OnError != nil {
			o.cb.OnError(err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if o.cb.OnError != nil {
			o.cb.OnError(err)
		}
		return err
	}

	if o.cb.OnStarted != nil {
		o.cb.OnStarted()
	}
	if o.cb.OnAudio != nil {
		o.cb.OnAudio(AudioChunk{Data: data, Codec: wire.CodecPCM16, SampleRate: 24000, Channels: 1})
	}
	if o.cb.OnStopped != nil {
		o.cb.OnStopped()
	}
	return nil
}

// Flush is a no-op: Speak already synthesizes and delivers a complete
// clip per call.
func (o *OpenAI) Flush() error { return nil }

// Interrupt is a no-op: there is no server-side synthesis session to
// tear down between Speak calls.
func (o *OpenAI) Interrupt() error { return nil }

func (o *OpenAI) Close() error { return nil }

var _ Provider = (*OpenAI)(nil)
