// Package llm defines the streaming LLM provider interface of spec
// §4.4, shared by the OpenAI, Gemini, and Anthropic backends the router
// can select between.
package llm

import (
	"context"

	"github.com/square-key-labs/agentgateway/src/providers"
)

// Chunk is one piece of a streamed completion: either a text fragment,
// an accumulated tool call (emitted once its arguments are complete), or
// a terminal error/finish-reason marker.
type Chunk struct {
	Text         string
	ToolCalls    []providers.ToolCall
	FinishReason string
	Err          error
}

// Request is one turn's worth of context sent to the model.
type Request struct {
	SystemPrompt string
	Messages     []providers.Message
	Tools        []providers.Tool
	Temperature  float64
	MaxTokens    int
}

// Provider is the streaming completion capability interface (spec
// §4.4). StreamCompletion's channel is closed when the stream ends,
// whether by finish or by ctx cancellation (used to implement the
// llmAbort turn-cancellation token of spec §4.7).
type Provider interface {
	providers.Lifecycle
	StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error)
	Name() string
}
