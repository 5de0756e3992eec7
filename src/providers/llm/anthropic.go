// Anthropic backend. No repo in the example pack calls
// anthropic-sdk-go directly (see DESIGN.md); this follows the same
// functional-options-plus-streaming-channel shape as openai.go
// (grounded on MrWong99-glyphoxa's OpenAI provider) applied to the
// Anthropic Messages streaming API, since both SDKs expose an
// accumulate-as-you-iterate event stream.
package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/square-key-labs/agentgateway/src/providers"
)

// Anthropic implements Provider using the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic llm: apiKey must not be empty")
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: client, model: model}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Initialize(ctx context.Context) error { return nil }
func (a *Anthropic) Cleanup() error                       { return nil }

func (a *Anthropic) HealthCheck(ctx context.Context) error {
	_, err := a.client.Models.Get(ctx, a.model)
	return err
}

func (a *Anthropic) StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			// system- and tool-role messages are not sent; the system
			// prompt comes only from req.SystemPrompt above.
		}
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Function.Name,
				Description: anthropic.String(t.Function.Description),
			},
		})
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)

		stream := a.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				select {
				case ch <- Chunk{Err: err, FinishReason: "error"}:
				case <-ctx.Done():
				}
				return
			}

			switch delta := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta.Delta.Text != "" {
					select {
					case ch <- Chunk{Text: delta.Delta.Text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		finish := ""
		if message.StopReason != "" {
			finish = string(message.StopReason)
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- Chunk{Err: err, FinishReason: "error"}:
			case <-ctx.Done():
			}
			return
		}

		var toolCalls []providers.ToolCall
		for _, block := range message.Content {
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				toolCalls = append(toolCalls, providers.ToolCall{
					ID:   tu.ID,
					Type: "function",
					Function: providers.FunctionCall{
						Name:      tu.Name,
						Arguments: string(tu.Input),
					},
				})
			}
		}
		if len(toolCalls) > 0 || finish != "" {
			select {
			case ch <- Chunk{ToolCalls: toolCalls, FinishReason: finish}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

var _ Provider = (*Anthropic)(nil)
