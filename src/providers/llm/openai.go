// OpenAI backend. Grounded on MrWong99-glyphoxa's
// pkg/provider/llm/openai/openai.go: same functional-options
// constructor, same streaming tool-call-fragment accumulation keyed by
// delta index, generalized from glyphoxa's llm.Provider/types.Message to
// this module's llm.Provider/providers.Message.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/square-key-labs/agentgateway/src/providers"
)

type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

type OpenAIOption func(*openAIConfig)

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// OpenAI implements Provider using the OpenAI chat completions API.
type OpenAI struct {
	client oai.Client
	model  string
}

func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai llm: apiKey must not be empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAI{client: oai.NewClient(reqOpts...), model: model}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Initialize(ctx context.Context) error { return nil }
func (o *OpenAI) Cleanup() error                       { return nil }

func (o *OpenAI) HealthCheck(ctx context.Context) error {
	_, err := o.client.Models.List(ctx)
	return err
}

func (o *OpenAI) StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error) {
	params, err := o.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("openai llm: build params: %w", err)
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai llm: start stream: %w", err)
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		toolCallAccum := map[int64]*providers.ToolCall{}
		var order []int64

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			delta := choice.Delta

			out := Chunk{Text: delta.Content, FinishReason: choice.FinishReason}

			for _, tc := range delta.ToolCalls {
				idx := tc.Index
				existing, ok := toolCallAccum[idx]
				if !ok {
					existing = &providers.ToolCall{ID: tc.ID, Type: "function"}
					toolCallAccum[idx] = existing
					order = append(order, idx)
				}
				if tc.ID != "" {
					existing.ID = tc.ID
				}
				if tc.Function.Name != "" {
					existing.Function.Name = tc.Function.Name
				}
				existing.Function.Arguments += tc.Function.Arguments
			}

			if choice.FinishReason == "tool_calls" {
				for _, idx := range order {
					out.ToolCalls = append(out.ToolCalls, *toolCallAccum[idx])
				}
			}

			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case ch <- Chunk{Err: err, FinishReason: "error"}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (o *OpenAI) buildParams(req Request) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		msg, err := convertOpenAIMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: param.NewOpt(t.Function.Description),
				Parameters:  shared.FunctionParameters(asMap(t.Function.Parameters)),
			},
		})
	}
	return params, nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func convertOpenAIMessage(m providers.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case "system":
		return oai.SystemMessage(m.Content), nil
	case "user":
		return oai.UserMessage(m.Content), nil
	case "assistant":
		asst := oai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = oai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case "tool":
		return oai.ToolMessage(m.Content, m.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai llm: unknown role %q", m.Role)
	}
}

var _ Provider = (*OpenAI)(nil)
