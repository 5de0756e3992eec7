// Gemini backend. Adapted from teacher's src/services/gemini/llm.go
// (model/temperature/system-prompt config shape, role remapping of
// "assistant" -> "model") but replaces its hand-rolled raw-HTTP SSE
// client with the proper google.golang.org/genai SDK client, the way
// xpanvictor-xarvis's gemini_embedder.go constructs a genai.Client
// rather than calling the REST endpoint directly.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini implements Provider using the Gemini streaming generateContent
// API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini llm: apiKey must not be empty")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("gemini llm: new client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Initialize(ctx context.Context) error { return nil }
func (g *Gemini) Cleanup() error                       { return nil }

func (g *Gemini) HealthCheck(ctx context.Context) error {
	_, err := g.client.Models.Get(ctx, g.model, nil)
	return err
}

func (g *Gemini) StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error) {
	contents := make([]*genai.Content, 0, len(req.Messages)+1)

	if req.SystemPrompt != "" && len(req.Messages) > 0 {
		first := req.Messages[0]
		contents = append(contents, genai.NewContentFromText(
			req.SystemPrompt+"\n\n"+first.Content, genai.RoleUser))
		req.Messages = req.Messages[1:]
	}
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		if m.Role == "system" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}

	ch := make(chan Chunk, 32)
	go func() {
		defer close(ch)

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				select {
				case ch <- Chunk{Err: err, FinishReason: "error"}:
				case <-ctx.Done():
				}
				return
			}

			text := resp.Text()
			finish := ""
			if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
				finish = string(resp.Candidates[0].FinishReason)
			}
			select {
			case ch <- Chunk{Text: text, FinishReason: finish}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

var _ Provider = (*Gemini)(nil)
