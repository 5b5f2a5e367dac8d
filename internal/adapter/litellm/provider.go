package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ascension-labs/govcore/internal/port/reasoning"
)

// Provider adapts a Client to reasoning.Provider for one model.
type Provider struct {
	client *Client
	model  string
}

// NewProvider creates a provider that sends every request to model.
func NewProvider(client *Client, model string) *Provider {
	return &Provider{client: client, model: model}
}

var _ reasoning.Provider = (*Provider)(nil)

// Generate runs one chat completion. A length-truncated answer returns
// reasoning.ErrTruncated; structured output that is not a JSON value
// returns reasoning.ErrSchemaUnsatisfied.
func (p *Provider) Generate(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	chat := ChatRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []ChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
	}
	if len(req.Schema) > 0 {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		chat.ResponseFormat = &ResponseFormat{
			Type:       "json_schema",
			JSONSchema: &JSONSchemaFormat{Name: name, Schema: req.Schema, Strict: true},
		}
	}

	resp, err := p.client.ChatCompletion(ctx, chat)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, fmt.Errorf("%w: model %s", reasoning.ErrTruncated, resp.Model)
	}

	out := &reasoning.Response{
		Text:       choice.Message.Content,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}
	if len(req.Schema) > 0 {
		raw := bytes.TrimSpace([]byte(stripFence(choice.Message.Content)))
		if len(raw) == 0 || !json.Valid(raw) {
			return nil, fmt.Errorf("%w: output is not valid JSON", reasoning.ErrSchemaUnsatisfied)
		}
		out.Structured = json.RawMessage(raw)
	}
	return out, nil
}

// stripFence removes a surrounding markdown code fence some models add
// even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
