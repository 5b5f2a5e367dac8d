// Package reasoning defines the port to the language-model provider that
// turns a persona prompt and a task prompt into text or structured output.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrSchemaUnsatisfied is returned when the model output does not match
	// the requested structured schema.
	ErrSchemaUnsatisfied = errors.New("response does not satisfy requested schema")
	// ErrTruncated is returned when the model stopped at its token limit.
	// Providers must not hand back silently truncated output.
	ErrTruncated = errors.New("response truncated at token limit")
)

// Request is one generation call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	// Schema, when set, asks for a JSON value matching this JSON schema.
	Schema json.RawMessage
	// SchemaName labels the schema for providers that require a name.
	SchemaName string
}

// Response is the provider's answer. Structured is set only when the
// request carried a schema.
type Response struct {
	Text       string
	Structured json.RawMessage
	Model      string
	TokensUsed int
}

// Provider generates responses. Implementations must be safe for
// concurrent use so many pipelines can run without serializing.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
