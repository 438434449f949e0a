// Package ai sends structured-output prompts to a hosted model and returns
// the raw JSON reply. Prompt content and response shapes belong to callers.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrDisabled is returned by the client used when no provider is configured.
	ErrDisabled = errors.New("ai: no model provider configured")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Request is one structured generation call.
type Request struct {
	// Operation labels the call in logs and metrics, e.g. "summarize".
	Operation string
	System    string
	Prompt    string
	// Schema describes the expected JSON object. Providers without native
	// schema support receive it as prompt text.
	Schema *genai.Schema
	// Grounded asks the provider to consult web search before answering.
	Grounded bool
}

// Client generates a JSON document for a request.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) ([]byte, error)
	Provider() string
}

// Disabled is the Client used when AI is turned off. Every call fails with
// ErrDisabled so callers fall back to their non-AI path.
type Disabled struct{}

func (Disabled) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	return nil, ErrDisabled
}

func (Disabled) Provider() string { return "none" }

// Enabled reports whether c can reach a model.
func Enabled(c Client) bool {
	if c == nil {
		return false
	}
	_, off := c.(Disabled)
	return !off
}

// StripFences removes markdown code fences from model output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject trims any prose around the outermost JSON object. Grounded
// replies are free text and often wrap the object in commentary.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// Decode strips fences and surrounding prose from raw and unmarshals the
// JSON object into v.
func Decode(raw []byte, v any) error {
	text := extractObject(StripFences(string(raw)))
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("ai: decode response: %w", err)
	}
	return nil
}

// Generate runs req through c and decodes the reply into v.
func Generate(ctx context.Context, c Client, req Request, v any) error {
	if c == nil {
		return ErrDisabled
	}
	raw, err := c.GenerateJSON(ctx, req)
	if err != nil {
		return err
	}
	return Decode(raw, v)
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Schema helpers keep call sites short.

func ObjectSchema(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func StringSchema(enum ...string) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeString}
	if len(enum) > 0 {
		s.Format = "enum"
		s.Enum = enum
	}
	return s
}

func IntegerSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger}
}

func BooleanSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean}
}

func ArraySchema(items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: items}
}
