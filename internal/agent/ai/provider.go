// Package ai abstracts the language-model and vision service behind a small
// provider interface so the rest of the engine never touches vendor SDKs.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks a downstream AI service failure. Callers surface it as
// a ServiceUnavailable outcome rather than a raw transport error.
var ErrUnavailable = errors.New("ai service unavailable")

// Message is one chat message in provider-neutral form.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Provider is the AI service boundary.
type Provider interface {
	// ID returns the provider identifier (e.g. "openai", "anthropic").
	ID() string

	// Complete sends a chat request and returns the full response text.
	Complete(ctx context.Context, req *ChatRequest) (string, error)

	// AnalyzeImage answers a prompt about a base64-encoded image.
	AnalyzeImage(ctx context.Context, imageBase64, mediaType, prompt string) (string, error)
}

// New builds a provider from config values.
func New(typ, apiKey, model, visionModel string) (Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", typ)
	}
	if visionModel == "" {
		visionModel = model
	}
	switch typ {
	case "openai", "":
		return NewOpenAIProvider(apiKey, model, visionModel), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, model, visionModel), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", typ)
	}
}
