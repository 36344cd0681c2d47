// Package provider defines the generation engine contract and its
// implementations.
package provider

import (
	"context"
	"errors"

	"github.com/engramchat/engram/pkg/llm"
)

// ErrStreamingNotSupported is returned by ChatStream when a provider cannot
// stream.
var ErrStreamingNotSupported = errors.New("streaming not supported for this provider")

// StreamHandler receives one chunk of a streaming response. Returning an
// error aborts the stream.
type StreamHandler func(llm.StreamChunk) error

// Chatter is the generation engine interface. Implementations translate the
// internal request format into a provider API and back.
type Chatter interface {
	// Name returns the canonical provider name (e.g., "ollama", "anthropic")
	Name() string

	// Chat performs a blocking chat completion.
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// ChatStream performs a streaming chat completion, invoking handler for
	// each chunk. The final accumulated response is returned once the stream
	// ends.
	ChatStream(ctx context.Context, req *llm.ChatRequest, handler StreamHandler) (*llm.ChatResponse, error)
}
