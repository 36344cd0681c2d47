// Package testutil provides shared fakes for engram package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramchat/engram/pkg/embeddings"
)

// DefaultEmbedding is returned for texts without an explicit mapping.
var DefaultEmbedding = []float32{0.1, 0.2, 0.3}

// MockEmbedder is a fake embedder for tests. Texts map to fixed embeddings;
// unknown texts get a default vector so every input embeds successfully.
type MockEmbedder struct {
	// Embeddings maps exact input text to its embedding.
	Embeddings map[string][]float32

	// FailOn makes Embed return an error when the input contains this
	// substring. Empty disables failure injection.
	FailOn string

	// Calls records every embedded text in order.
	Calls []string
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls = append(m.Calls, text)

	if m.FailOn != "" && strings.Contains(text, m.FailOn) {
		return nil, fmt.Errorf("mock embedder failure for %q", text)
	}

	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}

	return DefaultEmbedding, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

// Ensure MockEmbedder implements embeddings.Embedder
var _ embeddings.Embedder = (*MockEmbedder)(nil)
