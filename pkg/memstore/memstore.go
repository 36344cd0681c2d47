// Package memstore defines the contract for the persistent conversation
// memory: episode ingestion, semantic fact retrieval, and entity lookup.
package memstore

import (
	"context"
	"time"
)

// Source classifies how an episode entered the store.
type Source string

const (
	// SourceText marks free-form text ingested directly (e.g. identity anchors).
	SourceText Source = "text"

	// SourceMessage marks a recorded conversation exchange.
	SourceMessage Source = "message"
)

// Episode is a single ingested unit of memory.
type Episode struct {
	// ID uniquely identifies the episode. Assigned by the store when empty.
	ID string

	// Name is a short label for the episode (e.g. "Chatbot Response").
	Name string

	// Body is the full episode content. Entity names are extracted from it.
	Body string

	// Source classifies the episode.
	Source Source

	// SourceDescription names the system that produced the episode.
	SourceDescription string

	// At is the reference time of the episode.
	At time.Time
}

// Fact is a retrieved piece of memory relevant to a query.
type Fact struct {
	// Content is the fact text handed to prompt assembly.
	Content string

	// Score is the retrieval relevance (higher = more relevant).
	Score float32
}

// Entity is a named node in the memory graph, derived from episode bodies.
type Entity struct {
	// UUID is the entity's stable handle.
	UUID string

	// Name is the entity's display name as it appeared in episodes.
	Name string

	// CreatedAt is when the entity was first derived.
	CreatedAt time.Time
}

// Row is a single structured query result keyed by column name.
type Row map[string]any

// DefaultSearchLimit caps retrieved facts when no explicit limit is given.
const DefaultSearchLimit = 8

// SearchParams carries resolved search options.
type SearchParams struct {
	// Center is the entity UUID retrieval is biased toward. Empty means no
	// centering.
	Center string

	// Limit caps the number of returned facts.
	Limit int
}

// SearchOption configures a Search call.
type SearchOption func(*SearchParams)

// WithCenter biases retrieval toward episodes that mention the entity with
// the given UUID.
func WithCenter(uuid string) SearchOption {
	return func(p *SearchParams) {
		p.Center = uuid
	}
}

// WithLimit caps the number of returned facts.
func WithLimit(n int) SearchOption {
	return func(p *SearchParams) {
		if n > 0 {
			p.Limit = n
		}
	}
}

// NewSearchParams resolves options against defaults.
func NewSearchParams(opts ...SearchOption) SearchParams {
	p := SearchParams{Limit: DefaultSearchLimit}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Store is the memory layer the orchestrator and identity resolver consume.
type Store interface {
	// AddEpisode ingests an episode: persists it, derives entities from its
	// body, and indexes it for semantic retrieval.
	AddEpisode(ctx context.Context, ep Episode) error

	// Search returns the facts most relevant to the query. An empty result
	// is a valid empty bundle, never an error.
	Search(ctx context.Context, query string, opts ...SearchOption) ([]Fact, error)

	// FindEntity looks up a derived entity by name. Returns NotFoundError
	// if no such entity exists.
	FindEntity(ctx context.Context, name string) (*Entity, error)

	// Close releases resources held by the store.
	Close() error
}

// Querier is the structured query surface some stores expose on top of their
// backing database. All statements are parameterized; callers never build
// statements from user input.
type Querier interface {
	// Query runs a parameterized statement and returns the result rows.
	Query(ctx context.Context, stmt string, args ...any) ([]Row, error)

	// Exec runs a parameterized statement that returns no rows.
	Exec(ctx context.Context, stmt string, args ...any) error
}
