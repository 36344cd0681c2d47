// Package inmemory provides a map-backed memory store for tests and local
// development without an embedding provider. Retrieval scores by word
// overlap instead of vector similarity.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/engramchat/engram/pkg/memstore"
)

const centerBoost = 1.5

// Store implements memstore.Store using in-memory maps.
type Store struct {
	// mu is a read write sync mutex for locking episodes and entities
	mu sync.RWMutex

	// episodes in insertion order
	episodes []memstore.Episode

	// entities keyed by lowercased name
	entities map[string]memstore.Entity

	// mentions maps entity UUID to the set of episode IDs mentioning it
	mentions map[string]map[string]bool
}

// NewStore creates a new in-memory memory store.
func NewStore() *Store {
	return &Store{
		entities: make(map[string]memstore.Entity),
		mentions: make(map[string]map[string]bool),
	}
}

// AddEpisode ingests an episode and derives entities from its body.
func (s *Store) AddEpisode(_ context.Context, ep memstore.Episode) error {
	if ep.Body == "" {
		return fmt.Errorf("cannot add episode with empty body")
	}
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.At.IsZero() {
		ep.At = time.Now()
	}
	if ep.Source == "" {
		ep.Source = memstore.SourceText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes = append(s.episodes, ep)

	for _, name := range memstore.ExtractEntityNames(ep.Body) {
		key := strings.ToLower(name)
		entity, ok := s.entities[key]
		if !ok {
			entity = memstore.Entity{
				UUID:      uuid.NewString(),
				Name:      name,
				CreatedAt: ep.At,
			}
			s.entities[key] = entity
			s.mentions[entity.UUID] = make(map[string]bool)
		}
		s.mentions[entity.UUID][ep.ID] = true
	}

	return nil
}

// Search scores episodes by word overlap with the query. Centered searches
// boost episodes mentioning the center entity.
func (s *Store) Search(_ context.Context, query string, opts ...memstore.SearchOption) ([]memstore.Fact, error) {
	params := memstore.NewSearchParams(opts...)

	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var facts []memstore.Fact
	for _, ep := range s.episodes {
		overlap := 0
		bodyWords := contentWords(ep.Body)
		for w := range queryWords {
			if bodyWords[w] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}

		score := float32(overlap) / float32(len(queryWords))
		if params.Center != "" && s.mentions[params.Center][ep.ID] {
			score *= centerBoost
		}

		facts = append(facts, memstore.Fact{
			Content: ep.Body,
			Score:   score,
		})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Score > facts[j].Score
	})

	if len(facts) > params.Limit {
		facts = facts[:params.Limit]
	}

	return facts, nil
}

// contentWords lowercases and tokenizes text, keeping words of three or more
// letters so articles and pronouns don't count as overlap.
func contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(w) >= 3 {
			words[w] = true
		}
	}
	return words
}

// FindEntity looks up a derived entity by name, case-insensitively.
func (s *Store) FindEntity(_ context.Context, name string) (*memstore.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[strings.ToLower(name)]
	if !ok {
		return nil, memstore.NotFoundError{Name: name}
	}

	return &entity, nil
}

// Episodes returns a copy of all stored episodes in insertion order.
func (s *Store) Episodes() []memstore.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]memstore.Episode, len(s.episodes))
	copy(out, s.episodes)
	return out
}

// Count returns the number of stored episodes.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Ensure Store implements memstore.Store
var _ memstore.Store = (*Store)(nil)
