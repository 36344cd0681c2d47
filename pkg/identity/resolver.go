// Package identity resolves user names to stable entity handles in the
// memory store. Unknown names are anchored by ingesting a creation episode;
// the entity handle then falls out of the store's own entity derivation, so
// identities stay discoverable purely through ingested content.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/memstore"
)

const (
	// anchorEpisodeName labels the episode that introduces a new user.
	anchorEpisodeName = "User Creation"

	// anchorSourceDescription names the system writing anchor episodes.
	anchorSourceDescription = "engram-chat"
)

// Resolver maps user names to entity handles, caching resolved handles in
// front of the store lookup.
type Resolver struct {
	store  memstore.Store
	cache  *ristretto.Cache
	logger *zap.Logger
}

// NewResolver creates an identity resolver over the given store.
func NewResolver(store memstore.Store, logger *zap.Logger) (*Resolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating identity cache: %w", err)
	}

	return &Resolver{
		store:  store,
		cache:  cache,
		logger: logger,
	}, nil
}

// ResolveOrCreate returns the entity handle for the given user name,
// anchoring the name in the memory store if it has never been seen.
// Resolution is idempotent: a name resolves to the same handle every time,
// and repeated calls write at most one anchor episode.
func (r *Resolver) ResolveOrCreate(ctx context.Context, userName string) (string, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return "", ErrEmptyUserName
	}

	cacheKey := strings.ToLower(userName)
	if cached, ok := r.cache.Get(cacheKey); ok {
		if handle, ok := cached.(string); ok {
			return handle, nil
		}
	}

	entity, err := r.store.FindEntity(ctx, userName)
	if err == nil {
		r.remember(cacheKey, entity.UUID)
		return entity.UUID, nil
	}

	var notFound memstore.NotFoundError
	if !errors.As(err, &notFound) {
		return "", fmt.Errorf("looking up identity %q: %w", userName, err)
	}

	// Unknown name: anchor it with a creation episode, then re-query. The
	// entity must come from the store's own derivation of that episode.
	// Capitalized so entity derivation picks the name up even when the user
	// typed it lowercase; lookup is case-insensitive either way.
	anchor := memstore.Episode{
		Name:              anchorEpisodeName,
		Body:              fmt.Sprintf("%s started a chat.", capitalizeFirst(userName)),
		Source:            memstore.SourceText,
		SourceDescription: anchorSourceDescription,
		At:                time.Now(),
	}
	if err := r.store.AddEpisode(ctx, anchor); err != nil {
		return "", fmt.Errorf("%w: anchoring %q: %v", ErrIdentityCreation, userName, err)
	}

	entity, err = r.store.FindEntity(ctx, userName)
	if err != nil {
		return "", fmt.Errorf("%w: %q not derivable after anchoring: %v", ErrIdentityCreation, userName, err)
	}

	r.logger.Info("anchored new identity",
		zap.String("user_name", userName),
		zap.String("handle", entity.UUID),
	)

	r.remember(cacheKey, entity.UUID)
	return entity.UUID, nil
}

// remember caches a resolved handle and waits for the write to land so
// back-to-back resolutions hit the cache.
func (r *Resolver) remember(key, handle string) {
	r.cache.Set(key, handle, int64(len(handle)))
	r.cache.Wait()
}

// Close releases the cache.
func (r *Resolver) Close() error {
	r.cache.Close()
	return nil
}

func capitalizeFirst(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
