// Package chromem provides a vector driver backed by chromem-go, a pure Go
// embedded vector database. It needs no external service, which makes it the
// zero-dependency alternative to the sqlite-vec driver.
package chromem

import (
	"context"
	"fmt"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/vector"
)

const collectionName = "episodes"

// ChromemDriver implements vector.Driver on top of a chromem-go collection.
type ChromemDriver struct {
	db     *chromemgo.DB
	col    *chromemgo.Collection
	logger *zap.Logger
}

// Config holds configuration for the chromem driver.
type Config struct {
	// Path is the directory chromem persists to. Empty means in-memory only.
	Path string
}

// NewChromemDriver creates a chromem-backed vector driver.
func NewChromemDriver(c Config, logger *zap.Logger) (*ChromemDriver, error) {
	var (
		db  *chromemgo.DB
		err error
	)

	if c.Path == "" {
		db = chromemgo.NewDB()
	} else {
		db, err = chromemgo.NewPersistentDB(c.Path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem db: %v", vector.ErrConnection, err)
		}
	}

	// No embedding func: callers always provide embeddings. Default cosine
	// distance applies.
	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating collection: %v", vector.ErrConnection, err)
	}

	logger.Info("chromem vector driver initialized",
		zap.String("path", c.Path),
	)

	return &ChromemDriver{
		db:     db,
		col:    col,
		logger: logger,
	}, nil
}

// Add stores documents with their embeddings. Existing IDs are overwritten.
func (d *ChromemDriver) Add(ctx context.Context, docs []vector.Document) error {
	for _, doc := range docs {
		err := d.col.AddDocument(ctx, chromemgo.Document{
			ID:        doc.ID,
			Content:   doc.ID,
			Embedding: doc.Embedding,
			Metadata: map[string]string{
				"episode_id": doc.EpisodeID,
			},
		})
		if err != nil {
			return fmt.Errorf("adding document %s: %w", doc.ID, err)
		}
	}

	d.logger.Debug("added documents to chromem",
		zap.Int("count", len(docs)),
	)

	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *ChromemDriver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	// chromem requires nResults <= collection size.
	if count := d.col.Count(); topK > count {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	found, err := d.col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(found))
	for _, r := range found {
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:        r.ID,
				EpisodeID: r.Metadata["episode_id"],
			},
			Score: r.Similarity,
		})
	}

	d.logger.Debug("queried chromem",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Delete removes documents by their IDs.
func (d *ChromemDriver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := d.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting from chromem: %w", err)
	}

	return nil
}

// Close releases resources held by the driver.
func (d *ChromemDriver) Close() error {
	// chromem persists on write; nothing to flush here.
	return nil
}

// Ensure ChromemDriver implements vector.Driver
var _ vector.Driver = (*ChromemDriver)(nil)
