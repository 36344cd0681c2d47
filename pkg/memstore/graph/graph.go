// Package graph provides the SQLite-backed memory store. Episodes are
// persisted relationally, entities are derived from episode bodies, and
// mention edges connect the two. A vector driver plus embedder index episode
// bodies for semantic retrieval; centered searches boost episodes that
// mention the center entity.
package graph

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/embeddings"
	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/vector"
)

// centerBoost multiplies the score of episodes that mention the center entity.
const centerBoost = 1.5

// overfetchFactor widens the vector query so centered re-ranking has
// candidates to promote beyond the requested limit.
const overfetchFactor = 4

// Store implements memstore.Store and memstore.Querier on SQLite.
type Store struct {
	db       *sql.DB
	vectors  vector.Driver
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// Config holds configuration for the graph store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewStore opens (and migrates) the graph store. The vector driver and
// embedder may both be nil, in which case episodes are persisted and entities
// derived, but semantic search returns empty bundles.
func NewStore(c Config, vectors vector.Driver, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			body TEXT NOT NULL,
			source TEXT NOT NULL,
			source_description TEXT NOT NULL DEFAULT '',
			at_ns INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			uuid TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			created_at_ns INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS mentions (
			episode_id TEXT NOT NULL REFERENCES episodes(id),
			entity_uuid TEXT NOT NULL REFERENCES entities(uuid),
			PRIMARY KEY (episode_id, entity_uuid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mentions_entity ON mentions(entity_uuid)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
	}

	logger.Info("graph memory store initialized",
		zap.String("db_path", c.DBPath),
		zap.Bool("semantic_search", vectors != nil && embedder != nil),
	)

	return &Store{
		db:       db,
		vectors:  vectors,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// AddEpisode persists an episode, derives entities and mention edges from its
// body, and indexes the body for semantic retrieval. Indexing failures are
// logged and non-fatal: the relational write is the durable record.
func (s *Store) AddEpisode(ctx context.Context, ep memstore.Episode) error {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO episodes(id, name, body, source, source_description, at_ns)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Name, ep.Body, string(ep.Source), ep.SourceDescription, ep.At.UnixNano(),
	); err != nil {
		return fmt.Errorf("inserting episode: %w", err)
	}

	for _, name := range memstore.ExtractEntityNames(ep.Body) {
		entityUUID, err := upsertEntity(ctx, tx, name, ep.At)
		if err != nil {
			return fmt.Errorf("upserting entity %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO mentions(episode_id, entity_uuid) VALUES (?, ?)`,
			ep.ID, entityUUID,
		); err != nil {
			return fmt.Errorf("inserting mention: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.index(ctx, ep)

	return nil
}

// upsertEntity finds an entity by name (case-insensitive) or creates it.
func upsertEntity(ctx context.Context, tx *sql.Tx, name string, at time.Time) (string, error) {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT uuid FROM entities WHERE name = ?`, name,
	).Scan(&existing)

	switch err {
	case nil:
		return existing, nil
	case sql.ErrNoRows:
		entityUUID := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities(uuid, name, created_at_ns) VALUES (?, ?, ?)`,
			entityUUID, name, at.UnixNano(),
		); err != nil {
			return "", err
		}
		return entityUUID, nil
	default:
		return "", err
	}
}

// index embeds the episode body and stores the vector. Failures leave the
// episode retrievable only through structured queries.
func (s *Store) index(ctx context.Context, ep memstore.Episode) {
	if s.vectors == nil || s.embedder == nil {
		return
	}

	emb, err := s.embedder.Embed(ctx, ep.Body)
	if err != nil {
		s.logger.Warn("embedding episode failed, episode not semantically indexed",
			zap.String("episode_id", ep.ID),
			zap.Error(err),
		)
		return
	}

	err = s.vectors.Add(ctx, []vector.Document{{
		ID:        ep.ID,
		EpisodeID: ep.ID,
		Embedding: emb,
	}})
	if err != nil {
		s.logger.Warn("indexing episode failed, episode not semantically indexed",
			zap.String("episode_id", ep.ID),
			zap.Error(err),
		)
	}
}

// Search retrieves the facts most relevant to the query. When a center entity
// is given, episodes mentioning it are boosted before the limit is applied.
func (s *Store) Search(ctx context.Context, query string, opts ...memstore.SearchOption) ([]memstore.Fact, error) {
	params := memstore.NewSearchParams(opts...)

	if s.vectors == nil || s.embedder == nil {
		return nil, nil
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.vectors.Query(ctx, emb, params.Limit*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.EpisodeID)
	}

	bodies, err := s.episodeBodies(ctx, ids)
	if err != nil {
		return nil, err
	}

	centered := map[string]bool{}
	if params.Center != "" {
		centered, err = s.mentioningEpisodes(ctx, params.Center, ids)
		if err != nil {
			return nil, err
		}
	}

	facts := make([]memstore.Fact, 0, len(results))
	for _, r := range results {
		body, ok := bodies[r.EpisodeID]
		if !ok {
			continue
		}

		score := r.Score
		if centered[r.EpisodeID] {
			score *= centerBoost
		}

		facts = append(facts, memstore.Fact{
			Content: body,
			Score:   score,
		})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Score > facts[j].Score
	})

	if len(facts) > params.Limit {
		facts = facts[:params.Limit]
	}

	s.logger.Debug("searched memory",
		zap.Int("facts", len(facts)),
		zap.Bool("centered", params.Center != ""),
	)

	return facts, nil
}

// episodeBodies loads episode bodies for the given IDs with a parameterized
// IN clause.
func (s *Store) episodeBodies(ctx context.Context, ids []string) (map[string]string, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	stmt := fmt.Sprintf(
		`SELECT id, body FROM episodes WHERE id IN (%s)`,
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("loading episodes: %w", err)
	}
	defer rows.Close()

	bodies := make(map[string]string, len(ids))
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scanning episode: %w", err)
		}
		bodies[id] = body
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating episodes: %w", err)
	}

	return bodies, nil
}

// mentioningEpisodes returns which of the given episodes mention the entity.
func (s *Store) mentioningEpisodes(ctx context.Context, entityUUID string, ids []string) (map[string]bool, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, entityUUID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	stmt := fmt.Sprintf(
		`SELECT episode_id FROM mentions WHERE entity_uuid = ? AND episode_id IN (%s)`,
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("loading mentions: %w", err)
	}
	defer rows.Close()

	mentioning := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning mention: %w", err)
		}
		mentioning[id] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mentions: %w", err)
	}

	return mentioning, nil
}

// FindEntity looks up a derived entity by name, case-insensitively.
func (s *Store) FindEntity(ctx context.Context, name string) (*memstore.Entity, error) {
	var (
		entityUUID  string
		entityName  string
		createdAtNs int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT uuid, name, created_at_ns FROM entities WHERE name = ?`, name,
	).Scan(&entityUUID, &entityName, &createdAtNs)

	switch err {
	case nil:
		return &memstore.Entity{
			UUID:      entityUUID,
			Name:      entityName,
			CreatedAt: time.Unix(0, createdAtNs),
		}, nil
	case sql.ErrNoRows:
		return nil, memstore.NotFoundError{Name: name}
	default:
		return nil, fmt.Errorf("looking up entity: %w", err)
	}
}

// Query runs a parameterized statement and returns the result rows.
func (s *Store) Query(ctx context.Context, stmt string, args ...any) ([]memstore.Row, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var result []memstore.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(memstore.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return result, nil
}

// Exec runs a parameterized statement that returns no rows.
func (s *Store) Exec(ctx context.Context, stmt string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("executing: %w", err)
	}
	return nil
}

// Close releases the database handle. The vector driver and embedder are
// owned by the caller and closed separately.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure Store implements memstore.Store and memstore.Querier
var (
	_ memstore.Store   = (*Store)(nil)
	_ memstore.Querier = (*Store)(nil)
)
