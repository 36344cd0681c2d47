package persona

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/memstore"
)

// Store persists personas through the memory store's structured query
// surface. Every statement is parameterized; submitted values never reach
// statement text.
type Store struct {
	q      memstore.Querier
	logger *zap.Logger
}

// NewStore creates (and migrates) the persona store.
func NewStore(ctx context.Context, q memstore.Querier, logger *zap.Logger) (*Store, error) {
	err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS personas (
			handle TEXT PRIMARY KEY,
			given_name TEXT NOT NULL,
			surname TEXT NOT NULL,
			full_name TEXT NOT NULL,
			age INTEGER NOT NULL,
			profession TEXT NOT NULL,
			hobbies TEXT NOT NULL DEFAULT '',
			additional_info TEXT NOT NULL DEFAULT '',
			created_at_ns INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("migrating personas table: %w", err)
	}

	return &Store{
		q:      q,
		logger: logger,
	}, nil
}

// Create validates the input and stores a new persona. The handle is minted
// here and the full name derived once; both are immutable afterwards.
func (s *Store) Create(ctx context.Context, in Input) (*Persona, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	p := &Persona{
		Handle:         uuid.NewString(),
		GivenName:      strings.TrimSpace(in.GivenName),
		Surname:        strings.TrimSpace(in.Surname),
		Age:            in.Age,
		Profession:     strings.TrimSpace(in.Profession),
		Hobbies:        strings.TrimSpace(in.Hobbies),
		AdditionalInfo: strings.TrimSpace(in.AdditionalInfo),
		CreatedAt:      time.Now(),
	}
	p.FullName = p.GivenName + " " + p.Surname

	err := s.q.Exec(ctx, `
		INSERT INTO personas(handle, given_name, surname, full_name, age, profession, hobbies, additional_info, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Handle, p.GivenName, p.Surname, p.FullName, p.Age, p.Profession, p.Hobbies, p.AdditionalInfo, p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting persona: %w", err)
	}

	s.logger.Info("created persona",
		zap.String("handle", p.Handle),
		zap.String("full_name", p.FullName),
	)

	return p, nil
}

// List returns all personas, newest first.
func (s *Store) List(ctx context.Context) ([]Persona, error) {
	rows, err := s.q.Query(ctx, `
		SELECT handle, given_name, surname, full_name, age, profession, hobbies, additional_info, created_at_ns
		FROM personas
		ORDER BY created_at_ns DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing personas: %w", err)
	}

	personas := make([]Persona, 0, len(rows))
	for _, row := range rows {
		personas = append(personas, fromRow(row))
	}

	return personas, nil
}

// Get returns the persona with the given handle.
func (s *Store) Get(ctx context.Context, handle string) (*Persona, error) {
	rows, err := s.q.Query(ctx, `
		SELECT handle, given_name, surname, full_name, age, profession, hobbies, additional_info, created_at_ns
		FROM personas
		WHERE handle = ?`,
		handle,
	)
	if err != nil {
		return nil, fmt.Errorf("loading persona: %w", err)
	}

	if len(rows) == 0 {
		return nil, NotFoundError{Key: handle}
	}

	p := fromRow(rows[0])
	return &p, nil
}

// Find returns the persona whose full name or given name matches,
// case-insensitively. The newest match wins.
func (s *Store) Find(ctx context.Context, name string) (*Persona, error) {
	rows, err := s.q.Query(ctx, `
		SELECT handle, given_name, surname, full_name, age, profession, hobbies, additional_info, created_at_ns
		FROM personas
		WHERE full_name = ? COLLATE NOCASE OR given_name = ? COLLATE NOCASE
		ORDER BY created_at_ns DESC
		LIMIT 1`,
		name, name,
	)
	if err != nil {
		return nil, fmt.Errorf("finding persona: %w", err)
	}

	if len(rows) == 0 {
		return nil, NotFoundError{Key: name}
	}

	p := fromRow(rows[0])
	return &p, nil
}

// fromRow rebuilds a persona from a query result row.
func fromRow(row memstore.Row) Persona {
	return Persona{
		Handle:         rowString(row, "handle"),
		GivenName:      rowString(row, "given_name"),
		Surname:        rowString(row, "surname"),
		FullName:       rowString(row, "full_name"),
		Age:            int(rowInt64(row, "age")),
		Profession:     rowString(row, "profession"),
		Hobbies:        rowString(row, "hobbies"),
		AdditionalInfo: rowString(row, "additional_info"),
		CreatedAt:      time.Unix(0, rowInt64(row, "created_at_ns")),
	}
}

// rowString extracts a string column, tolerating []byte from the driver.
func rowString(row memstore.Row, col string) string {
	switch v := row[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// rowInt64 extracts an integer column, tolerating the numeric types SQLite
// drivers produce.
func rowInt64(row memstore.Row, col string) int64 {
	switch v := row[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
