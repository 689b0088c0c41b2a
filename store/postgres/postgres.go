// Package postgres persists the active TokenSet in a single PostgreSQL row,
// keyed by a slot name so several independent processes can share one table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adeilh/go-vigil/authflow"
)

const defaultSlot = "default"

// Schema returns the statement creating the token table. Callers that manage
// migrations themselves can embed it; others can run EnsureSchema.
func Schema() string {
	return `CREATE TABLE IF NOT EXISTS auth_tokens (
    slot       TEXT PRIMARY KEY,
    payload    JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
}

// EnsureSchema creates the token table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema()); err != nil {
		return fmt.Errorf("postgres: ensuring schema: %w", err)
	}
	return nil
}

// Store implements authflow.TokenStore on a PostgreSQL table.
type Store struct {
	db   *sql.DB
	slot string
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithSlot names the row the store reads and writes; defaults to "default".
func WithSlot(slot string) StoreOption {
	return func(s *Store) {
		if slot != "" {
			s.slot = slot
		}
	}
}

// NewStore wraps an existing *sql.DB connection.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, slot: defaultSlot}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) Save(ctx context.Context, tokens authflow.TokenSet) error {
	payload, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("postgres: encoding tokens: %w", err)
	}
	const query = `INSERT INTO auth_tokens (slot, payload, updated_at) VALUES ($1, $2, now())
                   ON CONFLICT (slot) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`
	if _, err := s.db.ExecContext(ctx, query, s.slot, payload); err != nil {
		return fmt.Errorf("postgres: saving tokens: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (authflow.TokenSet, error) {
	const query = `SELECT payload FROM auth_tokens WHERE slot = $1`
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, s.slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return authflow.TokenSet{}, authflow.ErrNoTokens
	}
	if err != nil {
		return authflow.TokenSet{}, fmt.Errorf("postgres: loading tokens: %w", err)
	}

	var tokens authflow.TokenSet
	if err := json.Unmarshal(payload, &tokens); err != nil {
		return authflow.TokenSet{}, fmt.Errorf("postgres: decoding tokens: %w", err)
	}
	return tokens, nil
}

func (s *Store) Clear(ctx context.Context) error {
	const query = `DELETE FROM auth_tokens WHERE slot = $1`
	if _, err := s.db.ExecContext(ctx, query, s.slot); err != nil {
		return fmt.Errorf("postgres: clearing tokens: %w", err)
	}
	return nil
}
