// Package postgres provides a Postgres-backed RulesetRepository.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paleoapi/compositegw/internal/store"
)

type queryCloser interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// RulesetStore implements store.RulesetRepository using Postgres.
type RulesetStore struct {
	pool queryCloser
}

// NewRulesetStore opens a connection pool and returns a RulesetStore.
func NewRulesetStore(ctx context.Context, dsn string) (*RulesetStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &RulesetStore{pool: pool}, nil
}

// NewRulesetStoreWithPool builds a RulesetStore on top of an
// already-constructed pool, letting tests substitute a pgxmock pool.
func NewRulesetStoreWithPool(pool queryCloser) *RulesetStore {
	return &RulesetStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *RulesetStore) Close() {
	s.pool.Close()
}

// VocabFields returns every field mapping declared for one vocabulary.
func (s *RulesetStore) VocabFields(ctx context.Context, vocab string) ([]store.VocabField, error) {
	query := `
		SELECT vocab, canonical_field, label
		FROM vocab_fields
		WHERE vocab = $1
		ORDER BY canonical_field;
	`
	rows, err := s.pool.Query(ctx, query, vocab)
	if err != nil {
		return nil, fmt.Errorf("query vocab fields: %w", err)
	}
	defer rows.Close()

	var fields []store.VocabField
	for rows.Next() {
		var f store.VocabField
		if err := rows.Scan(&f.Vocab, &f.CanonicalField, &f.Label); err != nil {
			return nil, fmt.Errorf("scan vocab field row: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vocab field rows: %w", err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return fields, nil
}

// ListOutputBlocks returns every configured output-block declaration.
func (s *RulesetStore) ListOutputBlocks(ctx context.Context) ([]store.OutputBlock, error) {
	query := `
		SELECT b.name, f.field_name
		FROM output_blocks b
		JOIN output_block_fields f ON f.block_name = b.name
		ORDER BY b.name, f.field_name;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query output blocks: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]*store.OutputBlock)
	var order []string
	for rows.Next() {
		var name, field string
		if err := rows.Scan(&name, &field); err != nil {
			return nil, fmt.Errorf("scan output block row: %w", err)
		}
		block, ok := byName[name]
		if !ok {
			block = &store.OutputBlock{Name: name}
			byName[name] = block
			order = append(order, name)
		}
		block.Fields = append(block.Fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output block rows: %w", err)
	}

	blocks := make([]store.OutputBlock, 0, len(order))
	for _, name := range order {
		blocks = append(blocks, *byName[name])
	}
	return blocks, nil
}
