// Package store declares interfaces for persisting the ruleset
// repository.
package store

import (
	"context"
	"errors"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("ruleset record not found")

// VocabField maps one canonical internal field name to the label a
// vocabulary renders it under.
type VocabField struct {
	// Vocab is the rendered vocabulary ("neotoma", "pbdb", "com", "dwc").
	Vocab string
	// CanonicalField is the internal field name (e.g. "age_older").
	CanonicalField string
	// Label is the name emitted in that vocabulary's response.
	Label string
}

// OutputBlock names a selectable group of fields a client may request
// via the `show` query parameter.
type OutputBlock struct {
	// Name is the block identifier clients pass in `show`.
	Name string
	// Fields lists the canonical field names the block includes.
	Fields []string
}

// RulesetRepository is the read-only store of vocabulary field-name maps
// and output-block declarations backing the `/v1/vocab` and
// `/v1/rulesets` auxiliary endpoints.
type RulesetRepository interface {
	// VocabFields returns every field mapping declared for one
	// vocabulary, or ErrNotFound if the vocabulary is unknown.
	VocabFields(ctx context.Context, vocab string) ([]VocabField, error)
	// ListOutputBlocks returns every configured output-block declaration.
	ListOutputBlocks(ctx context.Context) ([]OutputBlock, error)
}
