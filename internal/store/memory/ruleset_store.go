// Package memory provides an in-memory store.RulesetRepository, used as
// the default when no Postgres DSN is configured.
package memory

import (
	"context"

	"github.com/paleoapi/compositegw/internal/store"
)

// RulesetStore is a fixed, in-memory RulesetRepository seeded at
// construction time.
type RulesetStore struct {
	fields map[string][]store.VocabField
	blocks []store.OutputBlock
}

// New returns a RulesetStore pre-seeded with the default vocabulary
// field maps and output-block declarations for the two upstreams this
// gateway composes.
func New() *RulesetStore {
	return &RulesetStore{
		fields: map[string][]store.VocabField{
			"pbdb": {
				{Vocab: "pbdb", CanonicalField: "age_older", Label: "eag"},
				{Vocab: "pbdb", CanonicalField: "age_younger", Label: "lag"},
				{Vocab: "pbdb", CanonicalField: "lng", Label: "lng"},
				{Vocab: "pbdb", CanonicalField: "lat", Label: "lat"},
			},
			"neotoma": {
				{Vocab: "neotoma", CanonicalField: "age_older", Label: "ageolder"},
				{Vocab: "neotoma", CanonicalField: "age_younger", Label: "ageyounger"},
				{Vocab: "neotoma", CanonicalField: "lng", Label: "lngmin"},
				{Vocab: "neotoma", CanonicalField: "lat", Label: "latmin"},
			},
			"com": {
				{Vocab: "com", CanonicalField: "age_older", Label: "age_older"},
				{Vocab: "com", CanonicalField: "age_younger", Label: "age_younger"},
				{Vocab: "com", CanonicalField: "lng", Label: "lng"},
				{Vocab: "com", CanonicalField: "lat", Label: "lat"},
			},
			"dwc": {
				{Vocab: "dwc", CanonicalField: "age_older", Label: "earliestAgeOrLowestStage"},
				{Vocab: "dwc", CanonicalField: "age_younger", Label: "latestAgeOrHighestStage"},
				{Vocab: "dwc", CanonicalField: "lng", Label: "decimalLongitude"},
				{Vocab: "dwc", CanonicalField: "lat", Label: "decimalLatitude"},
			},
		},
		blocks: []store.OutputBlock{
			{Name: "coords", Fields: []string{"lng", "lat"}},
			{Name: "ages", Fields: []string{"age_older", "age_younger", "AgeOlder", "AgeYounger"}},
			{Name: "ident", Fields: []string{"database", "record_type"}},
		},
	}
}

// VocabFields returns every field mapping declared for one vocabulary.
func (s *RulesetStore) VocabFields(_ context.Context, vocab string) ([]store.VocabField, error) {
	fields, ok := s.fields[vocab]
	if !ok {
		return nil, store.ErrNotFound
	}
	return fields, nil
}

// ListOutputBlocks returns every configured output-block declaration.
func (s *RulesetStore) ListOutputBlocks(_ context.Context) ([]store.OutputBlock, error) {
	return s.blocks, nil
}
