package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/store"
)

func TestVocabFieldsKnownVocab(t *testing.T) {
	s := New()
	fields, err := s.VocabFields(context.Background(), "pbdb")
	require.NoError(t, err)
	require.NotEmpty(t, fields)
}

func TestVocabFieldsUnknownVocab(t *testing.T) {
	s := New()
	_, err := s.VocabFields(context.Background(), "bogus")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListOutputBlocks(t *testing.T) {
	s := New()
	blocks, err := s.ListOutputBlocks(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, blocks)
}
