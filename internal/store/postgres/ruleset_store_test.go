package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/store"
)

func TestVocabFieldsReturnsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRulesetStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"vocab", "canonical_field", "label"}).
		AddRow("pbdb", "age_older", "eag").
		AddRow("pbdb", "age_younger", "lag")

	mock.ExpectQuery("SELECT vocab, canonical_field, label").
		WithArgs("pbdb").
		WillReturnRows(rows)

	fields, err := s.VocabFields(context.Background(), "pbdb")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Equal(t, "eag", fields[0].Label)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVocabFieldsUnknownVocabReturnsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRulesetStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"vocab", "canonical_field", "label"})
	mock.ExpectQuery("SELECT vocab, canonical_field, label").
		WithArgs("bogus").
		WillReturnRows(rows)

	_, err = s.VocabFields(context.Background(), "bogus")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListOutputBlocksGroupsFields(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewRulesetStoreWithPool(mock)

	rows := pgxmock.NewRows([]string{"name", "field_name"}).
		AddRow("coords", "lng").
		AddRow("coords", "lat").
		AddRow("ages", "age_older")

	mock.ExpectQuery("SELECT b.name, f.field_name").WillReturnRows(rows)

	blocks, err := s.ListOutputBlocks(context.Background())
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, "coords", blocks[0].Name)
	require.Equal(t, []string{"lng", "lat"}, blocks[0].Fields)
	require.Equal(t, "ages", blocks[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
