package extid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/extid"
)

func TestParseBareInteger(t *testing.T) {
	id, err := extid.Parse("41055")
	require.NoError(t, err)
	require.Equal(t, extid.ID{Number: 41055}, id)
}

func TestParseDomainAndNumber(t *testing.T) {
	id, err := extid.Parse("pbdb:41055")
	require.NoError(t, err)
	require.Equal(t, extid.ID{Domain: extid.DomainPaleo, Number: 41055}, id)
}

func TestParseFullTriple(t *testing.T) {
	id, err := extid.Parse("pbdb:txn:41055")
	require.NoError(t, err)
	require.Equal(t, extid.ID{Domain: extid.DomainPaleo, Type: extid.TypeTaxon, Number: 41055}, id)
}

func TestParseDomainAliasesCaseInsensitive(t *testing.T) {
	for _, alias := range []string{"paleo", "PALEO", "p", "PBDB"} {
		id, err := extid.Parse(alias + ":1")
		require.NoError(t, err, alias)
		require.Equal(t, extid.DomainPaleo, id.Domain, alias)
	}
	for _, alias := range []string{"quaternary", "q", "neotoma", "N"} {
		id, err := extid.Parse(alias + ":1")
		require.NoError(t, err, alias)
		require.Equal(t, extid.DomainQuaternary, id.Domain, alias)
	}
}

func TestParseUnknownDomain(t *testing.T) {
	_, err := extid.Parse("bogus:1")
	require.Error(t, err)
}

func TestParseNonPositiveNumber(t *testing.T) {
	_, err := extid.Parse("pbdb:0")
	require.Error(t, err)
	_, err = extid.Parse("pbdb:-5")
	require.Error(t, err)
}

func TestParseTooManySegments(t *testing.T) {
	_, err := extid.Parse("a:b:c:d")
	require.Error(t, err)
}

func TestFormatRoundTrip(t *testing.T) {
	cases := []extid.ID{
		{Domain: extid.DomainPaleo, Type: extid.TypeTaxon, Number: 41055},
		{Domain: extid.DomainQuaternary, Type: extid.TypeSite, Number: 7},
		{Domain: extid.DomainEmpty, Type: extid.TypeEmpty, Number: 1},
	}
	for _, c := range cases {
		got, err := extid.Parse(extid.Format(c))
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestFormatUsesWireLabels(t *testing.T) {
	require.Equal(t, "pbdb:txn:41055", extid.Format(extid.ID{Domain: extid.DomainPaleo, Type: extid.TypeTaxon, Number: 41055}))
	require.Equal(t, "neotoma:sit:7", extid.Format(extid.ID{Domain: extid.DomainQuaternary, Type: extid.TypeSite, Number: 7}))
}

func TestMatchesDomain(t *testing.T) {
	require.True(t, extid.ID{Domain: extid.DomainEmpty}.MatchesDomain(extid.DomainPaleo))
	require.True(t, extid.ID{Domain: extid.DomainPaleo}.MatchesDomain(extid.DomainPaleo))
	require.False(t, extid.ID{Domain: extid.DomainQuaternary}.MatchesDomain(extid.DomainPaleo))
}
