package quaternary_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/extid"
	"github.com/paleoapi/compositegw/internal/reqctx"
	"github.com/paleoapi/compositegw/internal/subquery"
	"github.com/paleoapi/compositegw/internal/upstream/quaternary"
)

func TestBuildListURLAbortsWithoutFilter(t *testing.T) {
	a := quaternary.New("https://api.neotomadb.org/v2", "https://paleobiodb.org/data1.2")
	rc := &reqctx.Context{TimeRule: reqctx.TimeRuleMajor}
	sq := subquery.New("quaternary", "quaternary", true)

	got, err := a.BuildListURL(context.Background(), rc, sq, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestBuildListURLWithNameAlwaysCoarseOverlap(t *testing.T) {
	a := quaternary.New("https://api.neotomadb.org/v2", "https://paleobiodb.org/data1.2")
	rc := &reqctx.Context{
		TimeRule:  reqctx.TimeRuleMajor,
		TaxonName: "Canis",
		MinYBP:    1_000_000,
		MaxYBP:    2_000_000,
	}
	sq := subquery.New("quaternary", "quaternary", true)

	got, err := a.BuildListURL(context.Background(), rc, sq, nil)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "Canis", q.Get("taxonname"))
	require.Equal(t, "0", q.Get("agedocontain"))
	require.Equal(t, "999999", q.Get("limit"))
	require.Equal(t, "2000000", q.Get("ageold"))
	require.Equal(t, "1000000", q.Get("ageyoung"))
}

func TestBuildListURLDisabledUpstream(t *testing.T) {
	a := quaternary.New("https://api.neotomadb.org/v2", "https://paleobiodb.org/data1.2")
	rc := &reqctx.Context{
		TaxonName:        "Canis",
		EnabledUpstreams: map[string]bool{"paleo": true},
	}
	sq := subquery.New("quaternary", "quaternary", true)

	got, err := a.BuildListURL(context.Background(), rc, sq, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestOnChunkNormalizesAndFilters(t *testing.T) {
	a := quaternary.New("https://api.neotomadb.org/v2", "https://paleobiodb.org/data1.2")
	rc := &reqctx.Context{TimeRule: reqctx.TimeRuleContain}
	sq := subquery.New("quaternary", "quaternary", true)
	sq.Parser = a.NewExtractor()

	body := `{"success":true,"data":[{"siteid":7,"taxonname":"Canis","ageolder":200,"ageyounger":100,"lngmin":-1,"lngmax":1,"latmin":-2,"latmax":2}],"message":""}`
	err := a.OnChunk(rc, sq, []byte(body))
	require.NoError(t, err)

	require.Len(t, sq.Records, 1)
	rec := sq.Records[0]
	require.Equal(t, "neotoma", rec.Database())
	require.Equal(t, "site", rec.RecordType())
	require.Equal(t, "neotoma:sit:7", rec["site_id"])
	require.InDelta(t, 200.0, rec.AgeOlderYBP(), 1e-9)
	require.InDelta(t, 0.0, rec["lng"].(float64), 1e-9)
	require.InDelta(t, 0.0, rec["lat"].(float64), 1e-9)
	require.Empty(t, sq.Warnings)
}

func TestOnChunkFailedSuccessFlagWarns(t *testing.T) {
	a := quaternary.New("https://api.neotomadb.org/v2", "https://paleobiodb.org/data1.2")
	rc := &reqctx.Context{TimeRule: reqctx.TimeRuleContain}
	sq := subquery.New("quaternary", "quaternary", true)
	sq.Parser = a.NewExtractor()

	body := `{"success":false,"data":[],"message":"no matching sites"}`
	err := a.OnChunk(rc, sq, []byte(body))
	require.NoError(t, err)
	require.Len(t, sq.Warnings, 2)
	require.Equal(t, "Neotoma: request failed", sq.Warnings[0])
	require.Equal(t, "Neotoma: no matching sites", sq.Warnings[1])
}

func TestIdentifierMatchingDomainSkipsSecondaryLookup(t *testing.T) {
	a := quaternary.New("https://api.neotomadb.org/v2", "https://paleobiodb.org/data1.2")
	id, err := extid.Parse("neotoma:sit:7")
	require.NoError(t, err)
	rc := &reqctx.Context{Identifiers: []extid.ID{id}}
	sq := subquery.New("quaternary", "quaternary", true)

	got, err := a.BuildListURL(context.Background(), rc, sq, nil)
	require.NoError(t, err)
	require.Contains(t, got, "siteid=7")
}
