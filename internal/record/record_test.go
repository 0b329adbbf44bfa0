package record_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/record"
	"github.com/paleoapi/compositegw/internal/reqctx"
)

func TestAgeRoundTrip(t *testing.T) {
	for _, unit := range []reqctx.AgeUnit{reqctx.AgeUnitYBP, reqctx.AgeUnitMa} {
		v := 2.5
		got := record.YBPToUnit(record.UnitToYBP(v, unit), unit)
		require.InDelta(t, v, got, 1e-9)
	}
}

func TestMaConversion(t *testing.T) {
	require.InDelta(t, 2_000_000.0, record.UnitToYBP(2, reqctx.AgeUnitMa), 1e-6)
	require.InDelta(t, 2.0, record.YBPToUnit(2_000_000, reqctx.AgeUnitMa), 1e-9)
}

func TestSpanAndMidpoint(t *testing.T) {
	r := record.New()
	r.SetAgeYBP(2_100_000, 1_400_000)
	require.InDelta(t, 700_000.0, r.Span(), 1e-6)

	r.SetMidpoint(-10, 10, 20, 40)
	require.InDelta(t, 0, r[record.FieldLng].(float64), 1e-9)
	require.InDelta(t, 30, r[record.FieldLat].(float64), 1e-9)
}

func TestDatabaseAndRecordType(t *testing.T) {
	r := record.New()
	r.SetDatabase("pbdb")
	r.SetRecordType("occurrence")
	require.Equal(t, "pbdb", r.Database())
	require.Equal(t, "occurrence", r.RecordType())
}
