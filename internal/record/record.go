// Package record defines the internal heterogeneous record shape shared by
// both upstream adapters after normalization.
package record

import "github.com/paleoapi/compositegw/internal/reqctx"

// Field names for the unified attributes every normalized record carries.
const (
	FieldDatabase      = "database"
	FieldRecordType    = "record_type"
	FieldAgeOlderYBP   = "age_older"
	FieldAgeYoungerYBP = "age_younger"
	FieldAgeOlder      = "AgeOlder"
	FieldAgeYounger    = "AgeYounger"
	FieldLng           = "lng"
	FieldLat           = "lat"
)

// MaToYBP converts millions of years to years-before-present.
const MaToYBP = 1_000_000.0

// Record is a heterogeneous key/value bag populated from one upstream's
// schema then augmented with the unified fields every vocabulary exposes.
type Record map[string]any

// New returns an empty Record ready for population by an adapter.
func New() Record {
	return Record{}
}

// SetDatabase tags the record with its originating source.
func (r Record) SetDatabase(db string) { r[FieldDatabase] = db }

// Database returns the source tag, or "" if unset.
func (r Record) Database() string {
	s, _ := r[FieldDatabase].(string)
	return s
}

// SetRecordType tags the record's rendered type for the active vocabulary.
func (r Record) SetRecordType(rt string) { r[FieldRecordType] = rt }

// RecordType returns the rendered record type, or "" if unset.
func (r Record) RecordType() string {
	s, _ := r[FieldRecordType].(string)
	return s
}

// SetAgeYBP stores the canonical age range in years-before-present.
func (r Record) SetAgeYBP(older, younger float64) {
	r[FieldAgeOlderYBP] = older
	r[FieldAgeYoungerYBP] = younger
}

// AgeOlderYBP returns the canonical older bound in years-before-present.
func (r Record) AgeOlderYBP() float64 {
	v, _ := r[FieldAgeOlderYBP].(float64)
	return v
}

// AgeYoungerYBP returns the canonical younger bound in years-before-present.
func (r Record) AgeYoungerYBP() float64 {
	v, _ := r[FieldAgeYoungerYBP].(float64)
	return v
}

// Span returns the record's own age span in years-before-present.
func (r Record) Span() float64 {
	return r.AgeOlderYBP() - r.AgeYoungerYBP()
}

// SetDisplayAge converts the canonical years-before-present bounds into the
// client-requested unit under AgeOlder/AgeYounger, leaving the canonical
// fields untouched for filtering and ordering.
func (r Record) SetDisplayAge(unit reqctx.AgeUnit) {
	r[FieldAgeOlder] = YBPToUnit(r.AgeOlderYBP(), unit)
	r[FieldAgeYounger] = YBPToUnit(r.AgeYoungerYBP(), unit)
}

// SetMidpoint derives lng/lat from the corner coordinates of a bounding
// rectangle an upstream reported for a record.
func (r Record) SetMidpoint(lngMin, lngMax, latMin, latMax float64) {
	r[FieldLng] = (lngMin + lngMax) / 2
	r[FieldLat] = (latMin + latMax) / 2
}

// UnitToYBP converts a value expressed in unit into years-before-present.
func UnitToYBP(v float64, unit reqctx.AgeUnit) float64 {
	if unit == reqctx.AgeUnitMa {
		return v * MaToYBP
	}
	return v
}

// YBPToUnit converts a canonical years-before-present value into unit.
func YBPToUnit(v float64, unit reqctx.AgeUnit) float64 {
	if unit == reqctx.AgeUnitMa {
		return v / MaToYBP
	}
	return v
}
