// Package reqctx defines the immutable-after-parse request context shared
// by every subquery of one composite request.
package reqctx

import "github.com/paleoapi/compositegw/internal/extid"

// TimeRule selects how a record's age range is compared against the
// client's requested window.
type TimeRule string

// Supported time rules.
const (
	TimeRuleContain TimeRule = "contain"
	TimeRuleMajor   TimeRule = "major"
	TimeRuleBuffer  TimeRule = "buffer"
	TimeRuleOverlap TimeRule = "overlap"
)

// AgeUnit is the unit the client expressed ages in.
type AgeUnit string

// Supported age units. Internally all filtering uses years-before-present.
const (
	AgeUnitYBP AgeUnit = "ybp"
	AgeUnitMa  AgeUnit = "ma"
)

// Vocab selects which field-name scheme is rendered in responses.
type Vocab string

// Supported output vocabularies.
const (
	VocabNeotoma Vocab = "neotoma"
	VocabPBDB    Vocab = "pbdb"
	VocabCommon  Vocab = "com"
	VocabDwC     Vocab = "dwc"
)

// BoundingBox is a client-supplied geographic filter. West/South/East/North
// follow the wire order bbox=W,S,E,N.
type BoundingBox struct {
	West, South, East, North float64
}

// OrderKey is one component of the client's requested result ordering.
type OrderKey struct {
	Field      string // "ageolder" | "ageyounger"
	Descending bool
}

// Context is the immutable-after-parse bundle built once per inbound
// request by reqtransform.Parse and read by every subquery it spawns.
type Context struct {
	// RequestID identifies this composite request for logging, progress
	// events, and response archiving. Assigned once by the HTTP layer.
	RequestID string

	Vocab Vocab

	AgeUnit AgeUnit
	MinYBP  float64
	MaxYBP  float64
	// HaveMinYBP and HaveMaxYBP report whether the client supplied that
	// bound explicitly. An absent bound is unbounded, not zero.
	HaveMinYBP bool
	HaveMaxYBP bool

	TimeRule       TimeRule
	OldBufferYBP   float64
	YoungBufferYBP float64

	BBox *BoundingBox

	Identifiers []extid.ID

	TaxonName string
	BaseName  string
	MatchName string

	EnabledUpstreams map[string]bool

	Order []OrderKey

	Show []string

	PassThrough map[string]string
}

// UpstreamEnabled reports whether the named upstream ("paleo" or
// "quaternary") should be queried for this request.
func (c *Context) UpstreamEnabled(name string) bool {
	if len(c.EnabledUpstreams) == 0 {
		return true
	}
	return c.EnabledUpstreams[name]
}

// SingleEnabledUpstream returns the sole enabled upstream name when exactly
// one is enabled, used to resolve identifiers with an empty domain.
func (c *Context) SingleEnabledUpstream() (string, bool) {
	if len(c.EnabledUpstreams) != 1 {
		return "", false
	}
	for name, on := range c.EnabledUpstreams {
		if on {
			return name, true
		}
	}
	return "", false
}
