// Package upstream declares the adapter contract each paleontological
// data source implements, plus the classification helpers both concrete
// adapters share.
package upstream

import (
	"context"
	"fmt"

	"github.com/paleoapi/compositegw/internal/extid"
	"github.com/paleoapi/compositegw/internal/jsonstream"
	"github.com/paleoapi/compositegw/internal/reqctx"
	"github.com/paleoapi/compositegw/internal/subquery"
)

// Spawner lets an adapter register and run a secondary subquery against
// another upstream, blocking until it reaches a terminal state. Only
// internal/composite's Driver implements this; adapters never create
// subqueries themselves.
type Spawner interface {
	SpawnSecondary(ctx context.Context, label string, adapter Adapter) (*subquery.Subquery, error)
}

// Adapter translates between the gateway's canonical request/record shapes
// and one upstream's wire contract.
type Adapter interface {
	// Label identifies this upstream in warnings and URLs(true) output.
	Label() string

	// NewExtractor returns a freshly configured streaming JSON extractor
	// for the paths this adapter's responses carry.
	NewExtractor() *jsonstream.Extractor

	// BuildListURL returns the URL for a list-style fetch, or "" if this
	// upstream has nothing matching the request (not an error).
	BuildListURL(ctx context.Context, rc *reqctx.Context, sq *subquery.Subquery, spawner Spawner) (string, error)

	// BuildSingleURL returns the URL for a single-record fetch, or "" if
	// this upstream has nothing matching the request.
	BuildSingleURL(ctx context.Context, rc *reqctx.Context, sq *subquery.Subquery, spawner Spawner) (string, error)

	// OnChunk feeds bytes to sq's parser and classifies every yielded
	// value: records are normalized, filtered, and appended; diagnostics
	// are appended as warnings.
	OnChunk(rc *reqctx.Context, sq *subquery.Subquery, chunk []byte) error
}

// MatchingIdentifiers returns the identifiers from ids whose domain is
// empty or equal to want.
func MatchingIdentifiers(ids []extid.ID, want extid.Domain) []extid.ID {
	var out []extid.ID
	for _, id := range ids {
		if id.MatchesDomain(want) {
			out = append(out, id)
		}
	}
	return out
}

// FirstOfType returns the first identifier of type want in ids, if any.
func FirstOfType(ids []extid.ID, want extid.Type) (extid.ID, bool) {
	for _, id := range ids {
		if id.Type == want {
			return id, true
		}
	}
	return extid.ID{}, false
}

// AppendDiagnostics classifies one extracted value from a success/status
// or message/warnings/errors path into zero or more label-prefixed
// warning strings, per the falsy-value and array-of-strings rules.
func AppendDiagnostics(label string, value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{label + ": " + v}
	case []any:
		var out []string
		for _, item := range v {
			s := fmt.Sprint(item)
			if s != "" {
				out = append(out, label+": "+s)
			}
		}
		return out
	case bool:
		if !v {
			return []string{label + ": request failed"}
		}
		return nil
	case float64:
		if v == 0 {
			return []string{label + ": request failed"}
		}
		return nil
	default:
		return nil
	}
}

// NumberField reads a float64-valued key from a decoded JSON object.
func NumberField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// StringField reads a string-valued key from a decoded JSON object.
func StringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}
