// Package reqtransform parses composite-level request parameters into a
// reqctx.Context and applies the post-merge shaping, filtering, and
// ordering rules shared across upstreams.
package reqtransform

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/paleoapi/compositegw/internal/extid"
	"github.com/paleoapi/compositegw/internal/record"
	"github.com/paleoapi/compositegw/internal/reqctx"
)

// ParseError marks a caller input error; handlers surface it as HTTP 400.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

func parseErr(format string, a ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, a...)}
}

// Result bundles the parsed context with any non-fatal warnings collected
// while resolving identifiers.
type Result struct {
	Ctx      *reqctx.Context
	Warnings []string
}

// Parse builds a Context from inbound query parameters: age range and
// unit, vocabulary, time rule and buffers, bounding box, name/identifier
// selectors, upstream selection, ordering, and pass-through params.
func Parse(q url.Values) (*Result, error) {
	ctx := &reqctx.Context{
		EnabledUpstreams: map[string]bool{},
		PassThrough:      map[string]string{},
	}
	var warnings []string

	if err := parseAgeUnit(q, ctx); err != nil {
		return nil, err
	}
	if err := parseVocab(q, ctx); err != nil {
		return nil, err
	}
	if err := parseAgeBounds(q, ctx); err != nil {
		return nil, err
	}
	if err := parseTimeRuleAndBuffer(q, ctx); err != nil {
		return nil, err
	}
	if err := parseBBoxParam(q, ctx); err != nil {
		return nil, err
	}
	if err := parseNames(q, ctx); err != nil {
		return nil, err
	}
	if err := parseUpstreamSelector(q, ctx); err != nil {
		return nil, err
	}
	idWarnings, err := parseIdentifiers(q, ctx)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, idWarnings...)
	if err := parseOrder(q, ctx); err != nil {
		return nil, err
	}
	parseShow(q, ctx)
	parsePassThrough(q, ctx)

	if !hasSelector(q) {
		return nil, parseErr("at least one selector parameter is required")
	}

	return &Result{Ctx: ctx, Warnings: warnings}, nil
}

func parseAgeUnit(q url.Values, ctx *reqctx.Context) error {
	ctx.AgeUnit = reqctx.AgeUnitYBP
	v := q.Get("ageunit")
	if v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "ma":
		ctx.AgeUnit = reqctx.AgeUnitMa
	case "ybp":
		ctx.AgeUnit = reqctx.AgeUnitYBP
	default:
		return parseErr("unknown ageunit %q", v)
	}
	return nil
}

func parseVocab(q url.Values, ctx *reqctx.Context) error {
	ctx.Vocab = reqctx.VocabCommon
	v := q.Get("vocab")
	if v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "neotoma":
		ctx.Vocab = reqctx.VocabNeotoma
	case "pbdb":
		ctx.Vocab = reqctx.VocabPBDB
	case "com":
		ctx.Vocab = reqctx.VocabCommon
	case "dwc":
		ctx.Vocab = reqctx.VocabDwC
	default:
		return parseErr("unknown vocab %q", v)
	}
	return nil
}

func parseAgeBounds(q url.Values, ctx *reqctx.Context) error {
	if q.Get("min_age") != "" && q.Get("min_ma") != "" {
		return parseErr("at most one of min_age, min_ma may be set")
	}
	if q.Get("max_age") != "" && q.Get("max_ma") != "" {
		return parseErr("at most one of max_age, max_ma may be set")
	}
	minYBP, haveMin, err := parseAgeBound(q, "min_age", "min_ma", ctx.AgeUnit)
	if err != nil {
		return err
	}
	maxYBP, haveMax, err := parseAgeBound(q, "max_age", "max_ma", ctx.AgeUnit)
	if err != nil {
		return err
	}
	ctx.MinYBP = minYBP
	ctx.MaxYBP = maxYBP
	ctx.HaveMinYBP = haveMin
	ctx.HaveMaxYBP = haveMax
	return nil
}

func parseAgeBound(q url.Values, ageParam, maParam string, unit reqctx.AgeUnit) (ybp float64, have bool, err error) {
	if v := q.Get(ageParam); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return 0, false, parseErr("invalid %s %q", ageParam, v)
		}
		return record.UnitToYBP(f, unit), true, nil
	}
	if v := q.Get(maParam); v != "" {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return 0, false, parseErr("invalid %s %q", maParam, v)
		}
		return f * record.MaToYBP, true, nil
	}
	return 0, false, nil
}

func parseTimeRuleAndBuffer(q url.Values, ctx *reqctx.Context) error {
	ctx.TimeRule = reqctx.TimeRuleMajor
	explicitRule := false
	if v := q.Get("timerule"); v != "" {
		explicitRule = true
		switch strings.ToLower(v) {
		case "contain":
			ctx.TimeRule = reqctx.TimeRuleContain
		case "major":
			ctx.TimeRule = reqctx.TimeRuleMajor
		case "buffer":
			ctx.TimeRule = reqctx.TimeRuleBuffer
		case "overlap":
			ctx.TimeRule = reqctx.TimeRuleOverlap
		default:
			return parseErr("unknown timerule %q", v)
		}
	}
	tb := q.Get("timebuffer")
	if tb == "" {
		return nil
	}
	rangeYBP := ctx.MaxYBP - ctx.MinYBP
	oldYBP, youngYBP, err := parseTimeBuffer(tb, rangeYBP, ctx.AgeUnit)
	if err != nil {
		return err
	}
	if explicitRule && ctx.TimeRule != reqctx.TimeRuleBuffer {
		return parseErr("timebuffer conflicts with timerule %q", q.Get("timerule"))
	}
	ctx.TimeRule = reqctx.TimeRuleBuffer
	ctx.OldBufferYBP = oldYBP
	ctx.YoungBufferYBP = youngYBP
	return nil
}

func parseTimeBuffer(tb string, rangeYBP float64, unit reqctx.AgeUnit) (oldYBP, youngYBP float64, err error) {
	parts := strings.SplitN(tb, ",", 2)
	oldYBP, err = parseBufferComponent(parts[0], rangeYBP, unit)
	if err != nil {
		return 0, 0, err
	}
	if len(parts) == 2 {
		youngYBP, err = parseBufferComponent(parts[1], rangeYBP, unit)
		if err != nil {
			return 0, 0, err
		}
		return oldYBP, youngYBP, nil
	}
	return oldYBP, oldYBP, nil
}

func parseBufferComponent(raw string, rangeYBP float64, unit reqctx.AgeUnit) (float64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return 0, parseErr("invalid timebuffer component %q", raw)
		}
		return (pct / 100) * rangeYBP, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, parseErr("invalid timebuffer component %q", raw)
	}
	return record.UnitToYBP(v, unit), nil
}

func parseBBoxParam(q url.Values, ctx *reqctx.Context) error {
	v := q.Get("bbox")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return parseErr("bbox requires four comma-separated coordinates")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return parseErr("invalid bbox coordinate %q", p)
		}
		vals[i] = f
	}
	ctx.BBox = &reqctx.BoundingBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
	return nil
}

func parseNames(q url.Values, ctx *reqctx.Context) error {
	count := 0
	for _, p := range []string{"taxon_name", "base_name", "match_name"} {
		if q.Get(p) != "" {
			count++
		}
	}
	if count > 1 {
		return parseErr("at most one of taxon_name, base_name, match_name may be set")
	}
	ctx.TaxonName = q.Get("taxon_name")
	ctx.BaseName = q.Get("base_name")
	ctx.MatchName = q.Get("match_name")
	return nil
}

func parseUpstreamSelector(q url.Values, ctx *reqctx.Context) error {
	v := q.Get("ds")
	if v == "" {
		return nil
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if part == "" {
			continue
		}
		switch part {
		case "paleo", "p", "pbdb":
			ctx.EnabledUpstreams[string(extid.DomainPaleo)] = true
		case "quaternary", "q", "neotoma", "n":
			ctx.EnabledUpstreams[string(extid.DomainQuaternary)] = true
		default:
			return parseErr("unknown upstream selector %q", part)
		}
	}
	return nil
}

var identifierParams = []struct {
	param string
	typ   extid.Type
}{
	{"occ_id", extid.TypeOccurrence},
	{"site_id", extid.TypeSite},
	{"base_id", extid.TypeTaxon},
	{"taxon_id", extid.TypeTaxon},
}

func parseIdentifiers(q url.Values, ctx *reqctx.Context) ([]string, error) {
	var warnings []string
	for _, ip := range identifierParams {
		raw := q.Get(ip.param)
		if raw == "" {
			continue
		}
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := extid.Parse(part)
			if err != nil {
				return nil, parseErr("%s: %v", ip.param, err)
			}
			if id.Type != extid.TypeEmpty && id.Type != ip.typ {
				warnings = append(warnings, fmt.Sprintf("%s: identifier %q has unexpected type %q", ip.param, part, id.Type))
				continue
			}
			id.Type = ip.typ
			if id.Domain == extid.DomainEmpty {
				if name, ok := ctx.SingleEnabledUpstream(); ok {
					id.Domain = extid.Domain(name)
				} else {
					warnings = append(warnings, fmt.Sprintf("%s: ambiguous domain-less identifier %q with multiple upstreams enabled", ip.param, part))
					continue
				}
			}
			ctx.Identifiers = append(ctx.Identifiers, id)
		}
	}
	return warnings, nil
}

func parseOrder(q url.Values, ctx *reqctx.Context) error {
	v := q.Get("order")
	if v == "" {
		return nil
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field := strings.ToLower(part)
		descending := false
		if idx := strings.LastIndex(field, "."); idx >= 0 {
			switch field[idx+1:] {
			case "asc":
				field = field[:idx]
			case "desc":
				field = field[:idx]
				descending = true
			}
		}
		if field != "ageolder" && field != "ageyounger" {
			return parseErr("unknown order key %q", part)
		}
		ctx.Order = append(ctx.Order, reqctx.OrderKey{Field: field, Descending: descending})
	}
	return nil
}

func parseShow(q url.Values, ctx *reqctx.Context) {
	v := q.Get("show")
	if v == "" {
		return
	}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			ctx.Show = append(ctx.Show, part)
		}
	}
}

func parsePassThrough(q url.Values, ctx *reqctx.Context) {
	for _, key := range []string{"limit", "offset", "count"} {
		if v := q.Get(key); v != "" {
			ctx.PassThrough[key] = v
		}
	}
}

func hasSelector(q url.Values) bool {
	for _, p := range []string{"occ_id", "site_id", "taxon_name", "base_name", "match_name", "base_id", "taxon_id", "bbox"} {
		if q.Get(p) != "" {
			return true
		}
	}
	return false
}

// PassesFilter reports whether r survives the request's time rule post-filter.
func PassesFilter(ctx *reqctx.Context, r record.Record) bool {
	switch ctx.TimeRule {
	case reqctx.TimeRuleMajor:
		return passesMajor(ctx, r)
	case reqctx.TimeRuleBuffer:
		return passesBuffer(ctx, r)
	default: // contain, overlap: upstream is trusted, no post-filter
		return true
	}
}

func passesMajor(ctx *reqctx.Context, r record.Record) bool {
	minYBP, maxYBP := 0.0, math.Inf(1)
	if ctx.HaveMinYBP {
		minYBP = ctx.MinYBP
	}
	if ctx.HaveMaxYBP {
		maxYBP = ctx.MaxYBP
	}
	older, younger := r.AgeOlderYBP(), r.AgeYoungerYBP()
	span := older - younger
	if span <= 0 {
		return younger >= minYBP && older <= maxYBP
	}
	overlap := math.Min(older, maxYBP) - math.Max(younger, minYBP)
	if overlap < 0 {
		overlap = 0
	}
	return overlap/span >= 0.5
}

func passesBuffer(ctx *reqctx.Context, r record.Record) bool {
	older, younger := r.AgeOlderYBP(), r.AgeYoungerYBP()
	if older > ctx.MaxYBP+ctx.OldBufferYBP {
		return false
	}
	lowerBound := ctx.MinYBP - ctx.YoungBufferYBP
	if lowerBound < 0 {
		lowerBound = 0
	}
	return younger >= lowerBound
}

// vocabRecordTypes renders each adapter's native record kind into the
// type word a given vocabulary expects. The database (source) tag is
// left untouched; only record_type is vocabulary-specific.
var vocabRecordTypes = map[reqctx.Vocab]map[string]string{
	reqctx.VocabPBDB: {
		"occurrence": "occ",
		"site":       "site",
	},
	reqctx.VocabNeotoma: {
		"occurrence": "occurrence",
		"site":       "site",
	},
	reqctx.VocabCommon: {
		"occurrence": "occurrence",
		"site":       "site",
	},
	reqctx.VocabDwC: {
		"occurrence": "Occurrence",
		"site":       "Location",
	},
}

// ShapeVocab rewrites every record's record_type field from the adapter's
// native kind ("occurrence", "site") into the word the requested
// vocabulary uses for it. Records whose native kind or vocab isn't
// recognized are left as-is.
func ShapeVocab(vocab reqctx.Vocab, records []record.Record) {
	rendering, ok := vocabRecordTypes[vocab]
	if !ok {
		return
	}
	for _, r := range records {
		if rendered, ok := rendering[r.RecordType()]; ok {
			r.SetRecordType(rendered)
		}
	}
}

// Sort stably orders records by ctx's requested order keys. Records missing
// a requested key sort after records that have it, regardless of direction;
// ties preserve the input order (registration index, then document order).
func Sort(order []reqctx.OrderKey, records []record.Record) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		return compareRecords(order, records[i], records[j]) < 0
	})
}

func compareRecords(order []reqctx.OrderKey, a, b record.Record) int {
	for _, key := range order {
		va, aok := ageValue(key.Field, a)
		vb, bok := ageValue(key.Field, b)
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return 1
		case !bok:
			return -1
		case va < vb:
			if key.Descending {
				return 1
			}
			return -1
		case va > vb:
			if key.Descending {
				return -1
			}
			return 1
		default:
			continue
		}
	}
	return 0
}

func ageValue(field string, r record.Record) (float64, bool) {
	var key string
	switch field {
	case "ageolder":
		key = record.FieldAgeOlderYBP
	case "ageyounger":
		key = record.FieldAgeYoungerYBP
	default:
		return 0, false
	}
	v, ok := r[key].(float64)
	return v, ok
}
