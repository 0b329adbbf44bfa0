// Package paleobio adapts the gateway's canonical request/record shapes
// to the paleobiology upstream's wire contract.
package paleobio

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/paleoapi/compositegw/internal/extid"
	"github.com/paleoapi/compositegw/internal/httpenc"
	"github.com/paleoapi/compositegw/internal/jsonstream"
	"github.com/paleoapi/compositegw/internal/record"
	"github.com/paleoapi/compositegw/internal/reqctx"
	"github.com/paleoapi/compositegw/internal/reqtransform"
	"github.com/paleoapi/compositegw/internal/subquery"
	"github.com/paleoapi/compositegw/internal/upstream"
)

const label = "PaleoBioDB"

// Adapter talks to the paleobiology source's occurrence and taxon
// endpoints, over Ma ages and named time rules.
type Adapter struct {
	BaseURL string

	// fixedURL, when set, short-circuits BuildListURL/BuildSingleURL.
	// Used to build the secondary taxon-name-lookup adapter the
	// quaternary adapter spawns.
	fixedURL string
	fixedLbl string
}

// New returns an Adapter targeting the given upstream base URL.
func New(baseURL string) *Adapter {
	return &Adapter{BaseURL: strings.TrimRight(baseURL, "/")}
}

// NewTaxonLookup returns a secondary adapter that fetches one taxon's name
// by its paleobiology taxon identifier, for the quaternary adapter's
// name-resolution flow.
func NewTaxonLookup(baseURL string, taxonID int) *Adapter {
	base := strings.TrimRight(baseURL, "/")
	return &Adapter{
		BaseURL:  base,
		fixedURL: fmt.Sprintf("%s/taxa/single.json?%s", base, httpenc.Param("id", strconv.Itoa(taxonID))),
		fixedLbl: label + " (secondary)",
	}
}

// Label identifies this adapter in warnings and URLs(true) output.
func (a *Adapter) Label() string {
	if a.fixedLbl != "" {
		return a.fixedLbl
	}
	return label
}

// NewExtractor configures a parser for the paleobiology response shape:
// records under /records, status under /status_code, diagnostics under
// /warnings and /errors.
func (a *Adapter) NewExtractor() *jsonstream.Extractor {
	return jsonstream.New("/records/^", "/status_code", "/warnings", "/errors")
}

// BuildListURL implements upstream.Adapter.
func (a *Adapter) BuildListURL(_ context.Context, rc *reqctx.Context, sq *subquery.Subquery, _ upstream.Spawner) (string, error) {
	if a.fixedURL != "" {
		return a.fixedURL, nil
	}
	if !rc.UpstreamEnabled(string(extid.DomainPaleo)) {
		return "", nil
	}

	matching := upstream.MatchingIdentifiers(rc.Identifiers, extid.DomainPaleo)
	hasName := rc.TaxonName != "" || rc.BaseName != "" || rc.MatchName != ""
	if len(matching) == 0 && !hasName && rc.BBox == nil {
		return "", nil
	}

	params := a.commonParams(rc, matching)
	return fmt.Sprintf("%s/occs/list.json?%s", a.BaseURL, strings.Join(params, "&")), nil
}

// BuildSingleURL implements upstream.Adapter.
func (a *Adapter) BuildSingleURL(_ context.Context, rc *reqctx.Context, _ *subquery.Subquery, _ upstream.Spawner) (string, error) {
	if a.fixedURL != "" {
		return a.fixedURL, nil
	}
	if !rc.UpstreamEnabled(string(extid.DomainPaleo)) {
		return "", nil
	}
	matching := upstream.MatchingIdentifiers(rc.Identifiers, extid.DomainPaleo)
	id, ok := upstream.FirstOfType(matching, extid.TypeOccurrence)
	if !ok {
		return "", nil
	}
	return fmt.Sprintf("%s/occs/single.json?%s", a.BaseURL, httpenc.Param("id", strconv.Itoa(id.Number))), nil
}

func (a *Adapter) commonParams(rc *reqctx.Context, matching []extid.ID) []string {
	var params []string

	if rc.BBox != nil {
		params = append(params,
			httpenc.Param("lngmin", formatFloat(rc.BBox.West)),
			httpenc.Param("lngmax", formatFloat(rc.BBox.East)),
			httpenc.Param("latmin", formatFloat(rc.BBox.South)),
			httpenc.Param("latmax", formatFloat(rc.BBox.North)),
		)
	}

	if rc.MaxYBP > 0 {
		params = append(params, httpenc.Param("max_ma", formatFloat(record.YBPToUnit(rc.MaxYBP, reqctx.AgeUnitMa))))
	}
	params = append(params, httpenc.Param("min_ma", formatFloat(record.YBPToUnit(rc.MinYBP, reqctx.AgeUnitMa))))

	params = append(params, httpenc.Param("timerule", string(rc.TimeRule)))
	if rc.TimeRule == reqctx.TimeRuleBuffer {
		params = append(params,
			httpenc.Param("oldbuffer_ma", formatFloat(record.YBPToUnit(rc.OldBufferYBP, reqctx.AgeUnitMa))),
			httpenc.Param("youngbuffer_ma", formatFloat(record.YBPToUnit(rc.YoungBufferYBP, reqctx.AgeUnitMa))),
		)
	}

	if rc.TaxonName != "" {
		params = append(params, httpenc.Param("taxon_name", rc.TaxonName))
	}
	if rc.BaseName != "" {
		params = append(params, httpenc.Param("base_name", rc.BaseName))
	}
	if rc.MatchName != "" {
		params = append(params, httpenc.Param("match_name", rc.MatchName))
	}

	params = append(params, identifierParams(matching)...)

	for key, v := range rc.PassThrough {
		params = append(params, httpenc.Param(key, v))
	}

	return params
}

func identifierParams(matching []extid.ID) []string {
	byType := map[extid.Type][]string{}
	for _, id := range matching {
		byType[id.Type] = append(byType[id.Type], strconv.Itoa(id.Number))
	}
	var params []string
	typeParam := map[extid.Type]string{
		extid.TypeOccurrence: "occ_id",
		extid.TypeCollection: "coll_id",
		extid.TypeTaxon:      "base_id",
		extid.TypeSite:       "site_id",
		extid.TypeDataset:    "dataset_id",
	}
	for typ, nums := range byType {
		name, ok := typeParam[typ]
		if !ok {
			continue
		}
		params = append(params, httpenc.Param(name, strings.Join(nums, ",")))
	}
	return params
}

// OnChunk implements upstream.Adapter.
func (a *Adapter) OnChunk(rc *reqctx.Context, sq *subquery.Subquery, chunk []byte) error {
	extracted, err := sq.Parser.Feed(chunk)
	if err != nil {
		sq.AddWarning(a.Label() + ": " + err.Error())
		return err
	}
	for _, e := range extracted {
		switch e.Path {
		case "/records/^":
			rec, ok := normalize(e.Value, rc)
			if !ok {
				continue
			}
			if reqtransform.PassesFilter(rc, rec) {
				sq.AddRecord(rec)
			} else {
				sq.IncRemoved()
			}
		case "/status_code", "/warnings", "/errors":
			for _, w := range upstream.AppendDiagnostics(a.Label(), e.Value) {
				sq.AddWarning(w)
			}
		}
	}
	return nil
}

func normalize(v any, rc *reqctx.Context) (record.Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	r := record.New()
	r.SetDatabase("pbdb")
	r.SetRecordType("occurrence")

	if oid, ok := upstream.NumberField(m, "oid"); ok {
		r["occurrence_id"] = extid.Format(extid.ID{Domain: extid.DomainPaleo, Type: extid.TypeOccurrence, Number: int(oid)})
	}
	if tid, ok := upstream.NumberField(m, "tid"); ok {
		r["taxon_id"] = extid.Format(extid.ID{Domain: extid.DomainPaleo, Type: extid.TypeTaxon, Number: int(tid)})
	}
	if name, ok := upstream.StringField(m, "nam"); ok {
		r["taxon_name"] = name
	}

	older, _ := upstream.NumberField(m, "eag")
	younger, _ := upstream.NumberField(m, "lag")
	r.SetAgeYBP(older*record.MaToYBP, younger*record.MaToYBP)
	r.SetDisplayAge(rc.AgeUnit)

	if lng, ok := upstream.NumberField(m, "lng"); ok {
		if lat, ok2 := upstream.NumberField(m, "lat"); ok2 {
			r.SetMidpoint(lng, lng, lat, lat)
		}
	}

	return r, true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
