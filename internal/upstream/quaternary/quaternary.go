// Package quaternary adapts the gateway's canonical request/record shapes
// to the Quaternary-fauna upstream's wire contract.
package quaternary

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
	"github.com/paleoapi/compositegw/internal/upstream/paleobio"
)

const label = "Neotoma"

// Adapter talks to the Quaternary-fauna source's site/sample endpoint,
// over years-before-present and a coarse overlap switch. It cannot
// express the major/buffer time rules natively, so every fetch requests
// a coarse overlap and relies on the gateway's own post-merge filter.
type Adapter struct {
	BaseURL      string
	PaleoBaseURL string // used for the secondary taxon-name lookup
}

// New returns an Adapter targeting the given upstream and paleobiology
// base URLs. paleoBaseURL is only used for the secondary lookup flow.
func New(baseURL, paleoBaseURL string) *Adapter {
	return &Adapter{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		PaleoBaseURL: strings.TrimRight(paleoBaseURL, "/"),
	}
}

// Label identifies this adapter in warnings and URLs(true) output.
func (a *Adapter) Label() string { return label }

// NewExtractor configures a parser for the Quaternary response shape:
// records under /data, a success flag under /success, a message under
// /message.
func (a *Adapter) NewExtractor() *jsonstream.Extractor {
	return jsonstream.New("/data/^", "/success", "/message")
}

// BuildListURL implements upstream.Adapter, including the secondary
// taxon-name resolution flow when a taxon identifier arrived tagged for
// the paleobiology source but this adapter needs a name to query with.
func (a *Adapter) BuildListURL(ctx context.Context, rc *reqctx.Context, sq *subquery.Subquery, spawner upstream.Spawner) (string, error) {
	if !rc.UpstreamEnabled(string(extid.DomainQuaternary)) {
		return "", nil
	}

	matching := upstream.MatchingIdentifiers(rc.Identifiers, extid.DomainQuaternary)
	name := firstNonEmpty(rc.TaxonName, rc.BaseName, rc.MatchName)

	if name == "" && len(matching) == 0 {
		resolved, ok, err := a.resolveNameFromPaleoIdentifier(ctx, rc, sq, spawner)
		if err != nil {
			return "", err
		}
		if ok {
			name = resolved
		}
	}

	if name == "" && len(matching) == 0 && rc.BBox == nil {
		return "", nil
	}

	params := a.commonParams(rc, matching, name)
	return fmt.Sprintf("%s/sites/list.json?%s", a.BaseURL, strings.Join(params, "&")), nil
}

// BuildSingleURL implements upstream.Adapter.
func (a *Adapter) BuildSingleURL(_ context.Context, rc *reqctx.Context, _ *subquery.Subquery, _ upstream.Spawner) (string, error) {
	if !rc.UpstreamEnabled(string(extid.DomainQuaternary)) {
		return "", nil
	}
	matching := upstream.MatchingIdentifiers(rc.Identifiers, extid.DomainQuaternary)
	id, ok := upstream.FirstOfType(matching, extid.TypeSite)
	if !ok {
		return "", nil
	}
	return fmt.Sprintf("%s/sites/single.json?%s", a.BaseURL, httpenc.Param("siteid", strconv.Itoa(id.Number))), nil
}

// resolveNameFromPaleoIdentifier launches the secondary subquery against
// the paleobiology source's taxon endpoint when a taxon identifier
// arrived tagged for that domain but this adapter needs a name string.
func (a *Adapter) resolveNameFromPaleoIdentifier(ctx context.Context, rc *reqctx.Context, sq *subquery.Subquery, spawner upstream.Spawner) (string, bool, error) {
	paleoMatching := upstream.MatchingIdentifiers(rc.Identifiers, extid.DomainPaleo)
	taxonID, ok := upstream.FirstOfType(paleoMatching, extid.TypeTaxon)
	if !ok {
		return "", false, nil
	}

	lookup := paleobio.NewTaxonLookup(a.PaleoBaseURL, taxonID.Number)
	secondary, err := spawner.SpawnSecondary(ctx, sq.Label+":secondary", lookup)
	if err != nil {
		sq.AddWarning(a.Label() + ": secondary taxon lookup failed: " + err.Error())
		return "", false, nil
	}
	if secondary.Status != subquery.StatusComp || len(secondary.Records) == 0 {
		sq.AddWarning(a.Label() + ": secondary taxon lookup returned no record")
		return "", false, nil
	}
	name, _ := secondary.Records[0]["taxon_name"].(string)
	if name == "" {
		sq.AddWarning(a.Label() + ": secondary taxon lookup returned no name")
		return "", false, nil
	}
	return name, true, nil
}

func (a *Adapter) commonParams(rc *reqctx.Context, matching []extid.ID, name string) []string {
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
		params = append(params, httpenc.Param("ageyoung", formatFloat(rc.MinYBP)))
		params = append(params, httpenc.Param("ageold", formatFloat(rc.MaxYBP)))
	}

	// This upstream cannot express major/buffer rules natively; request
	// a coarse overlap and let reqtransform.PassesFilter re-filter.
	params = append(params, httpenc.Param("agedocontain", "0"))

	if name != "" {
		params = append(params, httpenc.Param("taxonname", name))
	}

	for _, id := range matching {
		params = append(params, httpenc.Param("siteid", strconv.Itoa(id.Number)))
	}

	// Bypass the upstream's default cap; filtering happens locally.
	params = append(params, httpenc.Param("limit", "999999"))

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
		case "/data/^":
			rec, ok := normalize(e.Value, rc)
			if !ok {
				continue
			}
			if reqtransform.PassesFilter(rc, rec) {
				sq.AddRecord(rec)
			} else {
				sq.IncRemoved()
			}
		case "/success", "/message":
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
	r.SetDatabase("neotoma")
	r.SetRecordType("site")

	if sid, ok := upstream.NumberField(m, "siteid"); ok {
		r["site_id"] = extid.Format(extid.ID{Domain: extid.DomainQuaternary, Type: extid.TypeSite, Number: int(sid)})
	}
	if name, ok := upstream.StringField(m, "taxonname"); ok {
		r["taxon_name"] = name
	}

	// This upstream is already years-before-present-native; no Ma scaling.
	older, _ := upstream.NumberField(m, "ageolder")
	younger, _ := upstream.NumberField(m, "ageyounger")
	r.SetAgeYBP(older, younger)
	r.SetDisplayAge(rc.AgeUnit)

	lngMin, okLngMin := upstream.NumberField(m, "lngmin")
	lngMax, okLngMax := upstream.NumberField(m, "lngmax")
	latMin, okLatMin := upstream.NumberField(m, "latmin")
	latMax, okLatMax := upstream.NumberField(m, "latmax")
	if okLngMin && okLngMax && okLatMin && okLatMax {
		r.SetMidpoint(lngMin, lngMax, latMin, latMax)
	}

	return r, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
