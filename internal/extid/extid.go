// Package extid parses and formats the gateway's prefixed external
// identifiers of the form domain:type:number.
package extid

import (
	"fmt"
	"strconv"
	"strings"
)

// Domain identifies which upstream schema an identifier originates from.
type Domain string

// Known identifier domains. DomainEmpty means the client did not specify one.
const (
	DomainPaleo      Domain = "paleo"
	DomainQuaternary Domain = "quaternary"
	DomainEmpty      Domain = ""
)

// Type tags the kind of record an identifier refers to.
type Type string

// Known identifier types. TypeEmpty means the client did not specify one.
const (
	TypeOccurrence Type = "occ"
	TypeSite       Type = "sit"
	TypeCollection Type = "col"
	TypeTaxon      Type = "txn"
	TypeDataset    Type = "dst"
	TypeUnknown    Type = "unk"
	TypeEmpty      Type = ""
)

// ID is a parsed external identifier triple.
type ID struct {
	Domain Domain
	Type   Type
	Number int
}

var domainAliases = map[string]Domain{
	"paleo":      DomainPaleo,
	"p":          DomainPaleo,
	"pbdb":       DomainPaleo,
	"quaternary": DomainQuaternary,
	"q":          DomainQuaternary,
	"neotoma":    DomainQuaternary,
	"n":          DomainQuaternary,
}

var wireDomainLabel = map[Domain]string{
	DomainPaleo:      "pbdb",
	DomainQuaternary: "neotoma",
}

// Parse accepts a bare positive integer, "<domain>:<number>", or
// "<domain>:<type>:<number>" and returns the resolved triple. Domain is
// matched case-insensitively against the known aliases; an unrecognized,
// non-empty domain is an error.
func Parse(s string) (ID, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		n, err := parseNumber(parts[0])
		if err != nil {
			return ID{}, err
		}
		return ID{Number: n}, nil
	case 2:
		domain, err := resolveDomain(parts[0])
		if err != nil {
			return ID{}, err
		}
		n, err := parseNumber(parts[1])
		if err != nil {
			return ID{}, err
		}
		return ID{Domain: domain, Number: n}, nil
	case 3:
		domain, err := resolveDomain(parts[0])
		if err != nil {
			return ID{}, err
		}
		n, err := parseNumber(parts[2])
		if err != nil {
			return ID{}, err
		}
		return ID{Domain: domain, Type: Type(strings.ToLower(parts[1])), Number: n}, nil
	default:
		return ID{}, fmt.Errorf("parse external identifier %q: too many segments", s)
	}
}

func resolveDomain(raw string) (Domain, error) {
	if raw == "" {
		return DomainEmpty, nil
	}
	d, ok := domainAliases[strings.ToLower(raw)]
	if !ok {
		return DomainEmpty, fmt.Errorf("parse external identifier: unknown domain %q", raw)
	}
	return d, nil
}

func parseNumber(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse external identifier: invalid number %q: %w", raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("parse external identifier: number must be positive, got %d", n)
	}
	return n, nil
}

// Format emits the canonical domain:type:number form. The domain segment
// uses the wire label for known domains (paleo -> pbdb, quaternary ->
// neotoma) so that Parse(Format(id)) round-trips to the same ID.
func Format(id ID) string {
	domain := ""
	if label, ok := wireDomainLabel[id.Domain]; ok {
		domain = label
	}
	return fmt.Sprintf("%s:%s:%d", domain, id.Type, id.Number)
}

// MatchesDomain reports whether id's domain is empty or equal to want,
// used by upstream adapters to decide whether an identifier belongs to them.
func (id ID) MatchesDomain(want Domain) bool {
	return id.Domain == DomainEmpty || id.Domain == want
}
