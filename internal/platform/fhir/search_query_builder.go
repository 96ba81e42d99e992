package fhir

import (
	"net/url"
	"strings"
	"time"
)

// SearchQuery builds a FHIR search URL ("Type?param=value&...") from
// parameters in the order they are added. Repeated names are kept, which is
// how FHIR expresses AND across the same parameter (birthdate=ge..&birthdate=le..).
type SearchQuery struct {
	resourceType string
	params       []SearchParam
}

// SearchParam is a single name/value pair of a search URL.
type SearchParam struct {
	Name  string
	Value string
}

// NewSearchQuery creates a new SearchQuery for the given resource type.
func NewSearchQuery(resourceType string) *SearchQuery {
	return &SearchQuery{resourceType: resourceType}
}

// Add appends a raw parameter. The value is escaped on output.
func (q *SearchQuery) Add(name, value string) *SearchQuery {
	q.params = append(q.params, SearchParam{Name: name, Value: value})
	return q
}

// AddToken adds a token parameter rendered as system|code, or a bare code when system is empty.
func (q *SearchQuery) AddToken(name, system, code string) *SearchQuery {
	return q.Add(name, TokenValue(system, code))
}

// AddDate adds a day-precision date parameter with a FHIR prefix (gt, lt, ge, le, eq, etc.).
func (q *SearchQuery) AddDate(name string, prefix SearchPrefix, t time.Time) *SearchQuery {
	return q.Add(name, DateValue(prefix, t))
}

// AddString adds a string parameter. Without a modifier a FHIR server performs
// a case-insensitive prefix match.
func (q *SearchQuery) AddString(name, value string, modifier SearchModifier) *SearchQuery {
	if modifier != "" {
		name += ":" + string(modifier)
	}
	return q.Add(name, value)
}

// AddHas adds a reverse-chained _has parameter.
func (q *SearchQuery) AddHas(has HasParam) *SearchQuery {
	return q.Add(has.Name(), has.Value)
}

// ResourceType returns the resource type being searched.
func (q *SearchQuery) ResourceType() string { return q.resourceType }

// Params returns a copy of the parameters in insertion order.
func (q *SearchQuery) Params() []SearchParam {
	out := make([]SearchParam, len(q.params))
	copy(out, q.params)
	return out
}

// Len returns the number of parameters.
func (q *SearchQuery) Len() int { return len(q.params) }

// String renders the relative search URL. A query without parameters
// renders as the bare resource type.
func (q *SearchQuery) String() string {
	if len(q.params) == 0 {
		return q.resourceType
	}
	var sb strings.Builder
	sb.WriteString(q.resourceType)
	sb.WriteByte('?')
	for i, p := range q.params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		sb.WriteString(EscapeSearchValue(p.Value))
	}
	return sb.String()
}

// URL renders the search against a base URL. An empty base yields the
// relative form.
func (q *SearchQuery) URL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return q.String()
	}
	return base + "/" + q.String()
}

var searchValueUnescaper = strings.NewReplacer("%7C", "|", "%3A", ":", "%2F", "/")

// EscapeSearchValue percent-encodes a search value. Spaces become %20, while
// the token separator, colon and slash are left readable so coded values keep
// the familiar system|code shape.
func EscapeSearchValue(v string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
	return searchValueUnescaper.Replace(escaped)
}
