package fhir

import (
	"fmt"
	"strings"
	"time"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
	PrefixSa SearchPrefix = "sa" // starts after
	PrefixEb SearchPrefix = "eb" // ends before
	PrefixAp SearchPrefix = "ap" // approximately
)

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
	ModifierText     SearchModifier = "text"
	ModifierNot      SearchModifier = "not"
	ModifierMissing  SearchModifier = "missing"
)

// DateFormat is the FHIR date (day precision) layout.
const DateFormat = "2006-01-02"

// ParsedSearch holds a parsed search parameter value with its prefix.
type ParsedSearch struct {
	Prefix SearchPrefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "100" -> (eq, "100")
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := SearchPrefix(strings.ToLower(raw[:2]))
		switch prefix {
		case PrefixEq, PrefixNe, PrefixGt, PrefixLt, PrefixGe, PrefixLe, PrefixSa, PrefixEb, PrefixAp:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: PrefixEq, Value: raw}
}

// FormatSearchValue is the inverse of ParseSearchValue. The eq prefix is
// implicit and therefore omitted.
func FormatSearchValue(prefix SearchPrefix, value string) string {
	if prefix == "" || prefix == PrefixEq {
		return value
	}
	return string(prefix) + value
}

// DateValue renders a prefixed day-precision date value, e.g. "lt1975-03-14".
func DateValue(prefix SearchPrefix, t time.Time) string {
	return FormatSearchValue(prefix, t.Format(DateFormat))
}

// ParseParamModifier splits a parameter name from its modifier.
// Examples: "name:exact" -> ("name", "exact"), "code" -> ("code", "")
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// TokenValue renders a token search value. An empty system yields the bare
// code, which matches the code in any system.
func TokenValue(system, code string) string {
	if system == "" {
		return code
	}
	return system + "|" + code
}

// SplitToken handles token values in the format "system|code", "|code", "system|", or just "code".
func SplitToken(value string) (system, code string) {
	if idx := strings.Index(value, "|"); idx >= 0 {
		return value[:idx], value[idx+1:]
	}
	return "", value
}

// ParseDateValue parses a prefixed date search value.
func ParseDateValue(raw string) (SearchPrefix, time.Time, error) {
	parsed := ParseSearchValue(raw)
	t, err := parseFlexDate(parsed.Value)
	if err != nil {
		return "", time.Time{}, err
	}
	return parsed.Prefix, t, nil
}

// parseFlexDate parses a date string in multiple FHIR-supported formats.
func parseFlexDate(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		DateFormat,
		"2006-01",
		"2006",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
