package fhir

import (
	"strings"
)

// HasParam represents a parsed _has search parameter.
// Example: "_has:Condition:subject:code=1234" -> TargetType="Condition", TargetParam="subject", SearchParam="code", Value="1234"
type HasParam struct {
	TargetType  string `json:"target_type"`  // The resource type that has a reference to the current resource
	TargetParam string `json:"target_param"` // The reference search parameter on the target resource
	SearchParam string `json:"search_param"` // The search parameter to filter on the target resource
	Value       string `json:"value"`        // The value to match
}

// Name returns the parameter name without the value,
// e.g. "_has:Condition:subject:code".
func (h HasParam) Name() string {
	return "_has:" + h.TargetType + ":" + h.TargetParam + ":" + h.SearchParam
}

// ParseHasParam parses a _has search parameter.
// Format: "_has:ResourceType:referenceParam:searchParam" with an optional "=value".
func ParseHasParam(param string) (*HasParam, bool) {
	if !strings.HasPrefix(param, "_has:") {
		return nil, false
	}

	rest := strings.TrimPrefix(param, "_has:")
	var value string
	if idx := strings.Index(rest, "="); idx >= 0 {
		rest, value = rest[:idx], rest[idx+1:]
	}

	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return nil, false
	}
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}

	return &HasParam{
		TargetType:  parts[0],
		TargetParam: parts[1],
		SearchParam: parts[2],
		Value:       value,
	}, true
}
