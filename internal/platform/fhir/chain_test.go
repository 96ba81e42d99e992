package fhir

import "testing"

func TestParseHasParam(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
		want  HasParam
	}{
		{
			input: "_has:Condition:subject:code",
			ok:    true,
			want:  HasParam{TargetType: "Condition", TargetParam: "subject", SearchParam: "code"},
		},
		{
			input: "_has:Condition:subject:code=http://hl7.org/fhir/sid/icd-10-cm|E11",
			ok:    true,
			want: HasParam{
				TargetType:  "Condition",
				TargetParam: "subject",
				SearchParam: "code",
				Value:       "http://hl7.org/fhir/sid/icd-10-cm|E11",
			},
		},
		{input: "_has:Condition:subject", ok: false},
		{input: "_has:Condition::code", ok: false},
		{input: "name=Smith", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseHasParam(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseHasParam(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if !ok {
				return
			}
			if *got != tt.want {
				t.Errorf("ParseHasParam(%q) = %+v, want %+v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestHasParam_Name(t *testing.T) {
	h := HasParam{TargetType: "Condition", TargetParam: "subject", SearchParam: "code", Value: "E11"}
	if got := h.Name(); got != "_has:Condition:subject:code" {
		t.Errorf("Name() = %q", got)
	}

	back, ok := ParseHasParam(h.Name() + "=" + h.Value)
	if !ok || *back != h {
		t.Errorf("round trip = %+v, %v; want %+v", back, ok, h)
	}
}
