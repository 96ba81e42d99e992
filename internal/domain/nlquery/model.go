package nlquery

import (
	"errors"

	"github.com/ehr/nlquery/internal/platform/fhir"
)

// ErrorCodeUnsupportedCondition is the machine-readable code returned when the
// question names a condition that the vocabulary does not know.
const ErrorCodeUnsupportedCondition = "UNSUPPORTED_CONDITION"

// ErrUnsupportedCondition is the error form of the unsupported outcome.
var ErrUnsupportedCondition = errors.New("unsupported condition")

// ConditionEntry is one row of the condition vocabulary.
type ConditionEntry struct {
	Name      string      `json:"name" yaml:"name"`
	Display   string      `json:"display" yaml:"display"`
	Synonyms  []string    `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Primary   fhir.Coding `json:"primary" yaml:"primary"`
	Secondary fhir.Coding `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

// CodePreference selects which coding of an entry is used in queries.
type CodePreference string

const (
	PreferPrimary   CodePreference = "primary"
	PreferSecondary CodePreference = "secondary"
)

// Coding returns the preferred coding, falling back to the other one when
// the preferred coding has no code.
func (e *ConditionEntry) Coding(pref CodePreference) fhir.Coding {
	first, second := e.Primary, e.Secondary
	if pref == PreferSecondary {
		first, second = second, first
	}
	if !first.IsZero() {
		return first
	}
	return second
}

// Gender is the administrative gender filter.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
)

// AgeComparator describes how an age constraint bounds the patient's age.
type AgeComparator string

const (
	AgeOver    AgeComparator = "over"
	AgeUnder   AgeComparator = "under"
	AgeBetween AgeComparator = "between"
	AgeExact   AgeComparator = "exact"
)

// Span is a piece of the input text with its byte offsets.
type Span struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// AgeExpression is a recognized but not yet normalized age phrase.
type AgeExpression struct {
	Span
	Comparator AgeComparator `json:"comparator"`
	Values     []int         `json:"values"`
}

// RecognizedEntities is the output of the recognizer.
type RecognizedEntities struct {
	ConditionMention *Span          `json:"condition_mention,omitempty"`
	Age              *AgeExpression `json:"age,omitempty"`
	Gender           Gender         `json:"gender,omitempty"`
	NameFragment     string         `json:"name_fragment,omitempty"`
}

// ConditionStatus is the resolution state of a condition mention.
type ConditionStatus string

const (
	ConditionNone        ConditionStatus = "none"
	ConditionRecognized  ConditionStatus = "recognized"
	ConditionUnsupported ConditionStatus = "unsupported"
)

// ConditionCriterion is the condition part of ParsedCriteria.
type ConditionCriterion struct {
	Status  ConditionStatus `json:"status"`
	Entry   *ConditionEntry `json:"entry,omitempty"`
	Mention string          `json:"mention,omitempty"`
}

// AgeConstraint is a normalized age bound. Over carries only Low, under only
// High, between and exact carry both.
type AgeConstraint struct {
	Comparator AgeComparator `json:"comparator"`
	Low        *int          `json:"low,omitempty"`
	High       *int          `json:"high,omitempty"`
}

// ParsedCriteria is the immutable hand-off between parsing and query building.
type ParsedCriteria struct {
	Condition  ConditionCriterion `json:"condition"`
	Age        *AgeConstraint     `json:"age,omitempty"`
	Gender     Gender             `json:"gender,omitempty"`
	NamePrefix string             `json:"name_prefix,omitempty"`
}

// IsEmpty reports whether no criterion was extracted at all.
func (p ParsedCriteria) IsEmpty() bool {
	return p.Condition.Status == ConditionNone && p.Age == nil && p.Gender == GenderUnspecified && p.NamePrefix == ""
}

// CompiledQuery is the result returned to callers.
type CompiledQuery struct {
	ConditionQuery *string `json:"condition_query"`
	PatientQuery   string  `json:"patient_query"`
	Success        bool    `json:"success"`
	Error          *string `json:"error"`
	ErrorCode      string  `json:"error_code,omitempty"`
}

// Err returns ErrUnsupportedCondition for the unsupported outcome and nil otherwise.
func (q CompiledQuery) Err() error {
	if q.ErrorCode == ErrorCodeUnsupportedCondition {
		return ErrUnsupportedCondition
	}
	return nil
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
