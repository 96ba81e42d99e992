package nlquery

import (
	"time"

	"github.com/ehr/nlquery/internal/platform/fhir"
)

// BuilderConfig controls how queries are rendered.
type BuilderConfig struct {
	// BaseURL is prefixed to both queries when set; otherwise the queries are
	// relative ("Patient?gender=male").
	BaseURL string
	// CodePreference picks the coding used in code searches.
	CodePreference CodePreference
	// BareCodes drops the code system from token values.
	BareCodes bool
	// Location defines "today" for birth-date arithmetic. Defaults to UTC.
	Location *time.Location
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// QueryBuilder renders ParsedCriteria as FHIR search URLs. It performs no I/O.
type QueryBuilder struct {
	cfg BuilderConfig
}

// NewQueryBuilder creates a builder, filling in defaults.
func NewQueryBuilder(cfg BuilderConfig) *QueryBuilder {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CodePreference == "" {
		cfg.CodePreference = PreferPrimary
	}
	return &QueryBuilder{cfg: cfg}
}

// Today returns the current date in the builder's location.
func (b *QueryBuilder) Today() time.Time {
	now := b.cfg.Now().In(b.cfg.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, b.cfg.Location)
}

// Build produces the condition and patient queries.
//
// The patient query lists its parameters in a fixed order: the _has
// reverse chain on Condition.subject, gender, birth-date bounds, name.
func (b *QueryBuilder) Build(criteria ParsedCriteria) CompiledQuery {
	if criteria.Condition.Status == ConditionUnsupported {
		return CompiledQuery{
			Success:   false,
			Error:     strPtr(ErrUnsupportedCondition.Error()),
			ErrorCode: ErrorCodeUnsupportedCondition,
		}
	}

	condition, patient := b.searches(criteria)
	out := CompiledQuery{
		PatientQuery: patient.URL(b.cfg.BaseURL),
		Success:      true,
	}
	if condition != nil {
		conditionQuery := condition.URL(b.cfg.BaseURL)
		out.ConditionQuery = &conditionQuery
	}
	return out
}

// Plan returns the decomposed condition and patient searches Build would
// render. Both are nil for an unsupported condition; the condition search is
// nil when no condition was recognized.
func (b *QueryBuilder) Plan(criteria ParsedCriteria) (condition, patient *SearchPlan) {
	if criteria.Condition.Status == ConditionUnsupported {
		return nil, nil
	}
	cq, pq := b.searches(criteria)
	if cq != nil {
		condition = describeSearch(cq)
	}
	return condition, describeSearch(pq)
}

func (b *QueryBuilder) searches(criteria ParsedCriteria) (condition, patient *fhir.SearchQuery) {
	patient = fhir.NewSearchQuery("Patient")

	if criteria.Condition.Status == ConditionRecognized && criteria.Condition.Entry != nil {
		system, code := b.coding(criteria.Condition.Entry)
		condition = fhir.NewSearchQuery("Condition").AddToken("code", system, code)

		patient.AddHas(fhir.HasParam{
			TargetType:  "Condition",
			TargetParam: "subject",
			SearchParam: "code",
			Value:       fhir.TokenValue(system, code),
		})
	}

	if criteria.Gender != GenderUnspecified {
		patient.Add("gender", string(criteria.Gender))
	}

	b.addBirthDate(patient, criteria.Age)

	if criteria.NamePrefix != "" {
		// A FHIR string search without modifier is already a prefix match.
		patient.AddString("name", criteria.NamePrefix, "")
	}
	return condition, patient
}

func (b *QueryBuilder) coding(entry *ConditionEntry) (system, code string) {
	coding := entry.Coding(b.cfg.CodePreference)
	if b.cfg.BareCodes {
		return "", coding.Code
	}
	return coding.System, coding.Code
}

// addBirthDate converts an age constraint into birthdate bounds relative to
// today. Being older than N years means being born before today minus N years.
func (b *QueryBuilder) addBirthDate(q *fhir.SearchQuery, age *AgeConstraint) {
	if age == nil {
		return
	}
	today := b.Today()
	switch age.Comparator {
	case AgeOver:
		if age.Low != nil {
			q.AddDate("birthdate", fhir.PrefixLt, yearsBefore(today, *age.Low))
		}
	case AgeUnder:
		if age.High != nil {
			q.AddDate("birthdate", fhir.PrefixGt, yearsBefore(today, *age.High))
		}
	case AgeBetween:
		if age.Low != nil && age.High != nil {
			q.AddDate("birthdate", fhir.PrefixGe, yearsBefore(today, *age.High))
			q.AddDate("birthdate", fhir.PrefixLe, yearsBefore(today, *age.Low))
		}
	case AgeExact:
		if age.Low != nil {
			q.AddDate("birthdate", fhir.PrefixGt, yearsBefore(today, *age.Low+1))
			q.AddDate("birthdate", fhir.PrefixLe, yearsBefore(today, *age.Low))
		}
	}
}

// SearchPlan is a rendered search taken apart into its parameters.
type SearchPlan struct {
	Resource string      `json:"resource"`
	Params   []PlanParam `json:"params"`
}

// PlanParam is one search parameter with its FHIR parts filled in where the
// parameter type has them.
type PlanParam struct {
	Name     string         `json:"name"`
	Modifier string         `json:"modifier,omitempty"`
	Value    string         `json:"value"`
	Chain    *fhir.HasParam `json:"chain,omitempty"`
	System   string         `json:"system,omitempty"`
	Code     string         `json:"code,omitempty"`
	Prefix   string         `json:"prefix,omitempty"`
	Date     string         `json:"date,omitempty"`
}

func describeSearch(q *fhir.SearchQuery) *SearchPlan {
	plan := &SearchPlan{Resource: q.ResourceType(), Params: []PlanParam{}}
	for _, p := range q.Params() {
		pp := PlanParam{Name: p.Name, Value: p.Value}
		if has, ok := fhir.ParseHasParam(p.Name + "=" + p.Value); ok {
			pp.Chain = has
			pp.System, pp.Code = fhir.SplitToken(has.Value)
			plan.Params = append(plan.Params, pp)
			continue
		}

		name, modifier := fhir.ParseParamModifier(p.Name)
		pp.Name, pp.Modifier = name, string(modifier)
		switch name {
		case "code":
			pp.System, pp.Code = fhir.SplitToken(p.Value)
		case "birthdate":
			if prefix, t, err := fhir.ParseDateValue(p.Value); err == nil {
				pp.Prefix = string(prefix)
				pp.Date = t.Format(fhir.DateFormat)
			}
		}
		plan.Params = append(plan.Params, pp)
	}
	return plan
}
