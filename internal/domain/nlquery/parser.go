package nlquery

import "strings"

// Parse turns recognized entities into normalized criteria. A condition
// mention the vocabulary cannot resolve is reported as unsupported rather
// than dropped, so the caller never gets a silently broadened query.
func Parse(vocab *Vocabulary, entities RecognizedEntities) ParsedCriteria {
	criteria := ParsedCriteria{
		Condition:  ConditionCriterion{Status: ConditionNone},
		Gender:     entities.Gender,
		NamePrefix: strings.TrimSpace(entities.NameFragment),
	}

	if m := entities.ConditionMention; m != nil {
		criteria.Condition.Mention = m.Text
		if entry, ok := vocab.Lookup(m.Text); ok {
			criteria.Condition.Status = ConditionRecognized
			criteria.Condition.Entry = entry
		} else {
			criteria.Condition.Status = ConditionUnsupported
		}
	}

	if entities.Age != nil {
		criteria.Age = normalizeAge(entities.Age)
	}
	return criteria
}

// normalizeAge validates the raw age expression. Between bounds are ordered;
// equal bounds carry no usable range and yield no constraint.
func normalizeAge(expr *AgeExpression) *AgeConstraint {
	if !validAges(expr.Values) {
		return nil
	}
	switch expr.Comparator {
	case AgeOver:
		return &AgeConstraint{Comparator: AgeOver, Low: intPtr(expr.Values[0])}
	case AgeUnder:
		return &AgeConstraint{Comparator: AgeUnder, High: intPtr(expr.Values[0])}
	case AgeExact:
		return &AgeConstraint{Comparator: AgeExact, Low: intPtr(expr.Values[0]), High: intPtr(expr.Values[0])}
	case AgeBetween:
		if len(expr.Values) != 2 {
			return nil
		}
		low, high := expr.Values[0], expr.Values[1]
		if low > high {
			low, high = high, low
		}
		if low == high {
			return nil
		}
		return &AgeConstraint{Comparator: AgeBetween, Low: intPtr(low), High: intPtr(high)}
	}
	return nil
}
