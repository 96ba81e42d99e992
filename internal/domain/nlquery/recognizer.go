package nlquery

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minAge = 1
	maxAge = 130

	maxConditionWords = 4
)

var (
	maleWords   = wordSet("male", "males", "man", "men", "boy", "boys", "m")
	femaleWords = wordSet("female", "females", "woman", "women", "girl", "girls", "f")

	nameVerbs = wordSet("starts", "start", "starting", "begins", "begin", "beginning")

	overWords      = wordSet("over", "above")
	underWords     = wordSet("under", "below")
	overThanWords  = wordSet("older", "more", "greater")
	underThanWords = wordSet("younger", "less", "fewer")
	ageFillers     = wordSet("the", "age", "ages", "aged", "of")
	ageWords       = wordSet("age", "ages", "aged")
	ageUnits       = wordSet("years", "year", "yrs", "yr", "y", "yo")
	trailingOver   = wordSet("older", "over", "above", "more", "up", "greater")
	trailingUnder  = wordSet("younger", "under", "below", "less")

	// Head nouns that make the preceding words a condition name.
	clinicalHeads = wordSet(
		"disease", "diseases", "disorder", "disorders", "syndrome", "syndromes",
		"illness", "illnesses", "infection", "infections", "deficiency", "failure",
		"insufficiency", "injury", "injuries", "fever", "tumor", "tumour", "tumors",
		"tumours", "virus", "palsy",
	)
	clinicalSuffixes = []string{
		"itis", "osis", "aemia", "emia", "oma", "pathy", "algia", "iasis",
		"plegia", "trophy", "ectasis",
	}
	suffixExceptions = wordSet(
		"diagnosis", "prognosis", "academia", "diploma", "aroma", "oklahoma",
		"sympathy", "empathy", "telepathy", "trophy", "nostalgia",
	)

	// Words after which the following content words name a condition.
	conditionTriggers = wordSet("with", "has", "have", "having", "had")
	perfectTriggers   = wordSet("has", "have", "having", "had")

	// Irregular past participles; "have visited" and "have seen" are verbs,
	// not conditions.
	participles = wordSet(
		"been", "seen", "gone", "done", "taken", "given", "made", "got", "gotten",
		"undergone", "come", "become", "left", "kept", "met", "paid", "won",
		"written", "spoken", "brought", "bought", "felt", "held", "told", "run",
	)

	// Nouns naming patient attributes rather than conditions.
	attributeNouns = wordSet(
		"eye", "eyes", "hair", "insurance", "coverage", "address", "addresses",
		"phone", "phones", "email", "emails", "glasses", "tattoo", "tattoos",
		"pet", "pets", "job", "jobs", "doctor", "doctors", "physician",
		"physicians", "provider", "providers", "clinic", "clinics", "hospital",
		"hospitals", "spouse", "spouses", "partner", "partners", "siblings",
		"parents", "plan", "plans", "account", "accounts", "car", "cars",
		"surgery", "surgeries", "medication", "medications", "prescription",
		"prescriptions", "referral", "referrals",
	)

	determiners = wordSet("a", "an", "the", "any", "some", "their", "his", "her", "its")

	// Words that never belong to a condition name.
	nonClinical = wordSet(
		"a", "an", "the", "and", "or", "but", "of", "in", "on", "at", "to", "for",
		"from", "by", "with", "without", "who", "whom", "whose", "which", "that",
		"than", "as", "is", "are", "was", "were", "be", "been", "being", "has",
		"have", "had", "having", "do", "does", "did", "not", "no", "any", "all",
		"some", "their", "his", "her", "its", "them", "they", "there", "this",
		"these", "those", "what", "show", "me", "find", "get", "list", "give",
		"display", "search", "patients", "patient", "people", "persons", "person",
		"individuals", "adults", "adult", "subjects", "members", "cases", "case",
		"records", "record", "age", "ages", "aged", "year", "years", "yr", "yrs",
		"y", "o", "yo", "old", "older", "younger", "over", "under", "above",
		"below", "between", "more", "less", "greater", "fewer", "name", "names",
		"named", "called", "first", "last", "middle", "family", "given",
		"surname", "gender", "sex", "birth", "born", "birthday", "date",
		"history", "diagnosis", "diagnosed", "suffering", "currently", "also",
		"both", "either", "only", "please", "known", "living", "alive", "starts",
		"start", "starting", "begins", "begin", "beginning", "letter", "condition",
		"conditions", "diagnoses", "where", "when", "how", "many", "children",
		"child", "kids", "visit", "visits", "appointment", "appointments",
		"recently", "newly", "previously",
	)
)

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Recognize extracts the entities of a clinical question. It never fails;
// anything it cannot interpret is left out of the result.
//
// The name fragment is taken first so its words are not reinterpreted, then
// the age expression, the condition mention and finally the gender.
func Recognize(vocab *Vocabulary, text string) RecognizedEntities {
	r := &recognition{text: text, tokens: tokenize(text)}
	r.consumed = make([]bool, len(r.tokens))

	var out RecognizedEntities
	out.NameFragment = r.nameFragment()
	out.Age = r.ageExpression()
	out.ConditionMention = r.conditionMention(vocab)
	out.Gender = r.gender()
	return out
}

type recognition struct {
	text     string
	tokens   []token
	consumed []bool
}

func (r *recognition) lower(i int) string {
	if i < 0 || i >= len(r.tokens) {
		return ""
	}
	return r.tokens[i].lower
}

func (r *recognition) free(i int) bool {
	return i >= 0 && i < len(r.tokens) && !r.consumed[i]
}

func (r *recognition) isNum(i int) bool {
	return r.free(i) && r.tokens[i].isNum
}

func (r *recognition) consume(from, to int) {
	for i := from; i <= to; i++ {
		r.consumed[i] = true
	}
}

// ---------------------------------------------------------------------------
// Name fragment
// ---------------------------------------------------------------------------

var closingQuotes = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'`':  '`',
	'“':  '”',
	'‘':  '’',
}

func (r *recognition) nameFragment() string {
	for i := range r.tokens {
		last := -1
		switch r.lower(i) {
		case "named":
			last = i
		case "name", "names":
			if nameVerbs[r.lower(i+1)] && r.lower(i+2) == "with" {
				last = i + 2
			}
		}
		if last < 0 {
			continue
		}
		if frag, end, ok := r.fragmentAfter(last); ok {
			r.consume(i, end)
			return frag
		}
	}
	return ""
}

// fragmentAfter returns the quoted phrase or the single word following the
// trigger token at last, and the index of the last token it covers.
func (r *recognition) fragmentAfter(last int) (string, int, bool) {
	rest := r.text[r.tokens[last].end:]
	trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
	offset := r.tokens[last].end + len(rest) - len(trimmed)

	if open, size := utf8.DecodeRuneInString(trimmed); size > 0 {
		if closeQ, ok := closingQuotes[open]; ok {
			if idx := findClosingQuote(trimmed[size:], closeQ); idx >= 0 {
				frag := strings.TrimSpace(trimmed[size : size+idx])
				limit := offset + size + idx
				end := last
				for j := last + 1; j < len(r.tokens) && r.tokens[j].end <= limit; j++ {
					end = j
				}
				if frag != "" {
					return frag, end, true
				}
			}
		}
	}

	j := last + 1
	if r.lower(j) == "the" && r.lower(j+1) == "letter" {
		j += 2
	} else if r.lower(j) == "letter" {
		j++
	}
	if j >= len(r.tokens) {
		return "", 0, false
	}
	end := j
	for end+1 < len(r.tokens) && r.tokens[end+1].hyphen {
		end++
	}
	return r.text[r.tokens[j].start:r.tokens[end].end], end, true
}

// findClosingQuote finds q in s where it is not followed by a letter, so an
// apostrophe inside O'Brien does not close a single-quoted name.
func findClosingQuote(s string, q rune) int {
	for i, c := range s {
		if c != q {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[i+utf8.RuneLen(c):])
		if !unicode.IsLetter(next) {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Age expression
// ---------------------------------------------------------------------------

func (r *recognition) ageExpression() *AgeExpression {
	for i := range r.tokens {
		if !r.isNum(i) {
			continue
		}
		expr, from, to, ok := r.ageAt(i)
		if !ok {
			continue
		}
		r.consume(from, to)
		if !validAges(expr.Values) {
			continue
		}
		expr.Span = spanOf(r.text, r.tokens, from, to)
		return expr
	}
	return nil
}

func validAges(values []int) bool {
	for _, v := range values {
		if v < minAge || v > maxAge {
			return false
		}
	}
	return len(values) > 0
}

// ageAt interprets the number at token i as part of an age expression and
// returns the expression together with the token range it covers.
func (r *recognition) ageAt(i int) (*AgeExpression, int, int, bool) {
	n := r.tokens[i].num

	if j, ok := r.rangeEnd(i); ok {
		m := r.tokens[j].num
		from, aged := r.skipFillersBack(i)
		lead := r.lower(from - 1)
		if (lead == "between" || lead == "from") && r.free(from-1) {
			return &AgeExpression{Comparator: AgeBetween, Values: []int{n, m}}, from - 1, r.unitEnd(j), true
		}
		if aged || r.hasUnit(j) {
			return &AgeExpression{Comparator: AgeBetween, Values: []int{n, m}}, from, r.unitEnd(j), true
		}
	}

	if cmp, from, ok := r.comparatorBefore(i); ok {
		end := r.unitEnd(i)
		if cmp2, j, end2, ok := r.comparatorAfter(end); ok && cmp2 != cmp {
			m := r.tokens[j].num
			values := []int{n, m}
			if cmp == AgeUnder {
				values = []int{m, n}
			}
			return &AgeExpression{Comparator: AgeBetween, Values: values}, from, end2, true
		}
		return &AgeExpression{Comparator: cmp, Values: []int{n}}, from, end, true
	}

	if cmp, ok := r.symbolBefore(i); ok {
		return &AgeExpression{Comparator: cmp, Values: []int{n}}, i, r.unitEnd(i), true
	}

	from, aged := r.skipFillersBack(i)
	if !aged {
		if !r.hasUnit(i) && !strings.HasPrefix(r.text[r.tokens[i].end:], "+") {
			return nil, 0, 0, false
		}
		from = i
	}
	end := r.unitEnd(i)
	cmp, end := r.trailingComparator(i, end)
	if cmp == "" {
		cmp = r.comparatorElsewhere()
	}
	if cmp == "" {
		cmp = AgeExact
	}
	return &AgeExpression{Comparator: cmp, Values: []int{n}}, from, end, true
}

// rangeEnd detects "N and M", "N to M" and "N-M" and returns M's index.
func (r *recognition) rangeEnd(i int) (int, bool) {
	u := r.unitEnd(i)
	next := u + 1
	if r.isNum(next) && r.tokens[next].hyphen {
		return next, true
	}
	if w := r.lower(next); (w == "and" || w == "to") && r.free(next) && r.isNum(next+1) {
		return next + 1, true
	}
	return 0, false
}

// skipFillersBack walks back over "the age of"-style fillers before token i.
// aged reports whether an age word was among them.
func (r *recognition) skipFillersBack(i int) (from int, aged bool) {
	from = i
	for from-1 >= 0 && r.free(from-1) && ageFillers[r.lower(from-1)] {
		from--
		if ageWords[r.lower(from)] {
			aged = true
		}
	}
	return from, aged
}

func (r *recognition) comparatorBefore(i int) (AgeComparator, int, bool) {
	k, _ := r.skipFillersBack(i)
	return r.comparatorEndingAt(k - 1)
}

// comparatorEndingAt matches a comparator phrase whose last token is k.
func (r *recognition) comparatorEndingAt(k int) (AgeComparator, int, bool) {
	if !r.free(k) {
		return "", 0, false
	}
	w := r.lower(k)
	switch {
	case overWords[w]:
		return AgeOver, k, true
	case underWords[w]:
		return AgeUnder, k, true
	case w == "than" && r.free(k-1) && overThanWords[r.lower(k-1)]:
		return AgeOver, k - 1, true
	case w == "than" && r.free(k-1) && underThanWords[r.lower(k-1)]:
		return AgeUnder, k - 1, true
	}
	return "", 0, false
}

// comparatorAfter matches "and under M" style continuations after token end.
// It returns the comparator, M's index and the last covered token.
func (r *recognition) comparatorAfter(end int) (AgeComparator, int, int, bool) {
	k := end + 1
	if w := r.lower(k); w == "and" || w == "but" {
		k++
	}
	if !r.free(k) {
		return "", 0, 0, false
	}
	var cmp AgeComparator
	w := r.lower(k)
	switch {
	case overWords[w]:
		cmp = AgeOver
	case underWords[w]:
		cmp = AgeUnder
	case overThanWords[w] && r.lower(k+1) == "than":
		cmp, k = AgeOver, k+1
	case underThanWords[w] && r.lower(k+1) == "than":
		cmp, k = AgeUnder, k+1
	default:
		return "", 0, 0, false
	}
	j := k + 1
	for r.free(j) && ageFillers[r.lower(j)] {
		j++
	}
	if !r.isNum(j) {
		return "", 0, 0, false
	}
	return cmp, j, r.unitEnd(j), true
}

// symbolBefore matches "> 50" and "< 30".
func (r *recognition) symbolBefore(i int) (AgeComparator, bool) {
	prevEnd := 0
	if i > 0 {
		prevEnd = r.tokens[i-1].end
	}
	gap := strings.TrimSpace(r.text[prevEnd:r.tokens[i].start])
	switch {
	case strings.HasSuffix(gap, ">"):
		return AgeOver, true
	case strings.HasSuffix(gap, "<"):
		return AgeUnder, true
	}
	return "", false
}

func (r *recognition) hasUnit(i int) bool {
	return r.tokens[i].unit || r.unitEnd(i) > i
}

// unitEnd returns the last token of "years old", "y/o", "years of age" after
// the number at i, or i itself.
func (r *recognition) unitEnd(i int) int {
	k := i
	if !r.tokens[i].unit {
		if !r.free(k+1) || !ageUnits[r.lower(k+1)] {
			return i
		}
		k++
		if r.lower(k) == "y" && r.lower(k+1) == "o" {
			k++
		}
	}
	switch {
	case r.lower(k+1) == "old" && r.free(k+1):
		k++
	case r.lower(k+1) == "of" && r.lower(k+2) == "age" && r.free(k+2):
		k += 2
	}
	return k
}

// trailingComparator matches "or older", "and under" and a "+" directly after
// the number.
func (r *recognition) trailingComparator(i, end int) (AgeComparator, int) {
	if strings.HasPrefix(r.text[r.tokens[i].end:], "+") {
		return AgeOver, end
	}
	if w := r.lower(end + 1); (w == "or" || w == "and") && r.free(end+1) && r.free(end+2) {
		switch {
		case trailingOver[r.lower(end+2)]:
			return AgeOver, end + 2
		case trailingUnder[r.lower(end+2)]:
			return AgeUnder, end + 2
		}
	}
	return "", end
}

func (r *recognition) comparatorElsewhere() AgeComparator {
	for i := range r.tokens {
		if !r.free(i) {
			continue
		}
		switch w := r.lower(i); {
		case w == "older" || overWords[w]:
			return AgeOver
		case w == "younger" || underWords[w]:
			return AgeUnder
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Condition mention
// ---------------------------------------------------------------------------

type tokenRange struct{ from, to int }

func (r *recognition) conditionMention(vocab *Vocabulary) *Span {
	known := r.vocabularyMatches(vocab)
	inKnown := make([]bool, len(r.tokens))
	for _, k := range known {
		for i := k.from; i <= k.to; i++ {
			inKnown[i] = true
		}
	}

	candidates := append([]tokenRange(nil), known...)
	for _, c := range r.unknownMentions(inKnown) {
		if r.modifiesKnown(c, known) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.from < best.from || (c.from == best.from && c.to > best.to) {
			best = c
		}
	}
	r.consume(best.from, best.to)
	span := spanOf(r.text, r.tokens, best.from, best.to)
	return &span
}

// modifiesKnown reports whether c directly precedes a vocabulary match, as
// "severe" does in "severe asthma". The vocabulary entry then names the
// condition.
func (r *recognition) modifiesKnown(c tokenRange, known []tokenRange) bool {
	next := c.to + 1
	for _, k := range known {
		if k.from == next {
			return !gapHasBreak(r.text, r.tokens[c.to], r.tokens[next])
		}
	}
	return false
}

// vocabularyMatches scans left to right taking the longest vocabulary phrase
// at each position.
func (r *recognition) vocabularyMatches(vocab *Vocabulary) []tokenRange {
	var out []tokenRange
	maxWords := vocab.MaxPhraseWords()
	for i := 0; i < len(r.tokens); i++ {
		if !r.free(i) {
			continue
		}
		for n := min(maxWords, len(r.tokens)-i); n >= 1; n-- {
			to := i + n - 1
			if !r.contiguous(i, to) {
				continue
			}
			if _, ok := vocab.Lookup(r.phrase(i, to)); ok {
				out = append(out, tokenRange{i, to})
				i = to
				break
			}
		}
	}
	return out
}

// contiguous reports whether tokens from..to are free and not separated by
// clause punctuation.
func (r *recognition) contiguous(from, to int) bool {
	for k := from; k <= to; k++ {
		if !r.free(k) {
			return false
		}
		if k > from && gapHasBreak(r.text, r.tokens[k-1], r.tokens[k]) {
			return false
		}
	}
	return true
}

func (r *recognition) phrase(from, to int) string {
	words := make([]string, 0, to-from+1)
	for k := from; k <= to; k++ {
		words = append(words, r.tokens[k].lower)
	}
	return strings.Join(words, " ")
}

// unknownMentions finds condition-like phrases the vocabulary does not cover:
// words with a clinical suffix, phrases ending in a clinical head noun, and
// content words after "with", "has", "suffering from", "history of" and
// "diagnosis of".
func (r *recognition) unknownMentions(inKnown []bool) []tokenRange {
	var out []tokenRange
	for i := range r.tokens {
		if !r.free(i) || inKnown[i] {
			continue
		}
		w := r.lower(i)
		if clinicalHeads[w] || hasClinicalSuffix(w) {
			out = append(out, tokenRange{r.extendBack(i, inKnown), i})
		}
	}

	for i := range r.tokens {
		if !r.free(i) || !r.isTrigger(i) {
			continue
		}
		c, ok := r.contentRun(i+1, inKnown)
		if !ok || !r.conditionLike(i, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *recognition) isTrigger(i int) bool {
	switch w := r.lower(i); {
	case conditionTriggers[w]:
		return true
	case w == "from":
		return r.lower(i-1) == "suffering"
	case w == "of":
		p := r.lower(i - 1)
		return p == "history" || p == "diagnosis"
	}
	return false
}

// conditionLike filters content runs after a trigger word. A participle after
// "have" is a verb ("have visited") and a run ending in an attribute noun
// ("blue eyes") is a description, unless the run itself reads as clinical.
func (r *recognition) conditionLike(trigger int, c tokenRange) bool {
	for k := c.from; k <= c.to; k++ {
		if w := r.lower(k); clinicalHeads[w] || hasClinicalSuffix(w) {
			return true
		}
	}
	if perfectTriggers[r.lower(trigger)] && isParticiple(r.lower(c.from)) {
		return false
	}
	return !attributeNouns[r.lower(c.to)]
}

func isParticiple(w string) bool {
	return participles[w] || (len(w) > 4 && strings.HasSuffix(w, "ed"))
}

func hasClinicalSuffix(w string) bool {
	if suffixExceptions[w] {
		return false
	}
	for _, s := range clinicalSuffixes {
		if strings.HasSuffix(w, s) && len(w) >= len(s)+3 {
			return true
		}
	}
	return false
}

func (r *recognition) isContent(i int, inKnown []bool) bool {
	if !r.free(i) || inKnown[i] || r.tokens[i].isNum {
		return false
	}
	w := r.lower(i)
	return !nonClinical[w] && !maleWords[w] && !femaleWords[w]
}

func (r *recognition) extendBack(i int, inKnown []bool) int {
	from := i
	for from-1 >= 0 && i-from+1 < maxConditionWords &&
		r.isContent(from-1, inKnown) && !gapHasBreak(r.text, r.tokens[from-1], r.tokens[from]) {
		from--
	}
	return from
}

func (r *recognition) contentRun(start int, inKnown []bool) (tokenRange, bool) {
	i := start
	for r.free(i) && determiners[r.lower(i)] {
		i++
	}
	if i >= len(r.tokens) || !r.isContent(i, inKnown) {
		return tokenRange{}, false
	}
	if gapHasBreak(r.text, r.tokens[start-1], r.tokens[i]) {
		return tokenRange{}, false
	}
	to := i
	for to+1 < len(r.tokens) && to-i+1 < maxConditionWords &&
		r.isContent(to+1, inKnown) && !gapHasBreak(r.text, r.tokens[to], r.tokens[to+1]) {
		to++
	}
	return tokenRange{i, to}, true
}

// ---------------------------------------------------------------------------
// Gender
// ---------------------------------------------------------------------------

func (r *recognition) gender() Gender {
	for i := range r.tokens {
		if !r.free(i) {
			continue
		}
		w := strings.TrimSuffix(strings.TrimSuffix(r.lower(i), "'s"), "’s")
		switch {
		case maleWords[w]:
			return GenderMale
		case femaleWords[w]:
			return GenderFemale
		}
	}
	return GenderUnspecified
}
