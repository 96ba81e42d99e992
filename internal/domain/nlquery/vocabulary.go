package nlquery

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Vocabulary maps normalized surface forms (names and synonyms) to condition
// entries. A Vocabulary is immutable once built; reloads build a new one.
type Vocabulary struct {
	entries  []*ConditionEntry
	index    map[string]*ConditionEntry
	maxWords int
}

// NewVocabulary validates the entries and builds the lookup index.
func NewVocabulary(entries []ConditionEntry) (*Vocabulary, error) {
	v := &Vocabulary{
		entries: make([]*ConditionEntry, 0, len(entries)),
		index:   make(map[string]*ConditionEntry),
	}

	for i := range entries {
		e := copyEntry(entries[i])
		if err := validateEntry(e); err != nil {
			return nil, err
		}

		for _, surface := range append([]string{e.Name}, e.Synonyms...) {
			key := Normalize(surface)
			if key == "" {
				return nil, fmt.Errorf("condition %q: synonym %q is empty after normalization", e.Name, surface)
			}
			if existing, ok := v.index[key]; ok {
				if existing == e {
					continue
				}
				return nil, fmt.Errorf("surface form %q maps to both %q and %q", key, existing.Name, e.Name)
			}
			v.index[key] = e
			if n := len(strings.Fields(key)); n > v.maxWords {
				v.maxWords = n
			}
		}
		v.entries = append(v.entries, e)
	}

	return v, nil
}

func copyEntry(in ConditionEntry) *ConditionEntry {
	out := in
	out.Name = strings.TrimSpace(in.Name)
	out.Display = strings.TrimSpace(in.Display)
	if out.Display == "" {
		out.Display = out.Name
	}
	out.Synonyms = make([]string, 0, len(in.Synonyms))
	for _, s := range in.Synonyms {
		if s = strings.TrimSpace(s); s != "" {
			out.Synonyms = append(out.Synonyms, s)
		}
	}
	return &out
}

func validateEntry(e *ConditionEntry) error {
	if e.Name == "" {
		return fmt.Errorf("condition name is required")
	}
	if e.Primary.IsZero() && e.Secondary.IsZero() {
		return fmt.Errorf("condition %q: at least one code is required", e.Name)
	}
	if !e.Primary.IsZero() && e.Primary.System == "" {
		return fmt.Errorf("condition %q: primary code %q has no system", e.Name, e.Primary.Code)
	}
	if !e.Secondary.IsZero() && e.Secondary.System == "" {
		return fmt.Errorf("condition %q: secondary code %q has no system", e.Name, e.Secondary.Code)
	}
	return nil
}

// Lookup resolves a surface form to its entry. Matching is insensitive to
// case, diacritics, punctuation and spacing, and tolerates a plural last word.
func (v *Vocabulary) Lookup(surface string) (*ConditionEntry, bool) {
	if v == nil {
		return nil, false
	}
	key := Normalize(surface)
	if key == "" {
		return nil, false
	}
	if e, ok := v.index[key]; ok {
		return e, true
	}

	words := strings.Fields(key)
	last := len(words) - 1
	if singular := singularize(words[last]); singular != words[last] {
		words[last] = singular
		if e, ok := v.index[strings.Join(words, " ")]; ok {
			return e, true
		}
	}
	return nil, false
}

// Entries returns copies of all entries sorted by name.
func (v *Vocabulary) Entries() []ConditionEntry {
	if v == nil {
		return nil
	}
	out := make([]ConditionEntry, 0, len(v.entries))
	for _, e := range v.entries {
		c := *e
		c.Synonyms = append([]string(nil), e.Synonyms...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of entries.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// MaxPhraseWords returns the word count of the longest surface form.
func (v *Vocabulary) MaxPhraseWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Normalize folds a surface form to its lookup key: diacritics stripped,
// lower-cased, apostrophes dropped, any other non-alphanumeric run collapsed
// to a single space.
func Normalize(s string) string {
	decomposed := norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(decomposed))
	space := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		default:
			space = true
		}
	}
	return b.String()
}

// singularize strips a regular English plural ending. Words whose singular
// already ends in s (illness, virus, arthritis) are left alone.
func singularize(w string) string {
	switch {
	case len(w) < 4:
		return w
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"),
		strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}
