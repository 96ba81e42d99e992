package nlquery

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// token is a word of the input with its byte offsets. raw keeps the original
// casing, lower is used for matching.
type token struct {
	raw    string
	lower  string
	start  int
	end    int
	hyphen bool // joined to the previous token by a hyphen
	num    int
	isNum  bool
	unit   bool // number carries an age unit, as in "65yo"
}

var ageUnitSuffixes = []string{"yrs", "yr", "yo", "y"}

// tokenize splits text into letter/digit runs. An apostrophe between two
// letters stays inside the word (O'Brien, Parkinson's); a hyphen splits the
// word but is recorded on the following token.
func tokenize(text string) []token {
	var tokens []token
	pos := 0
	for pos < len(text) {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if !isWordRune(r) {
			pos += size
			continue
		}

		start := pos
		for pos < len(text) {
			r, size = utf8.DecodeRuneInString(text[pos:])
			if isWordRune(r) {
				pos += size
				continue
			}
			if isApostrophe(r) && pos > start {
				prev, _ := utf8.DecodeLastRuneInString(text[:pos])
				next, _ := utf8.DecodeRuneInString(text[pos+size:])
				if unicode.IsLetter(prev) && unicode.IsLetter(next) {
					pos += size
					continue
				}
			}
			break
		}

		raw := text[start:pos]
		tok := token{
			raw:   raw,
			lower: strings.ToLower(raw),
			start: start,
			end:   pos,
		}
		if n := len(tokens); n > 0 && text[tokens[n-1].end:start] == "-" {
			tok.hyphen = true
		}
		if v, err := strconv.Atoi(raw); err == nil {
			tok.num, tok.isNum = v, true
		} else {
			for _, suffix := range ageUnitSuffixes {
				digits := strings.TrimSuffix(tok.lower, suffix)
				if digits == tok.lower || digits == "" {
					continue
				}
				if v, err := strconv.Atoi(digits); err == nil {
					tok.num, tok.isNum, tok.unit = v, true, true
					break
				}
			}
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’'
}

// gapHasBreak reports whether the text between two tokens contains a clause
// separator.
func gapHasBreak(text string, a, b token) bool {
	return strings.ContainsAny(text[a.end:b.start], ",;:.!?()")
}

// spanOf builds a Span covering tokens[from..to] inclusive.
func spanOf(text string, tokens []token, from, to int) Span {
	return Span{
		Text:  text[tokens[from].start:tokens[to].end],
		Start: tokens[from].start,
		End:   tokens[to].end,
	}
}
