package index

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// MatchKind tells which rule accepted a name.
type MatchKind uint8

const (
	MatchNone MatchKind = iota
	MatchPrefix
	MatchSubstring
	MatchSubsequence
	MatchInitials
)

type matcher struct {
	raw   string
	query string
	fold  cases.Caser
}

func newMatcher(query string) *matcher {
	m := &matcher{raw: query, fold: cases.Fold()}
	m.query = m.fold.String(query)
	return m
}

// Match reports whether name fuzzily matches query and which rule accepted
// it. Rules are tried in order: prefix, substring, subsequence, camel-case
// initials, all case-folded.
func Match(name, query string) (MatchKind, bool) {
	return newMatcher(query).match(name)
}

func (m *matcher) match(name string) (MatchKind, bool) {
	if m.query == "" {
		return MatchPrefix, true
	}
	folded := m.fold.String(name)
	switch {
	case strings.HasPrefix(folded, m.query):
		return MatchPrefix, true
	case strings.Contains(folded, m.query):
		return MatchSubstring, true
	case subsequence(folded, m.query):
		return MatchSubsequence, true
	case strings.HasPrefix(m.fold.String(initials(name)), m.query):
		return MatchInitials, true
	}
	return MatchNone, false
}

func subsequence(s, sub string) bool {
	rs := []rune(sub)
	i := 0
	for _, r := range s {
		if i < len(rs) && r == rs[i] {
			i++
		}
	}
	return i == len(rs)
}

// initials keeps the first letter and every letter starting a camel-case or
// snake_case word: "parseHTTPRequest" -> "pHR", "max_value" -> "mv".
func initials(name string) string {
	rs := []rune(name)
	var b strings.Builder
	prevSep := true
	for i, r := range rs {
		if r == '_' || r == '$' {
			prevSep = true
			continue
		}
		switch {
		case prevSep:
			b.WriteRune(r)
		case unicode.IsUpper(r):
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			// "HTTPRequest": R starts a word because a lowercase letter follows
			if !unicode.IsUpper(prev) || nextLower {
				b.WriteRune(r)
			}
		}
		prevSep = false
	}
	return b.String()
}
