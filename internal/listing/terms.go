package listing

import (
	"regexp"
	"strings"
	"unicode"
)

// Matcher finds configured terms in titles, case-insensitively and on word boundaries
// where the term itself starts or ends with a word character.
type Matcher struct {
	terms    []string
	patterns []*regexp.Regexp
}

// NewMatcher compiles terms in order. Blank terms are skipped.
func NewMatcher(terms []string) *Matcher {
	m := &Matcher{}
	for _, raw := range terms {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" {
			continue
		}
		m.terms = append(m.terms, term)
		m.patterns = append(m.patterns, regexp.MustCompile(termPattern(term)))
	}
	return m
}

// Match returns the first term, in configured order, present in title.
func (m *Matcher) Match(title string) (string, bool) {
	if m == nil || title == "" {
		return "", false
	}
	for i, p := range m.patterns {
		if p.MatchString(title) {
			return m.terms[i], true
		}
	}
	return "", false
}

// Len returns the number of compiled terms.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.terms)
}

func termPattern(term string) string {
	var b strings.Builder
	b.WriteString("(?i)")
	runes := []rune(term)
	if isWordRune(runes[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(term))
	if isWordRune(runes[len(runes)-1]) {
		b.WriteString(`\b`)
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
