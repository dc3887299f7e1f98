package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const normalizedCacheSize = 4096

var normalizedNames, _ = lru.New[string, string](normalizedCacheSize)

// Normalize strips diacritics and lower-cases s.
func Normalize(s string) string {
	if v, ok := normalizedNames.Get(s); ok {
		return v
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	normalizedNames.Add(s, out)
	return out
}

var regexpFilter = regexp.MustCompile(`^/(.+)/([a-z]*)$`)

type textMatcher struct {
	re      *regexp.Regexp
	pattern string
}

// newTextMatcher parses "/pattern/flags" as a regular expression and anything
// else as a fuzzy pattern. Supported flags are i, m and s.
func newTextMatcher(text string) (*textMatcher, error) {
	m := regexpFilter.FindStringSubmatch(text)
	if m == nil {
		return &textMatcher{pattern: Normalize(text)}, nil
	}
	var prefix string
	for _, f := range m[2] {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix, f) {
				prefix += string(f)
			}
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("unsupported regular expression flag %q", f)
		}
	}
	expr := m[1]
	if prefix != "" {
		expr = "(?" + prefix + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &textMatcher{re: re}, nil
}

// match tests a full name. Regular expressions see both the raw and the
// normalized name.
func (m *textMatcher) match(fullName string) bool {
	if m.re != nil {
		return m.re.MatchString(fullName) || m.re.MatchString(Normalize(fullName))
	}
	return FuzzyScore(m.pattern, Normalize(fullName)) > 0
}

// FuzzyScore scores target against pattern. Every pattern rune must appear in
// target in order, otherwise the score is 0. Consecutive matches, matches at
// word starts and an early first match score higher.
func FuzzyScore(pattern, target string) int {
	if pattern == "" {
		return 1
	}
	score, streak, first := 0, 0, -1
	ti := 0
	prev := ' '
	for _, pr := range pattern {
		found := false
		for ti < len(target) {
			tr, size := utf8.DecodeRuneInString(target[ti:])
			ti += size
			if tr == pr {
				if first < 0 {
					first = ti - size
				}
				streak++
				score += 1 + 2*(streak-1)
				if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
					score += 3
				}
				prev = tr
				found = true
				break
			}
			streak = 0
			prev = tr
		}
		if !found {
			return 0
		}
	}
	if bonus := 10 - first; bonus > 0 {
		score += bonus
	}
	return score
}
