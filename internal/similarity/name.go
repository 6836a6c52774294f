// Package similarity scores how alike two entity names are.
package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the minimum ratio at which two names are treated as the
// same entity.
const DefaultThreshold = 0.85

// Normalize folds case, strips diacritics and collapses punctuation and
// whitespace runs into single spaces.
func Normalize(s string) string {
	decomposed := norm.NFD.String(cases.Fold().String(s))

	var b strings.Builder
	b.Grow(len(decomposed))

	prevSpace := true
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// LevenshteinDistance counts the single-rune edits needed to turn s1 into s2.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}
	if len(r1) < len(r2) {
		r1, r2 = r2, r1
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// Ratio returns 1 - distance/maxLen over the normalized forms of a and b.
// Two names that normalize to nothing score 0.
func Ratio(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}
