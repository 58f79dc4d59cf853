// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package search

import (
	"strings"
	"unicode"
)

// Scoring weights
const (
	ExactScore     = 1.0
	PrefixScore    = 0.8
	SubstringScore = 0.6
	FuzzyScore     = 0.3
	// CompletenessBonus is added in proportion to the fraction of
	// query terms that matched
	CompletenessBonus = 0.1
	// MaxPartialScore caps every result that is not an exact full match
	MaxPartialScore = 0.95
	// MinFuzzyTermLength is the shortest term fuzzy matching applies to,
	// exclusive
	MinFuzzyTermLength = 3
	// MaxEditDistance is the largest edit distance a fuzzy match accepts
	MaxEditDistance = 1
)

// Normalize lowercases s and collapses every run of whitespace into a
// single space
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Terms splits an already normalized query into its terms
func Terms(normalized string) []string {
	return strings.Fields(normalized)
}

// Score rates how well query matches text, in [0, 1]. An exact match of
// the whole normalized query scores 1; anything else is the average term
// score plus a completeness bonus, capped at MaxPartialScore.
func Score(query, text string) float64 {
	return scoreNormalized(Normalize(query), Normalize(text))
}

func scoreNormalized(query, text string) float64 {
	if query == "" || text == "" {
		return 0
	}
	if query == text {
		return ExactScore
	}

	terms := Terms(query)
	words := strings.Fields(text)
	total, matched := 0.0, 0
	for _, term := range terms {
		s := termScore(term, text, words)
		if s > 0 {
			matched++
		}
		total += s
	}
	if matched == 0 {
		return 0
	}

	n := float64(len(terms))
	score := total/n + CompletenessBonus*float64(matched)/n
	return min(score, MaxPartialScore)
}

// termScore rates one term against the text and its words, taking the
// first rule that applies: exact, prefix, substring, fuzzy
func termScore(term, text string, words []string) float64 {
	for _, w := range words {
		if w == term {
			return ExactScore
		}
	}
	if strings.HasPrefix(text, term) {
		return PrefixScore
	}
	for _, w := range words {
		if strings.HasPrefix(w, term) {
			return PrefixScore
		}
	}
	if i := strings.Index(text, term); i >= 0 {
		textLen := float64(len([]rune(text)))
		pos := float64(len([]rune(text[:i])))
		positionScore := 1 - pos/textLen
		lengthScore := float64(len([]rune(term))) / textLen
		return SubstringScore * positionScore * (0.5 + 0.5*lengthScore)
	}
	if len([]rune(term)) > MinFuzzyTermLength && FuzzyMatch(term, text) {
		return FuzzyScore
	}
	return 0
}

// FuzzyMatch reports whether term is within MaxEditDistance of a word of
// text or, failing that, of a same-length window of text
func FuzzyMatch(term, text string) bool {
	for _, w := range strings.FieldsFunc(text, unicode.IsSpace) {
		if abs(len([]rune(w))-len([]rune(term))) > MaxEditDistance {
			continue
		}
		if Levenshtein(term, w) <= MaxEditDistance {
			return true
		}
	}

	t, r := []rune(term), []rune(text)
	for i := 0; i+len(t) <= len(r); i++ {
		if Levenshtein(term, string(r[i:i+len(t)])) <= MaxEditDistance {
			return true
		}
	}
	return false
}

// Levenshtein returns the edit distance between a and b, counted in runes
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
