package reconciliation

import (
	"strings"
	"unicode"
)

// Metric scores the textual similarity of two transaction narratives in
// [0, 1]. Implementations must be deterministic.
type Metric interface {
	Name() string
	Similarity(a, b string) float64
}

// LevenshteinMetric scores by normalized edit distance over the lowercased,
// whitespace-collapsed text.
type LevenshteinMetric struct{}

func (LevenshteinMetric) Name() string { return "levenshtein" }

func (LevenshteinMetric) Similarity(a, b string) float64 {
	a, b = normalizeText(a), normalizeText(b)
	if a == "" && b == "" {
		return 0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(levenshteinDistance(a, b))/float64(maxLen)
}

// TokenOverlapMetric scores by the Jaccard ratio of lowercased alphanumeric
// tokens.
type TokenOverlapMetric struct{}

func (TokenOverlapMetric) Name() string { return "tokens" }

func (TokenOverlapMetric) Similarity(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(ta))
	for _, tok := range ta {
		seen[tok] = true
	}
	union := len(seen)
	common := 0
	counted := make(map[string]bool, len(tb))
	for _, tok := range tb {
		if counted[tok] {
			continue
		}
		counted[tok] = true
		if seen[tok] {
			common++
		} else {
			union++
		}
	}
	return float64(common) / float64(union)
}

// MetricByName resolves a configured metric name; empty or unknown names
// fall back to Levenshtein.
func MetricByName(name string) Metric {
	if name == (TokenOverlapMetric{}).Name() {
		return TokenOverlapMetric{}
	}
	return LevenshteinMetric{}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// levenshteinDistance computes the edit distance between two strings using
// a two-row matrix.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
