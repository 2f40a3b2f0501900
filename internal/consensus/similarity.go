// Package consensus reconciles multiple human transcriptions of one chunk
// into a single representative text with a confidence score.
package consensus

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two transcript strings in [0, 1]: 1.0 for identical
// text, near 0 for disjoint text, monotonic in shared content. It blends a
// character edit-distance ratio with token overlap so that both small
// spelling variants and word-level agreement count.
func Similarity(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	return 0.6*editRatio(a, b) + 0.4*tokenOverlap(a, b)
}

// normalize collapses whitespace so formatting differences do not count
// against agreement. Case is preserved: scripts without case are the
// common input and for the rest a case change is a real disagreement.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// editRatio is 1 - normalized Levenshtein distance over runes.
func editRatio(a, b string) float64 {
	dist := levenshtein.ComputeDistance(a, b)
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// tokenOverlap is the Dice coefficient over whitespace-separated tokens.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ta))
	for _, t := range ta {
		counts[t]++
	}
	common := 0
	for _, t := range tb {
		if counts[t] > 0 {
			counts[t]--
			common++
		}
	}
	return 2.0 * float64(common) / float64(len(ta)+len(tb))
}
