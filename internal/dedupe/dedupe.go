// Package dedupe collapses near-duplicate assignments found by different
// extractors and pipeline stages.
package dedupe

import (
	"strings"
	"unicode"

	"github.com/ppiankov/coursework/internal/model"
)

// SimilarityThreshold is the word overlap above which two same-date records collide.
const SimilarityThreshold = 0.8

// ValidatedConfidence is the confidence a validated record needs to count as informative.
const ValidatedConfidence = 0.8

// NormalizeText lowercases s, drops punctuation and collapses whitespace
func NormalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(NormalizeText(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Similarity is |common words| / max(|words a|, |words b|) over distinct
// case-insensitive words. Empty text has similarity 0 with anything.
func Similarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(wa), len(wb)))
}

// Duplicates reports whether a and b describe the same coursework: identical
// normalized text, or equal dates with word overlap above SimilarityThreshold.
func Duplicates(a, b model.Assignment) bool {
	na, nb := NormalizeText(a.Text), NormalizeText(b.Text)
	if na != "" && na == nb {
		return true
	}
	return a.Date == b.Date && Similarity(a.Text, b.Text) > SimilarityThreshold
}

// IsDuplicate reports whether candidate collides with any existing record
func IsDuplicate(candidate model.Assignment, existing []model.Assignment) bool {
	return indexOfDuplicate(candidate, existing) >= 0
}

func indexOfDuplicate(candidate model.Assignment, existing []model.Assignment) int {
	for i, e := range existing {
		if Duplicates(candidate, e) {
			return i
		}
	}
	return -1
}

// Informativeness counts the populated fields that decide a collision
func Informativeness(a model.Assignment) int {
	n := 0
	if !a.Date.IsZero() {
		n++
	}
	if a.HasPoints() {
		n++
	}
	if a.DueTime != "" {
		n++
	}
	if a.Validated && a.Confidence > ValidatedConfidence {
		n++
	}
	return n
}

// Dedupe removes duplicates, keeping the more informative record of each
// colliding pair (the earlier one on ties) at the earlier record's position.
// Passes repeat until nothing collapses, so Dedupe(Dedupe(x)) == Dedupe(x).
// The input slice is not modified.
func Dedupe(in []model.Assignment) []model.Assignment {
	out := pass(in)
	for {
		next := pass(out)
		if len(next) == len(out) {
			return out
		}
		out = next
	}
}

func pass(in []model.Assignment) []model.Assignment {
	kept := make([]model.Assignment, 0, len(in))
	for _, a := range in {
		i := indexOfDuplicate(a, kept)
		if i < 0 {
			kept = append(kept, a)
			continue
		}
		if Informativeness(a) > Informativeness(kept[i]) {
			kept[i] = a
		}
	}
	return kept
}
