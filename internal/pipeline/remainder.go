package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// RemainderMarker replaces text already captured by the extractors
const RemainderMarker = "[EXTRACTED]"

var markerRun = regexp.MustCompile(`\[EXTRACTED\](?:\s*\[EXTRACTED\])+`)

type span struct{ start, end int }

// ComputeRemainder masks every verbatim excerpt of the candidates in text.
// Longer excerpts claim their ranges first; adjacent markers collapse.
func ComputeRemainder(text string, candidates []model.Assignment) string {
	excerpts := make([]string, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		ex := strings.TrimSpace(c.ExtractedFrom)
		if ex == "" || seen[ex] {
			continue
		}
		seen[ex] = true
		excerpts = append(excerpts, ex)
	}
	sort.SliceStable(excerpts, func(i, j int) bool {
		return len(excerpts[i]) > len(excerpts[j])
	})

	var claimed []span
	for _, ex := range excerpts {
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], ex)
			if i < 0 {
				break
			}
			s := span{start: from + i, end: from + i + len(ex)}
			if !overlaps(claimed, s) {
				claimed = append(claimed, s)
			}
			from = s.end
		}
	}

	// Replace from the end so earlier offsets stay valid
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start > claimed[j].start })
	out := text
	for _, s := range claimed {
		out = out[:s.start] + RemainderMarker + out[s.end:]
	}
	return markerRun.ReplaceAllString(out, RemainderMarker)
}

// RemainderLength is the length of the remainder without markers and
// surrounding whitespace
func RemainderLength(remainder string) int {
	return len(strings.TrimSpace(strings.ReplaceAll(remainder, RemainderMarker, "")))
}

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}
