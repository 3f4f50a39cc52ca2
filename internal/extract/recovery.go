package extract

import (
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// recoveryWindow is how many lines below a keyword line a due phrase may sit.
const recoveryWindow = 2

// coverPrefix is how much of a known title must appear in a line to count as covered.
const coverPrefix = 24

// Recover sweeps the whole normalized text for coursework the primary scan
// missed: a keyword line with a due phrase on it or within the next two
// lines. Items already found (by excerpt or title prefix) are skipped.
// Results carry ConfidenceRecovery and source "<kind>-recovery".
func Recover(text string, found []model.Assignment, env Env, course, kind string) []model.Assignment {
	lines := Lines(text)
	known := append([]model.Assignment(nil), found...)
	rule := Rule{Name: "recovery", Confidence: ConfidenceRecovery}
	source := "regex-" + kind + "-recovery"

	var out []model.Assignment
	for i := 0; i < len(lines); i++ {
		line := lines[i].Text
		if line == "" || IsNoise(line) || IsEvent(line) {
			continue
		}
		if _, ok := env.Config.HasKeyword(line); !ok {
			continue
		}
		if Covered(line, known) {
			continue
		}

		end, ok := dueWithin(lines, i, env)
		if !ok {
			continue
		}

		block := make([]string, 0, end-i+1)
		for j := i; j <= end; j++ {
			block = append(block, lines[j].Text)
		}
		a := BuildBlock(block, rule, "", env, course, source)
		out = append(out, a)
		known = append(known, a)
		i = end
	}
	return out
}

// dueWithin finds a line at or below i, within the window, that carries a
// due phrase with a resolvable date. A blank line ends the search.
func dueWithin(lines []Line, i int, env Env) (int, bool) {
	for j := i; j < len(lines) && j <= i+recoveryWindow; j++ {
		t := lines[j].Text
		if t == "" {
			return 0, false
		}
		if j > i {
			if _, ok := env.Config.HasKeyword(t); ok && !dueWord.MatchString(t) {
				return 0, false
			}
		}
		if dueWord.MatchString(t) && env.Resolver.Find(t).OK() {
			return j, true
		}
	}
	return 0, false
}

// Covered reports whether line was already captured: it appears inside a
// known excerpt, or contains the start of a known title.
func Covered(line string, known []model.Assignment) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "" {
		return true
	}
	for _, a := range known {
		if a.ExtractedFrom != "" && strings.Contains(strings.ToLower(a.ExtractedFrom), lower) {
			return true
		}
		title := strings.ToLower(strings.TrimSpace(a.Text))
		if len(title) > coverPrefix {
			title = title[:coverPrefix]
		}
		if len(title) > 3 && strings.Contains(lower, title) {
			return true
		}
	}
	return false
}
