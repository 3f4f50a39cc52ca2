package extract

import (
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// Fold threads a scan context through every line. Each step returns the
// context for the next line together with whatever it emitted, so no state
// lives outside the fold.
func Fold[S any](lines []Line, init S, step func(S, Line) (S, Output)) (S, Output) {
	state := init
	var out Output
	for _, line := range lines {
		var emitted Output
		state, emitted = step(state, line)
		out = Merge(out, emitted)
	}
	return state, out
}

// Merge appends b's records to a's
func Merge(a, b Output) Output {
	a.Assignments = append(a.Assignments, b.Assignments...)
	a.Modules = append(a.Modules, b.Modules...)
	a.Events = append(a.Events, b.Events...)
	return a
}

// Emit wraps a built record in an Output according to the rule kind. Events
// without a date are dropped.
func Emit(a model.Assignment, kind RuleKind) Output {
	if kind == KindEvent {
		if a.Date.IsZero() {
			return Output{}
		}
		return Output{Events: []model.Assignment{a}}
	}
	return Output{Assignments: []model.Assignment{a}}
}

// BuildBlock builds one assignment from consecutive lines: the title comes
// from the first line, every other field may come from any line.
func BuildBlock(block []string, rule Rule, fallback model.Date, env Env, course, source string) model.Assignment {
	c := Candidate{
		Line:     strings.Join(block, " "),
		Excerpt:  strings.Join(block, "\n"),
		Fallback: fallback,
	}
	a := Build(c, rule, env, course, source)
	if len(block) > 1 {
		first := block[0]
		a = Retitle(a, CleanTitle(first, env.Resolver.Find(first).Match), rule, env)
	}
	return a
}

// Retitle replaces a's text and re-derives type and hours from it. An empty
// title leaves a unchanged.
func Retitle(a model.Assignment, title string, rule Rule, env Env) model.Assignment {
	if title == "" {
		return a
	}
	a.Text = title
	if rule.Kind != KindEvent {
		a.Type = env.Config.DetermineType(title)
	}
	a.Hours = env.Config.EstimateHours(a.Type)
	return a
}

// SplitSentences splits a prose line on sentence terminators followed by
// whitespace. Fragments keep their original text so they remain substrings
// of the line.
func SplitSentences(line string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != '.' && c != '!' && c != '?' && c != ';' {
			continue
		}
		if i+1 < len(line) && (line[i+1] == ' ' || line[i+1] == '\t') {
			// skip abbreviations like "Ch." or "pp." followed by a number
			if c == '.' && isAbbreviation(line[start:i]) {
				continue
			}
			if s := strings.TrimSpace(line[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(line[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isAbbreviation(prefix string) bool {
	fields := strings.Fields(prefix)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(fields[len(fields)-1])
	switch last {
	case "ch", "pp", "p", "no", "vol", "dr", "mr", "ms", "mrs", "prof", "e.g", "i.e", "etc", "vs",
		"jan", "feb", "mar", "apr", "jun", "jul", "aug", "sep", "sept", "oct", "nov", "dec":
		return true
	}
	return false
}
