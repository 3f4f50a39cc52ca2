package adapters

import (
	"regexp"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/extract"
)

var syllabusMarkers = regexp.MustCompile(`(?i)\b(syllabus|course description|learning (?:outcomes|objectives)|grading (?:policy|scale)|office hours|instructor|prerequisites?|required (?:texts?|textbooks?)|attendance policy|academic integrity)\b`)

// SyllabusExtractor scans syllabus prose sentence by sentence. Bare keyword
// containment is not a rule here because policy prose mentions "exam" and
// "paper" constantly; the recovery sweep catches the rest.
type SyllabusExtractor struct {
	base
	rules []extract.Rule
}

type syllabusState struct {
	scope dates.Scope
}

// NewSyllabusExtractor creates a syllabus prose extractor
func NewSyllabusExtractor(env extract.Env) *SyllabusExtractor {
	return &SyllabusExtractor{
		base: base{env: env},
		rules: []extract.Rule{
			extract.NumberedRule,
			extract.DomainPatternRule,
			extract.DueClauseRule,
			extract.EventRule,
			extract.BulletKeywordRule,
		},
	}
}

// Name returns the extractor name
func (e *SyllabusExtractor) Name() string { return "syllabus" }

// Kind returns KindSyllabus
func (e *SyllabusExtractor) Kind() Kind { return KindSyllabus }

// Detect looks for at least two distinct syllabus section markers
func (e *SyllabusExtractor) Detect(text string) bool {
	seen := make(map[string]bool)
	for _, m := range syllabusMarkers.FindAllString(text, -1) {
		seen[m] = true
	}
	return len(seen) >= 2
}

// Extract folds the prose, matching each sentence separately
func (e *SyllabusExtractor) Extract(text, course string) extract.Output {
	_, out := extract.Fold(extract.Lines(text), syllabusState{}, func(st syllabusState, line extract.Line) (syllabusState, extract.Output) {
		return e.step(st, line, course)
	})
	return e.complete(KindSyllabus, text, course, out)
}

func (e *SyllabusExtractor) step(st syllabusState, line extract.Line, course string) (syllabusState, extract.Output) {
	if line.Text == "" {
		return st, extract.Output{}
	}
	if next, header := st.scope.Advance(line.Text, e.env.Resolver); header {
		st.scope = next
		return st, extract.Output{}
	}

	var out extract.Output
	for _, sentence := range extract.SplitSentences(line.Text) {
		rule, ok := extract.FirstMatch(e.rules, sentence, e.env)
		if !ok {
			continue
		}
		out = extract.Merge(out, e.candidate(KindSyllabus, rule, sentence, st.scope.Date, st.scope.Week, 0, course))
	}
	return st, out
}
