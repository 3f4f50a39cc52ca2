package adapters

import (
	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/extract"
)

// ScheduleExtractor scans week-by-week or date-by-date course schedules.
// Week and date headings open a scope whose date applies to the lines below.
type ScheduleExtractor struct {
	base
	rules []extract.Rule
}

type scheduleState struct {
	scope dates.Scope
}

// NewScheduleExtractor creates a schedule extractor
func NewScheduleExtractor(env extract.Env) *ScheduleExtractor {
	return &ScheduleExtractor{
		base: base{env: env},
		rules: []extract.Rule{
			extract.NumberedRule,
			extract.DomainPatternRule,
			extract.DueClauseRule,
			extract.EventRule,
			extract.BulletKeywordRule,
			extract.KeywordRule,
		},
	}
}

// Name returns the extractor name
func (e *ScheduleExtractor) Name() string { return "schedule" }

// Kind returns KindSchedule
func (e *ScheduleExtractor) Kind() Kind { return KindSchedule }

// Detect looks for repeated week headings or date headings
func (e *ScheduleExtractor) Detect(text string) bool {
	lines := extract.Lines(text)
	headings := countMatches(lines, func(s string) bool {
		_, header := dates.Scope{}.Advance(s, e.env.Resolver)
		return header
	})
	return headings >= 2
}

// Extract folds the schedule line by line
func (e *ScheduleExtractor) Extract(text, course string) extract.Output {
	_, out := extract.Fold(extract.Lines(text), scheduleState{}, func(st scheduleState, line extract.Line) (scheduleState, extract.Output) {
		return e.step(st, line, course)
	})
	return e.complete(KindSchedule, text, course, out)
}

func (e *ScheduleExtractor) step(st scheduleState, line extract.Line, course string) (scheduleState, extract.Output) {
	if line.Text == "" {
		return st, extract.Output{}
	}
	if next, header := st.scope.Advance(line.Text, e.env.Resolver); header {
		st.scope = next
		return st, extract.Output{}
	}
	rule, ok := extract.FirstMatch(e.rules, line.Text, e.env)
	if !ok {
		return st, extract.Output{}
	}
	return st, e.candidate(KindSchedule, rule, line.Text, st.scope.Date, st.scope.Week, 0, course)
}
