package adapters

import (
	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/extract"
)

// longLine is the length above which a line is treated as prose and split
// into sentences.
const longLine = 160

// GenericExtractor is the fallback extractor for unknown document shapes.
// It applies every rule, explicit first.
type GenericExtractor struct {
	base
	rules []extract.Rule
}

type genericState struct {
	scope dates.Scope
}

// NewGenericExtractor creates the fallback extractor
func NewGenericExtractor(env extract.Env) *GenericExtractor {
	return &GenericExtractor{
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
func (e *GenericExtractor) Name() string { return "generic" }

// Kind returns KindGeneric
func (e *GenericExtractor) Kind() Kind { return KindGeneric }

// Detect always returns true (fallback extractor)
func (e *GenericExtractor) Detect(text string) bool { return true }

// Extract folds every line through the full rule list
func (e *GenericExtractor) Extract(text, course string) extract.Output {
	_, out := extract.Fold(extract.Lines(text), genericState{}, func(st genericState, line extract.Line) (genericState, extract.Output) {
		return e.step(st, line, course)
	})
	return e.complete(KindGeneric, text, course, out)
}

func (e *GenericExtractor) step(st genericState, line extract.Line, course string) (genericState, extract.Output) {
	if line.Text == "" {
		return st, extract.Output{}
	}
	if next, header := st.scope.Advance(line.Text, e.env.Resolver); header {
		st.scope = next
		return st, extract.Output{}
	}

	segments := []string{line.Text}
	if len(line.Text) > longLine {
		segments = extract.SplitSentences(line.Text)
	}
	var out extract.Output
	for _, seg := range segments {
		rule, ok := extract.FirstMatch(e.rules, seg, e.env)
		if !ok {
			continue
		}
		out = extract.Merge(out, e.candidate(KindGeneric, rule, seg, st.scope.Date, st.scope.Week, 0, course))
	}
	return st, out
}
