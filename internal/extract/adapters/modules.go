package adapters

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/extract"
	"github.com/ppiankov/coursework/internal/model"
)

var (
	moduleHeader = regexp.MustCompile(`(?i)^(?:#+\s*)?(?:module|unit)\s+(\d{1,3})\b\s*[:.\-|]?\s*(.*)$`)
	chapterLine  = regexp.MustCompile(`(?i)^(?:[-*•]\s*)?(?:chapters?|ch\.)\s*:?\s*([\d][\d,\s&\-]*(?:and\s+\d+)?)\s*$`)
	topicsLine   = regexp.MustCompile(`(?i)^(?:[-*•]\s*)?(?:key\s+)?(?:topics?|concepts?|objectives?)\s*:\s*(.+)$`)
	listSplit    = regexp.MustCompile(`\s*(?:,|;|&|\band\b)\s*`)
)

// ModulesExtractor scans Canvas-style module listings. Module headers
// create Module records and the items under them are linked to the module.
type ModulesExtractor struct {
	base
	rules []extract.Rule
}

type modulesState struct {
	scope   dates.Scope
	current *model.Module
	done    []model.Module
}

// NewModulesExtractor creates a module listing extractor
func NewModulesExtractor(env extract.Env) *ModulesExtractor {
	return &ModulesExtractor{
		base: base{env: env},
		rules: []extract.Rule{
			extract.NumberedRule,
			extract.DomainPatternRule,
			extract.DueClauseRule,
			extract.BulletKeywordRule,
			extract.KeywordRule,
		},
	}
}

// Name returns the extractor name
func (e *ModulesExtractor) Name() string { return "modules" }

// Kind returns KindModules
func (e *ModulesExtractor) Kind() Kind { return KindModules }

// Detect looks for at least two module headers
func (e *ModulesExtractor) Detect(text string) bool {
	return countMatches(extract.Lines(text), moduleHeader.MatchString) >= 2
}

// Extract folds the listing and attaches item ids to their modules
func (e *ModulesExtractor) Extract(text, course string) extract.Output {
	final, out := extract.Fold(extract.Lines(text), modulesState{}, func(st modulesState, line extract.Line) (modulesState, extract.Output) {
		return e.step(st, line, course)
	})
	out.Modules = final.closed()
	out = e.complete(KindModules, text, course, out)
	out.Modules = model.PruneModuleLinks(out.Modules, out.Assignments)
	return out
}

func (st modulesState) closed() []model.Module {
	out := append([]model.Module(nil), st.done...)
	if st.current != nil {
		out = append(out, *st.current)
	}
	return out
}

func (e *ModulesExtractor) step(st modulesState, line extract.Line, course string) (modulesState, extract.Output) {
	if line.Text == "" {
		return st, extract.Output{}
	}

	if m := moduleHeader.FindStringSubmatch(line.Text); m != nil && !e.isItem(line.Text) {
		n, _ := strconv.Atoi(m[1])
		title := strings.TrimSpace(m[2])
		res := e.env.Resolver.Find(title)
		if res.OK() {
			title = extract.CleanTitle(title, res.Match)
		}
		next := modulesState{
			scope:   dates.Scope{Header: line.Text, Date: res.Date},
			current: &model.Module{Number: n, Title: title, Course: course},
			done:    st.closed(),
		}
		return next, extract.Output{}
	}

	if next, header := st.scope.Advance(line.Text, e.env.Resolver); header {
		st.scope = next
		return st, extract.Output{}
	}

	if st.current != nil {
		if m := chapterLine.FindStringSubmatch(line.Text); m != nil {
			st.current = st.current.WithChapters(splitList(m[1])...)
			return st, extract.Output{}
		}
		if m := topicsLine.FindStringSubmatch(line.Text); m != nil {
			st.current = st.current.WithTopics(splitList(m[1])...)
			return st, extract.Output{}
		}
	}

	rule, ok := extract.FirstMatch(e.rules, line.Text, e.env)
	if !ok {
		return st, extract.Output{}
	}
	number := 0
	if st.current != nil {
		number = st.current.Number
	}
	out := e.candidate(KindModules, rule, line.Text, st.scope.Date, st.scope.Week, number, course)
	if st.current != nil {
		for _, a := range out.Assignments {
			st.current = st.current.WithAssignment(a.ID)
		}
	}
	return st, out
}

// isItem reports whether a "Module N ..." line is itself a deliverable,
// e.g. "Module 2 Quiz due May 3 (10 pts)".
func (e *ModulesExtractor) isItem(line string) bool {
	if _, ok := extract.ParsePoints(line); ok {
		return true
	}
	return extract.DueClauseRule.Matches(line, e.env)
}

func splitList(s string) []string {
	var out []string
	for _, part := range listSplit.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
