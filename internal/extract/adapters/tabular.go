package adapters

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/extract"
)

var (
	cellSplit    = regexp.MustCompile(`\t|\s\|\s`)
	canvasMeta   = regexp.MustCompile(`(?i)^(?:due(?:\s+date)?\b|available\b|available until\b|until\b|closes\b|not available until\b|[-\d.]+\s*/\s*\d+\s*pts?\.?$|\d+\s*(?:pts?|points?)\.?$)`)
	headerCells  = map[string]bool{"": true, "name": true, "assignment": true, "assignments": true, "title": true, "due": true, "due date": true, "date": true, "points": true, "pts": true, "type": true, "status": true, "score": true, "week": true, "available": true, "until": true, "item": true, "description": true}
	explicitOnly = []extract.Rule{extract.NumberedRule, extract.DomainPatternRule, extract.DueClauseRule}
)

// TabularExtractor scans Name/Date/Points listings: tab or pipe separated
// rows, and Canvas assignment pages where each item spans a title line
// followed by "Due ..." and "N pts" lines.
type TabularExtractor struct {
	base
}

type tabularState struct {
	scope   dates.Scope
	pending []string
}

// NewTabularExtractor creates a tabular listing extractor
func NewTabularExtractor(env extract.Env) *TabularExtractor {
	return &TabularExtractor{base: base{env: env}}
}

// Name returns the extractor name
func (e *TabularExtractor) Name() string { return "tabular" }

// Kind returns KindTabular
func (e *TabularExtractor) Kind() Kind { return KindTabular }

// Detect looks for table rows or Canvas point lines
func (e *TabularExtractor) Detect(text string) bool {
	lines := extract.Lines(text)
	rows := countMatches(lines, func(s string) bool { return len(cells(s)) >= 2 })
	meta := countMatches(lines, canvasMeta.MatchString)
	return rows >= 3 || meta >= 2
}

// Extract folds the listing; a trailing Canvas block is flushed at the end
func (e *TabularExtractor) Extract(text, course string) extract.Output {
	final, out := extract.Fold(extract.Lines(text), tabularState{}, func(st tabularState, line extract.Line) (tabularState, extract.Output) {
		return e.step(st, line, course)
	})
	_, last := e.flush(final, course)
	out = extract.Merge(out, last)
	return e.complete(KindTabular, text, course, out)
}

func (e *TabularExtractor) step(st tabularState, line extract.Line, course string) (tabularState, extract.Output) {
	if line.Text == "" {
		return e.flush(st, course)
	}

	if row := cells(line.Text); len(row) >= 2 && !allMeta(row) {
		st, out := e.flush(st, course)
		return st, extract.Merge(out, e.row(st, line.Text, row, course))
	}

	if canvasMeta.MatchString(line.Text) {
		if len(st.pending) > 0 {
			st.pending = append(append([]string(nil), st.pending...), line.Text)
		}
		return st, extract.Output{}
	}

	st, out := e.flush(st, course)
	if next, header := st.scope.Advance(line.Text, e.env.Resolver); header {
		st.scope = next
		return st, out
	}
	if !extract.IsNoise(line.Text) {
		st.pending = []string{line.Text}
	}
	return st, out
}

// flush emits the pending Canvas block. A block with due or point lines is
// an explicit match; a bare title needs an explicit rule to count.
func (e *TabularExtractor) flush(st tabularState, course string) (tabularState, extract.Output) {
	block := st.pending
	st.pending = nil
	if len(block) == 0 {
		return st, extract.Output{}
	}

	rule := extract.Rule{Name: "canvas-block", Confidence: extract.ConfidenceExplicit}
	if len(block) == 1 {
		r, ok := extract.FirstMatch(explicitOnly, block[0], e.env)
		if !ok {
			return st, extract.Output{}
		}
		rule = r
	}
	a := extract.BuildBlock(block, rule, st.scope.Date, e.env, course, e.source(KindTabular))
	a.Week = st.scope.Week
	return st, extract.Emit(a, extract.KindAssignment)
}

func (e *TabularExtractor) row(st tabularState, line string, row []string, course string) extract.Output {
	if isHeaderRow(row) {
		return extract.Output{}
	}

	title := ""
	for _, c := range row {
		if c == "" || canvasMeta.MatchString(c) || dates.IsDateHeading(c, e.env.Resolver) || !hasLetter(c) {
			continue
		}
		title = c
		break
	}
	if title == "" || extract.IsNoise(title) {
		return extract.Output{}
	}

	joined := strings.Join(row, " ")
	_, hasPoints := extract.ParsePoints(joined)
	hasDate := e.env.Resolver.Find(joined).OK()

	rule := extract.Rule{Name: "table-row", Confidence: extract.ConfidenceExplicit}
	if !hasPoints && !hasDate {
		r, ok := extract.FirstMatch(extract.DefaultRules, title, e.env)
		if !ok {
			return extract.Output{}
		}
		rule = r
	}

	a := extract.Build(extract.Candidate{
		Line:     joined,
		Excerpt:  line,
		Fallback: st.scope.Date,
		Week:     st.scope.Week,
	}, rule, e.env, course, e.source(KindTabular))
	if !hasPoints {
		// the last bare number column is the point value
		for i := len(row) - 1; i >= 0; i-- {
			if n, ok := bareNumber(row[i]); ok {
				a.Points = &n
				break
			}
		}
	}
	a = extract.Retitle(a, extract.CleanTitle(title, e.env.Resolver.Find(title).Match), rule, e.env)
	return extract.Emit(a, extract.KindAssignment)
}

func cells(line string) []string {
	t := strings.Trim(strings.TrimSpace(line), "|")
	if !strings.Contains(line, "\t") && !strings.Contains(line, " | ") {
		return nil
	}
	parts := cellSplit.Split(t, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func allMeta(row []string) bool {
	for _, c := range row {
		if c != "" && !canvasMeta.MatchString(c) {
			return false
		}
	}
	return true
}

func isHeaderRow(row []string) bool {
	for _, c := range row {
		if !headerCells[strings.ToLower(c)] {
			return false
		}
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

var bareNumberRe = regexp.MustCompile(`^\d{1,4}$`)

func bareNumber(s string) (int, bool) {
	if !bareNumberRe.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
