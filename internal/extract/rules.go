// Package extract holds the machinery shared by the document-shape
// extractors: normalization, ordered line rules, field parsing and the
// recovery sweep.
package extract

import (
	"regexp"
	"strings"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/domain"
	"github.com/ppiankov/coursework/internal/model"
)

// Local confidence per rule family.
const (
	ConfidenceExplicit = 0.85
	ConfidenceGeneric  = 0.7
	ConfidenceRecovery = 0.6
)

// Env is the per-parse context every extractor works with
type Env struct {
	Config   domain.Config
	Resolver *dates.Resolver
}

// Output is what one extractor produces for a document
type Output struct {
	Assignments []model.Assignment
	Modules     []model.Module
	Events      []model.Assignment
}

// Line is one line of normalized text
type Line struct {
	Number int
	Text   string
}

// Lines splits normalized text into numbered lines
func Lines(text string) []Line {
	raw := strings.Split(text, "\n")
	out := make([]Line, len(raw))
	for i, l := range raw {
		out[i] = Line{Number: i, Text: strings.TrimSpace(l)}
	}
	return out
}

// RuleKind distinguishes deliverables from calendar events
type RuleKind int

const (
	KindAssignment RuleKind = iota
	KindEvent
)

// Rule is one entry of an extractor's ordered rule list
type Rule struct {
	Name       string
	Kind       RuleKind
	Confidence float64
	match      func(line string, env Env) bool
}

// Matches reports whether the rule accepts line
func (r Rule) Matches(line string, env Env) bool {
	return r.match(line, env)
}

// FirstMatch returns the first rule accepting line. Later rules are never
// consulted once one matches.
func FirstMatch(rules []Rule, line string, env Env) (Rule, bool) {
	if strings.TrimSpace(line) == "" {
		return Rule{}, false
	}
	for _, r := range rules {
		if r.Matches(line, env) {
			return r, true
		}
	}
	return Rule{}, false
}

var (
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•▪◦·]|\d+[.)]|[a-z][.)])\s+`)

	numberedItem = regexp.MustCompile(`(?i)^(?:[-*•▪◦·]\s*)?(?:module\s+\d+\s+)?(quiz|exam|test|midterm|lab|homework|hw|assignment|project|paper|essay|discussion|case study|simulation|clinical|presentation|problem set|pset|journal|reflection|worksheet|milestone)\s*#?\s*\d+[a-z]?\s*[:.)\-]`)

	dueWord = regexp.MustCompile(`(?i)\bdue\b`)

	eventLine = regexp.MustCompile(`(?i)^(?:[-*•▪◦·]\s*)?(?:[^:]{0,40}:\s*)?(no class(?:es)?|class(?:es)? cancell?ed|holiday|spring break|fall break|winter break|thanksgiving|reading day|study day|lecture|office hours|orientation|last day of class(?:es)?|first day of class(?:es)?)\b`)

	sectionHeader = regexp.MustCompile(`(?i)^(?:[-*•]\s*)?(?:assignments?|readings?|homework|quizzes|exams?|discussions?|projects?|papers?|labs?|to do|due dates?|upcoming|course schedule|schedule|grading|resources)\s*:?$`)

	gradingWeight = regexp.MustCompile(`\d+(?:\.\d+)?\s*%`)
)

// Rules shared by the extractors, in priority order.
var (
	// EventRule matches non-deliverable calendar entries
	EventRule = Rule{Name: "event", Kind: KindEvent, Confidence: ConfidenceExplicit, match: func(line string, _ Env) bool {
		return eventLine.MatchString(line)
	}}

	// NumberedRule matches explicit items such as "Quiz 3:" or "Lab 2 -"
	NumberedRule = Rule{Name: "numbered", Confidence: ConfidenceExplicit, match: func(line string, _ Env) bool {
		return numberedItem.MatchString(line)
	}}

	// DomainPatternRule matches the domain's own type patterns (e.g. HESI)
	DomainPatternRule = Rule{Name: "domain-pattern", Confidence: ConfidenceExplicit, match: func(line string, env Env) bool {
		if IsNoise(line) {
			return false
		}
		for _, p := range env.Config.Patterns {
			if p.Pattern.MatchString(line) {
				return true
			}
		}
		return false
	}}

	// DueClauseRule matches any line carrying "due" and a resolvable date
	DueClauseRule = Rule{Name: "due-clause", Confidence: ConfidenceExplicit, match: func(line string, env Env) bool {
		if !dueWord.MatchString(line) || IsNoise(line) {
			return false
		}
		return env.Resolver.Find(line).OK()
	}}

	// BulletKeywordRule matches bullet items containing an assignment keyword
	BulletKeywordRule = Rule{Name: "bullet-keyword", Confidence: ConfidenceGeneric, match: func(line string, env Env) bool {
		if !bulletPrefix.MatchString(line) || IsNoise(line) {
			return false
		}
		_, ok := env.Config.HasKeyword(line)
		return ok
	}}

	// KeywordRule matches any line containing an assignment keyword
	KeywordRule = Rule{Name: "keyword", Confidence: ConfidenceGeneric, match: func(line string, env Env) bool {
		if IsNoise(line) {
			return false
		}
		_, ok := env.Config.HasKeyword(line)
		return ok
	}}
)

// DefaultRules is the full ordered list: explicit patterns before generic fallbacks.
var DefaultRules = []Rule{NumberedRule, DomainPatternRule, DueClauseRule, BulletKeywordRule, KeywordRule}

// IsNoise reports lines that look like coursework but are section headers or
// grading-policy rows.
func IsNoise(line string) bool {
	t := strings.TrimSpace(line)
	if len(t) <= 3 || sectionHeader.MatchString(t) {
		return true
	}
	if gradingWeight.MatchString(t) && !dueWord.MatchString(t) {
		return true
	}
	return false
}

// IsEvent reports whether line names a calendar event rather than a deliverable
func IsEvent(line string) bool {
	return eventLine.MatchString(line) && !numberedItem.MatchString(line)
}
