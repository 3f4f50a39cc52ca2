// Package dates resolves heterogeneous date phrases into ISO calendar dates.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/model"
)

// Form records which rule produced a resolution
type Form int

const (
	FormUnresolved Form = iota
	FormMonthDay
	FormNumeric
	FormWeekdayPrefixed
	FormRelative
)

func (f Form) String() string {
	switch f {
	case FormMonthDay:
		return "month-day"
	case FormNumeric:
		return "numeric"
	case FormWeekdayPrefixed:
		return "weekday-prefixed"
	case FormRelative:
		return "relative"
	}
	return "unresolved"
}

// Resolution is the outcome of resolving one expression. A miss is a
// Resolution with Form == FormUnresolved, never an error.
type Resolution struct {
	Date   model.Date
	Form   Form
	Match  string // text that produced the date
	Index  int    // byte offset of Match (Find only)
	InYear bool   // the year was explicit in the text
}

// OK reports whether a date was resolved
func (r Resolution) OK() bool {
	return r.Form != FormUnresolved && !r.Date.IsZero()
}

const (
	monthExpr   = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`
	weekdayExpr = `mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?`
)

var (
	monthDayStart = regexp.MustCompile(`^(` + monthExpr + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	numericStart  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	weekdayPrefix = regexp.MustCompile(`^(?:` + weekdayExpr + `)\.?,?\s+`)
	relativeStart = regexp.MustCompile(`^(tomorrow|today|next week|this week|end of (?:the )?week|(?:next\s+)?(?:` + weekdayExpr + `))\b`)
	leadingNoise  = regexp.MustCompile(`^(?:due(?:\s*date)?|by|on|date)\b\s*:?\s*`)

	monthDayAny = regexp.MustCompile(`(?i)\b(?:(?:` + weekdayExpr + `)\.?,?\s+)?(?:` + monthExpr + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?\b(?:,?\s+\d{4}\b)?`)
	numericAny  = regexp.MustCompile(`(?i)\b(?:(?:` + weekdayExpr + `)\.?,?\s+)?\d{1,2}/\d{1,2}(?:/(?:\d{4}|\d{2}))?\b`)
	relativeAny = regexp.MustCompile(`(?i)\b(?:due|by|on)\s*:?\s+(tomorrow|today|next week|this week|end of (?:the )?week|(?:next\s+)?(?:` + weekdayExpr + `))\b`)
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdayByPrefix = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Resolver turns date phrases into calendar dates relative to a clock and a
// default year. It holds no per-document state and is safe to share.
type Resolver struct {
	defaultYear   int
	now           func() time.Time
	semesterStart time.Time
	semesterEnd   time.Time
	logger        *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithDefaultYear sets the year used for expressions without one
func WithDefaultYear(year int) Option {
	return func(r *Resolver) { r.defaultYear = year }
}

// WithClock sets the reference clock for relative expressions
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSemester sets bounds outside which resolved dates are logged
func WithSemester(start, end time.Time) Option {
	return func(r *Resolver) { r.semesterStart, r.semesterEnd = start, end }
}

// WithLogger sets the logger used for bound warnings
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver. Without WithDefaultYear the clock's year is used.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.defaultYear == 0 {
		r.defaultYear = r.now().Year()
	}
	return r
}

// DefaultYear returns the year applied to year-less expressions
func (r *Resolver) DefaultYear() int {
	return r.defaultYear
}

// Today returns the clock's current calendar day at UTC midnight
func (r *Resolver) Today() time.Time {
	n := r.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// Resolve interprets expr as a date. Attempts run in order: Month Day[, Year],
// MM/DD[/YY], weekday-prefixed forms of both, then relative phrases.
func (r *Resolver) Resolve(expr string) Resolution {
	e := strings.ToLower(strings.TrimSpace(expr))
	e = leadingNoise.ReplaceAllString(e, "")
	e = strings.TrimLeft(e, " ,:-")

	if res, ok := r.explicit(e); ok {
		return r.checked(res)
	}
	if loc := weekdayPrefix.FindStringIndex(e); loc != nil {
		if res, ok := r.explicit(e[loc[1]:]); ok {
			res.Form = FormWeekdayPrefixed
			res.Match = e[:loc[1]] + res.Match
			return r.checked(res)
		}
	}
	if m := relativeStart.FindString(e); m != "" {
		if d, ok := r.relative(m); ok {
			return r.checked(Resolution{Date: model.NewDate(d), Form: FormRelative, Match: m})
		}
	}
	return Resolution{Form: FormUnresolved}
}

// Find locates the earliest date expression inside text and resolves it.
// Relative phrases are positioned by the phrase itself, not by the "due" or
// "on" that introduces them, so an explicit date starting at the same word
// wins.
func (r *Resolver) Find(text string) Resolution {
	best := Resolution{Form: FormUnresolved, Index: -1}
	bestPos := -1
	consider := func(re *regexp.Regexp, group int) {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[0], loc[1]
			pos := start
			phrase := text[start:end]
			if group > 0 && loc[2*group] >= 0 {
				pos = loc[2*group]
				phrase = text[loc[2*group]:loc[2*group+1]]
			}
			if bestPos >= 0 && pos >= bestPos {
				return
			}
			res := r.Resolve(phrase)
			if !res.OK() {
				continue
			}
			res.Index = start
			res.Match = text[start:end]
			best, bestPos = res, pos
			return
		}
	}
	consider(monthDayAny, 0)
	consider(numericAny, 0)
	consider(relativeAny, 1)
	return best
}

func (r *Resolver) explicit(e string) (Resolution, bool) {
	if m := monthDayStart.FindStringSubmatch(e); m != nil {
		month := monthByPrefix[m[1][:3]]
		day, _ := strconv.Atoi(m[2])
		year, inYear := r.defaultYear, false
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			inYear = true
		}
		if d, ok := civil(year, month, day); ok {
			return Resolution{Date: model.NewDate(d), Form: FormMonthDay, Match: m[0], InYear: inYear}, true
		}
		return Resolution{}, false
	}
	if m := numericStart.FindStringSubmatch(e); m != nil {
		mon, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, inYear := r.defaultYear, false
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if len(m[3]) == 2 {
				year += 2000
			}
			inYear = true
		}
		if mon < 1 || mon > 12 {
			return Resolution{}, false
		}
		if d, ok := civil(year, time.Month(mon), day); ok {
			return Resolution{Date: model.NewDate(d), Form: FormNumeric, Match: m[0], InYear: inYear}, true
		}
	}
	return Resolution{}, false
}

func (r *Resolver) relative(phrase string) (time.Time, bool) {
	today := r.Today()
	switch {
	case phrase == "today":
		return today, true
	case phrase == "tomorrow":
		return today.AddDate(0, 0, 1), true
	case phrase == "next week":
		return today.AddDate(0, 0, 7), true
	case phrase == "this week" || strings.HasPrefix(phrase, "end of"):
		return nextWeekday(today, time.Friday), true
	}
	name := strings.TrimSpace(strings.TrimPrefix(phrase, "next"))
	if len(name) >= 3 {
		if wd, ok := weekdayByPrefix[name[:3]]; ok {
			return nextWeekday(today, wd), true
		}
	}
	return time.Time{}, false
}

// nextWeekday returns the first day strictly after from that falls on wd
func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(from.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return from.AddDate(0, 0, ahead)
}

func civil(year int, month time.Month, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// checked logs dates outside the semester but always keeps them
func (r *Resolver) checked(res Resolution) Resolution {
	if r.semesterStart.IsZero() && r.semesterEnd.IsZero() {
		return res
	}
	t, ok := res.Date.Time()
	if !ok {
		return res
	}
	if (!r.semesterStart.IsZero() && t.Before(r.semesterStart)) || (!r.semesterEnd.IsZero() && t.After(r.semesterEnd)) {
		r.logger.Warn("date outside semester bounds",
			zap.String("date", res.Date.String()),
			zap.String("expression", res.Match),
			zap.Time("semester_start", r.semesterStart),
			zap.Time("semester_end", r.semesterEnd),
		)
	}
	return res
}
