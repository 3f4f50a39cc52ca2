package dates

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

var (
	weekHeader   = regexp.MustCompile(`(?i)^\s*(?:#+\s*)?(?:week|wk)\.?\s*(\d{1,2})\b(.*)$`)
	headerTrim   = " \t:-–|,.()[]*#"
	bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•▪◦]|\d+[.)])\s+`)
)

// Scope is the contextual date carried from a section header to the lines
// below it. A new header replaces the scope; a header without a date clears
// the carried date.
type Scope struct {
	Header string
	Week   int
	Date   model.Date
}

// Active reports whether the scope carries a date
func (s Scope) Active() bool {
	return !s.Date.IsZero()
}

// Advance folds one line into the scope. It returns the scope in effect for
// the following lines and whether line itself was a header.
func (s Scope) Advance(line string, r *Resolver) (Scope, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return s, false
	}

	if m := weekHeader.FindStringSubmatch(trimmed); m != nil {
		week, _ := strconv.Atoi(m[1])
		next := Scope{Header: trimmed, Week: week}
		if res := r.Find(m[2]); res.OK() {
			next.Date = res.Date
		}
		return next, true
	}

	if IsDateHeading(trimmed, r) {
		res := r.Find(trimmed)
		return Scope{Header: trimmed, Week: s.Week, Date: res.Date}, true
	}
	return s, false
}

// IsDateHeading reports whether line consists of a date and nothing else
// besides separators, e.g. "Monday, May 12:" or "5/12".
func IsDateHeading(line string, r *Resolver) bool {
	trimmed := bulletPrefix.ReplaceAllString(strings.TrimSpace(line), "")
	res := r.Find(trimmed)
	if !res.OK() || res.Form == FormRelative || res.Index != 0 {
		return false
	}
	rest := strings.Trim(trimmed[len(res.Match):], headerTrim)
	return rest == ""
}
