package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/model"
)

var (
	pointsInline  = regexp.MustCompile(`(?i)\b(\d{1,4})\s*(?:pts?|points?)\b`)
	pointsLabeled = regexp.MustCompile(`(?i)\bpoints?\s*(?:possible)?\s*:\s*(\d{1,4})\b`)
	pointsStrip   = regexp.MustCompile(`(?i)[(\[]?\s*\b\d{1,4}\s*(?:pts?|points?)\b\.?\s*[)\]]?|\bpoints?\s*(?:possible)?\s*:\s*\d{1,4}\b`)

	clockTime = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)`)
	namedTime = regexp.MustCompile(`(?i)\b(noon|midnight)\b`)
	timeStrip = regexp.MustCompile(`(?i)\s*(?:\bat\b|\bby\b|@)?\s*(?:\b\d{1,2}(?::\d{2})?\s*(?:am|pm|a\.m\.|p\.m\.)|\b(?:noon|midnight)\b)`)

	dueStrip      = regexp.MustCompile(`(?i)\s*[-,;|(\[]*\s*\bdue(?:\s+date)?\b\s*:?\s*(?:\b(?:by|on)\b)?`)
	emptyBrackets = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
	danglingVerb  = regexp.MustCompile(`(?i)\s+(?:is|are|will be|must be|should be)$`)
	multiSpace    = regexp.MustCompile(`\s{2,}`)
)

const titleTrim = " \t-:,;|/"

// ParsePoints returns the point value named in text, if any
func ParsePoints(text string) (*int, bool) {
	m := pointsInline.FindStringSubmatch(text)
	if m == nil {
		m = pointsLabeled.FindStringSubmatch(text)
	}
	if m == nil {
		return nil, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	return model.IntPtr(v), true
}

// ParseDueTime returns a 24-hour "HH:MM" due time named in text
func ParseDueTime(text string) (string, bool) {
	if m := clockTime.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins := 0
		if m[2] != "" {
			mins, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mins > 59 {
			return "", false
		}
		pm := strings.HasPrefix(strings.ToLower(m[3]), "p")
		switch {
		case pm && h != 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		return fmt.Sprintf("%02d:%02d", h, mins), true
	}
	if m := namedTime.FindStringSubmatch(text); m != nil {
		if strings.EqualFold(m[1], "noon") {
			return "12:00", true
		}
		return "23:59", true
	}
	return "", false
}

// CleanTitle strips bullets, the matched date phrase, due wording, times and
// point values from line, leaving the human-readable description.
func CleanTitle(line, dateMatch string) string {
	t := bulletPrefix.ReplaceAllString(strings.TrimSpace(line), "")
	if dateMatch != "" {
		t = strings.Replace(t, dateMatch, " ", 1)
		t = dueStrip.ReplaceAllString(t, " ")
	}
	t = timeStrip.ReplaceAllString(t, " ")
	t = pointsStrip.ReplaceAllString(t, " ")
	t = emptyBrackets.ReplaceAllString(t, " ")
	t = strings.ReplaceAll(t, "\t", " ")
	t = multiSpace.ReplaceAllString(t, " ")
	t = strings.TrimRight(strings.Trim(t, titleTrim), " .")
	if dateMatch != "" {
		t = danglingVerb.ReplaceAllString(t, "")
	}
	return t
}

// FindDue resolves the date following a "due" word when there is one,
// otherwise the first date in line. Canvas rows often name an availability
// date before the due date.
func FindDue(line string, env Env) dates.Resolution {
	if loc := dueWord.FindStringIndex(line); loc != nil {
		if res := env.Resolver.Find(line[loc[0]:]); res.OK() {
			res.Index += loc[0]
			return res
		}
	}
	return env.Resolver.Find(line)
}

// Candidate is the raw material for one assignment
type Candidate struct {
	Line     string     // text used for title, points and time
	Excerpt  string     // verbatim source excerpt (may span lines)
	Fallback model.Date // scope date used when the line has none
	Week     int
	Module   int
}

// Build turns a matched candidate into an assignment
func Build(c Candidate, rule Rule, env Env, course, source string) model.Assignment {
	res := FindDue(c.Line, env)
	date := c.Fallback
	match := ""
	if res.OK() {
		date = res.Date
		match = res.Match
	}

	title := CleanTitle(c.Line, match)
	if title == "" {
		title = strings.TrimSpace(c.Line)
	}

	typ := env.Config.DetermineType(title)
	if rule.Kind == KindEvent {
		typ = model.TypeOther
	}

	a := model.Assignment{
		ID:            uuid.NewString(),
		Text:          title,
		Date:          date,
		Type:          typ,
		Hours:         env.Config.EstimateHours(typ),
		Course:        course,
		Confidence:    model.ClampConfidence(rule.Confidence),
		Source:        source,
		Week:          c.Week,
		Module:        c.Module,
		ExtractedFrom: c.Excerpt,
	}
	if a.ExtractedFrom == "" {
		a.ExtractedFrom = c.Line
	}
	if p, ok := ParsePoints(c.Line); ok {
		a.Points = p
	}
	timeSrc := c.Line
	if loc := dueWord.FindStringIndex(c.Line); loc != nil {
		timeSrc = c.Line[loc[0]:]
	}
	if t, ok := ParseDueTime(timeSrc); ok {
		a.DueTime = t
	} else if t, ok := ParseDueTime(c.Line); ok {
		a.DueTime = t
	}
	return a
}
