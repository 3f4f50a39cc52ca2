package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/coursework/internal/extract"
	"github.com/ppiankov/coursework/internal/model"
)

// CleanResponse strips markdown fences and surrounding prose, returning the
// outermost JSON object or array in raw
func CleanResponse(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	objStart, arrStart := strings.IndexByte(s, '{'), strings.IndexByte(s, '[')
	open, closer := objStart, byte('}')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		open, closer = arrStart, ']'
	}
	if open < 0 {
		return s
	}
	end := strings.LastIndexByte(s, closer)
	if end <= open {
		return s[open:]
	}
	return s[open : end+1]
}

// Fragment is an assignment recovered from a malformed response
type Fragment struct {
	ID   string
	Text string
	Date string
}

var (
	textField = regexp.MustCompile(`"text"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	dateField = regexp.MustCompile(`"date"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	idField   = regexp.MustCompile(`"id"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Salvage scans a response that failed to parse for "text": "..." fields
// and the id and date fields of the same object
func Salvage(raw string) []Fragment {
	matches := textField.FindAllStringSubmatchIndex(raw, -1)
	out := make([]Fragment, 0, len(matches))
	prevEnd := 0
	for i, m := range matches {
		nextStart := len(raw)
		if i+1 < len(matches) {
			nextStart = matches[i+1][0]
		}

		objStart := prevEnd
		if b := strings.LastIndexByte(raw[prevEnd:m[0]], '{'); b >= 0 {
			objStart = prevEnd + b
		}
		objEnd := nextStart
		if b := strings.IndexByte(raw[m[1]:nextStart], '}'); b >= 0 {
			objEnd = m[1] + b
		}
		window := raw[objStart:objEnd]
		prevEnd = objEnd

		text := strings.TrimSpace(unquote(raw[m[2]:m[3]]))
		if len(text) <= 3 {
			continue
		}
		f := Fragment{Text: text}
		if d := dateField.FindStringSubmatch(window); d != nil {
			f.Date = unquote(d[1])
		}
		if id := idField.FindStringSubmatch(window); id != nil {
			f.ID = unquote(id[1])
		}
		out = append(out, f)
	}
	return out
}

func unquote(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

// flexNumber accepts numbers, numeric strings ("25", "25 pts") and null
type flexNumber struct {
	value float64
	set   bool
}

var leadingNumber = regexp.MustCompile(`^-?\d+(?:\.\d+)?`)

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		n.value, n.set = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if m := leadingNumber.FindString(strings.TrimSpace(s)); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			n.value, n.set = f, true
		}
	}
	return nil
}

func (n flexNumber) positiveInt() (int, bool) {
	if !n.set || n.value <= 0 {
		return 0, false
	}
	return int(n.value + 0.5), true
}

// wireAssignment is the assignment shape the prompts ask for
type wireAssignment struct {
	ID         string     `json:"id,omitempty"`
	Text       string     `json:"text"`
	Date       string     `json:"date"`
	DueTime    string     `json:"dueTime"`
	Type       string     `json:"type"`
	Hours      flexNumber `json:"hours"`
	Points     flexNumber `json:"points"`
	Week       flexNumber `json:"week"`
	Module     flexNumber `json:"module"`
	Confidence flexNumber `json:"confidence"`
}

type remainderPayload struct {
	Assignments []wireAssignment `json:"assignments"`
}

type validationPayload struct {
	Validated  []wireAssignment `json:"validated"`
	InvalidIDs []string         `json:"invalidIds"`
	Discovered []wireAssignment `json:"discovered"`
}

func decodeRemainder(content string) (remainderPayload, error) {
	cleaned := CleanResponse(content)
	var p remainderPayload
	if strings.HasPrefix(cleaned, "[") {
		err := json.Unmarshal([]byte(cleaned), &p.Assignments)
		return p, err
	}
	err := json.Unmarshal([]byte(cleaned), &p)
	return p, err
}

func decodeValidation(content string) (validationPayload, error) {
	var p validationPayload
	err := json.Unmarshal([]byte(CleanResponse(content)), &p)
	return p, err
}

// normalizer turns wire records into assignments using the parse's
// vocabulary and date resolver
type normalizer struct {
	env    extract.Env
	course string
}

func (n normalizer) assignment(w wireAssignment, source string, fallbackConfidence float64) (model.Assignment, bool) {
	text := strings.Join(strings.Fields(w.Text), " ")
	if len(text) <= 3 {
		return model.Assignment{}, false
	}

	a := model.Assignment{
		ID:     newID(),
		Text:   text,
		Date:   n.date(w.Date),
		Course: n.course,
		Source: source,
	}
	if a.Course == "" {
		a.Course = model.UnknownCourse
	}

	a.Type = n.env.Config.DetermineType(text)
	if strings.TrimSpace(w.Type) != "" {
		a.Type = model.ParseAssignmentType(w.Type)
	}
	a.Hours = n.env.Config.EstimateHours(a.Type)
	if w.Hours.set && w.Hours.value > 0 {
		a.Hours = model.ClampHours(w.Hours.value)
	}
	if p, ok := w.Points.positiveInt(); ok {
		a.Points = model.IntPtr(p)
	}
	if t, ok := dueTime(w.DueTime); ok {
		a.DueTime = t
	}
	if wk, ok := w.Week.positiveInt(); ok {
		a.Week = wk
	}
	if m, ok := w.Module.positiveInt(); ok {
		a.Module = m
	}

	conf := fallbackConfidence
	if w.Confidence.set && w.Confidence.value > 0 && w.Confidence.value <= 1 {
		conf = w.Confidence.value
	}
	a.Confidence = model.ClampConfidence(conf)
	return a, true
}

func (n normalizer) fragment(f Fragment, source string) (model.Assignment, bool) {
	return n.assignment(wireAssignment{Text: f.Text, Date: f.Date}, source, ConfidenceSalvaged)
}

// enrich applies a validation record to the candidate it confirms. The
// candidate keeps its id; fields the model left empty keep their values.
func (n normalizer) enrich(orig model.Assignment, w wireAssignment) model.Assignment {
	a := orig
	if text := strings.Join(strings.Fields(w.Text), " "); len(text) > 3 {
		a.Text = text
	}
	if d := n.date(w.Date); !d.IsZero() {
		a.Date = d
	}
	if strings.TrimSpace(w.Type) != "" {
		if t := model.ParseAssignmentType(w.Type); t != a.Type {
			a.Type = t
			a.Hours = n.env.Config.EstimateHours(t)
		}
	}
	if w.Hours.set && w.Hours.value > 0 {
		a.Hours = model.ClampHours(w.Hours.value)
	}
	if p, ok := w.Points.positiveInt(); ok {
		a.Points = model.IntPtr(p)
	}
	if t, ok := dueTime(w.DueTime); ok {
		a.DueTime = t
	}
	if wk, ok := w.Week.positiveInt(); ok && a.Week == 0 {
		a.Week = wk
	}
	if m, ok := w.Module.positiveInt(); ok && a.Module == 0 {
		a.Module = m
	}

	conf := ConfidenceValidated
	if w.Confidence.set && w.Confidence.value > 0 && w.Confidence.value <= 1 {
		conf = w.Confidence.value
	}
	if orig.Confidence > conf {
		conf = orig.Confidence
	}
	a.Confidence = model.ClampConfidence(conf)
	a.Validated = true
	a.Source = SourceValidated
	return a
}

// date accepts ISO dates (optionally with a time part) and falls back to
// the resolver for phrases like "May 12"
func (n normalizer) date(s string) model.Date {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	if len(s) >= 10 {
		if t, err := time.Parse(model.DateLayout, s[:10]); err == nil {
			return model.NewDate(t)
		}
	}
	if n.env.Resolver == nil {
		return ""
	}
	if res := n.env.Resolver.Resolve(s); res.OK() {
		return res.Date
	}
	return ""
}

var clockTime = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// dueTime accepts the 24-hour HH:MM form the prompts ask for, then any
// phrasing the extractors understand ("11:59 pm", "noon").
func dueTime(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if m := clockTime.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if h <= 23 && minute <= 59 {
			return fmt.Sprintf("%02d:%02d", h, minute), true
		}
		return "", false
	}
	return extract.ParseDueTime(s)
}
