package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Confidence and effort bounds applied to every assignment leaving the pipeline.
const (
	MinConfidence = 0.1
	MaxConfidence = 0.95
	MinHours      = 0.25
	MaxHours      = 8.0

	UnknownCourse = "unknown"
)

// Assignment is a single piece of coursework extracted from a document
type Assignment struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Date          Date           `json:"date"`
	DueTime       string         `json:"dueTime,omitempty"`
	Type          AssignmentType `json:"type"`
	Hours         float64        `json:"hours"`
	Points        *int           `json:"points,omitempty"`
	Course        string         `json:"course"`
	Confidence    float64        `json:"confidence"`
	Source        string         `json:"source"`
	Week          int            `json:"week,omitempty"`
	Module        int            `json:"module,omitempty"`
	Validated     bool           `json:"validated,omitempty"`
	ExtractedFrom string         `json:"-"`
}

// HasPoints reports whether a point value was captured
func (a Assignment) HasPoints() bool {
	return a.Points != nil
}

// IntPtr returns a pointer to v (used for optional points)
func IntPtr(v int) *int {
	return &v
}

// ClampConfidence bounds c to [MinConfidence, MaxConfidence]
func ClampConfidence(c float64) float64 {
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// ClampHours bounds h to [MinHours, MaxHours]
func ClampHours(h float64) float64 {
	if h < MinHours {
		return MinHours
	}
	if h > MaxHours {
		return MaxHours
	}
	return h
}

// AssignmentType is the closed-but-extensible vocabulary of coursework kinds
type AssignmentType string

const (
	TypeAssignment   AssignmentType = "assignment"
	TypeQuiz         AssignmentType = "quiz"
	TypeExam         AssignmentType = "exam"
	TypeReading      AssignmentType = "reading"
	TypeVideo        AssignmentType = "video"
	TypeDiscussion   AssignmentType = "discussion"
	TypeClinical     AssignmentType = "clinical"
	TypeLab          AssignmentType = "lab"
	TypeProject      AssignmentType = "project"
	TypePaper        AssignmentType = "paper"
	TypePresentation AssignmentType = "presentation"
	TypeSimulation   AssignmentType = "simulation"
	TypePreparation  AssignmentType = "preparation"
	TypeCaseStudy    AssignmentType = "case-study"
	TypeHomework     AssignmentType = "homework"
	TypeOther        AssignmentType = "other"
)

var knownTypes = map[AssignmentType]bool{
	TypeAssignment: true, TypeQuiz: true, TypeExam: true, TypeReading: true,
	TypeVideo: true, TypeDiscussion: true, TypeClinical: true, TypeLab: true,
	TypeProject: true, TypePaper: true, TypePresentation: true, TypeSimulation: true,
	TypePreparation: true, TypeCaseStudy: true, TypeHomework: true, TypeOther: true,
}

// ParseAssignmentType maps free-form type names (as returned by a language model
// or an override file) onto the vocabulary, defaulting to TypeAssignment.
func ParseAssignmentType(s string) AssignmentType {
	t := AssignmentType(strings.ToLower(strings.TrimSpace(s)))
	t = AssignmentType(strings.ReplaceAll(string(t), " ", "-"))
	switch t {
	case "case_study", "casestudy":
		return TypeCaseStudy
	case "test", "midterm", "final":
		return TypeExam
	case "hw":
		return TypeHomework
	case "essay":
		return TypePaper
	case "prep":
		return TypePreparation
	}
	if knownTypes[t] {
		return t
	}
	return TypeAssignment
}

// IsKnown reports whether t is part of the built-in vocabulary
func (t AssignmentType) IsKnown() bool {
	return knownTypes[t]
}

// DateLayout is the ISO calendar layout used for Date values
const DateLayout = "2006-01-02"

// Date is an ISO calendar date (YYYY-MM-DD); the zero value means unresolved
// and serializes as JSON null.
type Date string

// NewDate formats t as a Date
func NewDate(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// IsZero reports whether the date is unresolved
func (d Date) IsZero() bool {
	return d == ""
}

// Time parses the date; ok is false for unresolved or malformed values
func (d Date) Time() (time.Time, bool) {
	if d == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Before reports whether d falls on an earlier calendar day than t
func (d Date) Before(t time.Time) bool {
	dt, ok := d.Time()
	if !ok {
		return false
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return dt.Before(day)
}

func (d Date) String() string {
	return string(d)
}

// MarshalJSON renders unresolved dates as null
func (d Date) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts null, empty strings and ISO dates
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = Date(strings.TrimSpace(s))
	return nil
}

// Module is a structural unit (module or week block) discovered while scanning
type Module struct {
	Number        int      `json:"number"`
	Title         string   `json:"title"`
	Course        string   `json:"course"`
	Chapters      []string `json:"chapters,omitempty"`
	KeyTopics     []string `json:"keyTopics,omitempty"`
	AssignmentIDs []string `json:"assignmentIds"`
}

// WithChapters returns a copy of m with chapters appended
func (m *Module) WithChapters(chapters ...string) *Module {
	c := m.clone()
	c.Chapters = append(c.Chapters, chapters...)
	return c
}

// WithTopics returns a copy of m with key topics appended
func (m *Module) WithTopics(topics ...string) *Module {
	c := m.clone()
	c.KeyTopics = append(c.KeyTopics, topics...)
	return c
}

// WithAssignment returns a copy of m linked to one more assignment
func (m *Module) WithAssignment(id string) *Module {
	c := m.clone()
	c.AssignmentIDs = append(c.AssignmentIDs, id)
	return c
}

func (m *Module) clone() *Module {
	c := *m
	c.Chapters = append([]string(nil), m.Chapters...)
	c.KeyTopics = append([]string(nil), m.KeyTopics...)
	c.AssignmentIDs = append([]string(nil), m.AssignmentIDs...)
	return &c
}

// PruneModuleLinks drops module links to assignments that are not in the final set
func PruneModuleLinks(modules []Module, assignments []Assignment) []Module {
	if len(modules) == 0 {
		return modules
	}
	live := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		live[a.ID] = struct{}{}
	}
	out := make([]Module, len(modules))
	for i, m := range modules {
		c := m.clone()
		ids := c.AssignmentIDs[:0]
		for _, id := range c.AssignmentIDs {
			if _, ok := live[id]; ok {
				ids = append(ids, id)
			}
		}
		c.AssignmentIDs = ids
		out[i] = *c
	}
	return out
}
