package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/coursework/internal/model"
)

// minTextLength is the shortest title kept in a final result
const minTextLength = 4

// PostProcess applies the final invariants: titles longer than three
// characters, bounded confidence and hours, a course on every record, and
// no past due dates. A past date is replaced with today plus fallbackDays
// and reported as a warning.
func PostProcess(in []model.Assignment, today time.Time, fallbackDays int, course string) ([]model.Assignment, []string) {
	if course == "" {
		course = model.UnknownCourse
	}
	if fallbackDays <= 0 {
		fallbackDays = 7
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	fallback := model.NewDate(day.AddDate(0, 0, fallbackDays))

	out := make([]model.Assignment, 0, len(in))
	var warnings []string
	for _, a := range in {
		a.Text = strings.TrimSpace(a.Text)
		if len(a.Text) < minTextLength {
			continue
		}
		if a.Course == "" || a.Course == model.UnknownCourse {
			a.Course = course
		}
		a.Confidence = model.ClampConfidence(a.Confidence)
		a.Hours = model.ClampHours(a.Hours)
		if !a.Date.IsZero() && a.Date.Before(day) {
			warnings = append(warnings, fmt.Sprintf("%q was due %s (in the past); moved to %s", a.Text, a.Date, fallback))
			a.Date = fallback
		}
		out = append(out, a)
	}
	return out, warnings
}
