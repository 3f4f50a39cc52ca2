package pipeline

import (
	"regexp"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// courseCode matches a leading catalogue code such as "NURS 210" or "CS-101L"
var courseCode = regexp.MustCompile(`^([A-Za-z]{2,5})[\s\-]*(\d{2,4}[A-Za-z]?)\b`)

// InferCourse returns course when set. Otherwise it returns the first user
// course whose code or full name appears in text, else "unknown".
func InferCourse(course string, userCourses []string, text string) string {
	if c := strings.TrimSpace(course); c != "" {
		return c
	}
	lower := strings.ToLower(text)
	for _, uc := range userCourses {
		uc = strings.TrimSpace(uc)
		if uc == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(uc)) {
			return uc
		}
		if m := courseCode.FindStringSubmatch(uc); m != nil {
			re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(m[1]) + `[\s\-]*` + regexp.QuoteMeta(m[2]) + `\b`)
			if re.MatchString(text) {
				return uc
			}
		}
	}
	return model.UnknownCourse
}
