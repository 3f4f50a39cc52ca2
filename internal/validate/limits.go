// Package validate enforces request size limits and turns internal errors
// into messages safe to return to API clients.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/coursework/internal/model"
)

const (
	// MaxDocumentBytes is the maximum size of a document to parse (1MB)
	MaxDocumentBytes = 1 << 20

	// MaxCourseLength is the maximum length of a course name
	MaxCourseLength = 200

	// MaxUserCourses is the maximum number of user courses used for inference
	MaxUserCourses = 50
)

var (
	ErrEmptyDocument    = errors.New("document text is empty")
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")
	ErrNotUTF8          = errors.New("document is not valid UTF-8")
	ErrCourseTooLong    = errors.New("course exceeds maximum length")
	ErrTooManyCourses   = errors.New("user courses exceed maximum count")
)

// ParseRequest validates the inputs of one parse. Every error carries
// model.ErrInvalidInput.
func ParseRequest(text, course string, userCourses []string) error {
	if strings.TrimSpace(text) == "" {
		return invalid(ErrEmptyDocument)
	}
	if len(text) > MaxDocumentBytes {
		return invalid(fmt.Errorf("%w: %d bytes (max %d)", ErrDocumentTooLarge, len(text), MaxDocumentBytes))
	}
	if !utf8.ValidString(text) {
		return invalid(ErrNotUTF8)
	}
	if len(course) > MaxCourseLength {
		return invalid(fmt.Errorf("%w: %d characters (max %d)", ErrCourseTooLong, len(course), MaxCourseLength))
	}
	if len(userCourses) > MaxUserCourses {
		return invalid(fmt.Errorf("%w: %d (max %d)", ErrTooManyCourses, len(userCourses), MaxUserCourses))
	}
	for _, c := range userCourses {
		if len(c) > MaxCourseLength {
			return invalid(fmt.Errorf("%w: %d characters (max %d)", ErrCourseTooLong, len(c), MaxCourseLength))
		}
	}
	return nil
}

func invalid(err error) error {
	return model.WrapError(model.ErrInvalidInput, "validate", err)
}
