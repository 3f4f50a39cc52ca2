package validate

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/model"
)

// clientSafePatterns maps error patterns to client-safe messages
var clientSafePatterns = []struct {
	pattern string
	message string
}{
	{"rate limit", "rate limit exceeded"},
	{"timed out", "request timed out"},
	{"timeout", "request timed out"},
	{"context deadline", "request timed out"},
	{"context canceled", "request cancelled"},
	{"robots.txt", "fetching this URL is disallowed by robots.txt"},
	{"unexpected status", "document could not be fetched"},
	{"not found", "resource not found"},
}

// inputMessages are the input errors whose text is safe to show verbatim
var inputMessages = []error{
	ErrEmptyDocument,
	ErrDocumentTooLarge,
	ErrNotUTF8,
	ErrCourseTooLong,
	ErrTooManyCourses,
}

// SanitizeForClient converts internal errors to client-safe messages. The
// full error is logged at debug level.
func SanitizeForClient(err error, logger *zap.Logger) string {
	if err == nil {
		return ""
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, known := range inputMessages {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if model.IsKind(err, model.ErrInvalidInput) {
		return "invalid input"
	}

	lower := strings.ToLower(err.Error())
	for _, p := range clientSafePatterns {
		if strings.Contains(lower, p.pattern) {
			logger.Debug("sanitizing error for client",
				zap.String("original", err.Error()),
				zap.String("sanitized", p.message),
			)
			return p.message
		}
	}

	logger.Error("internal error (sanitized for client)", zap.Error(err))
	if model.IsKind(err, model.ErrExtraction) {
		return "document could not be parsed"
	}
	return "internal error"
}
