package pipeline

import (
	"fmt"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

// Summarize renders the one-line human summary stored in metadata
func Summarize(res *model.ParseResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s (%d dated)", len(res.Assignments), plural(len(res.Assignments), "assignment"), res.DatedCount())
	if n := len(res.Events); n > 0 {
		fmt.Fprintf(&b, ", %d %s", n, plural(n, "event"))
	}
	st := res.Metadata.Stages
	fmt.Fprintf(&b, "; AI remainder: %s", stageText(st.AIRemainder, st.AIRemainderReason, res.Metadata.Counts.AIRemainder))
	fmt.Fprintf(&b, "; AI validation: %s", stageText(st.AIValidate, st.AIValidateReason, res.Metadata.Counts.AIValidated))
	if n := len(res.Metadata.Warnings); n > 0 {
		fmt.Fprintf(&b, "; %d %s", n, plural(n, "warning"))
	}
	return b.String()
}

func stageText(status model.StageStatus, reason string, count int) string {
	switch {
	case status == model.StatusCompleted:
		return fmt.Sprintf("completed (%d)", count)
	case reason != "":
		return fmt.Sprintf("%s (%s)", status, reason)
	default:
		return string(status)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
