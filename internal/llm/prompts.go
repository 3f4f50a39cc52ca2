package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/coursework/internal/model"
)

const typeVocabulary = "assignment, quiz, exam, reading, video, discussion, clinical, lab, project, paper, presentation, simulation, preparation, case-study, homework, other"

const assignmentShape = `{"text": string, "date": "YYYY-MM-DD" or null, "dueTime": "HH:MM" or null, "type": one of [` + typeVocabulary + `], "hours": number, "points": number or null, "confidence": number between 0 and 1}`

const remainderSystem = `You extract academic assignments from fragments of course documents (Canvas pages, syllabi, schedules).
Only list deliverables a student must complete: readings, quizzes, exams, papers, labs, discussions, projects and similar. Ignore policies, grading weights, office hours and holidays.
Never repeat an item from the "Already extracted" list.
Respond with a single JSON object and nothing else, no prose and no code fences:
{"assignments": [` + assignmentShape + `]}
If nothing qualifies respond with {"assignments": []}.`

const validateSystem = `You review assignments that a pattern matcher extracted from a course document.
For each candidate decide whether it is a real deliverable. Correct its fields from the document where they are wrong or missing, keeping its "id".
Also list deliverables the matcher missed entirely.
Respond with a single JSON object and nothing else, no prose and no code fences:
{"validated": [{"id": string, ...fields of ` + assignmentShape + `}], "invalidIds": [string], "discovered": [` + assignmentShape + `]}`

// DefaultMaxInput bounds the document text sent in one request
const DefaultMaxInput = 24000

// truncate cuts s to max bytes on a line boundary where possible
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > max/2 {
		cut = cut[:i]
	}
	return cut + "\n[truncated]"
}

func buildRemainderPrompt(text string, known []model.Assignment, course string, defaultYear, maxInput int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", orUnknown(course))
	fmt.Fprintf(&b, "Default year for dates without a year: %d\n\n", defaultYear)

	b.WriteString("Already extracted:\n")
	if len(known) == 0 {
		b.WriteString("(none)\n")
	}
	for i, a := range known {
		if i >= 60 {
			fmt.Fprintf(&b, "... and %d more\n", len(known)-60)
			break
		}
		if a.Date.IsZero() {
			fmt.Fprintf(&b, "- %s\n", a.Text)
		} else {
			fmt.Fprintf(&b, "- %s (%s)\n", a.Text, a.Date)
		}
	}

	b.WriteString("\nText:\n<<<\n")
	b.WriteString(truncate(text, maxInput))
	b.WriteString("\n>>>")
	return b.String()
}

type promptCandidate struct {
	ID      string     `json:"id"`
	Text    string     `json:"text"`
	Date    model.Date `json:"date"`
	DueTime string     `json:"dueTime,omitempty"`
	Type    string     `json:"type"`
	Points  *int       `json:"points,omitempty"`
}

func buildValidationPrompt(original string, candidates []model.Assignment, course string, docType model.DocumentType, defaultYear, maxInput int) string {
	list := make([]promptCandidate, 0, len(candidates))
	for _, a := range candidates {
		list = append(list, promptCandidate{
			ID:      a.ID,
			Text:    a.Text,
			Date:    a.Date,
			DueTime: a.DueTime,
			Type:    string(a.Type),
			Points:  a.Points,
		})
	}
	encoded, _ := json.MarshalIndent(list, "", "  ")

	docName := string(docType)
	if docName == "" {
		docName = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", orUnknown(course))
	fmt.Fprintf(&b, "Document type: %s\n", docName)
	fmt.Fprintf(&b, "Default year for dates without a year: %d\n\n", defaultYear)
	b.WriteString("Candidates:\n")
	b.Write(encoded)
	b.WriteString("\n\nDocument:\n<<<\n")
	b.WriteString(truncate(original, maxInput))
	b.WriteString("\n>>>")
	return b.String()
}

func orUnknown(course string) string {
	if strings.TrimSpace(course) == "" {
		return model.UnknownCourse
	}
	return course
}
