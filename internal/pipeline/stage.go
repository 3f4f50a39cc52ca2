package pipeline

import (
	"time"

	"github.com/ppiankov/coursework/internal/model"
)

// Stage names a step of the parse state machine
type Stage string

const (
	StageStarting      Stage = "starting"
	StageRegex         Stage = "regex"
	StageRegexComplete Stage = "regex-complete"
	StageAIRemainder   Stage = "ai-remainder"
	StageAIValidate    Stage = "ai-validate"
	StageMerging       Stage = "merging"
	StageComplete      Stage = "complete"
	StageError         Stage = "error"
)

// Stages lists the stages in the order they fire
var Stages = []Stage{
	StageStarting, StageRegex, StageRegexComplete, StageAIRemainder,
	StageAIValidate, StageMerging, StageComplete,
}

// Progress is one notification to the progress observer
type Progress struct {
	ParseID string             `json:"parseId"`
	Stage   Stage              `json:"stage"`
	Message string             `json:"message"`
	Results []model.Assignment `json:"results,omitempty"`
	Time    time.Time          `json:"time"`
}

// ProgressFunc receives progress notifications. It is called synchronously
// from the parsing goroutine and must not block for long.
type ProgressFunc func(Progress)
