package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/coursework/internal/llm"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
)

func TestObserveParse(t *testing.T) {
	m := New()
	res := &model.ParseResult{
		Assignments: make([]model.Assignment, 3),
		Metadata: model.Metadata{
			Extractor:  "schedule",
			Domain:     "nursing",
			Confidence: 0.75,
			Stages: model.StageReport{
				Regex:       model.StatusCompleted,
				AIRemainder: model.StatusSkipped,
				AIValidate:  model.StatusSkipped,
				Merging:     model.StatusCompleted,
			},
		},
	}

	m.ObserveParse(res, 40*time.Millisecond)
	m.ObserveParse(res, 60*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.parsesTotal.WithLabelValues("schedule", "nursing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageStatus.WithLabelValues("ai-remainder", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageStatus.WithLabelValues("regex", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.parseDuration))
}

func TestObserveFailure(t *testing.T) {
	m := New()
	m.ObserveFailure(pipeline.StageMerging)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("merging")))
}

func TestObserveLLM(t *testing.T) {
	m := New()
	m.ObserveLLM(llm.Outcome{Task: llm.TaskValidate, Status: llm.StatusOK, Attempts: 2, Duration: time.Second})
	m.ObserveLLM(llm.Outcome{Task: llm.TaskValidate, Status: llm.StatusOK, Cached: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("validate", "ok", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("validate", "ok", "true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.llmAttempts))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveFailure(pipeline.StageRegex)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `coursework_parser_failures_total{stage="regex"} 1`))
}
