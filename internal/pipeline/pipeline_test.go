package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/dedupe"
	"github.com/ppiankov/coursework/internal/domain"
	"github.com/ppiankov/coursework/internal/extract"
	"github.com/ppiankov/coursework/internal/extract/adapters"
	"github.com/ppiankov/coursework/internal/llm"
	"github.com/ppiankov/coursework/internal/model"
)

var testNow = time.Date(2025, time.May, 7, 9, 0, 0, 0, time.UTC)

const shortDoc = "Quiz 3: Chapter 5 Review (25 pts) Due: May 12\nEssay 1 due May 30"

const proseLine = "Parking permits are available from the front office near the main entrance of the building. " +
	"Please arrive ten minutes early and silence your phone before class begins."

var longDoc = shortDoc + "\n\n" + proseLine

var nursing = &domain.Overrides{Domain: "nursing"}

// fakeEnhancer scripts the language-model stages
type fakeEnhancer struct {
	mu             sync.Mutex
	enabled        bool
	remainderCalls int
	validateCalls  int
	remainder      func(llm.RemainderRequest) llm.RemainderResult
	validate       func(llm.ValidationRequest) llm.ValidationResult
}

func (f *fakeEnhancer) Enabled() bool        { return f.enabled }
func (f *fakeEnhancer) ProviderName() string { return "fake" }

func (f *fakeEnhancer) ExtractRemainder(ctx context.Context, req llm.RemainderRequest) llm.RemainderResult {
	f.mu.Lock()
	f.remainderCalls++
	f.mu.Unlock()
	if f.remainder == nil {
		return llm.RemainderResult{Outcome: llm.Outcome{Task: llm.TaskRemainder, Status: llm.StatusEmpty}}
	}
	return f.remainder(req)
}

func (f *fakeEnhancer) Validate(ctx context.Context, req llm.ValidationRequest) llm.ValidationResult {
	f.mu.Lock()
	f.validateCalls++
	f.mu.Unlock()
	if f.validate == nil {
		return llm.ValidationResult{Outcome: llm.Outcome{Task: llm.TaskValidate, Status: llm.StatusEmpty}}
	}
	return f.validate(req)
}

type progressLog struct {
	mu     sync.Mutex
	events []Progress
}

func (l *progressLog) record(p Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *progressLog) stages() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Stage, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Stage)
	}
	return out
}

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	p, err := New(model.ParserConfig{DefaultYear: 2025}, opts...)
	require.NoError(t, err)
	return p
}

func TestParse_NursingQuizLine(t *testing.T) {
	p := newTestPipeline(t)

	res, err := p.Parse(context.Background(), "Quiz 3: Chapter 5 Review (25 pts) Due: May 12", Options{
		Course:    "NURS 210",
		Overrides: nursing,
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 1)
	a := res.Assignments[0]
	assert.Equal(t, model.TypeQuiz, a.Type)
	assert.Contains(t, a.Text, "Quiz 3")
	require.NotNil(t, a.Points)
	assert.Equal(t, 25, *a.Points)
	assert.Equal(t, model.Date("2025-05-12"), a.Date)
	assert.Equal(t, 1.5, a.Hours)
	assert.Equal(t, "NURS 210", a.Course)
	assert.Equal(t, "nursing", res.Metadata.Domain)
}

func TestParse_WithoutCredentialMatchesRegexOnly(t *testing.T) {
	var progress progressLog
	p := newTestPipeline(t)

	res, err := p.Parse(context.Background(), longDoc, Options{Course: "NURS 210", Overrides: nursing}, progress.record)
	require.NoError(t, err)

	assert.False(t, res.Metadata.AIEnabled)
	assert.Equal(t, model.StatusSkipped, res.Metadata.Stages.AIRemainder)
	assert.Equal(t, model.StatusSkipped, res.Metadata.Stages.AIValidate)
	assert.Equal(t, model.StatusCompleted, res.Metadata.Stages.Regex)
	assert.Equal(t, model.StatusCompleted, res.Metadata.Stages.Merging)
	assert.Equal(t, []Stage{StageStarting, StageRegex, StageRegexComplete, StageMerging, StageComplete}, progress.stages())

	// Same records as running the extractor directly
	cfg, err := domain.BuildConfig("NURS 210", extract.Normalize(longDoc), nursing)
	require.NoError(t, err)
	env := extract.Env{Config: cfg, Resolver: dates.NewResolver(dates.WithDefaultYear(2025), dates.WithClock(func() time.Time { return testNow }))}
	direct := dedupe.Dedupe(adapters.NewGenericExtractor(env).Extract(extract.Normalize(longDoc), "NURS 210").Assignments)

	require.Len(t, res.Assignments, len(direct))
	for i := range direct {
		assert.Equal(t, direct[i].Text, res.Assignments[i].Text)
		assert.Equal(t, direct[i].Date, res.Assignments[i].Date)
	}
	assert.Contains(t, res.Metadata.Summary, "AI remainder: skipped (no credential)")
}

func TestParse_ShortRemainderSkipsMining(t *testing.T) {
	fake := &fakeEnhancer{enabled: true}
	var progress progressLog
	p := newTestPipeline(t, WithEnhancer(fake))

	res, err := p.Parse(context.Background(), shortDoc, Options{Overrides: nursing}, progress.record)
	require.NoError(t, err)

	assert.Equal(t, 0, fake.remainderCalls, "remainder mining must not be called")
	assert.Equal(t, 1, fake.validateCalls, "validation still runs with a credential")
	assert.Equal(t, model.StatusNoneFound, res.Metadata.Stages.AIRemainder)
	assert.Contains(t, res.Metadata.Stages.AIRemainderReason, "not above 100")
	assert.Less(t, res.Metadata.RemainderLength, 100)
	assert.NotContains(t, progress.stages(), StageAIRemainder)
	assert.Len(t, res.Assignments, 2)
}

func TestParse_RemainderThresholdIsExclusive(t *testing.T) {
	parseWithThreshold := func(threshold int) (int, int) {
		fake := &fakeEnhancer{enabled: true}
		p, err := New(model.ParserConfig{DefaultYear: 2025, MinRemainderLength: threshold},
			WithClock(func() time.Time { return testNow }), WithEnhancer(fake))
		require.NoError(t, err)
		res, err := p.Parse(context.Background(), longDoc, Options{Overrides: nursing}, nil)
		require.NoError(t, err)
		return res.Metadata.RemainderLength, fake.remainderCalls
	}

	length, _ := parseWithThreshold(1)
	require.Greater(t, length, 1)

	_, calls := parseWithThreshold(length)
	assert.Equal(t, 0, calls, "remainder equal to the threshold is not mined")

	_, calls = parseWithThreshold(length - 1)
	assert.Equal(t, 1, calls, "remainder above the threshold is mined")
}

func TestParse_MalformedValidationKeepsRegexResults(t *testing.T) {
	provider := &scriptedProvider{content: "Sure! Here are the assignments: quiz and essay."}
	enhancer := llm.NewEnhancer(provider, llm.Config{Timeout: 5})
	p := newTestPipeline(t, WithEnhancer(enhancer))

	res, err := p.Parse(context.Background(), shortDoc, Options{Overrides: nursing}, nil)
	require.NoError(t, err)

	assert.True(t, res.Metadata.ValidationFailed)
	assert.Equal(t, model.StatusFailed, res.Metadata.Stages.AIValidate)
	assert.Equal(t, "malformed response", res.Metadata.Stages.AIValidateReason)
	require.Len(t, res.Assignments, 2)
	for _, a := range res.Assignments {
		assert.True(t, strings.HasPrefix(a.Source, "regex-"), a.Source)
		assert.False(t, a.Validated)
	}
}

func TestParse_RemainderMiningMergesAndDedupes(t *testing.T) {
	fake := &fakeEnhancer{
		enabled: true,
		remainder: func(req llm.RemainderRequest) llm.RemainderResult {
			return llm.RemainderResult{
				Assignments: []model.Assignment{
					{ID: "m1", Text: "Parking permit form", Date: "2025-05-20", Type: model.TypeAssignment, Hours: 1, Confidence: 0.75, Source: llm.SourceRemainder},
					// duplicate of a regex item, dropped in merge
					{ID: "m2", Text: "Essay 1", Date: "2025-05-30", Type: model.TypePaper, Hours: 4, Confidence: 0.75, Source: llm.SourceRemainder},
				},
				Outcome: llm.Outcome{Task: llm.TaskRemainder, Status: llm.StatusOK},
			}
		},
	}
	var progress progressLog
	p := newTestPipeline(t, WithEnhancer(fake))

	res, err := p.Parse(context.Background(), longDoc, Options{Overrides: nursing}, progress.record)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.remainderCalls)
	assert.Equal(t, model.StatusCompleted, res.Metadata.Stages.AIRemainder)
	assert.Equal(t, 2, res.Metadata.Counts.AIRemainder)
	assert.Equal(t, 1, res.Metadata.Counts.Duplicates)
	require.Len(t, res.Assignments, 3)
	assert.Equal(t, "Parking permit form", res.Assignments[2].Text)
	assert.Equal(t, []Stage{StageStarting, StageRegex, StageRegexComplete, StageAIRemainder, StageAIValidate, StageMerging, StageComplete}, progress.stages())
}

func TestParse_RemainderRequestCarriesKnownAndMaskedText(t *testing.T) {
	var got llm.RemainderRequest
	fake := &fakeEnhancer{
		enabled: true,
		remainder: func(req llm.RemainderRequest) llm.RemainderResult {
			got = req
			return llm.RemainderResult{Outcome: llm.Outcome{Status: llm.StatusEmpty}}
		},
	}
	p := newTestPipeline(t, WithEnhancer(fake))

	res, err := p.Parse(context.Background(), longDoc, Options{Course: "NURS 210", Overrides: nursing}, nil)
	require.NoError(t, err)

	assert.Len(t, got.Known, 2)
	assert.Equal(t, "NURS 210", got.Course)
	assert.Contains(t, got.Text, RemainderMarker)
	assert.Contains(t, got.Text, "Parking permits")
	assert.NotContains(t, got.Text, "Quiz 3")
	assert.Equal(t, model.StatusNoneFound, res.Metadata.Stages.AIRemainder)
}

func TestParse_ValidationEnrichesAndRejects(t *testing.T) {
	fake := &fakeEnhancer{
		enabled: true,
		validate: func(req llm.ValidationRequest) llm.ValidationResult {
			require.Len(t, req.Candidates, 2)
			quiz, essay := req.Candidates[0], req.Candidates[1]
			quiz.Validated = true
			quiz.Confidence = 0.9
			quiz.DueTime = "23:59"
			quiz.Source = llm.SourceValidated
			return llm.ValidationResult{
				Validated:  []model.Assignment{quiz},
				InvalidIDs: []string{essay.ID},
				Discovered: []model.Assignment{
					{ID: "d1", Text: "Medication math worksheet", Date: "2025-05-15", Type: model.TypeHomework, Hours: 2.5, Confidence: 0.7, Source: llm.SourceDiscovered},
				},
				Outcome: llm.Outcome{Task: llm.TaskValidate, Status: llm.StatusOK},
			}
		},
	}
	p := newTestPipeline(t, WithEnhancer(fake))

	res, err := p.Parse(context.Background(), shortDoc, Options{Overrides: nursing}, nil)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 2)
	assert.True(t, res.Assignments[0].Validated)
	assert.Equal(t, "23:59", res.Assignments[0].DueTime)
	assert.Equal(t, "Medication math worksheet", res.Assignments[1].Text)
	assert.Equal(t, 1, res.Metadata.Counts.AIValidated)
	assert.Equal(t, 1, res.Metadata.Counts.Invalidated)
	assert.Equal(t, 1, res.Metadata.Counts.AIDiscovered)
	assert.False(t, res.Metadata.ValidationFailed)
	assert.Equal(t, model.StatusCompleted, res.Metadata.Stages.AIValidate)
}

func TestParse_SalvagedValidationIsPartial(t *testing.T) {
	fake := &fakeEnhancer{
		enabled: true,
		validate: func(req llm.ValidationRequest) llm.ValidationResult {
			return llm.ValidationResult{
				Discovered: []model.Assignment{{ID: "s1", Text: "Skills check-off", Confidence: 0.5, Source: llm.SourceDiscovered, Hours: 3}},
				Outcome:    llm.Outcome{Task: llm.TaskValidate, Status: llm.StatusSalvaged, Reason: "malformed response"},
			}
		},
	}
	p := newTestPipeline(t, WithEnhancer(fake))

	res, err := p.Parse(context.Background(), shortDoc, Options{Overrides: nursing}, nil)
	require.NoError(t, err)

	assert.True(t, res.Metadata.ValidationFailed)
	assert.Equal(t, model.StatusPartial, res.Metadata.Stages.AIValidate)
	assert.Len(t, res.Assignments, 3)
}

func TestParse_EnhancerPanicDegrades(t *testing.T) {
	fake := &fakeEnhancer{
		enabled: true,
		validate: func(req llm.ValidationRequest) llm.ValidationResult {
			panic("provider exploded")
		},
	}
	core, logs := observer.New(zapcore.ErrorLevel)
	p := newTestPipeline(t, WithEnhancer(fake), WithLogger(zap.New(core)))

	res, err := p.Parse(context.Background(), shortDoc, Options{Overrides: nursing}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Metadata.Stages.AIValidate)
	assert.True(t, res.Metadata.ValidationFailed)
	assert.Len(t, res.Assignments, 2)
	assert.Equal(t, 1, logs.FilterMessage("validation stage panicked").Len())
}

func TestParse_PastDatesMoveForward(t *testing.T) {
	p := newTestPipeline(t)

	res, err := p.Parse(context.Background(), "Essay 1 due April 2\nQuiz 3: Chapter 5 Review (25 pts) Due: May 12", Options{}, nil)
	require.NoError(t, err)

	require.Len(t, res.Assignments, 2)
	assert.Equal(t, model.Date("2025-05-14"), res.Assignments[0].Date)
	assert.Equal(t, model.Date("2025-05-12"), res.Assignments[1].Date)
	require.Len(t, res.Metadata.Warnings, 1)
	assert.Contains(t, res.Metadata.Warnings[0], "Essay 1")

	for _, a := range res.Assignments {
		assert.False(t, a.Date.Before(testNow), a.Text)
		assert.GreaterOrEqual(t, a.Confidence, model.MinConfidence)
		assert.LessOrEqual(t, a.Confidence, model.MaxConfidence)
	}
}

func TestParse_FallbackDateCollisionsCollapse(t *testing.T) {
	fake := &fakeEnhancer{
		enabled: true,
		remainder: func(req llm.RemainderRequest) llm.RemainderResult {
			return llm.RemainderResult{
				Assignments: []model.Assignment{
					{ID: "m1", Text: "Weekly reflection journal entry submit online", Date: "2025-01-10", Type: model.TypeAssignment, Hours: 1, Confidence: 0.75, Source: llm.SourceRemainder},
					{ID: "m2", Text: "Weekly reflection journal entry submit online now", Date: "2025-01-17", Type: model.TypeAssignment, Hours: 1, Confidence: 0.75, Source: llm.SourceRemainder},
				},
				Outcome: llm.Outcome{Task: llm.TaskRemainder, Status: llm.StatusOK},
			}
		},
	}
	p := newTestPipeline(t, WithEnhancer(fake))

	res, err := p.Parse(context.Background(), longDoc, Options{Overrides: nursing}, nil)
	require.NoError(t, err)

	var journals []model.Assignment
	for _, a := range res.Assignments {
		if strings.HasPrefix(a.Text, "Weekly reflection") {
			journals = append(journals, a)
		}
	}
	require.Len(t, journals, 1)
	assert.Equal(t, model.Date("2025-05-14"), journals[0].Date)
	assert.Equal(t, 1, res.Metadata.Counts.Duplicates)
	assert.Equal(t, len(res.Assignments), res.Metadata.Counts.Final)
	for i := range res.Assignments {
		assert.False(t, dedupe.IsDuplicate(res.Assignments[i], res.Assignments[i+1:]), res.Assignments[i].Text)
	}
}

func TestParse_InputErrorsFireNoProgress(t *testing.T) {
	var progress progressLog
	p := newTestPipeline(t)

	_, err := p.Parse(context.Background(), "   \n  ", Options{}, progress.record)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrInvalidInput))
	assert.Empty(t, progress.stages())

	_, err = p.Parse(context.Background(), "Quiz 1", Options{Overrides: &domain.Overrides{Domain: "astrology"}}, progress.record)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrInvalidInput))
	assert.Empty(t, progress.stages())
}

func TestParse_HTMLInput(t *testing.T) {
	p := newTestPipeline(t)
	doc := `<div><h2>Upcoming</h2><ul><li>Quiz 3: Chapter 5 Review (25 pts) Due: May 12</li><li>Essay 1 due May 30</li></ul></div>`

	res, err := p.Parse(context.Background(), doc, Options{Overrides: nursing}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Assignments, 2)
}

func TestParse_DetectsUndeclaredDocumentType(t *testing.T) {
	p := newTestPipeline(t)
	listing := "Module 1: Foundations\nQuiz 1: Foundations (10 pts) Due: May 20\nModule 2: Care Planning\nCare plan due May 27"

	res, err := p.Parse(context.Background(), listing, Options{Course: "NURS 210"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "modules", res.Metadata.Extractor)

	res, err = p.Parse(context.Background(), listing, Options{Course: "NURS 210", DocumentType: model.DocumentType("pdf")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "generic", res.Metadata.Extractor)
}

func TestParse_InfersCourse(t *testing.T) {
	p := newTestPipeline(t)

	res, err := p.Parse(context.Background(), "NURS-210 schedule\n"+shortDoc, Options{
		UserCourses: []string{"BIO 101", "NURS 210 Fundamentals"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "NURS 210 Fundamentals", res.Metadata.Course)
	for _, a := range res.Assignments {
		assert.Equal(t, "NURS 210 Fundamentals", a.Course)
	}
}

func TestParse_Hooks(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("database down")}
	pub := &fakePublisher{}
	met := &fakeMetrics{}
	core, logs := observer.New(zapcore.WarnLevel)
	p := newTestPipeline(t, WithRecorder(rec), WithPublisher(pub), WithMetrics(met), WithLogger(zap.New(core)))

	res, err := p.Parse(context.Background(), shortDoc, Options{}, nil)
	require.NoError(t, err, "recording failure must not fail the parse")

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 1, met.parses)
	assert.Len(t, pub.events, 5)
	for _, ev := range pub.events {
		assert.Equal(t, res.Metadata.ParseID, ev.ParseID)
	}
	assert.Equal(t, 1, logs.FilterMessage("record parse history").Len())
}

func TestRunFail_EmitsErrorFirst(t *testing.T) {
	var progress progressLog
	met := &fakeMetrics{}
	p := newTestPipeline(t, WithMetrics(met))
	r := &run{p: p, ctx: context.Background(), id: "p1", onProgress: progress.record, logger: zap.NewNop()}

	err := safely(func() { panic("index out of range") })
	require.Error(t, err)

	wrapped := r.fail(StageRegex, err)
	assert.True(t, model.IsKind(wrapped, model.ErrExtraction))
	assert.Equal(t, []Stage{StageError}, progress.stages())
	assert.Contains(t, progress.events[0].Message, "index out of range")
	assert.Equal(t, []Stage{StageRegex}, met.failures)
}

func TestNew_RejectsBadSemester(t *testing.T) {
	_, err := New(model.ParserConfig{SemesterStart: "spring"})
	require.Error(t, err)
}

func TestApplyValidation(t *testing.T) {
	candidates := []model.Assignment{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}}
	got := ApplyValidation(candidates, []model.Assignment{{ID: "c", Text: "C fixed", Validated: true}}, []string{"a"})
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Text)
	assert.Equal(t, "C fixed", got[1].Text)
}

// scriptedProvider returns fixed content from every completion
type scriptedProvider struct {
	content string
}

func (s *scriptedProvider) Name() string                         { return "scripted" }
func (s *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }
func (s *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: s.content}, nil
}

type fakeRecorder struct {
	calls int
	err   error
}

func (f *fakeRecorder) Record(ctx context.Context, res *model.ParseResult) error {
	f.calls++
	return f.err
}

type fakePublisher struct {
	events []Progress
}

func (f *fakePublisher) Publish(ctx context.Context, p Progress) error {
	f.events = append(f.events, p)
	return nil
}

type fakeMetrics struct {
	parses   int
	failures []Stage
}

func (f *fakeMetrics) ObserveParse(res *model.ParseResult, d time.Duration) { f.parses++ }
func (f *fakeMetrics) ObserveFailure(stage Stage)                           { f.failures = append(f.failures, stage) }
