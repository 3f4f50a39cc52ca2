// Package pipeline runs the parse state machine: pattern extraction, the
// optional language-model stages, merging and final scoring.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/dates"
	"github.com/ppiankov/coursework/internal/dedupe"
	"github.com/ppiankov/coursework/internal/domain"
	"github.com/ppiankov/coursework/internal/extract"
	"github.com/ppiankov/coursework/internal/extract/adapters"
	"github.com/ppiankov/coursework/internal/llm"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/score"
	"github.com/ppiankov/coursework/internal/validate"
)

// Enhancer is the language-model client used by the AI stages
type Enhancer interface {
	Enabled() bool
	ProviderName() string
	ExtractRemainder(ctx context.Context, req llm.RemainderRequest) llm.RemainderResult
	Validate(ctx context.Context, req llm.ValidationRequest) llm.ValidationResult
}

// Recorder persists completed parses
type Recorder interface {
	Record(ctx context.Context, res *model.ParseResult) error
}

// Publisher forwards progress notifications to an external channel
type Publisher interface {
	Publish(ctx context.Context, p Progress) error
}

// Metrics observes parse outcomes
type Metrics interface {
	ObserveParse(res *model.ParseResult, d time.Duration)
	ObserveFailure(stage Stage)
}

// Options are the per-parse inputs besides the text
type Options struct {
	Course       string
	DocumentType model.DocumentType
	UserCourses  []string
	DefaultYear  int               // 0 = configured default, else the clock's year
	Overrides    *domain.Overrides // nil = pipeline-wide overrides
}

// Pipeline orchestrates one parse at a time per call. It holds no
// per-parse state and is safe for concurrent use.
type Pipeline struct {
	cfg           model.ParserConfig
	enhancer      Enhancer
	scorer        *score.Scorer
	overrides     *domain.Overrides
	semesterStart time.Time
	semesterEnd   time.Time
	now           func() time.Time
	logger        *zap.Logger
	recorder      Recorder
	publisher     Publisher
	metrics       Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithEnhancer enables the AI stages
func WithEnhancer(e Enhancer) Option {
	return func(p *Pipeline) { p.enhancer = e }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the clock used for relative dates and the past-date check
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithOverrides sets the domain overrides applied when a parse supplies none
func WithOverrides(ov *domain.Overrides) Option {
	return func(p *Pipeline) { p.overrides = ov }
}

// WithRecorder records every completed parse
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPublisher forwards every progress notification
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithMetrics observes parse outcomes
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline. Configuration errors (bad semester bounds,
// unreadable overrides file) are returned here rather than per parse.
func New(cfg model.ParserConfig, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		scorer: score.NewScorer(),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	if p.cfg.MinRemainderLength <= 0 {
		p.cfg.MinRemainderLength = 100
	}
	if p.cfg.PastDateFallback <= 0 {
		p.cfg.PastDateFallback = 7
	}

	var err error
	if p.semesterStart, err = parseBound(cfg.SemesterStart); err != nil {
		return nil, fmt.Errorf("semester start: %w", err)
	}
	if p.semesterEnd, err = parseBound(cfg.SemesterEnd); err != nil {
		return nil, fmt.Errorf("semester end: %w", err)
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.overrides == nil && cfg.OverridesFile != "" {
		ov, err := domain.LoadOverrides(cfg.OverridesFile)
		if err != nil {
			return nil, err
		}
		p.overrides = ov
	}
	return p, nil
}

func parseBound(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, model.WrapError(model.ErrInvalidInput, "parse date", err)
	}
	return t, nil
}

// AIEnabled reports whether a language-model provider is configured
func (p *Pipeline) AIEnabled() bool {
	return p.enhancer != nil && p.enhancer.Enabled()
}

// run carries the state of one Parse call
type run struct {
	p          *Pipeline
	ctx        context.Context
	id         string
	onProgress ProgressFunc
	logger     *zap.Logger
}

func (r *run) emit(stage Stage, message string, results []model.Assignment) {
	ev := Progress{
		ParseID: r.id,
		Stage:   stage,
		Message: message,
		Results: results,
		Time:    r.p.now().UTC(),
	}
	r.logger.Debug("parse progress", zap.String("stage", string(stage)), zap.String("message", message))
	if r.onProgress != nil {
		r.onProgress(ev)
	}
	if r.p.publisher != nil {
		if err := r.p.publisher.Publish(r.ctx, ev); err != nil {
			r.logger.Warn("publish progress", zap.String("stage", string(stage)), zap.Error(err))
		}
	}
}

// fail fires the error notification before the error reaches the caller
func (r *run) fail(stage Stage, err error) error {
	r.emit(StageError, fmt.Sprintf("%s stage failed: %v", stage, err), nil)
	r.logger.Error("parse failed", zap.String("stage", string(stage)), zap.Error(err))
	if r.p.metrics != nil {
		r.p.metrics.ObserveFailure(stage)
	}
	return model.WrapError(model.ErrExtraction, string(stage), err)
}

// safely converts a panic in fn into an error
func safely(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	fn()
	return nil
}

// Parse extracts assignments from text. Input errors are returned before
// any progress fires. Language-model failures degrade the result and are
// reported in its metadata; only extraction failures are returned as
// errors, after the error notification.
func (p *Pipeline) Parse(ctx context.Context, text string, opts Options, onProgress ProgressFunc) (*model.ParseResult, error) {
	start := p.now()

	if err := validate.ParseRequest(text, opts.Course, opts.UserCourses); err != nil {
		return nil, err
	}
	if extract.LooksLikeHTML(text) {
		visible, err := extract.HTMLToText(text)
		if err != nil {
			return nil, model.WrapError(model.ErrInvalidInput, "parse", fmt.Errorf("convert html: %w", err))
		}
		text = visible
	}
	normalized := extract.Normalize(text)
	if normalized == "" {
		return nil, model.WrapError(model.ErrInvalidInput, "parse", validate.ErrEmptyDocument)
	}

	course := InferCourse(opts.Course, opts.UserCourses, normalized)
	detectCourse := course
	if detectCourse == model.UnknownCourse {
		detectCourse = ""
	}
	overrides := opts.Overrides
	if overrides == nil {
		overrides = p.overrides
	}
	cfg, err := domain.BuildConfig(detectCourse, normalized, overrides)
	if err != nil {
		return nil, err
	}
	env := extract.Env{Config: cfg, Resolver: p.resolver(opts.DefaultYear)}

	r := &run{
		p:          p,
		ctx:        ctx,
		id:         uuid.NewString(),
		onProgress: onProgress,
	}
	r.logger = p.logger.With(zap.String("parse_id", r.id))

	meta := model.Metadata{
		ParseID:      r.id,
		DocumentType: opts.DocumentType,
		Domain:       cfg.Domain.String(),
		DomainName:   cfg.DomainName,
		Course:       course,
		AIEnabled:    p.AIEnabled(),
		ParsedAt:     start.UTC(),
		Stages: model.StageReport{
			Regex:       model.StatusPending,
			AIRemainder: model.StatusPending,
			AIValidate:  model.StatusPending,
			Merging:     model.StatusPending,
		},
	}

	r.emit(StageStarting, fmt.Sprintf("Parsing %s document for %s (%s)", docName(opts.DocumentType), course, cfg.DomainName), nil)

	// 1. Pattern extraction
	extractor := adapters.NewRegistry(env).ForDocument(opts.DocumentType, normalized)
	meta.Extractor = extractor.Name()
	r.emit(StageRegex, fmt.Sprintf("Running %s extractor", extractor.Name()), nil)

	var out extract.Output
	if err := safely(func() { out = extractor.Extract(normalized, course) }); err != nil {
		return nil, r.fail(StageRegex, err)
	}
	regex := dedupe.Dedupe(out.Assignments)
	events := dedupe.Dedupe(out.Events)
	meta.Counts.Regex = len(regex)
	meta.Stages.Regex = model.StatusCompleted
	if len(regex) == 0 {
		meta.Stages.Regex = model.StatusNoneFound
	}
	r.emit(StageRegexComplete, fmt.Sprintf("Found %d assignments with patterns", len(regex)), regex)

	// 2. Remainder mining
	remainder := ComputeRemainder(normalized, regex)
	meta.RemainderLength = RemainderLength(remainder)
	mined := p.mineRemainder(r, &meta, remainder, regex, course, env)

	// 3. Validation
	candidates, discovered := p.runValidation(r, &meta, normalized, regex, course, opts.DocumentType, env)

	// 4. Merge
	r.emit(StageMerging, "Merging and deduplicating results", nil)
	combined := make([]model.Assignment, 0, len(candidates)+len(mined)+len(discovered))
	combined = append(combined, candidates...)
	combined = append(combined, mined...)
	combined = append(combined, discovered...)

	var final []model.Assignment
	var warnings []string
	if err := safely(func() {
		merged := dedupe.Dedupe(combined)
		final, warnings = PostProcess(merged, p.now(), p.cfg.PastDateFallback, course)
		// the past-date fallback can give near-duplicates a shared date
		deduped := dedupe.Dedupe(final)
		meta.Counts.Duplicates = len(combined) - len(merged) + len(final) - len(deduped)
		final = deduped
	}); err != nil {
		return nil, r.fail(StageMerging, err)
	}
	meta.Stages.Merging = model.StatusCompleted
	meta.Warnings = append(meta.Warnings, warnings...)
	for _, w := range warnings {
		r.logger.Warn("past due date replaced", zap.String("detail", w))
	}

	for i := range events {
		if events[i].Course == "" || events[i].Course == model.UnknownCourse {
			events[i].Course = course
		}
	}
	modules := model.PruneModuleLinks(out.Modules, final)
	for i := range modules {
		if modules[i].Course == "" {
			modules[i].Course = course
		}
	}

	res := &model.ParseResult{
		Assignments: final,
		Modules:     modules,
		Events:      events,
	}
	if res.Assignments == nil {
		res.Assignments = []model.Assignment{}
	}
	if res.Modules == nil {
		res.Modules = []model.Module{}
	}
	if res.Events == nil {
		res.Events = []model.Assignment{}
	}

	meta.Counts.Final = len(res.Assignments)
	meta.Counts.Events = len(res.Events)
	meta.Confidence, meta.Signals = p.scorer.Aggregate(res.Assignments, meta.Stages)
	res.Metadata = meta
	res.Metadata.Summary = Summarize(res)
	elapsed := p.now().Sub(start)
	res.Metadata.DurationMS = elapsed.Milliseconds()

	r.emit(StageComplete, res.Metadata.Summary, res.Assignments)
	r.logger.Info("parse complete",
		zap.String("course", course),
		zap.String("extractor", meta.Extractor),
		zap.Int("assignments", meta.Counts.Final),
		zap.Float64("confidence", meta.Confidence),
		zap.Duration("duration", elapsed),
	)

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, res); err != nil {
			r.logger.Warn("record parse history", zap.Error(err))
		}
	}
	if p.metrics != nil {
		p.metrics.ObserveParse(res, elapsed)
	}
	return res, nil
}

func (p *Pipeline) resolver(year int) *dates.Resolver {
	if year <= 0 {
		year = p.cfg.DefaultYear
	}
	opts := []dates.Option{dates.WithClock(p.now), dates.WithLogger(p.logger)}
	if year > 0 {
		opts = append(opts, dates.WithDefaultYear(year))
	}
	if !p.semesterStart.IsZero() || !p.semesterEnd.IsZero() {
		opts = append(opts, dates.WithSemester(p.semesterStart, p.semesterEnd))
	}
	return dates.NewResolver(opts...)
}

// mineRemainder runs the remainder stage when a provider is configured
// and enough uncovered text is left
func (p *Pipeline) mineRemainder(r *run, meta *model.Metadata, remainder string, known []model.Assignment, course string, env extract.Env) []model.Assignment {
	switch {
	case !p.AIEnabled():
		meta.Stages.AIRemainder = model.StatusSkipped
		meta.Stages.AIRemainderReason = "no credential"
		return nil
	case meta.RemainderLength <= p.cfg.MinRemainderLength:
		meta.Stages.AIRemainder = model.StatusNoneFound
		meta.Stages.AIRemainderReason = fmt.Sprintf("remainder %d characters, not above %d", meta.RemainderLength, p.cfg.MinRemainderLength)
		return nil
	}

	r.emit(StageAIRemainder, fmt.Sprintf("Asking %s about %d uncovered characters", p.enhancer.ProviderName(), meta.RemainderLength), nil)

	var res llm.RemainderResult
	if err := safely(func() {
		res = p.enhancer.ExtractRemainder(r.ctx, llm.RemainderRequest{
			Text:   remainder,
			Known:  known,
			Course: course,
			Env:    env,
		})
	}); err != nil {
		res.Outcome = llm.Outcome{Task: llm.TaskRemainder, Status: llm.StatusFailed, Reason: err.Error()}
		r.logger.Error("remainder stage panicked", zap.Error(err))
	}

	meta.Stages.AIRemainder, meta.Stages.AIRemainderReason = stageStatus(res.Outcome)
	meta.Counts.AIRemainder = len(res.Assignments)
	return res.Assignments
}

// runValidation runs the validation stage when a provider is configured. It
// returns the candidates with confirmed records enriched and rejected ones
// removed, plus newly discovered records.
func (p *Pipeline) runValidation(r *run, meta *model.Metadata, original string, regex []model.Assignment, course string, docType model.DocumentType, env extract.Env) ([]model.Assignment, []model.Assignment) {
	if !p.AIEnabled() {
		meta.Stages.AIValidate = model.StatusSkipped
		meta.Stages.AIValidateReason = "no credential"
		return regex, nil
	}

	r.emit(StageAIValidate, fmt.Sprintf("Validating %d pattern matches with %s", len(regex), p.enhancer.ProviderName()), nil)

	var res llm.ValidationResult
	if err := safely(func() {
		res = p.enhancer.Validate(r.ctx, llm.ValidationRequest{
			Original:     original,
			Candidates:   regex,
			Course:       course,
			DocumentType: docType,
			Env:          env,
		})
	}); err != nil {
		res = llm.ValidationResult{Outcome: llm.Outcome{Task: llm.TaskValidate, Status: llm.StatusFailed, Reason: err.Error()}}
		r.logger.Error("validation stage panicked", zap.Error(err))
	}

	meta.Stages.AIValidate, meta.Stages.AIValidateReason = stageStatus(res.Outcome)
	switch res.Outcome.Status {
	case llm.StatusFailed:
		meta.ValidationFailed = true
		return regex, nil
	case llm.StatusSalvaged:
		meta.ValidationFailed = true
		meta.Counts.AIDiscovered = len(res.Discovered)
		return regex, res.Discovered
	}

	candidates := ApplyValidation(regex, res.Validated, res.InvalidIDs)
	meta.Counts.AIValidated = len(res.Validated)
	meta.Counts.Invalidated = len(regex) - (len(candidates))
	meta.Counts.AIDiscovered = len(res.Discovered)
	return candidates, res.Discovered
}

// ApplyValidation replaces candidates with their validated versions (by id)
// and drops rejected ids, keeping the original order
func ApplyValidation(candidates, validated []model.Assignment, invalidIDs []string) []model.Assignment {
	byID := make(map[string]model.Assignment, len(validated))
	for _, v := range validated {
		byID[v.ID] = v
	}
	rejected := make(map[string]bool, len(invalidIDs))
	for _, id := range invalidIDs {
		rejected[id] = true
	}

	out := make([]model.Assignment, 0, len(candidates))
	for _, c := range candidates {
		if rejected[c.ID] {
			continue
		}
		if v, ok := byID[c.ID]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, c)
	}
	return out
}

func stageStatus(o llm.Outcome) (model.StageStatus, string) {
	switch o.Status {
	case llm.StatusOK:
		return model.StatusCompleted, ""
	case llm.StatusEmpty:
		return model.StatusNoneFound, ""
	case llm.StatusSalvaged:
		return model.StatusPartial, o.Reason
	default:
		return model.StatusFailed, o.Reason
	}
}

func docName(t model.DocumentType) string {
	if t == model.DocUnknown {
		return "generic"
	}
	return string(t)
}
