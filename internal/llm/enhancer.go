package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ppiankov/coursework/internal/cache"
	"github.com/ppiankov/coursework/internal/dedupe"
	"github.com/ppiankov/coursework/internal/extract"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/resilience"
)

// Provenance tags and confidences for records produced here
const (
	SourceRemainder  = "ai-remainder"
	SourceValidated  = "regex-ai-validated"
	SourceDiscovered = "ai-discovered"

	ConfidenceRemainder  = 0.75
	ConfidenceValidated  = 0.9
	ConfidenceDiscovered = 0.7
	ConfidenceSalvaged   = 0.5
)

// Task names one kind of request
type Task string

const (
	TaskRemainder Task = "remainder"
	TaskValidate  Task = "validate"
)

// Status is how a task ended
type Status string

const (
	StatusOK       Status = "ok"
	StatusEmpty    Status = "empty"
	StatusSalvaged Status = "salvaged"
	StatusFailed   Status = "failed"
)

// Outcome describes one task without exposing the underlying error
type Outcome struct {
	Task     Task
	Status   Status
	Reason   string
	Attempts int
	Cached   bool
	Duration time.Duration
}

// Failed reports whether the task produced nothing usable
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

// RemainderRequest asks for assignments in text the extractors missed
type RemainderRequest struct {
	Text   string
	Known  []model.Assignment
	Course string
	Env    extract.Env
}

// RemainderResult carries normalized assignments mined from the remainder
type RemainderResult struct {
	Assignments []model.Assignment
	Outcome     Outcome
}

// ValidationRequest asks the model to confirm, correct or reject candidates
type ValidationRequest struct {
	Original     string
	Candidates   []model.Assignment
	Course       string
	DocumentType model.DocumentType
	Env          extract.Env
}

// ValidationResult splits the model's verdict. Validated records keep the
// id of the candidate they confirm.
type ValidationResult struct {
	Validated  []model.Assignment
	InvalidIDs []string
	Discovered []model.Assignment
	Outcome    Outcome
}

// Enhancer issues remainder-mining and validation requests. Failures never
// escape as errors; they are reported through Outcome.
type Enhancer struct {
	provider Provider
	model    string
	exec     *resilience.Executor
	limiter  *rate.Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	maxInput int
	logger   *zap.Logger
	observe  func(Outcome)
}

// Option configures an Enhancer
type Option func(*Enhancer)

// WithCache serves identical prompts from c
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(e *Enhancer) {
		e.cache = c
		e.cacheTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enhancer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutor replaces the retry and breaker policy
func WithExecutor(exec *resilience.Executor) Option {
	return func(e *Enhancer) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithObserver is called once per finished task, e.g. to record metrics
func WithObserver(fn func(Outcome)) Option {
	return func(e *Enhancer) { e.observe = fn }
}

// WithMaxInput bounds the document text per request
func WithMaxInput(n int) Option {
	return func(e *Enhancer) { e.maxInput = n }
}

// NewEnhancer wraps provider with the configured timeout, rate limit and
// retry policy. A nil provider yields a disabled enhancer.
func NewEnhancer(provider Provider, cfg Config, opts ...Option) *Enhancer {
	e := &Enhancer{
		provider: provider,
		model:    cfg.Model,
		timeout:  cfg.RequestTimeout(),
		maxInput: DefaultMaxInput,
		logger:   zap.NewNop(),
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	policy := resilience.DefaultConfig()
	if cfg.RetryAttempts > 0 {
		policy.RetryMaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBackoff > 0 {
		policy.RetryInitialBackoff = cfg.RetryBackoff
	}
	if cfg.RetryMaxBackoff > 0 {
		policy.RetryMaxBackoff = cfg.RetryMaxBackoff
	}
	policy.BreakerEnabled = cfg.BreakerEnabled

	for _, opt := range opts {
		opt(e)
	}
	if e.exec == nil {
		e.exec = resilience.NewExecutor(policy, e.logger)
	}
	return e
}

// Enabled reports whether a provider is configured
func (e *Enhancer) Enabled() bool {
	return e != nil && e.provider != nil
}

// ProviderName returns the provider name, or "" when disabled
func (e *Enhancer) ProviderName() string {
	if !e.Enabled() {
		return ""
	}
	return e.provider.Name()
}

// ExtractRemainder mines text not covered by the extractors. Records that
// duplicate known assignments are dropped.
func (e *Enhancer) ExtractRemainder(ctx context.Context, req RemainderRequest) (res RemainderResult) {
	start := time.Now()
	res.Outcome = Outcome{Task: TaskRemainder}
	defer func() { e.finish(&res.Outcome, start) }()

	if !e.Enabled() {
		res.Outcome.Status, res.Outcome.Reason = StatusFailed, "no provider configured"
		return res
	}

	n := normalizer{env: req.Env, course: req.Course}
	user := buildRemainderPrompt(req.Text, req.Known, req.Course, defaultYear(req.Env), e.maxInput)
	content, key, err := e.complete(ctx, &res.Outcome, remainderSystem, user)
	if err != nil {
		res.Outcome.Status, res.Outcome.Reason = StatusFailed, err.Error()
		return res
	}

	payload, err := decodeRemainder(content)
	if err != nil {
		for _, f := range Salvage(content) {
			if a, ok := n.fragment(f, SourceRemainder); ok && !dedupe.IsDuplicate(a, req.Known) {
				res.Assignments = append(res.Assignments, a)
			}
		}
		if len(res.Assignments) == 0 {
			res.Outcome.Status, res.Outcome.Reason = StatusFailed, "malformed response"
			return res
		}
		res.Outcome.Status, res.Outcome.Reason = StatusSalvaged, "malformed response"
		return res
	}
	e.store(key, content)

	for _, w := range payload.Assignments {
		a, ok := n.assignment(w, SourceRemainder, ConfidenceRemainder)
		if !ok || dedupe.IsDuplicate(a, req.Known) || dedupe.IsDuplicate(a, res.Assignments) {
			continue
		}
		res.Assignments = append(res.Assignments, a)
	}
	res.Outcome.Status = StatusOK
	if len(res.Assignments) == 0 {
		res.Outcome.Status = StatusEmpty
	}
	return res
}

// Validate asks the model to confirm, correct or reject candidates and to
// report anything the matcher missed
func (e *Enhancer) Validate(ctx context.Context, req ValidationRequest) (res ValidationResult) {
	start := time.Now()
	res.Outcome = Outcome{Task: TaskValidate}
	defer func() { e.finish(&res.Outcome, start) }()

	if !e.Enabled() {
		res.Outcome.Status, res.Outcome.Reason = StatusFailed, "no provider configured"
		return res
	}

	n := normalizer{env: req.Env, course: req.Course}
	user := buildValidationPrompt(req.Original, req.Candidates, req.Course, req.DocumentType, defaultYear(req.Env), e.maxInput)
	content, key, err := e.complete(ctx, &res.Outcome, validateSystem, user)
	if err != nil {
		res.Outcome.Status, res.Outcome.Reason = StatusFailed, err.Error()
		return res
	}

	payload, err := decodeValidation(content)
	if err != nil {
		for _, f := range Salvage(content) {
			if a, ok := n.fragment(f, SourceDiscovered); ok && !dedupe.IsDuplicate(a, req.Candidates) {
				res.Discovered = append(res.Discovered, a)
			}
		}
		res.Outcome.Status, res.Outcome.Reason = StatusFailed, "malformed response"
		if len(res.Discovered) > 0 {
			res.Outcome.Status = StatusSalvaged
		}
		return res
	}
	e.store(key, content)

	byID := make(map[string]model.Assignment, len(req.Candidates))
	for _, c := range req.Candidates {
		byID[c.ID] = c
	}

	confirmed := make(map[string]bool)
	for _, w := range payload.Validated {
		orig, known := byID[w.ID]
		if !known {
			payload.Discovered = append(payload.Discovered, w)
			continue
		}
		if confirmed[w.ID] {
			continue
		}
		confirmed[w.ID] = true
		res.Validated = append(res.Validated, n.enrich(orig, w))
	}

	rejected := make(map[string]bool)
	for _, id := range payload.InvalidIDs {
		if _, known := byID[id]; known && !confirmed[id] && !rejected[id] {
			rejected[id] = true
			res.InvalidIDs = append(res.InvalidIDs, id)
		}
	}

	for _, w := range payload.Discovered {
		a, ok := n.assignment(w, SourceDiscovered, ConfidenceDiscovered)
		if !ok || dedupe.IsDuplicate(a, req.Candidates) || dedupe.IsDuplicate(a, res.Discovered) {
			continue
		}
		res.Discovered = append(res.Discovered, a)
	}

	res.Outcome.Status = StatusOK
	if len(res.Validated)+len(res.InvalidIDs)+len(res.Discovered) == 0 {
		res.Outcome.Status = StatusEmpty
	}
	return res
}

// complete runs one request through the cache, limiter, per-attempt
// timeout and retry policy
func (e *Enhancer) complete(ctx context.Context, out *Outcome, system, user string) (content, key string, err error) {
	key = cache.CacheKey(e.provider.Name(), e.model, system, user)
	if cache.GetJSON(e.cache, key, &content) {
		out.Cached = true
		return content, "", nil
	}

	err = e.exec.Execute(ctx, "llm."+string(out.Task), func(ctx context.Context) error {
		out.Attempts++
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.provider.Complete(attemptCtx, CompletionRequest{
			System: system,
			User:   user,
			JSON:   true,
		})
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("request timed out after %s: %w", e.timeout, context.DeadlineExceeded)
			}
			return err
		}
		content = resp.Content
		return nil
	}, Classify)
	if err != nil {
		return "", "", err
	}
	return content, key, nil
}

func (e *Enhancer) store(key, content string) {
	if key == "" || e.cache == nil {
		return
	}
	if err := cache.SetJSON(e.cache, key, content, e.cacheTTL); err != nil {
		e.logger.Warn("cache completion", zap.Error(err))
	}
}

func (e *Enhancer) finish(o *Outcome, start time.Time) {
	o.Duration = time.Since(start)
	fields := []zap.Field{
		zap.String("task", string(o.Task)),
		zap.String("status", string(o.Status)),
		zap.Int("attempts", o.Attempts),
		zap.Bool("cached", o.Cached),
		zap.Duration("duration", o.Duration),
	}
	if o.Failed() {
		e.logger.Warn("language model task failed", append(fields, zap.String("reason", o.Reason))...)
	} else {
		e.logger.Debug("language model task finished", fields...)
	}
	if e.observe != nil {
		e.observe(*o)
	}
}

func defaultYear(env extract.Env) int {
	if env.Resolver == nil {
		return time.Now().Year()
	}
	return env.Resolver.DefaultYear()
}

func newID() string {
	return uuid.NewString()
}
