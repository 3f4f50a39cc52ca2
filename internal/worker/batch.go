package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
)

// Parser runs the extraction pipeline on one document
type Parser interface {
	Parse(ctx context.Context, text string, opts pipeline.Options, onProgress pipeline.ProgressFunc) (*model.ParseResult, error)
}

// Fetcher retrieves remote documents
type Fetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*pipeline.FetchResult, error)
}

// crawlDelayer is implemented by fetchers that honour robots.txt
type crawlDelayer interface {
	CrawlDelay(ctx context.Context, rawURL string) time.Duration
}

// Source is one batch input: a file path or an http(s) URL, with an
// optional course label
type Source struct {
	Location string
	Course   string
}

// ParseJob parses one source
type ParseJob struct {
	index  int
	source Source
	opts   pipeline.Options
	batch  *BatchProcessor
}

// Index returns the job's position in the batch
func (j *ParseJob) Index() int { return j.index }

// Execute loads the source and parses it
func (j *ParseJob) Execute(ctx context.Context) Result {
	start := time.Now()
	res := &ParseResult{Index: j.index, Source: j.source}
	defer func() { res.Duration = time.Since(start) }()

	text, err := j.batch.load(ctx, j.source.Location)
	if err != nil {
		res.Error = err
		return res
	}

	opts := j.opts
	if j.source.Course != "" {
		opts.Course = j.source.Course
	}
	res.Result, res.Error = j.batch.parser.Parse(ctx, text, opts, nil)
	return res
}

// ParseResult is the outcome of one ParseJob
type ParseResult struct {
	Index    int
	Source   Source
	Result   *model.ParseResult
	Error    error
	Duration time.Duration
}

// JobIndex returns the job's position in the batch
func (r *ParseResult) JobIndex() int { return r.Index }

// GetError returns the load or parse error
func (r *ParseResult) GetError() error { return r.Error }

// BatchProcessor parses many documents concurrently
type BatchProcessor struct {
	parser      Parser
	fetcher     Fetcher
	limiter     *Limiter
	concurrency int
	logger      *zap.Logger
	tuned       sync.Map // host -> struct{}; crawl delay already applied
}

// NewBatchProcessor creates a batch processor. fetcher may be nil when
// every source is a local file.
func NewBatchProcessor(parser Parser, fetcher Fetcher, concurrency int, requestsPerSecond float64, burst int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		parser:      parser,
		fetcher:     fetcher,
		limiter:     NewLimiter(requestsPerSecond, burst),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Process parses every source and returns one result per source, in
// input order
func (b *BatchProcessor) Process(ctx context.Context, sources []Source, opts pipeline.Options) []*ParseResult {
	if len(sources) == 0 {
		return []*ParseResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()
	for i, src := range sources {
		if !pool.Submit(&ParseJob{index: i, source: src, opts: opts, batch: b}) {
			break
		}
	}
	results := pool.Wait()

	out := make([]*ParseResult, len(sources))
	for _, r := range results {
		pr := r.(*ParseResult)
		out[pr.Index] = pr
	}
	for i := range out {
		if out[i] == nil {
			out[i] = &ParseResult{Index: i, Source: sources[i], Error: fmt.Errorf("not processed: %w", context.Cause(ctx))}
		}
		if out[i].Error != nil {
			b.logger.Warn("batch item failed", zap.String("source", out[i].Source.Location), zap.Error(out[i].Error))
		}
	}
	return out
}

// ProcessFile reads sources from a file and parses them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string, opts pipeline.Options) ([]*ParseResult, error) {
	sources, err := ReadSourcesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return b.Process(ctx, sources, opts), nil
}

func (b *BatchProcessor) load(ctx context.Context, location string) (string, error) {
	if !pipeline.IsURL(location) {
		data, err := os.ReadFile(location)
		if err != nil {
			return "", model.WrapError(model.ErrInvalidInput, "read", err)
		}
		return string(data), nil
	}
	if b.fetcher == nil {
		return "", fmt.Errorf("fetch %s: no fetcher configured", location)
	}
	b.applyCrawlDelay(ctx, location)
	if err := b.limiter.Wait(ctx, location); err != nil {
		return "", err
	}
	fr, err := b.fetcher.FetchWithRetry(ctx, location)
	if err != nil {
		return "", err
	}
	if fr.Truncated {
		b.logger.Warn("document truncated", zap.String("source", location))
	}
	return fr.Text, nil
}

// applyCrawlDelay slows a host down to its robots.txt crawl delay the first
// time the batch meets it. A delay never speeds a host up.
func (b *BatchProcessor) applyCrawlDelay(ctx context.Context, location string) {
	cd, ok := b.fetcher.(crawlDelayer)
	if !ok {
		return
	}
	host, ok := hostOf(location)
	if !ok {
		return
	}
	if _, seen := b.tuned.LoadOrStore(host, struct{}{}); seen {
		return
	}
	delay := cd.CrawlDelay(ctx, location)
	if delay <= 0 {
		return
	}
	perSecond := 1 / delay.Seconds()
	if b.limiter.defaultRate != rate.Inf && float64(b.limiter.defaultRate) < perSecond {
		return
	}
	b.limiter.SetHostRate(host, perSecond, 1)
	b.logger.Info("honouring crawl delay", zap.String("host", host), zap.Duration("delay", delay))
}

// ReadSourcesFromFile reads one source per line. Blank lines and # comments
// are skipped, duplicates are dropped, and "COURSE | source" sets the
// course for that source.
func ReadSourcesFromFile(filePath string) ([]Source, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var sources []Source
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		src := Source{Location: line}
		if course, loc, ok := strings.Cut(line, "|"); ok {
			src = Source{Location: strings.TrimSpace(loc), Course: strings.TrimSpace(course)}
		}
		if src.Location == "" || seen[src.Location] {
			continue
		}
		seen[src.Location] = true
		sources = append(sources, src)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return sources, nil
}
