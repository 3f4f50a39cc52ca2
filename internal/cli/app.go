package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/cache"
	"github.com/ppiankov/coursework/internal/events"
	"github.com/ppiankov/coursework/internal/history"
	"github.com/ppiankov/coursework/internal/llm"
	"github.com/ppiankov/coursework/internal/logging"
	"github.com/ppiankov/coursework/internal/metrics"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
)

// app holds every collaborator built from one configuration
type app struct {
	cfg       *model.Config
	logger    *zap.Logger
	pipeline  *pipeline.Pipeline
	fetcher   *pipeline.Fetcher
	enhancer  *llm.Enhancer
	metrics   *metrics.ParseMetrics
	history   *history.Repository
	publisher *events.Publisher
	closers   []func()
}

// appOptions select the optional collaborators a command needs
type appOptions struct {
	history bool
	events  bool
}

func newApp(ctx context.Context, cfg *model.Config, opts appOptions) (*app, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	enhancer, err := a.buildEnhancer()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.enhancer = enhancer

	a.fetcher = pipeline.NewFetcher(
		cfg.HTTP.Timeout,
		cfg.HTTP.UserAgent,
		cfg.HTTP.MaxBodyBytes,
		cfg.HTTP.RespectRobots,
		cfg.HTTP.HTTPProxy,
		cfg.HTTP.HTTPSProxy,
		cfg.HTTP.NoProxy,
	)

	pipeOpts := []pipeline.Option{
		pipeline.WithEnhancer(enhancer),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.metrics),
	}

	if opts.history && cfg.Database.DSN != "" {
		db, err := history.OpenDB(ctx, cfg.Database.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.history = history.NewRepository(db)
		if err := a.history.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("prepare history schema: %w", err)
		}
		pipeOpts = append(pipeOpts, pipeline.WithRecorder(a.history))
		logger.Info("parse history enabled")
	}

	if opts.events && cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject, events.Options{Logger: logger})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		a.closers = append(a.closers, func() {
			_ = pub.Flush(2 * time.Second)
			pub.Close()
		})
		pipeOpts = append(pipeOpts, pipeline.WithPublisher(pub))
		logger.Info("progress events enabled", zap.String("subject", cfg.Events.Subject))
	}

	p, err := pipeline.New(cfg.Parser, pipeOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	a.pipeline = p
	return a, nil
}

// buildEnhancer returns a disabled enhancer when no provider is configured
func (a *app) buildEnhancer() (*llm.Enhancer, error) {
	llmCfg := llm.ConfigFromModel(a.cfg.LLM, a.cfg.HTTP)
	llmCfg, err := llm.ApplyEnv(llmCfg)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}

	opts := []llm.Option{
		llm.WithLogger(a.logger),
		llm.WithObserver(a.metrics.ObserveLLM),
	}
	if a.cfg.Cache.Enabled {
		c := cache.NewLayeredCache(a.cfg.Cache.MemoryTTL, a.cfg.Cache.Dir, a.cfg.Cache.DiskTTL)
		opts = append(opts, llm.WithCache(c, a.cfg.Cache.DiskTTL))
	}
	if provider != nil {
		a.logger.Info("AI enhancement enabled",
			zap.String("provider", provider.Name()),
			zap.String("model", llmCfg.Model))
	}
	return llm.NewEnhancer(provider, llmCfg, opts...), nil
}

// Close releases collaborators in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
