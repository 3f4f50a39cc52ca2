package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/server"
)

var (
	serveAddr            string
	serveShutdownTimeout time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the parser over HTTP",
	Long: `Serve exposes the extraction pipeline as an HTTP API:
- POST /api/v1/parse          parse text or a URL, return the result
- POST /api/v1/parse/stream   same, streaming stage progress as server-sent events
- GET  /api/v1/domains        list subject domains and hour estimates
- GET  /api/v1/history        list recorded parses for a course (needs database.dsn)
- GET  /api/v1/history/:id    fetch one recorded parse
- GET  /health, /metrics

Example:
  coursework serve --addr :8080
  COURSEWORK_DATABASE_DSN=postgres://localhost/coursework coursework serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	serveCmd.Flags().StringVar(&parseProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama); empty disables AI stages")
	serveCmd.Flags().StringVar(&parseModel, "llm-model", "", "LLM model name")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLLMFlags(cmd, cfg)
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{history: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []server.Option{
		server.WithFetcher(a.fetcher),
		server.WithMetrics(a.metrics.Handler()),
	}
	if a.history != nil {
		opts = append(opts, server.WithHistory(a.history))
	}

	srv, err := server.New(a.pipeline, a.logger, server.Config{
		Addr:         cfg.Server.Addr,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Version:      Version,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return <-errCh
}
