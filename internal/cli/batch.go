package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/coursework/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Parse many course documents from a list file in parallel",
	Long: `Batch parses many documents concurrently:
- Read sources from the input file (one file path or URL per line)
- "COURSE | source" lines set the course for that source
- Parse sources in parallel with a configurable worker count
- Remote sources are rate limited per host
- Write one JSON result per source to the output directory

Example:
  coursework batch sources.txt
  coursework batch sources.txt --concurrency 8 --output-dir ./results
  coursework batch sources.txt --llm-provider ollama --llm-model llama3.1:8b --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./coursework-results", "output directory for results")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")

	batchCmd.Flags().IntVar(&parseYear, "year", 0, "year for dates written without one (default: current year)")
	batchCmd.Flags().StringVar(&parseDocType, "type", "", "document type hint applied to every source")
	batchCmd.Flags().StringVar(&parseDomain, "domain", "", "force a subject domain for every source")
	batchCmd.Flags().StringVar(&parseOverrides, "overrides", "", "domain overrides YAML file")
	batchCmd.Flags().StringVar(&parseProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama); empty disables AI stages")
	batchCmd.Flags().StringVar(&parseModel, "llm-model", "", "LLM model name")
	batchCmd.Flags().BoolVar(&parseNoCache, "no-cache", false, "disable the LLM response cache")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLLMFlags(cmd, cfg)
	if parseNoCache {
		cfg.Cache.Enabled = false
	}
	if parseOverrides != "" {
		cfg.Parser.OverridesFile = parseOverrides
	}
	if cmd.Flags().Changed("concurrency") || cfg.Concurrency.Workers <= 0 {
		cfg.Concurrency.Workers = concurrency
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, batchTimeout)
	defer cancel()

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "  Coursework Batch Processing\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "  Input file:   %s\n", file)
	fmt.Fprintf(out, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(out, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(out, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(out, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(out, "\n")

	opts, err := parseOptions()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	a, err := newApp(ctx, cfg, appOptions{history: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	processor := worker.NewBatchProcessor(
		a.pipeline,
		a.fetcher,
		cfg.Concurrency.Workers,
		cfg.RateLimiting.RequestsPerSecond,
		cfg.RateLimiting.BurstSize,
		a.logger,
	)

	fmt.Fprintf(out, "⚙️  Parsing sources with %d workers...\n\n", cfg.Concurrency.Workers)
	results, err := processor.ProcessFile(ctx, file, opts)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount, failureCount := 0, 0
	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(out, "✗ %s: %v\n", result.Source.Location, result.Error)
			continue
		}

		path := filepath.Join(outputDir, resultFilename(result.Index, result.Source.Location))
		if err := writeResultFile(path, result); err != nil {
			failureCount++
			fmt.Fprintf(out, "✗ %s: failed to write JSON: %v\n", result.Source.Location, err)
			continue
		}

		successCount++
		fmt.Fprintf(out, "✓ %s (%d assignments, confidence %.2f, %v)\n",
			result.Source.Location,
			len(result.Result.Assignments),
			result.Result.Metadata.Confidence,
			result.Duration.Round(time.Millisecond))
	}

	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "  Batch Complete\n")
	fmt.Fprintf(out, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "  Total:     %d sources\n", len(results))
	fmt.Fprintf(out, "  Success:   %d\n", successCount)
	fmt.Fprintf(out, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(out, "  Output:    %s\n", outputDir)
	fmt.Fprintf(out, "\n")

	if successCount == 0 && failureCount > 0 {
		return fmt.Errorf("all %d sources failed", failureCount)
	}
	return nil
}

func writeResultFile(path string, result *worker.ParseResult) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return writeResult(f, result.Result, "json")
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"&", "_",
	"=", "_",
	" ", "-",
)

// resultFilename builds a stable, filesystem-safe name for one source.
// The index prefix keeps names unique when two sources share a base name.
func resultFilename(index int, location string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(location, "https://"), "http://")
	s = strings.TrimSuffix(s, "/")
	if !strings.Contains(location, "://") {
		s = filepath.Base(s)
	}
	s = filenameReplacer.Replace(s)
	if len(s) > 100 {
		s = s[:100]
	}
	if s == "" || s == "." {
		s = "source"
	}
	return fmt.Sprintf("%03d-%s.json", index+1, s)
}
