package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/coursework/internal/domain"
	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
)

var (
	parseCourse      string
	parseDocType     string
	parseUserCourses []string
	parseYear        int
	parseDomain      string
	parseOverrides   string
	parseProvider    string
	parseModel       string
	parseFormat      string
	parseOut         string
	parseProgress    bool
	parseNoCache     bool
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file|url|->",
	Short: "Extract assignments from one course document",
	Long: `Parse runs the full extraction pipeline on a single document:
- Read the document from a file, a URL, or stdin ("-")
- Convert HTML to text and classify the document shape
- Extract assignments and dates with domain-aware patterns
- Optionally mine the remainder and validate results with an LLM
- Print the structured result as JSON or a one-line summary

Example:
  coursework parse week3.html --course "NURS 210"
  coursework parse https://canvas.example.edu/courses/1/assignments --type canvas-assignments
  pbpaste | coursework parse - --llm-provider openai --progress`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseCourse, "course", "", "course code or name (inferred when empty)")
	parseCmd.Flags().StringVar(&parseDocType, "type", "", "document type hint (canvas-modules, canvas-assignments, syllabus, schedule, mixed)")
	parseCmd.Flags().StringSliceVar(&parseUserCourses, "user-course", nil, "known course codes used for course inference (repeatable)")
	parseCmd.Flags().IntVar(&parseYear, "year", 0, "year for dates written without one (default: current year)")
	parseCmd.Flags().StringVar(&parseDomain, "domain", "", "force a subject domain (see 'coursework domains')")
	parseCmd.Flags().StringVar(&parseOverrides, "overrides", "", "domain overrides YAML file")
	parseCmd.Flags().StringVar(&parseProvider, "llm-provider", "", "LLM provider (openai, anthropic, ollama); empty disables AI stages")
	parseCmd.Flags().StringVar(&parseModel, "llm-model", "", "LLM model name")
	parseCmd.Flags().StringVar(&parseFormat, "format", "json", "output format: json or summary")
	parseCmd.Flags().StringVarP(&parseOut, "out", "o", "", "write output to file instead of stdout")
	parseCmd.Flags().BoolVar(&parseProgress, "progress", false, "print stage progress to stderr")
	parseCmd.Flags().BoolVar(&parseNoCache, "no-cache", false, "disable the LLM response cache")
}

func runParse(cmd *cobra.Command, args []string) error {
	if parseFormat != "json" && parseFormat != "summary" {
		return fmt.Errorf("unknown format %q (supported: json, summary)", parseFormat)
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{history: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := readInput(ctx, a, args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts, err := parseOptions()
	if err != nil {
		return err
	}

	var onProgress pipeline.ProgressFunc
	if parseProgress {
		errOut := cmd.ErrOrStderr()
		onProgress = func(p pipeline.Progress) {
			fmt.Fprintf(errOut, "[%-14s] %s\n", p.Stage, p.Message)
		}
	}

	res, err := a.pipeline.Parse(ctx, text, opts, onProgress)
	if err != nil {
		a.logger.Error("parse failed", zap.String("source", args[0]), zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	if parseOut != "" {
		f, err := os.Create(parseOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	return writeResult(out, res, parseFormat)
}

// applyLLMFlags lets explicit flags win over config and environment
func applyLLMFlags(cmd *cobra.Command, cfg *model.Config) {
	if cmd.Flags().Changed("llm-provider") {
		cfg.LLM.Provider = parseProvider
	}
	if cmd.Flags().Changed("llm-model") {
		cfg.LLM.Model = parseModel
	}
}

func parseOptions() (pipeline.Options, error) {
	opts := pipeline.Options{
		Course:       parseCourse,
		DocumentType: model.ParseDocumentType(parseDocType),
		UserCourses:  parseUserCourses,
		DefaultYear:  parseYear,
	}
	if parseDomain != "" {
		if _, ok := domain.ParseDomain(parseDomain); !ok {
			return opts, fmt.Errorf("unknown domain %q (see 'coursework domains')", parseDomain)
		}
		opts.Overrides = &domain.Overrides{Domain: parseDomain}
		if parseOverrides != "" {
			ov, err := domain.LoadOverrides(parseOverrides)
			if err != nil {
				return opts, err
			}
			ov.Domain = parseDomain
			opts.Overrides = ov
		}
	}
	return opts, nil
}

// readInput loads the document from stdin, a URL or a file
func readInput(ctx context.Context, a *app, src string, stdin io.Reader) (string, error) {
	switch {
	case src == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case pipeline.IsURL(src):
		fr, err := a.fetcher.FetchWithRetry(ctx, src)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", src, err)
		}
		if fr.Truncated {
			a.logger.Warn("document truncated", zap.String("url", src), zap.Int64("max_bytes", a.cfg.HTTP.MaxBodyBytes))
		}
		return fr.Text, nil
	default:
		data, err := os.ReadFile(src)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", model.WrapError(model.ErrInvalidInput, "read", fmt.Errorf("file not found: %s", src))
			}
			return "", fmt.Errorf("read %s: %w", src, err)
		}
		return string(data), nil
	}
}

func writeResult(w io.Writer, res *model.ParseResult, format string) error {
	if format == "summary" {
		_, err := fmt.Fprintln(w, strings.TrimSpace(pipeline.Summarize(res)))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
