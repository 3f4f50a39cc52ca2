package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/coursework/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "v0.1.0-dev"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "coursework",
	Short: "Coursework - extract assignments and due dates from course documents",
	Long: `Coursework reads course documents (LMS module pages, assignment lists,
syllabi, schedules) and produces a structured list of assignments with
due dates, types, effort estimates and confidence.

Pattern extraction always runs. When a language-model provider is
configured, two extra stages mine text the patterns missed and validate
what they found. Without a provider, the result is the pattern-only
extraction.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "coursework %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.coursework/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".coursework"))
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// COURSEWORK_LLM_PROVIDER overrides llm.provider, and so on
	viper.SetEnvPrefix("COURSEWORK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(model.DefaultConfig())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the config file
func setDefaults(d *model.Config) {
	viper.SetDefault("parser.default_year", d.Parser.DefaultYear)
	viper.SetDefault("parser.semester_start", d.Parser.SemesterStart)
	viper.SetDefault("parser.semester_end", d.Parser.SemesterEnd)
	viper.SetDefault("parser.min_remainder_length", d.Parser.MinRemainderLength)
	viper.SetDefault("parser.past_date_fallback_days", d.Parser.PastDateFallback)
	viper.SetDefault("parser.overrides_file", d.Parser.OverridesFile)

	viper.SetDefault("llm.provider", d.LLM.Provider)
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.api_key", d.LLM.APIKey)
	viper.SetDefault("llm.base_url", d.LLM.BaseURL)
	viper.SetDefault("llm.timeout", d.LLM.Timeout)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	viper.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)
	viper.SetDefault("llm.retry_attempts", d.LLM.RetryAttempts)
	viper.SetDefault("llm.retry_backoff", d.LLM.RetryBackoff)
	viper.SetDefault("llm.retry_max_backoff", d.LLM.RetryMaxBackoff)
	viper.SetDefault("llm.breaker_enabled", d.LLM.BreakerEnabled)

	viper.SetDefault("cache.enabled", d.Cache.Enabled)
	viper.SetDefault("cache.dir", d.Cache.Dir)
	viper.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	viper.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)

	viper.SetDefault("http.timeout", d.HTTP.Timeout)
	viper.SetDefault("http.user_agent", d.HTTP.UserAgent)
	viper.SetDefault("http.max_body_bytes", d.HTTP.MaxBodyBytes)
	viper.SetDefault("http.respect_robots", d.HTTP.RespectRobots)
	viper.SetDefault("http.http_proxy", d.HTTP.HTTPProxy)
	viper.SetDefault("http.https_proxy", d.HTTP.HTTPSProxy)
	viper.SetDefault("http.no_proxy", d.HTTP.NoProxy)

	viper.SetDefault("concurrency.workers", d.Concurrency.Workers)
	viper.SetDefault("rate_limiting.requests_per_second", d.RateLimiting.RequestsPerSecond)
	viper.SetDefault("rate_limiting.burst_size", d.RateLimiting.BurstSize)

	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	viper.SetDefault("database.dsn", d.Database.DSN)
	viper.SetDefault("events.nats_url", d.Events.NATSURL)
	viper.SetDefault("events.subject", d.Events.Subject)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
}

// loadConfig resolves flags, environment, config file and defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}
