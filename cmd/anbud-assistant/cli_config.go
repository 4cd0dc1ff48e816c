package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	configpkg "github.com/minhyannv/anbud-assistant-go/pkg/config"
)

// envFiles are loaded in order; variables already set are never overwritten,
// so earlier files win over later ones and the process env wins over both.
var envFiles = []string{".env.local", ".env"}

func loadEnvFiles() {
	for _, name := range envFiles {
		_ = godotenv.Load(name)
	}
}

// cliFlags holds the persistent flags shared by every command.
type cliFlags struct {
	model           string
	baseURL         string
	pollInterval    time.Duration
	runTimeout      time.Duration
	messageOrder    string
	logFile         string
	consultantsFile string
	summaryFile     string
	allowedDirs     stringSliceFlag
	metricsAddr     string
	verbose         bool
}

func (f *cliFlags) register(fs *pflag.FlagSet) {
	defaults := configpkg.DefaultConfig()
	fs.StringVar(&f.model, "model", defaults.Model, "Model used for assistants and completions (env OPENAI_MODEL)")
	fs.StringVar(&f.baseURL, "base_url", "", "OpenAI API base URL (env OPENAI_BASE_URL)")
	fs.DurationVar(&f.pollInterval, "poll_interval", defaults.PollInterval, "Wait between run status reads")
	fs.DurationVar(&f.runTimeout, "run_timeout", defaults.RunTimeout, "Give up waiting for a run after this long (0 waits forever)")
	fs.StringVar(&f.messageOrder, "message_order", defaults.MessageOrder, "Message listing order used to find the reply: desc or asc")
	fs.StringVar(&f.logFile, "log_file", defaults.LogFile, "Append-only audit log (set empty to disable)")
	fs.StringVar(&f.consultantsFile, "consultants", defaults.ConsultantsFile, "Consultant profiles JSON for the competency matrix")
	fs.StringVar(&f.summaryFile, "summary", "", "Tender summary text for the competency matrix (empty uses the built-in sample)")
	fs.Var(&f.allowedDirs, "allowed_dir", "Directory uploads may be read from. Repeat this flag for multiple directories; empty allows any path")
	fs.StringVar(&f.metricsAddr, "metrics_addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.BoolVar(&f.verbose, "verbose", defaults.Verbose, "Verbose diagnostic logging")
}

// resolveConfig layers env over defaults and explicitly set flags over env.
func resolveConfig(fs *pflag.FlagSet, f *cliFlags, getenv func(string) string) (configpkg.Config, error) {
	cfg := configpkg.DefaultConfig()
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg.APIKey = env("OPENAI_API_KEY")
	cfg.BaseURL = env("OPENAI_BASE_URL")
	if v := env("OPENAI_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := env("ANBUD_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ANBUD_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}
	if v := env("ANBUD_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("ANBUD_RUN_TIMEOUT: %w", err)
		}
		cfg.RunTimeout = d
	}
	if v := env("ANBUD_MESSAGE_ORDER"); v != "" {
		cfg.MessageOrder = v
	}
	if v := env("ANBUD_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := env("ANBUD_CONSULTANTS_FILE"); v != "" {
		cfg.ConsultantsFile = v
	}
	cfg.SummaryFile = env("ANBUD_SUMMARY_FILE")
	if v := env("ANBUD_ALLOWED_DIR"); v != "" {
		cfg.AllowedDirs = []string{v}
	}
	cfg.MetricsAddr = env("ANBUD_METRICS_ADDR")
	if v := env("ANBUD_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("ANBUD_VERBOSE: %w", err)
		}
		cfg.Verbose = b
	}

	if fs.Changed("model") {
		cfg.Model = f.model
	}
	if fs.Changed("base_url") {
		cfg.BaseURL = f.baseURL
	}
	if fs.Changed("poll_interval") {
		cfg.PollInterval = f.pollInterval
	}
	if fs.Changed("run_timeout") {
		cfg.RunTimeout = f.runTimeout
	}
	if fs.Changed("message_order") {
		cfg.MessageOrder = f.messageOrder
	}
	if fs.Changed("log_file") {
		cfg.LogFile = f.logFile
	}
	if fs.Changed("consultants") {
		cfg.ConsultantsFile = f.consultantsFile
	}
	if fs.Changed("summary") {
		cfg.SummaryFile = f.summaryFile
	}
	if fs.Changed("allowed_dir") {
		cfg.AllowedDirs = f.allowedDirs.values()
	}
	if fs.Changed("metrics_addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if fs.Changed("verbose") {
		cfg.Verbose = f.verbose
	}

	cfg = configpkg.Normalize(cfg)
	return cfg, configpkg.Validate(cfg)
}

// stringSliceFlag supports repeatable --allowed_dir flags.
type stringSliceFlag []string

func (f *stringSliceFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ",")
}

func (f *stringSliceFlag) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty directory")
	}
	if strings.Contains(value, ",") {
		return fmt.Errorf("comma-separated values are not supported for --allowed_dir; repeat the flag instead")
	}
	*f = append(*f, value)
	return nil
}

func (f *stringSliceFlag) Type() string { return "dir" }

func (f stringSliceFlag) values() []string {
	out := make([]string, len(f))
	copy(out, f)
	return out
}
