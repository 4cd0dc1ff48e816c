package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultModel is the model used when OPENAI_MODEL is unset.
const DefaultModel = "gpt-4-turbo-preview"

// Config holds all runtime configuration for the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// PollInterval is the wait between two run status reads.
	PollInterval time.Duration
	// RunTimeout bounds one run wait; zero disables the bound.
	RunTimeout time.Duration
	// MessageOrder is the listing order used to find the newest reply: "desc" or "asc".
	MessageOrder string

	LogFile         string
	ConsultantsFile string
	SummaryFile     string
	AllowedDirs     []string
	MetricsAddr     string
	Verbose         bool
}

// DefaultConfig returns a baseline configuration without side effects.
func DefaultConfig() Config {
	return Config{
		Model:           DefaultModel,
		PollInterval:    time.Second,
		RunTimeout:      10 * time.Minute,
		MessageOrder:    "desc",
		LogFile:         "openai.log",
		ConsultantsFile: "konsulenter.json",
	}
}

// Normalize sanitizes configuration values and applies defaults.
func Normalize(cfg Config) Config {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.MessageOrder = strings.ToLower(strings.TrimSpace(cfg.MessageOrder))
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)
	cfg.ConsultantsFile = strings.TrimSpace(cfg.ConsultantsFile)
	cfg.SummaryFile = strings.TrimSpace(cfg.SummaryFile)
	cfg.MetricsAddr = strings.TrimSpace(cfg.MetricsAddr)

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MessageOrder == "" {
		cfg.MessageOrder = "desc"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RunTimeout < 0 {
		cfg.RunTimeout = 0
	}

	normalizedDirs := make([]string, 0, len(cfg.AllowedDirs))
	for _, dir := range cfg.AllowedDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		normalizedDirs = append(normalizedDirs, dir)
	}
	cfg.AllowedDirs = normalizedDirs
	return cfg
}

// Validate reports configuration that must abort startup.
func Validate(cfg Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if cfg.Model == "" {
		return fmt.Errorf("OPENAI_MODEL is not set")
	}
	switch cfg.MessageOrder {
	case "desc", "asc":
	default:
		return fmt.Errorf("invalid message order %q (want desc or asc)", cfg.MessageOrder)
	}
	return nil
}
