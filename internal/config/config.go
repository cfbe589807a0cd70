// Package config loads and saves the project's YAML configuration file:
// the classifier's user-trusted command patterns, the rate limiter's
// tuning knobs, and the custom command catalog.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeturn/core/internal/classifier"
	"github.com/codeturn/core/internal/ratelimit"
)

// RateLimit mirrors ratelimit.Config in YAML-friendly form (milliseconds
// instead of time.Duration, so the file reads as plain numbers).
type RateLimit struct {
	MaxConcurrentCalls int     `yaml:"max_concurrent_calls"`
	MinDelayMs         int     `yaml:"min_delay_ms"`
	ParallelEnabled    bool    `yaml:"parallel_enabled"`
	BackoffMultiplier  float64 `yaml:"backoff_multiplier"`
	MaxRetries         int     `yaml:"max_retries"`
}

func (r RateLimit) ToRatelimitConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxConcurrentCalls: r.MaxConcurrentCalls,
		MinDelay:           msToDuration(r.MinDelayMs),
		ParallelEnabled:    r.ParallelEnabled,
		BackoffMultiplier:  r.BackoffMultiplier,
		MaxRetries:         r.MaxRetries,
	}
}

func defaultRateLimit() RateLimit {
	d := ratelimit.DefaultConfig()
	return RateLimit{
		MaxConcurrentCalls: d.MaxConcurrentCalls,
		MinDelayMs:         int(d.MinDelay.Milliseconds()),
		ParallelEnabled:    d.ParallelEnabled,
		BackoffMultiplier:  d.BackoffMultiplier,
		MaxRetries:         d.MaxRetries,
	}
}

// CustomCommandKind discriminates a custom command's content: a literal
// shell script, or a prompt template expanded before being sent to the
// model (custom_command.rs's CustomCommandType).
type CustomCommandKind string

const (
	CustomCommandShell  CustomCommandKind = "shell"
	CustomCommandPrompt CustomCommandKind = "prompt"
)

// CustomCommand mirrors custom_command.rs's CustomCommand struct.
type CustomCommand struct {
	Name                string            `yaml:"name"`
	Description         string            `yaml:"description"`
	Kind                CustomCommandKind  `yaml:"kind"`
	Content             string            `yaml:"content"`
	Parallel            bool              `yaml:"parallel,omitempty"`
	DependsOn           []string          `yaml:"depends_on,omitempty"`
	AcceptsArgs         bool              `yaml:"accepts_args,omitempty"`
	ArgPlaceholder      string            `yaml:"arg_placeholder,omitempty"`
	ForceHighReasoning  bool              `yaml:"force_high_reasoning,omitempty"`
}

// TrustedCommandList is a YAML sequence of argv patterns
// (`[["git", "status"], ["npm", "run", "*"]]`), decoded into
// classifier.TrustedPattern directly rather than through an intermediate
// [][]string — there is exactly one shape this field can take, unlike
// internal/config/wing.go's PathList, which genuinely mixes scalar and
// mapping nodes in the same sequence and needs a custom UnmarshalYAML
// for it.
type TrustedCommandList []classifier.TrustedPattern

// Config is the top-level project configuration.
type Config struct {
	TrustedCommands TrustedCommandList `yaml:"trusted_commands,omitempty"`
	RateLimit       RateLimit          `yaml:"rate_limit"`
	CustomCommands  []CustomCommand    `yaml:"custom_commands,omitempty"`
}

// Default returns a Config with the rate limiter's documented defaults
// and no trusted commands or custom commands configured.
func Default() Config {
	return Config{RateLimit: defaultRateLimit()}
}

const fileName = "config.yaml"

// Load reads config.yaml from dir. A missing file is not an error: it
// returns Default().
func Load(dir string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.RateLimit == (RateLimit{}) {
		cfg.RateLimit = defaultRateLimit()
	}
	return &cfg, nil
}

// Save writes cfg to dir/config.yaml, creating dir if needed.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fileName), data, 0o644)
}

func msToDuration(ms int) (d time.Duration) {
	return time.Duration(ms) * time.Millisecond
}
