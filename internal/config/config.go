// Package config loads steward configuration from the environment (with
// optional .env file) plus an optional YAML policy file overriding triage
// thresholds and the label taxonomy.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stewardbot/steward/internal/triage"
)

// Config is the full steward configuration sourced from STEWARD_* and
// provider environment variables.
type Config struct {
	// GitHubToken is the API token used by the tracker client.
	GitHubToken string `env:"GITHUB_TOKEN"`
	// GitHubRepo is the target repository as owner/repo.
	GitHubRepo string `env:"GITHUB_REPO"`
	// BotUsername identifies the steward's own comments. Auto-detected from
	// the authenticated user when empty.
	BotUsername string `env:"STEWARD_BOT_USERNAME"`

	// AnthropicAPIKey authenticates the classifier collaborator.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	// Model is the Anthropic model used for classification.
	Model string `env:"STEWARD_MODEL" envDefault:"claude-sonnet-4-5-20250929"`

	// DryRun logs actions instead of executing them. On by default; mutating
	// a real tracker is opt-in.
	DryRun bool `env:"STEWARD_DRY_RUN" envDefault:"true"`
	// MaxIssuesPerRun bounds how many issues one run may fetch.
	MaxIssuesPerRun int `env:"STEWARD_MAX_ISSUES_PER_RUN" envDefault:"20"`
	// ConfidenceThreshold is the minimum overall confidence for actions.
	ConfidenceThreshold float64 `env:"STEWARD_CONFIDENCE_THRESHOLD" envDefault:"0.80"`
	// CooldownHours is the minimum gap between actions on one issue.
	CooldownHours float64 `env:"STEWARD_MIN_HOURS_BETWEEN_ACTIONS" envDefault:"1.0"`
	// CleanupIntervalHours is the gap between closed-issue sweeps.
	CleanupIntervalHours float64 `env:"STEWARD_CLEANUP_INTERVAL_HOURS" envDefault:"24.0"`

	// StatePath is the persisted state document location.
	StatePath string `env:"STEWARD_STATE_FILE" envDefault:"state/steward.json"`
	// SimilarityDBPath is the similarity index database location.
	SimilarityDBPath string `env:"STEWARD_SIMILARITY_DB" envDefault:"state/similarity.db"`
	// PolicyFile is an optional YAML file overriding triage policy values.
	PolicyFile string `env:"STEWARD_POLICY_FILE"`

	// LogLevel is the textual logging level (debug, info, warn, error).
	LogLevel string `env:"STEWARD_LOG_LEVEL" envDefault:"info"`

	// Labels is the taxonomy offered to the classifier. Suggested labels
	// outside this set are discarded before they reach the action engine.
	Labels []string `env:"STEWARD_LABELS" envSeparator:","`

	// overrides carries policy-file values that have no environment
	// equivalent (floors, attempt cap).
	overrides policyFile
}

// policyFile is the YAML shape of the optional policy override file.
type policyFile struct {
	OverallThreshold         *float64 `yaml:"overall_threshold"`
	LabelFloor               *float64 `yaml:"label_floor"`
	DuplicateFloor           *float64 `yaml:"duplicate_floor"`
	MaxClarificationAttempts *int     `yaml:"max_clarification_attempts"`
	CooldownHours            *float64 `yaml:"cooldown_hours"`
	Labels                   []string `yaml:"labels"`
}

// defaultLabels is the taxonomy used when neither the environment nor the
// policy file provides one.
var defaultLabels = []string{
	"bug", "feature", "enhancement", "documentation", "question", "good-first-issue",
}

// Load reads configuration from a .env file (when present) and the process
// environment, then applies the optional policy file.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars always win.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.PolicyFile != "" {
		if err := cfg.applyPolicyFile(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	if len(cfg.Labels) == 0 {
		cfg.Labels = append([]string(nil), defaultLabels...)
	}

	return cfg, nil
}

func (c *Config) applyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy file %q: %w", path, err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse policy file %q: %w", path, err)
	}

	if pf.OverallThreshold != nil {
		c.ConfidenceThreshold = *pf.OverallThreshold
	}
	if pf.CooldownHours != nil {
		c.CooldownHours = *pf.CooldownHours
	}
	if len(pf.Labels) > 0 {
		c.Labels = append([]string(nil), pf.Labels...)
	}

	c.overrides = pf
	return nil
}

// Validate checks that required credentials are present and thresholds are
// in range.
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}
	if c.GitHubRepo == "" {
		return fmt.Errorf("GITHUB_REPO is required (owner/repo)")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.MaxIssuesPerRun <= 0 {
		return fmt.Errorf("max_issues_per_run must be positive (got %d)", c.MaxIssuesPerRun)
	}
	if c.CleanupIntervalHours < 0 {
		return fmt.Errorf("cleanup_interval_hours cannot be negative (got %.1f)", c.CleanupIntervalHours)
	}
	return c.Policy().Validate()
}

// Policy assembles the triage policy from defaults, environment values, and
// policy-file overrides.
func (c *Config) Policy() triage.Policy {
	p := triage.DefaultPolicy()
	p.OverallThreshold = c.ConfidenceThreshold
	p.Cooldown = time.Duration(c.CooldownHours * float64(time.Hour))

	if c.overrides.LabelFloor != nil {
		p.LabelFloor = *c.overrides.LabelFloor
	}
	if c.overrides.DuplicateFloor != nil {
		p.DuplicateFloor = *c.overrides.DuplicateFloor
	}
	if c.overrides.MaxClarificationAttempts != nil {
		p.MaxClarificationAttempts = *c.overrides.MaxClarificationAttempts
	}
	return p
}

// CleanupInterval returns the closed-issue sweep interval as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours * float64(time.Hour))
}
