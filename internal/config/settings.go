package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = ".patchpilot.yml"

// Settings holds patchpilot configuration loaded from a YAML file.
type Settings struct {
	Listen       string         `yaml:"listen"`
	WorkspaceDir string         `yaml:"workspace_dir"`
	Store        StoreConfig    `yaml:"store"`
	GitHub       GitHubConfig   `yaml:"github"`
	Poll         PollConfig     `yaml:"poll"`
	Runner       RunnerConfig   `yaml:"runner"`
	Analysis     AnalysisConfig `yaml:"analysis"`
	AI           AIConfig       `yaml:"ai"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "memory"
	Path   string `yaml:"path"`
}

// GitHubConfig holds source-control credentials.
type GitHubConfig struct {
	Token         string `yaml:"token,omitempty"` // literal or "env:VAR_NAME"
	APIURL        string `yaml:"api_url,omitempty"`
	WebhookSecret string `yaml:"webhook_secret,omitempty"` // literal or "env:VAR_NAME"
}

// PollConfig controls the poll scheduler.
type PollConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Tick        time.Duration `yaml:"tick"`
	Concurrency int           `yaml:"concurrency"`
}

// RunnerConfig sizes the worker pool.
type RunnerConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// AnalysisConfig limits what the scanner reads.
type AnalysisConfig struct {
	MaxFileBytes int64    `yaml:"max_file_bytes"`
	Extensions   []string `yaml:"extensions,omitempty"`
}

// AIConfig controls AI suggestions.
type AIConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	APIKey         string        `yaml:"api_key,omitempty"` // literal or "env:VAR_NAME"
	Model          string        `yaml:"model,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxSuggestions int           `yaml:"max_suggestions"`
}

// Defaults returns settings with every default filled in.
func Defaults() *Settings {
	return &Settings{
		Listen:       ":8080",
		WorkspaceDir: defaultWorkspaceDir(),
		Store:        StoreConfig{Driver: "sqlite", Path: "patchpilot.db"},
		GitHub:       GitHubConfig{APIURL: "https://api.github.com"},
		Poll:         PollConfig{Interval: 30 * time.Minute, Tick: time.Minute, Concurrency: 4},
		Runner:       RunnerConfig{Workers: 2, QueueSize: 100},
		Analysis:     AnalysisConfig{MaxFileBytes: 1 << 20},
		AI: AIConfig{
			BaseURL:        "https://api.openai.com",
			Model:          "gpt-3.5-turbo",
			Timeout:        30 * time.Second,
			MaxSuggestions: 20,
		},
	}
}

func defaultWorkspaceDir() string {
	return filepath.Join(os.TempDir(), "patchpilot")
}

// LoadSettings reads a YAML config file over the defaults.
// If the file does not exist, it returns the defaults and nil error.
func LoadSettings(path string) (*Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings the server cannot run with.
func (s *Settings) Validate() error {
	switch s.Store.Driver {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", s.Store.Driver)
	}
	if s.Store.Driver != "memory" && s.Store.Path == "" {
		return fmt.Errorf("store.path: required for sqlite")
	}
	if s.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers: must be positive, got %d", s.Runner.Workers)
	}
	if s.Runner.QueueSize <= 0 {
		return fmt.Errorf("runner.queue_size: must be positive, got %d", s.Runner.QueueSize)
	}
	if s.Poll.Interval < time.Minute {
		return fmt.Errorf("poll.interval: must be at least 1m, got %s", s.Poll.Interval)
	}
	if s.Poll.Tick <= 0 {
		return fmt.Errorf("poll.tick: must be positive, got %s", s.Poll.Tick)
	}
	if s.Analysis.MaxFileBytes <= 0 {
		return fmt.Errorf("analysis.max_file_bytes: must be positive, got %d", s.Analysis.MaxFileBytes)
	}
	if s.AI.MaxSuggestions < 0 {
		return fmt.Errorf("ai.max_suggestions: must not be negative")
	}
	return nil
}

// ResolveSecret expands "env:VAR_NAME" to the variable's value. Other
// values are returned unchanged. A referenced variable that is unset is an
// error.
func ResolveSecret(v string) (string, error) {
	name, ok := strings.CutPrefix(v, "env:")
	if !ok {
		return v, nil
	}
	val := os.Getenv(name)
	if val == "" {
		return "", fmt.Errorf("env var %q is not set", name)
	}
	return val, nil
}
