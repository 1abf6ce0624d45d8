// Package config loads the audit configuration file.
//
// Load(path) applies defaults before unmarshalling, then validates. Command
// line flags are applied on top by cmd/audit.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the audit configuration.
const (
	DefaultProfile    = "standard"
	DefaultOutDir     = "./out"
	DefaultTimeout    = 15 * time.Minute
	DefaultLogLevel   = "info"
	DefaultKeepRuns   = 50
	DefaultMaxRecs    = 5
	DefaultAgentNS    = "kubeowler"
	DefaultDaemonSet  = "kubeowler-node-inspector"
	DefaultAgentLabel = "app=kubeowler-node-inspector"
	DefaultContainer  = "inspector"

	DefaultPollInterval    = 6 * time.Second
	DefaultPollDeadline    = 300 * time.Second
	DefaultStaleness       = 24 * time.Hour
	DefaultRolloutInterval = 2 * time.Second
	DefaultRolloutDeadline = 180 * time.Second
)

// Config is the root of config.yaml.
type Config struct {
	// Kubeconfig and Context select the cluster; both may be empty.
	Kubeconfig string `yaml:"kubeconfig"`
	Context    string `yaml:"context"`

	// ClusterName overrides the name derived from the kubeconfig context.
	ClusterName string `yaml:"cluster_name"`

	// Namespaces restricts namespaced audits. Empty = all namespaces.
	Namespaces []string `yaml:"namespaces"`

	// Domains selects audit units by name. Empty = all.
	Domains []string `yaml:"domains"`

	// Profile is one of: standard | security | stability.
	Profile string `yaml:"profile"`

	// Weights overrides per-domain weights after the profile is applied.
	Weights map[string]float64 `yaml:"weights"`

	// MaxRecommendations caps the priority recommendation list.
	MaxRecommendations int `yaml:"max_recommendations"`

	// MinScore makes the CLI exit non-zero when the weighted score is lower.
	MinScore float64 `yaml:"min_score"`

	// Timeout bounds the whole run, host-agent protocol included.
	Timeout time.Duration `yaml:"timeout"`

	Output    OutputConfig    `yaml:"output"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
	HostAgent HostAgentConfig `yaml:"host_agent"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
	// MetricsFile is a node-exporter textfile path. Empty disables export.
	MetricsFile string `yaml:"metrics_file"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to <output.dir>/history.db.
	Path string `yaml:"path"`
	// Keep is the number of runs retained per cluster.
	Keep int `yaml:"keep"`
}

// LogConfig selects the logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
	// Development switches to human-readable console output.
	Development bool `yaml:"development"`
}

// HostAgentConfig describes the per-host agent fleet and the readiness
// protocol timings.
type HostAgentConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Namespace       string        `yaml:"namespace"`
	DaemonSet       string        `yaml:"daemonset"`
	LabelSelector   string        `yaml:"label_selector"`
	Container       string        `yaml:"container"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollDeadline    time.Duration `yaml:"poll_deadline"`
	Staleness       time.Duration `yaml:"staleness"`
	RolloutInterval time.Duration `yaml:"rollout_interval"`
	RolloutDeadline time.Duration `yaml:"rollout_deadline"`
}

// Load reads and parses the config file at path. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Profile:            DefaultProfile,
		MaxRecommendations: DefaultMaxRecs,
		Timeout:            DefaultTimeout,
		Output:             OutputConfig{Dir: DefaultOutDir},
		History:            HistoryConfig{Enabled: true, Keep: DefaultKeepRuns},
		Log:                LogConfig{Level: DefaultLogLevel},
		HostAgent: HostAgentConfig{
			Enabled:         true,
			Namespace:       DefaultAgentNS,
			DaemonSet:       DefaultDaemonSet,
			LabelSelector:   DefaultAgentLabel,
			Container:       DefaultContainer,
			PollInterval:    DefaultPollInterval,
			PollDeadline:    DefaultPollDeadline,
			Staleness:       DefaultStaleness,
			RolloutInterval: DefaultRolloutInterval,
			RolloutDeadline: DefaultRolloutDeadline,
		},
	}
}

// Validate checks structural constraints. It is exported so flag overrides
// can be re-validated after they are applied.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Profile) {
	case "standard", "security", "stability", "":
	default:
		return fmt.Errorf("profile %q unknown: want standard|security|stability", c.Profile)
	}
	for domain, w := range c.Weights {
		if w <= 0 {
			return fmt.Errorf("weights[%q] must be positive, got %v", domain, w)
		}
	}
	if c.MaxRecommendations <= 0 {
		return fmt.Errorf("max_recommendations must be positive")
	}
	if c.MinScore < 0 || c.MinScore > 100 {
		return fmt.Errorf("min_score %v is out of range [0, 100]", c.MinScore)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", c.Log.Level)
	}
	if c.History.Keep < 0 {
		return fmt.Errorf("history.keep must not be negative")
	}

	h := c.HostAgent
	if h.Enabled {
		if h.Namespace == "" || h.DaemonSet == "" || h.LabelSelector == "" {
			return fmt.Errorf("host_agent: namespace, daemonset and label_selector are required")
		}
		if h.PollInterval <= 0 || h.RolloutInterval <= 0 {
			return fmt.Errorf("host_agent: poll_interval and rollout_interval must be positive")
		}
		if h.PollDeadline < h.PollInterval {
			return fmt.Errorf("host_agent.poll_deadline %v is shorter than poll_interval %v", h.PollDeadline, h.PollInterval)
		}
		if h.RolloutDeadline < h.RolloutInterval {
			return fmt.Errorf("host_agent.rollout_deadline %v is shorter than rollout_interval %v", h.RolloutDeadline, h.RolloutInterval)
		}
		if h.Staleness <= 0 {
			return fmt.Errorf("host_agent.staleness must be positive")
		}
		// Two polling loops and one rollout wait must fit inside the run.
		if worst := 2*h.PollDeadline + h.RolloutDeadline; c.Timeout < worst {
			return fmt.Errorf("timeout %v is shorter than the host agent worst case %v (2*poll_deadline + rollout_deadline)", c.Timeout, worst)
		}
	}
	return nil
}

// HistoryPath resolves the history database location.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return strings.TrimRight(c.Output.Dir, "/") + "/history.db"
}
