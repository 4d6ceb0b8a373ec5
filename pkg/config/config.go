// Package config loads engine configuration from .gitgov/config.json with
// 12-factor environment overrides and an optional YAML profile overlay.
// Adapters never read environment variables directly; they receive a
// *Config from the wiring layer.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// FileName is the config file under the .gitgov root.
const FileName = "config.json"

// HealthThresholds gate the daily health audit.
type HealthThresholds struct {
	TaskMinScore   int `json:"taskMinScore" yaml:"task_min_score"`
	MaxDaysInStage int `json:"maxDaysInStage" yaml:"max_days_in_stage"`
	SystemMinScore int `json:"systemMinScore" yaml:"system_min_score"`
}

// Config is the engine configuration document.
type Config struct {
	ProjectName      string           `json:"projectName" yaml:"project_name"`
	Methodology      string           `json:"methodology" yaml:"methodology"`  // "kanban", "scrum", or a file path
	KeyProvider      string           `json:"keyProvider" yaml:"key_provider"` // "file" | "env"
	EnvKeyPrefix     string           `json:"envKeyPrefix,omitempty" yaml:"env_key_prefix"`
	HealthThresholds HealthThresholds `json:"healthThresholds" yaml:"health_thresholds"`
	TickInterval     string           `json:"tickInterval,omitempty" yaml:"tick_interval"` // Go duration, "" disables
}

// Default returns safe development defaults.
func Default() *Config {
	return &Config{
		ProjectName: "gitgov-project",
		Methodology: "kanban",
		KeyProvider: "file",
		HealthThresholds: HealthThresholds{
			TaskMinScore:   40,
			MaxDaysInStage: 7,
			SystemMinScore: 60,
		},
	}
}

// Load reads root/config.json (missing file ⇒ defaults), applies the
// optional YAML profile overlay, then environment overrides. Precedence,
// lowest to highest: defaults, config.json, profile, environment.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(root, FileName))
	if err != nil && !os.IsNotExist(err) {
		return nil, record.Wrap(record.CodeIOError, err, "read config")
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, record.Wrap(record.CodeInvalidData, err, "parse config")
		}
	}

	if err := applyProfile(root, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GITGOV_METHODOLOGY"); v != "" {
		cfg.Methodology = v
	}
	if v := os.Getenv("GITGOV_KEY_PROVIDER"); v != "" {
		cfg.KeyProvider = v
	}
	if v := os.Getenv("GITGOV_ENV_KEY_PREFIX"); v != "" {
		cfg.EnvKeyPrefix = v
	}
	if v := os.Getenv("GITGOV_TICK_INTERVAL"); v != "" {
		cfg.TickInterval = v
	}
	if v := os.Getenv("GITGOV_TASK_MIN_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthThresholds.TaskMinScore = n
		}
	}
	if v := os.Getenv("GITGOV_MAX_DAYS_IN_STAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthThresholds.MaxDaysInStage = n
		}
	}
	if v := os.Getenv("GITGOV_SYSTEM_MIN_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthThresholds.SystemMinScore = n
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Methodology == "" {
		return record.E(record.CodeInvalidData, "config methodology is required")
	}
	switch c.KeyProvider {
	case "file", "env":
	default:
		return record.E(record.CodeInvalidData, "config keyProvider %q is not file or env", c.KeyProvider)
	}
	t := c.HealthThresholds
	if t.TaskMinScore < 0 || t.TaskMinScore > 100 || t.SystemMinScore < 0 || t.SystemMinScore > 100 {
		return record.E(record.CodeInvalidData, "config health scores must be 0..100")
	}
	if t.MaxDaysInStage <= 0 {
		return record.E(record.CodeInvalidData, "config maxDaysInStage must be positive")
	}
	return nil
}

// Save writes the config with 2-space indentation.
func (c *Config) Save(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return record.Wrap(record.CodeInvalidData, err, "encode config")
	}
	if err := os.WriteFile(filepath.Join(root, FileName), append(data, '\n'), 0o644); err != nil {
		return record.Wrap(record.CodeIOError, err, "write config")
	}
	return nil
}
