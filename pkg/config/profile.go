package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// ProfileFileName is an optional YAML overlay next to config.json. It
// exists so a team can keep a shared, reviewable profile in git while
// config.json stays machine-written.
const ProfileFileName = "config.profile.yaml"

type profile struct {
	Methodology      string            `yaml:"methodology"`
	KeyProvider      string            `yaml:"key_provider"`
	EnvKeyPrefix     string            `yaml:"env_key_prefix"`
	TickInterval     string            `yaml:"tick_interval"`
	HealthThresholds *HealthThresholds `yaml:"health_thresholds"`
}

// applyProfile overlays root/config.profile.yaml onto cfg. A missing file
// is fine; a malformed one is INVALID_DATA.
func applyProfile(root string, cfg *Config) error {
	data, err := os.ReadFile(filepath.Join(root, ProfileFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return record.Wrap(record.CodeIOError, err, "read config profile")
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return record.Wrap(record.CodeInvalidData, err, "parse config profile")
	}

	if p.Methodology != "" {
		cfg.Methodology = p.Methodology
	}
	if p.KeyProvider != "" {
		cfg.KeyProvider = p.KeyProvider
	}
	if p.EnvKeyPrefix != "" {
		cfg.EnvKeyPrefix = p.EnvKeyPrefix
	}
	if p.TickInterval != "" {
		cfg.TickInterval = p.TickInterval
	}
	if p.HealthThresholds != nil {
		cfg.HealthThresholds = *p.HealthThresholds
	}
	return nil
}
