package monitoring

import "github.com/compozy/repokit/pkg/config"

// Config holds configuration for the monitoring service.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// DefaultConfig returns the default monitoring configuration: disabled.
func DefaultConfig() *Config {
	return &Config{Enabled: false}
}

// FromConfig reads the metrics section of the application configuration.
func FromConfig(cfg *config.MetricsConfig) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return &Config{Enabled: cfg.Enabled}
}
