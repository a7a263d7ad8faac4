package signalfence

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/KanavDutta/signalfence/core"
)

// Config is the security configuration consumed by the engine.
type Config = core.Config

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return core.NewConfig()
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults, so omitted sections keep their default
// values and override maps are merged with the default entries.
func ParseConfig(data []byte) (*Config, error) {
	config := core.NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if config.RateLimit.PathOverrides == nil {
		config.RateLimit.PathOverrides = make(map[string]core.RateLimitPolicy)
	}
	if config.AuthFailure.PathOverrides == nil {
		config.AuthFailure.PathOverrides = make(map[string]core.AuthPolicy)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
