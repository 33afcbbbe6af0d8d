package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load builds a ready-to-use GatewayConfig: start from DefaultConfig,
// merge in whatever path's YAML file overrides (if path is non-empty and
// exists), then validate. A missing file is not an error — the gateway
// runs on built-in defaults — but a malformed one is.
func Load(path string) (*GatewayConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func mergeFile(cfg *GatewayConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var overrides GatewayConfig
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	if err := mergo.Merge(cfg, &overrides, mergo.WithOverride); err != nil {
		return NewLoadError(path, err)
	}
	return nil
}
