// Package config provides configuration loading and validation for galaxy-oracle.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in YAML
	expanded := os.ExpandEnv(string(data))

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.Refresh.Schedule == "" {
		cfg.Server.Refresh.Schedule = "@every 30s"
	}

	// Oracle defaults
	if cfg.Oracle.Strategy == "" {
		cfg.Oracle.Strategy = "median"
	}
	if cfg.Oracle.MinSources == 0 {
		cfg.Oracle.MinSources = 2
	}
	if cfg.Oracle.CallTimeout.ToDuration() == 0 {
		cfg.Oracle.CallTimeout = Duration(5 * time.Second)
	}
	if cfg.Oracle.TWAP.Window.ToDuration() == 0 {
		cfg.Oracle.TWAP.Window = Duration(3 * time.Minute)
	}
	if cfg.Oracle.TWAP.Decay.ToDuration() == 0 {
		cfg.Oracle.TWAP.Decay = Duration(time.Minute)
	}
	if cfg.Oracle.Outlier.Method == "" {
		cfg.Oracle.Outlier.Method = "zscore"
	}
	if cfg.Oracle.Outlier.ZScoreThreshold == 0 {
		cfg.Oracle.Outlier.ZScoreThreshold = 2.0
	}
	if cfg.Oracle.Fallback.MaxStaleness.ToDuration() == 0 {
		cfg.Oracle.Fallback.MaxStaleness = Duration(5 * time.Minute)
	}
	if cfg.Oracle.Cache.TTL.ToDuration() == 0 {
		cfg.Oracle.Cache.TTL = Duration(60 * time.Second)
	}
	if cfg.Oracle.Cache.MaxSize == 0 {
		cfg.Oracle.Cache.MaxSize = 1000
	}
	if cfg.Oracle.Breaker.FailureThreshold == 0 {
		cfg.Oracle.Breaker.FailureThreshold = 5
	}
	if cfg.Oracle.Breaker.ResetTimeout.ToDuration() == 0 {
		cfg.Oracle.Breaker.ResetTimeout = Duration(60 * time.Second)
	}
	if cfg.Oracle.Breaker.HalfOpenMaxCalls == 0 {
		cfg.Oracle.Breaker.HalfOpenMaxCalls = 3
	}

	// Source defaults
	for i := range cfg.Sources {
		if cfg.Sources[i].Weight == 0 {
			cfg.Sources[i].Weight = 1.0
		}
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// GetString retrieves a string value from the source configuration.
func (sc *SourceConfig) GetString(key, defaultValue string) string {
	if val, ok := sc.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a string slice from source config.
func (sc *SourceConfig) GetStringSlice(key string) []string {
	if val, ok := sc.Config[key]; ok {
		if slice, ok := val.([]interface{}); ok {
			result := make([]string, 0, len(slice))
			for _, item := range slice {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			return result
		}
	}
	return nil
}

// GetStringMap retrieves a string-to-string map from source config.
func (sc *SourceConfig) GetStringMap(key string) map[string]string {
	val, ok := sc.Config[key]
	if !ok {
		return nil
	}
	raw, ok := val.(map[string]interface{})
	if !ok {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		if str, ok := v.(string); ok {
			result[k] = str
		}
	}
	return result
}

// GetInt retrieves an integer from source config.
func (sc *SourceConfig) GetInt(key string, defaultValue int) int {
	if val, ok := sc.Config[key]; ok {
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}

// GetFloat retrieves a float from source config.
func (sc *SourceConfig) GetFloat(key string, defaultValue float64) float64 {
	if val, ok := sc.Config[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean from source config.
func (sc *SourceConfig) GetBool(key string, defaultValue bool) bool {
	if val, ok := sc.Config[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}
