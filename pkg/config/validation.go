package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateOracleConfig(&cfg.Oracle); err != nil {
		return fmt.Errorf("oracle config: %w", err)
	}

	if len(cfg.Sources) == 0 {
		return ErrNoSourcesConfigured
	}
	for i, source := range cfg.Sources {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s.%s): %w", i, source.Type, source.Name, err)
		}
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	// Validate TLS config
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("TLS cert file not found: %s", cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("TLS key file not found: %s", cfg.HTTP.TLS.Key)
		}
	}

	return nil
}

func validateOracleConfig(cfg *OracleConfig) error {
	// Validate strategy
	strategy := strings.ToLower(cfg.Strategy)
	if strategy != "median" && strategy != "weighted_average" && strategy != "twap" {
		return fmt.Errorf("%w: %s (must be 'median', 'weighted_average', or 'twap')", ErrInvalidStrategy, cfg.Strategy)
	}

	// Validate outlier method
	method := strings.ToLower(cfg.Outlier.Method)
	if method != "iqr" && method != "zscore" && method != "none" {
		return fmt.Errorf("%w: %s (must be 'iqr', 'zscore', or 'none')", ErrInvalidOutlierMethod, cfg.Outlier.Method)
	}
	if method == "zscore" && cfg.Outlier.ZScoreThreshold <= 0 {
		return ErrInvalidThreshold
	}

	if cfg.MinSources < 1 {
		return ErrInvalidMinSources
	}
	if cfg.Cache.MaxSize <= 0 {
		return ErrInvalidCacheSize
	}

	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	if cfg.Type == "" {
		return ErrSourceTypeRequired
	}

	// Validate type
	validTypes := []string{"cex"}
	typeValid := false
	for _, t := range validTypes {
		if strings.ToLower(cfg.Type) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrUnknownSourceType, cfg.Type, strings.Join(validTypes, ", "))
	}

	if cfg.Name == "" {
		return ErrSourceNameRequired
	}

	if cfg.Weight < 0 {
		return ErrSourceWeightMustBeNonNegative
	}

	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	// Validate level
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	// Validate format
	format := strings.ToLower(cfg.Format)
	if format != "json" && format != "text" {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
