// Package config provides configuration loading and validation for galaxy-oracle.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrInvalidStrategy indicates that the aggregation strategy is invalid.
	ErrInvalidStrategy = errors.New("invalid strategy")
	// ErrInvalidOutlierMethod indicates that the outlier detection method is invalid.
	ErrInvalidOutlierMethod = errors.New("invalid outlier method")
	// ErrInvalidThreshold indicates that the z-score threshold is invalid.
	ErrInvalidThreshold = errors.New("zscore_threshold must be > 0")
	// ErrInvalidMinSources indicates that min_sources is invalid.
	ErrInvalidMinSources = errors.New("min_sources must be >= 1")
	// ErrInvalidCacheSize indicates that the cache max_size is invalid.
	ErrInvalidCacheSize = errors.New("cache max_size must be > 0")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrSourceTypeRequired indicates that source type is required.
	ErrSourceTypeRequired = errors.New("source type is required")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrUnknownSourceType indicates that the source type is unknown.
	ErrUnknownSourceType = errors.New("unknown source type")
	// ErrSourceWeightMustBeNonNegative indicates that source weight must be >= 0.
	ErrSourceWeightMustBeNonNegative = errors.New("weight must be >= 0")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
