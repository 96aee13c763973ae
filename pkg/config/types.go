package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Oracle  OracleConfig   `yaml:"oracle"`
	Sources []SourceConfig `yaml:"sources"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the price API server
type ServerConfig struct {
	HTTP      HTTPConfig    `yaml:"http"`
	WebSocket WSConfig      `yaml:"websocket"`
	Refresh   RefreshConfig `yaml:"refresh"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket server
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// RefreshConfig configures the scheduled price refresher
type RefreshConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	Symbols  []string `yaml:"symbols"`
}

// OracleConfig configures the aggregation engine
type OracleConfig struct {
	Strategy    string         `yaml:"strategy"`
	MinSources  int            `yaml:"min_sources"`
	CallTimeout Duration       `yaml:"call_timeout"`
	TWAP        TWAPConfig     `yaml:"twap"`
	Outlier     OutlierConfig  `yaml:"outlier"`
	Fallback    FallbackConfig `yaml:"fallback"`
	Cache       CacheConfig    `yaml:"cache"`
	Breaker     BreakerConfig  `yaml:"breaker"`
}

// TWAPConfig configures the time-weighted average strategy
type TWAPConfig struct {
	Window Duration `yaml:"window"`
	Decay  Duration `yaml:"decay"`
}

// OutlierConfig configures outlier detection
type OutlierConfig struct {
	Method          string  `yaml:"method"`
	ZScoreThreshold float64 `yaml:"zscore_threshold"`
}

// FallbackConfig configures serving stale prices on aggregation failure
type FallbackConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MaxStaleness Duration `yaml:"max_staleness"`
}

// CacheConfig configures the in-memory price cache
type CacheConfig struct {
	TTL     Duration `yaml:"ttl"`
	MaxSize int      `yaml:"max_size"`
}

// BreakerConfig configures per-source circuit breakers
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	ResetTimeout     Duration `yaml:"reset_timeout"`
	HalfOpenMaxCalls int      `yaml:"half_open_max_calls"`
}

// SourceConfig configures a price source
type SourceConfig struct {
	Type    string                 `yaml:"type"`
	Name    string                 `yaml:"name"`
	Enabled bool                   `yaml:"enabled"`
	Weight  float64                `yaml:"weight"`
	Config  map[string]interface{} `yaml:"config"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
