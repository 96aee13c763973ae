// Package oracle implements the price aggregation and reliability engine:
// statistical outlier rejection, pluggable aggregation strategies, TTL/LRU
// caching of raw and aggregated prices, and per-source circuit breaking.
package oracle

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CircuitState represents the state of a per-source circuit breaker
type CircuitState int

const (
	// CircuitClosed allows calls; failures are counted.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen allows a limited number of trial calls.
	CircuitHalfOpen
)

// String returns the lowercase state name
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string name
func (s CircuitState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// OutlierMethod selects the outlier detection algorithm
type OutlierMethod string

const (
	// OutlierMethodIQR flags samples outside the 1.5*IQR fences.
	OutlierMethodIQR OutlierMethod = "iqr"
	// OutlierMethodZScore flags samples whose z-score exceeds the threshold.
	OutlierMethodZScore OutlierMethod = "zscore"
	// OutlierMethodNone disables outlier detection.
	OutlierMethodNone OutlierMethod = "none"
)

// MetadataKeyStale marks an AggregatedPrice served from the fallback cache.
const MetadataKeyStale = "stale"

// AggregatedPrice is the result of one aggregation cycle for a symbol.
// Immutable after creation; the unit stored in the result cache.
type AggregatedPrice struct {
	Symbol           string            `json:"symbol"`
	Price            decimal.Decimal   `json:"price"`
	Timestamp        time.Time         `json:"timestamp"`
	Confidence       float64           `json:"confidence"`
	SourcesUsed      []string          `json:"sources_used"`
	OutliersFiltered []string          `json:"outliers_filtered,omitempty"`
	SourceCount      int               `json:"source_count"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// IsStale reports whether this price was served from the fallback cache
func (p AggregatedPrice) IsStale() bool {
	return p.Metadata[MetadataKeyStale] == "true"
}

// SourceStatus is a read-only snapshot of a registered source's record
type SourceStatus struct {
	Name         string       `json:"name"`
	Weight       float64      `json:"weight"`
	Healthy      bool         `json:"healthy"`
	LastChecked  time.Time    `json:"last_checked"`
	FailureCount int          `json:"failure_count"`
	CircuitState CircuitState `json:"circuit_state"`
}

// CacheStats summarizes cache occupancy
type CacheStats struct {
	PriceCount      int `json:"price_count"`
	AggregatedCount int `json:"aggregated_count"`
	TotalSize       int `json:"total_size"`
}

// Config holds the engine configuration. Zero values are replaced with
// the defaults from DefaultConfig when passed to NewAggregator.
type Config struct {
	// MinSources is the minimum surviving samples required to aggregate
	MinSources int
	// CallTimeout bounds each per-source fetch during fan-out
	CallTimeout time.Duration

	// EnableOutlierDetection toggles the detection pass
	EnableOutlierDetection bool
	// OutlierMethod selects iqr or zscore detection
	OutlierMethod OutlierMethod
	// ZScoreThreshold is the z-score cutoff (zscore method only)
	ZScoreThreshold float64

	// EnableFallback serves stale cached aggregates when aggregation fails
	EnableFallback bool
	// MaxStaleness bounds how old a fallback aggregate may be
	MaxStaleness time.Duration

	// CacheTTL is the freshness window for cached entries
	CacheTTL time.Duration
	// CacheMaxSize is the per-namespace LRU capacity
	CacheMaxSize int

	// FailureThreshold is the consecutive failures that open a circuit
	FailureThreshold int
	// ResetTimeout is how long a circuit stays open before probing
	ResetTimeout time.Duration
	// HalfOpenMaxCalls is the trial budget in half-open state
	HalfOpenMaxCalls int

	// TWAPWindow is the lookback window for the twap strategy
	TWAPWindow time.Duration
	// TWAPDecay is the exponential decay constant for sample age
	TWAPDecay time.Duration
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		MinSources:             2,
		CallTimeout:            5 * time.Second,
		EnableOutlierDetection: true,
		OutlierMethod:          OutlierMethodZScore,
		ZScoreThreshold:        2.0,
		EnableFallback:         true,
		MaxStaleness:           5 * time.Minute,
		CacheTTL:               60 * time.Second,
		CacheMaxSize:           1000,
		FailureThreshold:       5,
		ResetTimeout:           60 * time.Second,
		HalfOpenMaxCalls:       3,
		TWAPWindow:             3 * time.Minute,
		TWAPDecay:              time.Minute,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinSources == 0 {
		c.MinSources = def.MinSources
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.OutlierMethod == "" {
		c.OutlierMethod = def.OutlierMethod
	}
	if c.ZScoreThreshold == 0 {
		c.ZScoreThreshold = def.ZScoreThreshold
	}
	if c.MaxStaleness == 0 {
		c.MaxStaleness = def.MaxStaleness
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.CacheMaxSize == 0 {
		c.CacheMaxSize = def.CacheMaxSize
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if c.TWAPWindow == 0 {
		c.TWAPWindow = def.TWAPWindow
	}
	if c.TWAPDecay == 0 {
		c.TWAPDecay = def.TWAPDecay
	}
	return c
}

// validate rejects configurations the engine cannot run with
func (c Config) validate() error {
	if c.MinSources < 1 {
		return ErrInvalidConfig
	}
	if c.CacheTTL <= 0 || c.CacheMaxSize <= 0 {
		return ErrInvalidConfig
	}
	if c.FailureThreshold < 1 || c.HalfOpenMaxCalls < 1 {
		return ErrInvalidConfig
	}
	if c.OutlierMethod != OutlierMethodIQR && c.OutlierMethod != OutlierMethodZScore && c.OutlierMethod != OutlierMethodNone {
		return ErrInvalidConfig
	}
	return nil
}
