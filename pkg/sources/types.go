package sources

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType represents the type of price source
type SourceType string

const (
	SourceTypeCEX SourceType = "cex"
)

// PriceSample is a single price observation fetched from a source
type PriceSample struct {
	Symbol    string            `json:"symbol"`
	Price     decimal.Decimal   `json:"price"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SourceInfo describes a price source
type SourceInfo struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Version          string   `json:"version"`
	SupportedSymbols []string `json:"supported_symbols"`
}

// Source defines the interface that all price sources must implement
type Source interface {
	// Name returns the unique name of this source
	Name() string

	// GetPrice fetches the current price for a single symbol
	GetPrice(ctx context.Context, symbol string) (PriceSample, error)

	// GetPrices fetches current prices for multiple symbols.
	// Symbols the source does not support are skipped; partial
	// results are returned without error.
	GetPrices(ctx context.Context, symbols []string) ([]PriceSample, error)

	// Info returns metadata about this source
	Info() SourceInfo

	// IsHealthy returns whether the last fetch succeeded
	IsHealthy() bool
}

// SourceFactory is a function that creates a new Source instance
type SourceFactory func(config map[string]interface{}) (Source, error)
