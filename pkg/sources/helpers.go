// Package sources provides price source interfaces and implementations.
package sources

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
)

// GetLoggerFromConfig extracts logger from config map or returns a default noop logger.
// Sources should use this to get the logger passed from main.
// If no logger is configured, returns a noop logger to prevent nil pointer dereferences.
func GetLoggerFromConfig(config map[string]interface{}) *logging.Logger {
	if loggerInterface, ok := config["logger"]; ok {
		if logger, ok := loggerInterface.(*logging.Logger); ok {
			return logger
		}
	}

	// return default noop logger if logger not found
	return logging.NewNoopLogger()
}

// ParsePairsFromMap extracts pair mappings from config where pairs is a map.
// Expected format: pairs: { "XLM": "stellar", "BTC": "bitcoin" }.
// Unified symbols are normalized; values are source-specific identifiers.
func ParsePairsFromMap(config map[string]interface{}) (map[string]string, error) {
	pairsRaw, ok := config["pairs"]
	if !ok {
		return nil, fmt.Errorf("%w: 'pairs' key", ErrInvalidConfig)
	}

	pairsMap, ok := pairsRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: pairs must be map[string]string", ErrInvalidConfig)
	}

	pairs := make(map[string]string, len(pairsMap))
	for unified, sourceRaw := range pairsMap {
		source, ok := sourceRaw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s is %T", ErrInvalidConfig, unified, sourceRaw)
		}
		normalized := NormalizeSymbol(unified)
		if normalized == "" {
			return nil, fmt.Errorf("%w: empty symbol", ErrInvalidConfig)
		}
		pairs[normalized] = source
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w", ErrNoPairsConfigured)
	}

	return pairs, nil
}

// ParsePrice converts a raw float price into a decimal, rejecting values
// that are not finite and non-negative. NaN and infinities must be caught
// here because decimal.NewFromFloat panics on them.
func ParsePrice(value float64) (decimal.Decimal, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidPriceData, value)
	}
	if value < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative price %v", ErrInvalidPriceData, value)
	}
	return decimal.NewFromFloat(value), nil
}

// ParsePriceString converts a string price into a decimal with the same
// validity gate as ParsePrice.
func ParsePriceString(value string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidPriceData, value)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative price %s", ErrInvalidPriceData, value)
	}
	return price, nil
}
