// Package oracle implements the price aggregation and reliability engine.
package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates that the engine configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmptyAggregationInput indicates that a strategy received no samples.
	ErrEmptyAggregationInput = errors.New("no samples to aggregate")
	// ErrUnknownStrategy indicates that the strategy name is not recognized.
	ErrUnknownStrategy = errors.New("unknown aggregation strategy")
	// ErrInsufficientSources indicates that too few valid samples survived.
	ErrInsufficientSources = errors.New("insufficient sources")
	// ErrSourceExists indicates that a source with the same name is registered.
	ErrSourceExists = errors.New("source already registered")
	// ErrSourceNotFound indicates that no source with the name is registered.
	ErrSourceNotFound = errors.New("source not found")
	// ErrNoEligibleSources indicates that every registered source is circuit-open.
	ErrNoEligibleSources = errors.New("no eligible sources")
	// ErrCircuitOpen indicates that the source's circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrInvalidSymbol indicates an empty or unusable symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// InsufficientSourcesError reports how many samples survived versus how
// many the configuration requires. It matches ErrInsufficientSources
// under errors.Is.
type InsufficientSourcesError struct {
	Symbol string
	Got    int
	Need   int
}

// Error implements the error interface
func (e *InsufficientSourcesError) Error() string {
	return fmt.Sprintf("insufficient sources for %s: got %d, need %d", e.Symbol, e.Got, e.Need)
}

// Is matches ErrInsufficientSources
func (e *InsufficientSourcesError) Is(target error) bool {
	return target == ErrInsufficientSources
}
