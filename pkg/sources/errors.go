// Package sources provides price source interfaces and implementations.
package sources

import "errors"

var (
	// ErrNoPricesAvailable indicates that no prices are available from the source.
	ErrNoPricesAvailable = errors.New("no prices available")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrRateLimitExceeded indicates that a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrAPIError indicates an API error.
	ErrAPIError = errors.New("API error")
	// ErrInvalidPriceData indicates a price that is not finite and non-negative.
	ErrInvalidPriceData = errors.New("invalid price data")
	// ErrUnsupportedSymbol indicates that the source does not serve the symbol.
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoPairsConfigured indicates that no valid pairs are configured.
	ErrNoPairsConfigured = errors.New("no pairs configured")
	// ErrAPIKeyRequired indicates that an API key is required.
	ErrAPIKeyRequired = errors.New("API key is required")
	// ErrNoPricesExtracted indicates that no prices were extracted from a response.
	ErrNoPricesExtracted = errors.New("no prices extracted from response")
	// ErrUnknownSource indicates that the source is not registered.
	ErrUnknownSource = errors.New("unknown source")
)
