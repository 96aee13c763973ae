package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
)

const defaultHTTPTimeout = 10 * time.Second

// BaseSource provides common functionality for pull-based price sources
type BaseSource struct {
	name        string
	sourcetype  SourceType
	description string
	version     string
	pairs       map[string]string // unified symbol -> source-specific symbol mapping
	healthy     bool
	healthMu    sync.RWMutex
	client      *http.Client
	logger      *logging.Logger
}

// NewBaseSource creates a new base source with pair mappings
// pairs: map of unified symbol (e.g., "XLM") -> source-specific symbol (e.g., "stellar")
func NewBaseSource(name string, sourcetype SourceType, description, version string, pairs map[string]string, logger *logging.Logger) *BaseSource {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	normalized := make(map[string]string, len(pairs))
	for unified, sourceSymbol := range pairs {
		normalized[NormalizeSymbol(unified)] = sourceSymbol
	}

	return &BaseSource{
		name:        name,
		sourcetype:  sourcetype,
		description: description,
		version:     version,
		pairs:       normalized,
		healthy:     false,
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		logger: logger,
	}
}

// Name returns the source name
func (b *BaseSource) Name() string {
	return b.name
}

// Type returns the source type
func (b *BaseSource) Type() SourceType {
	return b.sourcetype
}

// Symbols returns the unified symbols this source provides, sorted
func (b *BaseSource) Symbols() []string {
	symbols := make([]string, 0, len(b.pairs))
	for unified := range b.pairs {
		symbols = append(symbols, unified)
	}
	sort.Strings(symbols)
	return symbols
}

// Info returns metadata about this source
func (b *BaseSource) Info() SourceInfo {
	return SourceInfo{
		Name:             b.name,
		Description:      b.description,
		Version:          b.version,
		SupportedSymbols: b.Symbols(),
	}
}

// IsHealthy returns the health status
func (b *BaseSource) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthy
}

// SetHealthy sets the health status
func (b *BaseSource) SetHealthy(healthy bool) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()
	b.healthy = healthy
}

// GetSourceSymbol converts unified symbol to source-specific symbol
// Returns empty string if not found
func (b *BaseSource) GetSourceSymbol(unifiedSymbol string) string {
	return b.pairs[NormalizeSymbol(unifiedSymbol)]
}

// GetUnifiedSymbol finds the unified symbol for a source-specific symbol
// Returns empty string if not found
func (b *BaseSource) GetUnifiedSymbol(sourceSymbol string) string {
	for unified, source := range b.pairs {
		if source == sourceSymbol {
			return unified
		}
	}
	return ""
}

// GetAllPairs returns a copy of the pair mappings
func (b *BaseSource) GetAllPairs() map[string]string {
	pairs := make(map[string]string, len(b.pairs))
	for k, v := range b.pairs {
		pairs[k] = v
	}
	return pairs
}

// Logger returns the logger
func (b *BaseSource) Logger() *logging.Logger {
	return b.logger
}

// SetClient replaces the HTTP client. Used by tests to point at a test server.
func (b *BaseSource) SetClient(client *http.Client) {
	b.client = client
}

// FetchJSON executes a GET request and decodes the JSON response into target.
func (b *BaseSource) FetchJSON(ctx context.Context, url string, headers map[string]string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		b.logger.Warn("Rate limit exceeded", "source", b.name, "status", resp.StatusCode)
		return fmt.Errorf("%w (status 429)", ErrRateLimitExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return nil
}
