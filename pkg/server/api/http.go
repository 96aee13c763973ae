// Package api provides the HTTP and WebSocket endpoints over the
// aggregation engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/oracle"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
)

const requestTimeout = 10 * time.Second

// Engine is the aggregation surface the API serves.
type Engine interface {
	GetAggregatedPrice(ctx context.Context, symbol string) (oracle.AggregatedPrice, error)
	GetAggregatedPrices(ctx context.Context, symbols []string) (map[string]oracle.AggregatedPrice, error)
	GetPrice(ctx context.Context, symbol, sourceName string) (sources.PriceSample, error)
	GetSources() []oracle.SourceStatus
	InvalidateCache(symbol string)
	InvalidateAll()
	CacheStats() oracle.CacheStats
}

// Server represents the HTTP API server.
type Server struct {
	addr     string
	engine   Engine
	server   *http.Server
	logger   *logging.Logger
	wsServer *WebSocketServer // Optional WebSocket server for streaming
	certFile string
	keyFile  string
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, engine Engine, logger *logging.Logger) *Server {
	return &Server{
		addr:   addr,
		engine: engine,
		logger: logger,
	}
}

// SetWebSocketServer sets the WebSocket server for streaming updates.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// SetTLS enables TLS with the given certificate pair.
func (s *Server) SetTLS(certFile, keyFile string) {
	s.certFile = certFile
	s.keyFile = keyFile
}

// Handler returns the API route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/price", s.handlePrice)
	mux.HandleFunc("/v1/price/raw", s.handleRawPrice)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/v1/sources", s.handleSources)
	mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/v1/cache", s.handleCache)
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr, "tls", s.certFile != "")

	var err error
	if s.certFile != "" {
		err = s.server.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// PricePayload is the JSON form of an aggregated price.
type PricePayload struct {
	Symbol           string   `json:"symbol"`
	Price            string   `json:"price"`
	Timestamp        string   `json:"timestamp"`
	Confidence       float64  `json:"confidence"`
	SourcesUsed      []string `json:"sources_used"`
	OutliersFiltered []string `json:"outliers_filtered,omitempty"`
	SourceCount      int      `json:"source_count"`
	Stale            bool     `json:"stale,omitempty"`
}

func pricePayload(p oracle.AggregatedPrice) PricePayload {
	return PricePayload{
		Symbol:           p.Symbol,
		Price:            p.Price.String(),
		Timestamp:        p.Timestamp.Format(time.RFC3339),
		Confidence:       p.Confidence,
		SourcesUsed:      p.SourcesUsed,
		OutliersFiltered: p.OutliersFiltered,
		SourceCount:      p.SourceCount,
		Stale:            p.IsStale(),
	}
}

// SamplePayload is the JSON form of a raw per-source sample.
type SamplePayload struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// SourcePayload is the JSON form of a source status.
type SourcePayload struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	Healthy      bool    `json:"healthy"`
	LastChecked  string  `json:"last_checked,omitempty"`
	FailureCount int     `json:"failure_count"`
	CircuitState string  `json:"circuit_state"`
}

// CacheStatsPayload is the JSON form of the cache statistics.
type CacheStatsPayload struct {
	PriceCount      int `json:"price_count"`
	AggregatedCount int `json:"aggregated_count"`
	TotalSize       int `json:"total_size"`
}

// handleHealth handles the /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RecordHTTPRequest("/health", "200", time.Since(start))
	}()

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePrice handles /v1/price?symbol=XLM.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/price", status, time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		status = "400"
		http.Error(w, "symbol parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	price, err := s.engine.GetAggregatedPrice(ctx, symbol)
	if err != nil {
		status = s.writeEngineError(w, err)
		return
	}

	s.sendJSON(w, pricePayload(price))
}

// handleRawPrice handles /v1/price/raw?symbol=XLM&source=coingecko. An
// empty source falls through to the first eligible one.
func (s *Server) handleRawPrice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/price/raw", status, time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		status = "400"
		http.Error(w, "symbol parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sample, err := s.engine.GetPrice(ctx, symbol, r.URL.Query().Get("source"))
	if err != nil {
		status = s.writeEngineError(w, err)
		return
	}

	s.sendJSON(w, SamplePayload{
		Symbol:    sample.Symbol,
		Price:     sample.Price.String(),
		Timestamp: sample.Timestamp.Format(time.RFC3339),
		Source:    sample.Source,
	})
}

// handlePrices handles /v1/prices?symbols=XLM,BTC.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/prices", status, time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		status = "400"
		http.Error(w, "symbols parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	prices, err := s.engine.GetAggregatedPrices(ctx, strings.Split(raw, ","))
	if err != nil {
		status = s.writeEngineError(w, err)
		return
	}

	if s.wsServer != nil && len(prices) > 0 {
		s.wsServer.SendUpdate(prices)
	}

	payload := make([]PricePayload, 0, len(prices))
	for _, p := range prices {
		payload = append(payload, pricePayload(p))
	}
	sort.Slice(payload, func(i, j int) bool { return payload[i].Symbol < payload[j].Symbol })
	s.sendJSON(w, payload)
}

// handleSources handles /v1/sources.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/sources", status, time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := s.engine.GetSources()
	payload := make([]SourcePayload, 0, len(statuses))
	for _, st := range statuses {
		p := SourcePayload{
			Name:         st.Name,
			Weight:       st.Weight,
			Healthy:      st.Healthy,
			FailureCount: st.FailureCount,
			CircuitState: st.CircuitState.String(),
		}
		if !st.LastChecked.IsZero() {
			p.LastChecked = st.LastChecked.Format(time.RFC3339)
		}
		payload = append(payload, p)
	}
	s.sendJSON(w, payload)
}

// handleCacheStats handles /v1/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "200"
	defer func() {
		metrics.RecordHTTPRequest("/v1/cache/stats", status, time.Since(start))
	}()

	if r.Method != http.MethodGet {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.engine.CacheStats()
	s.sendJSON(w, CacheStatsPayload{
		PriceCount:      stats.PriceCount,
		AggregatedCount: stats.AggregatedCount,
		TotalSize:       stats.TotalSize,
	})
}

// handleCache handles DELETE /v1/cache?symbol=XLM. Without a symbol the
// whole cache is dropped.
func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "204"
	defer func() {
		metrics.RecordHTTPRequest("/v1/cache", status, time.Since(start))
	}()

	if r.Method != http.MethodDelete {
		status = "405"
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		s.engine.InvalidateAll()
		s.logger.Info("cache cleared")
	} else {
		s.engine.InvalidateCache(symbol)
		s.logger.Info("cache invalidated", "symbol", symbol)
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeEngineError maps engine errors onto HTTP statuses and returns the
// status label for metrics.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) string {
	switch {
	case errors.Is(err, oracle.ErrInvalidSymbol):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "400"
	case errors.Is(err, oracle.ErrSourceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return "404"
	case errors.Is(err, oracle.ErrInsufficientSources),
		errors.Is(err, oracle.ErrCircuitOpen),
		errors.Is(err, oracle.ErrNoEligibleSources):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return "503"
	default:
		s.logger.Error("request failed", "error", err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return "502"
	}
}

// sendJSON sends a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
