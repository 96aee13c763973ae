package cex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceSource fetches prices from the Binance REST API
type BinanceSource struct {
	*sources.BaseSource

	baseURL string
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// NewBinanceSource creates a new Binance source
func NewBinanceSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	// Parse pairs from config (map of "XLM" => "XLMUSDT")
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	baseURL := binanceBaseURL
	if u, ok := config["base_url"].(string); ok && u != "" {
		baseURL = u
	}

	base := sources.NewBaseSource("binance", sources.SourceTypeCEX,
		"Binance spot ticker API", "v3", pairs, logger)

	return &BinanceSource{
		BaseSource: base,
		baseURL:    baseURL,
	}, nil
}

// GetPrice fetches the current price for a single symbol
func (s *BinanceSource) GetPrice(ctx context.Context, symbol string) (sources.PriceSample, error) {
	samples, err := s.GetPrices(ctx, []string{symbol})
	if err != nil {
		return sources.PriceSample{}, err
	}

	normalized := sources.NormalizeSymbol(symbol)
	for _, sample := range samples {
		if sample.Symbol == normalized {
			return sample, nil
		}
	}
	return sources.PriceSample{}, fmt.Errorf("%w: %s", sources.ErrNoPricesAvailable, symbol)
}

// GetPrices fetches current prices for the requested symbols
func (s *BinanceSource) GetPrices(ctx context.Context, symbols []string) ([]sources.PriceSample, error) {
	tickers := make([]string, 0, len(symbols))
	for _, symbol := range sources.NormalizeSymbols(symbols) {
		ticker := s.GetSourceSymbol(symbol)
		if ticker == "" {
			continue
		}
		tickers = append(tickers, ticker)
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("%w: none of %v", sources.ErrUnsupportedSymbol, symbols)
	}
	sort.Strings(tickers)

	// The symbols parameter is a JSON array, e.g. ["XLMUSDT","BTCUSDT"]
	tickersJSON, err := json.Marshal(tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode symbols: %w", err)
	}
	requestURL := fmt.Sprintf("%s/api/v3/ticker/price?symbols=%s",
		s.baseURL, url.QueryEscape(string(tickersJSON)))

	var data []binanceTicker
	if err := s.FetchJSON(ctx, requestURL, nil, &data); err != nil {
		s.SetHealthy(false)
		metrics.RecordSourceHealth(s.Name(), string(s.Type()), false)
		return nil, err
	}

	now := time.Now()
	samples := make([]sources.PriceSample, 0, len(data))
	for _, ticker := range data {
		symbol := s.GetUnifiedSymbol(ticker.Symbol)
		if symbol == "" {
			continue
		}

		price, err := sources.ParsePriceString(ticker.Price)
		if err != nil {
			s.Logger().Warn("Discarding invalid price", "source", s.Name(), "symbol", symbol, "error", err)
			continue
		}

		samples = append(samples, sources.PriceSample{
			Symbol:    symbol,
			Price:     price,
			Timestamp: now,
			Source:    s.Name(),
		})
		metrics.RecordSourceUpdate(s.Name(), symbol)
	}

	if len(samples) == 0 {
		s.SetHealthy(false)
		metrics.RecordSourceHealth(s.Name(), string(s.Type()), false)
		return nil, fmt.Errorf("%w", sources.ErrNoPricesExtracted)
	}

	s.SetHealthy(true)
	metrics.RecordSourceHealth(s.Name(), string(s.Type()), true)

	return samples, nil
}

// Register the source in init
func init() {
	sources.Register("cex.binance", func(config map[string]interface{}) (sources.Source, error) {
		return NewBinanceSource(config)
	})
}
