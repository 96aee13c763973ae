// Package cex provides price sources backed by centralized exchange APIs.
package cex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
)

const coingeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoSource fetches prices from the CoinGecko REST API
type CoinGeckoSource struct {
	*sources.BaseSource

	baseURL string
	apiKey  string
}

// NewCoinGeckoSource creates a new CoinGecko source
func NewCoinGeckoSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	// Parse pairs from config (map of "XLM" => "stellar")
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	baseURL := coingeckoBaseURL
	if u, ok := config["base_url"].(string); ok && u != "" {
		baseURL = u
	}

	apiKey := ""
	if key, ok := config["api_key"].(string); ok {
		apiKey = key
	}

	base := sources.NewBaseSource("coingecko", sources.SourceTypeCEX,
		"CoinGecko simple price API", "v3", pairs, logger)

	return &CoinGeckoSource{
		BaseSource: base,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// GetPrice fetches the current price for a single symbol
func (s *CoinGeckoSource) GetPrice(ctx context.Context, symbol string) (sources.PriceSample, error) {
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
func (s *CoinGeckoSource) GetPrices(ctx context.Context, symbols []string) ([]sources.PriceSample, error) {
	// Map requested symbols to CoinGecko ids, skipping unsupported ones
	idToSymbol := make(map[string]string)
	for _, symbol := range sources.NormalizeSymbols(symbols) {
		id := s.GetSourceSymbol(symbol)
		if id == "" {
			continue
		}
		idToSymbol[id] = symbol
	}
	if len(idToSymbol) == 0 {
		return nil, fmt.Errorf("%w: none of %v", sources.ErrUnsupportedSymbol, symbols)
	}

	ids := make([]string, 0, len(idToSymbol))
	for id := range idToSymbol {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		s.baseURL, strings.Join(ids, ","))
	if s.apiKey != "" {
		url += "&x_cg_pro_api_key=" + s.apiKey
	}

	var data map[string]map[string]float64
	if err := s.FetchJSON(ctx, url, nil, &data); err != nil {
		s.SetHealthy(false)
		metrics.RecordSourceHealth(s.Name(), string(s.Type()), false)
		return nil, err
	}

	now := time.Now()
	samples := make([]sources.PriceSample, 0, len(data))
	for id, priceData := range data {
		usdPrice, ok := priceData["usd"]
		if !ok {
			continue
		}
		symbol, ok := idToSymbol[id]
		if !ok {
			continue
		}

		price, err := sources.ParsePrice(usdPrice)
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
	sources.Register("cex.coingecko", func(config map[string]interface{}) (sources.Source, error) {
		return NewCoinGeckoSource(config)
	})
}
