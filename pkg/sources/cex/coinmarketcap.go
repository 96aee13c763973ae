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

const coinmarketcapBaseURL = "https://pro-api.coinmarketcap.com"

// CoinMarketCapSource fetches prices from the CoinMarketCap REST API.
// An API key is mandatory; the free tier is sufficient for quote lookups.
type CoinMarketCapSource struct {
	*sources.BaseSource

	baseURL string
	apiKey  string
}

type cmcQuote struct {
	Price float64 `json:"price"`
}

type cmcResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	// v2 returns a list per symbol to disambiguate colliding tickers
	Data map[string][]struct {
		Quote map[string]cmcQuote `json:"quote"`
	} `json:"data"`
}

// NewCoinMarketCapSource creates a new CoinMarketCap source
func NewCoinMarketCapSource(config map[string]interface{}) (sources.Source, error) {
	logger := sources.GetLoggerFromConfig(config)

	// Parse pairs from config (map of "XLM" => "XLM"; CMC keys by ticker)
	pairs, err := sources.ParsePairsFromMap(config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pairs: %w", err)
	}

	apiKey, _ := config["api_key"].(string)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: coinmarketcap", sources.ErrAPIKeyRequired)
	}

	baseURL := coinmarketcapBaseURL
	if u, ok := config["base_url"].(string); ok && u != "" {
		baseURL = u
	}

	base := sources.NewBaseSource("coinmarketcap", sources.SourceTypeCEX,
		"CoinMarketCap quotes API", "v2", pairs, logger)

	return &CoinMarketCapSource{
		BaseSource: base,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

// GetPrice fetches the current price for a single symbol
func (s *CoinMarketCapSource) GetPrice(ctx context.Context, symbol string) (sources.PriceSample, error) {
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
func (s *CoinMarketCapSource) GetPrices(ctx context.Context, symbols []string) ([]sources.PriceSample, error) {
	tickerToSymbol := make(map[string]string)
	for _, symbol := range sources.NormalizeSymbols(symbols) {
		ticker := s.GetSourceSymbol(symbol)
		if ticker == "" {
			continue
		}
		tickerToSymbol[ticker] = symbol
	}
	if len(tickerToSymbol) == 0 {
		return nil, fmt.Errorf("%w: none of %v", sources.ErrUnsupportedSymbol, symbols)
	}

	tickers := make([]string, 0, len(tickerToSymbol))
	for ticker := range tickerToSymbol {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	url := fmt.Sprintf("%s/v2/cryptocurrency/quotes/latest?symbol=%s&convert=USD",
		s.baseURL, strings.Join(tickers, ","))
	headers := map[string]string{
		"X-CMC_PRO_API_KEY": s.apiKey,
		"Accept":            "application/json",
	}

	var data cmcResponse
	if err := s.FetchJSON(ctx, url, headers, &data); err != nil {
		s.SetHealthy(false)
		metrics.RecordSourceHealth(s.Name(), string(s.Type()), false)
		return nil, err
	}

	if data.Status.ErrorCode != 0 {
		s.SetHealthy(false)
		metrics.RecordSourceHealth(s.Name(), string(s.Type()), false)
		return nil, fmt.Errorf("%w: code %d: %s",
			sources.ErrAPIError, data.Status.ErrorCode, data.Status.ErrorMessage)
	}

	now := time.Now()
	samples := make([]sources.PriceSample, 0, len(data.Data))
	for ticker, listings := range data.Data {
		symbol, ok := tickerToSymbol[ticker]
		if !ok || len(listings) == 0 {
			continue
		}
		quote, ok := listings[0].Quote["USD"]
		if !ok {
			continue
		}

		price, err := sources.ParsePrice(quote.Price)
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
	sources.Register("cex.coinmarketcap", func(config map[string]interface{}) (sources.Source, error) {
		return NewCoinMarketCapSource(config)
	})
}
