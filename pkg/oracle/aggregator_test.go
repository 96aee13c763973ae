package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errSourceDown = errors.New("connection refused")

type mockSource struct {
	mock.Mock
	name string
}

var _ sources.Source = (*mockSource)(nil)

func newMockSource(name string) *mockSource {
	return &mockSource{name: name}
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Info() sources.SourceInfo {
	return sources.SourceInfo{Name: m.name, Description: "mock source", Version: "test"}
}

func (m *mockSource) IsHealthy() bool { return true }

func (m *mockSource) GetPrice(ctx context.Context, symbol string) (sources.PriceSample, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(sources.PriceSample), args.Error(1)
}

func (m *mockSource) GetPrices(ctx context.Context, symbols []string) ([]sources.PriceSample, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]sources.PriceSample), args.Error(1)
}

func priceSample(symbol, source string, price float64) sources.PriceSample {
	return sources.PriceSample{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now(),
		Source:    source,
	}
}

// pricedSource serves a fixed XLM price for every request.
func pricedSource(name string, price float64) *mockSource {
	m := newMockSource(name)
	m.On("GetPrice", mock.Anything, "XLM").Return(priceSample("XLM", name, price), nil)
	return m
}

func failingSource(name string) *mockSource {
	m := newMockSource(name)
	m.On("GetPrice", mock.Anything, mock.Anything).Return(sources.PriceSample{}, errSourceDown)
	return m
}

func newTestAggregator(t *testing.T, cfg Config, strat Strategy, srcs ...sources.Source) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(cfg, strat, logging.NewNoopLogger())
	require.NoError(t, err)
	for _, s := range srcs {
		require.NoError(t, agg.AddSource(s, 1.0))
	}
	return agg
}

func TestGetAggregatedPriceMedian(t *testing.T) {
	agg := newTestAggregator(t, DefaultConfig(), nil,
		pricedSource("a", 0.119),
		pricedSource("b", 0.120),
		pricedSource("c", 0.121),
	)

	got, err := agg.GetAggregatedPrice(context.Background(), "xlm/usd")
	require.NoError(t, err)

	assert.Equal(t, "XLM", got.Symbol)
	assert.Equal(t, "0.12", got.Price.String())
	assert.Equal(t, 3, got.SourceCount)
	assert.Equal(t, []string{"a", "b", "c"}, got.SourcesUsed)
	assert.Empty(t, got.OutliersFiltered)
	assert.False(t, got.IsStale())
	assert.Greater(t, got.Confidence, 0.0)
	assert.LessOrEqual(t, got.Confidence, 1.0)
	assert.WithinDuration(t, time.Now(), got.Timestamp, time.Second)
}

func TestGetAggregatedPriceFiltersOutlier(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ZScoreThreshold = 1.2

	agg := newTestAggregator(t, cfg, nil,
		pricedSource("a", 0.119),
		pricedSource("b", 0.121),
		pricedSource("c", 12.0),
	)

	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)

	assert.Equal(t, "0.12", got.Price.String())
	assert.Equal(t, 2, got.SourceCount)
	assert.Equal(t, []string{"a", "b"}, got.SourcesUsed)
	assert.Equal(t, []string{"c"}, got.OutliersFiltered)
}

func TestGetAggregatedPriceInsufficientSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFallback = false

	agg := newTestAggregator(t, cfg, nil,
		failingSource("a"),
		failingSource("b"),
	)

	_, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientSources)

	var insErr *InsufficientSourcesError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, "XLM", insErr.Symbol)
	assert.Equal(t, 0, insErr.Got)
	assert.Equal(t, 2, insErr.Need)
}

func TestGetAggregatedPriceOutliersCountAgainstMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 3
	cfg.ZScoreThreshold = 1.2
	cfg.EnableFallback = false

	agg := newTestAggregator(t, cfg, nil,
		pricedSource("a", 100),
		pricedSource("b", 100.2),
		pricedSource("c", 140),
	)

	_, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.Error(t, err)

	var insErr *InsufficientSourcesError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, 2, insErr.Got, "the outlier must not count toward the minimum")
	assert.Equal(t, 3, insErr.Need)
}

func TestGetAggregatedPriceFallbackServesStale(t *testing.T) {
	mk := func(name string, price float64) *mockSource {
		m := newMockSource(name)
		m.On("GetPrice", mock.Anything, "XLM").Return(priceSample("XLM", name, price), nil).Once()
		m.On("GetPrice", mock.Anything, "XLM").Return(sources.PriceSample{}, errSourceDown)
		return m
	}

	agg := newTestAggregator(t, DefaultConfig(), nil, mk("a", 0.119), mk("b", 0.121))

	first, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	require.False(t, first.IsStale())

	// Every source is down now; the cached aggregate is served instead.
	second, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)

	assert.True(t, second.IsStale())
	assert.Equal(t, "true", second.Metadata[MetadataKeyStale])
	assert.Equal(t, first.Price.String(), second.Price.String())
	assert.Equal(t, first.SourceCount, second.SourceCount)

	// The cached entry itself stays untagged.
	third, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.True(t, third.IsStale())
	assert.False(t, first.IsStale())
}

func TestGetAggregatedPriceFallbackRespectsMaxStaleness(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStaleness = 50 * time.Millisecond

	mk := func(name string, price float64) *mockSource {
		m := newMockSource(name)
		m.On("GetPrice", mock.Anything, "XLM").Return(priceSample("XLM", name, price), nil).Once()
		m.On("GetPrice", mock.Anything, "XLM").Return(sources.PriceSample{}, errSourceDown)
		return m
	}

	agg := newTestAggregator(t, cfg, nil, mk("a", 0.119), mk("b", 0.121))

	_, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = agg.GetAggregatedPrice(context.Background(), "XLM")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientSources)
}

func TestCircuitBreakerExcludesOpenSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 1
	cfg.FailureThreshold = 2

	good := pricedSource("good", 100)
	bad := failingSource("bad")
	agg := newTestAggregator(t, cfg, nil, good, bad)

	for i := 0; i < 2; i++ {
		_, err := agg.GetAggregatedPrice(context.Background(), "XLM")
		require.NoError(t, err)
	}
	bad.AssertNumberOfCalls(t, "GetPrice", 2)

	// The breaker is open now; the third aggregation must not touch the
	// failing source at all.
	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	bad.AssertNumberOfCalls(t, "GetPrice", 2)
	assert.Equal(t, []string{"good"}, got.SourcesUsed)

	statuses := agg.GetSources()
	require.Len(t, statuses, 2)
	assert.Equal(t, CircuitClosed, statuses[0].CircuitState)
	assert.Equal(t, CircuitOpen, statuses[1].CircuitState)
	assert.Equal(t, 2, statuses[1].FailureCount)
	assert.False(t, statuses[1].Healthy)
}

func TestCircuitBreakerRecoversAfterResetTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 1
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = 50 * time.Millisecond

	good := pricedSource("good", 100)
	flaky := newMockSource("flaky")
	flaky.On("GetPrice", mock.Anything, "XLM").Return(sources.PriceSample{}, errSourceDown).Once()
	flaky.On("GetPrice", mock.Anything, "XLM").Return(priceSample("XLM", "flaky", 101), nil)

	agg := newTestAggregator(t, cfg, nil, good, flaky)

	_, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	flaky.AssertNumberOfCalls(t, "GetPrice", 1)

	// Open: excluded without a call.
	_, err = agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	flaky.AssertNumberOfCalls(t, "GetPrice", 1)

	time.Sleep(80 * time.Millisecond)

	// Half-open: the trial call succeeds and closes the breaker.
	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	flaky.AssertNumberOfCalls(t, "GetPrice", 2)
	assert.Equal(t, []string{"good", "flaky"}, got.SourcesUsed)

	statuses := agg.GetSources()
	assert.Equal(t, CircuitClosed, statuses[1].CircuitState)
	assert.Equal(t, 0, statuses[1].FailureCount)
}

func TestTimeoutRecordedAsFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 1
	cfg.CallTimeout = 30 * time.Millisecond

	slow := newMockSource("slow")
	slow.On("GetPrice", mock.Anything, "XLM").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(sources.PriceSample{}, context.DeadlineExceeded)

	agg := newTestAggregator(t, cfg, nil, pricedSource("fast", 100), slow)

	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.Equal(t, []string{"fast"}, got.SourcesUsed)

	statuses := agg.GetSources()
	assert.Equal(t, 1, statuses[1].FailureCount)
	assert.False(t, statuses[1].Healthy)
}

func TestNegativePriceTreatedAsFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 1

	broken := newMockSource("broken")
	broken.On("GetPrice", mock.Anything, "XLM").Return(priceSample("XLM", "broken", -5), nil)

	agg := newTestAggregator(t, cfg, nil, pricedSource("good", 100), broken)

	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, got.SourcesUsed)

	statuses := agg.GetSources()
	assert.Equal(t, 1, statuses[1].FailureCount)
}

func TestSetStrategyChangesAggregation(t *testing.T) {
	cfg := DefaultConfig()

	agg := newTestAggregator(t, cfg, NewMedianStrategy(),
		pricedSource("a", 100),
		pricedSource("b", 200),
		pricedSource("c", 600),
	)

	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.Equal(t, "200", got.Price.String())

	agg.SetStrategy(NewWeightedAverageStrategy())

	got, err = agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.Equal(t, "300", got.Price.String())
}

func TestWeightedAggregationUsesRegisteredWeights(t *testing.T) {
	agg, err := NewAggregator(DefaultConfig(), NewWeightedAverageStrategy(), logging.NewNoopLogger())
	require.NoError(t, err)

	require.NoError(t, agg.AddSource(pricedSource("a", 100), 1))
	require.NoError(t, agg.AddSource(pricedSource("b", 200), 3))

	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.Equal(t, "175", got.Price.String())
}

func TestAddSourceValidation(t *testing.T) {
	agg, err := NewAggregator(DefaultConfig(), nil, logging.NewNoopLogger())
	require.NoError(t, err)

	assert.ErrorIs(t, agg.AddSource(nil, 1), ErrInvalidConfig)
	assert.ErrorIs(t, agg.AddSource(pricedSource("a", 1), -0.5), ErrInvalidConfig)

	require.NoError(t, agg.AddSource(pricedSource("a", 1), 1))
	assert.ErrorIs(t, agg.AddSource(pricedSource("a", 2), 1), ErrSourceExists)
}

func TestRemoveSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 1

	a := pricedSource("a", 100)
	b := pricedSource("b", 200)
	agg := newTestAggregator(t, cfg, nil, a, b)

	assert.ErrorIs(t, agg.RemoveSource("nope"), ErrSourceNotFound)

	require.NoError(t, agg.RemoveSource("a"))
	statuses := agg.GetSources()
	require.Len(t, statuses, 1)
	assert.Equal(t, "b", statuses[0].Name)

	got, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.SourcesUsed)
	a.AssertNumberOfCalls(t, "GetPrice", 0)
}

func TestGetSourcesSnapshot(t *testing.T) {
	agg, err := NewAggregator(DefaultConfig(), nil, logging.NewNoopLogger())
	require.NoError(t, err)

	require.NoError(t, agg.AddSource(pricedSource("a", 1), 2.5))
	require.NoError(t, agg.AddSource(pricedSource("b", 2), 1.0))

	statuses := agg.GetSources()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Name)
	assert.Equal(t, 2.5, statuses[0].Weight)
	assert.Equal(t, CircuitClosed, statuses[0].CircuitState)
	assert.Equal(t, 0, statuses[0].FailureCount)
	assert.Equal(t, "b", statuses[1].Name)
}

func TestGetPriceSingleSource(t *testing.T) {
	a := pricedSource("a", 42.5)
	b := pricedSource("b", 43)
	agg := newTestAggregator(t, DefaultConfig(), nil, a, b)

	got, err := agg.GetPrice(context.Background(), "xlm/usd", "a")
	require.NoError(t, err)
	assert.Equal(t, "42.5", got.Price.String())
	assert.Equal(t, "a", got.Source)

	// The second read is served from the sample cache.
	got, err = agg.GetPrice(context.Background(), "XLM", "a")
	require.NoError(t, err)
	assert.Equal(t, "42.5", got.Price.String())
	a.AssertNumberOfCalls(t, "GetPrice", 1)

	// An empty source name picks the first eligible source, which already
	// has a cached sample.
	got, err = agg.GetPrice(context.Background(), "XLM", "")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Source)
	a.AssertNumberOfCalls(t, "GetPrice", 1)
	b.AssertNumberOfCalls(t, "GetPrice", 0)

	_, err = agg.GetPrice(context.Background(), "XLM", "nope")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = agg.GetPrice(context.Background(), "", "a")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestGetPriceCircuitOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1

	agg := newTestAggregator(t, cfg, nil, failingSource("a"))

	_, err := agg.GetPrice(context.Background(), "XLM", "a")
	require.Error(t, err)

	_, err = agg.GetPrice(context.Background(), "XLM", "a")
	assert.ErrorIs(t, err, ErrCircuitOpen)

	_, err = agg.GetPrice(context.Background(), "XLM", "")
	assert.ErrorIs(t, err, ErrNoEligibleSources)
}

func TestGetAggregatedPricesBatch(t *testing.T) {
	a := newMockSource("a")
	a.On("GetPrices", mock.Anything, []string{"XLM", "BTC"}).Return([]sources.PriceSample{
		priceSample("XLM", "a", 0.119),
		priceSample("BTC", "a", 42000),
	}, nil)

	b := newMockSource("b")
	b.On("GetPrices", mock.Anything, []string{"XLM", "BTC"}).Return([]sources.PriceSample{
		priceSample("XLM", "b", 0.121),
		priceSample("BTC", "b", 43000),
	}, nil)

	agg := newTestAggregator(t, DefaultConfig(), nil, a, b)

	got, err := agg.GetAggregatedPrices(context.Background(), []string{"xlm/usd", "btc"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "0.12", got["XLM"].Price.String())
	assert.Equal(t, 2, got["XLM"].SourceCount)
	assert.Equal(t, "42500", got["BTC"].Price.String())
	assert.Equal(t, 2, got["BTC"].SourceCount)

	a.AssertNumberOfCalls(t, "GetPrices", 1)
	b.AssertNumberOfCalls(t, "GetPrices", 1)
	a.AssertNotCalled(t, "GetPrice")
	b.AssertNotCalled(t, "GetPrice")
}

func TestGetAggregatedPricesPartialResults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFallback = false

	a := newMockSource("a")
	a.On("GetPrices", mock.Anything, mock.Anything).Return([]sources.PriceSample{
		priceSample("XLM", "a", 0.119),
		priceSample("BTC", "a", 42000),
	}, nil)

	// b cannot price BTC and silently skips it.
	b := newMockSource("b")
	b.On("GetPrices", mock.Anything, mock.Anything).Return([]sources.PriceSample{
		priceSample("XLM", "b", 0.121),
	}, nil)

	agg := newTestAggregator(t, cfg, nil, a, b)

	got, err := agg.GetAggregatedPrices(context.Background(), []string{"XLM", "BTC"})
	require.NoError(t, err)

	require.Contains(t, got, "XLM")
	assert.Equal(t, 2, got["XLM"].SourceCount)
	assert.NotContains(t, got, "BTC", "a single sample cannot satisfy the minimum of two sources")
}

func TestGetAggregatedPricesInvalidInput(t *testing.T) {
	agg, err := NewAggregator(DefaultConfig(), nil, logging.NewNoopLogger())
	require.NoError(t, err)

	_, err = agg.GetAggregatedPrices(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = agg.GetAggregatedPrices(context.Background(), []string{"", "  "})
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestGetAggregatedPriceInvalidSymbol(t *testing.T) {
	agg, err := NewAggregator(DefaultConfig(), nil, logging.NewNoopLogger())
	require.NoError(t, err)

	_, err = agg.GetAggregatedPrice(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = agg.GetAggregatedPrice(context.Background(), "/usd")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestCacheLifecycleThroughAggregator(t *testing.T) {
	a := pricedSource("a", 0.119)
	b := pricedSource("b", 0.121)
	agg := newTestAggregator(t, DefaultConfig(), nil, a, b)

	_, err := agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)

	stats := agg.CacheStats()
	assert.Equal(t, 2, stats.PriceCount)
	assert.Equal(t, 1, stats.AggregatedCount)
	assert.Equal(t, 3, stats.TotalSize)

	// Raw samples written during fan-out feed the single-source bypass.
	got, err := agg.GetPrice(context.Background(), "XLM", "a")
	require.NoError(t, err)
	assert.Equal(t, "0.119", got.Price.String())
	a.AssertNumberOfCalls(t, "GetPrice", 1)

	agg.InvalidateCache("xlm/usd")
	stats = agg.CacheStats()
	assert.Equal(t, 0, stats.PriceCount)
	assert.Equal(t, 0, stats.AggregatedCount)

	_, err = agg.GetAggregatedPrice(context.Background(), "XLM")
	require.NoError(t, err)
	agg.InvalidateAll()
	assert.Equal(t, 0, agg.CacheStats().TotalSize)
}

func TestConfidenceScore(t *testing.T) {
	assert.Zero(t, confidenceScore(nil))

	two := confidenceScore(samplesFromPrices(100, 100))
	three := confidenceScore(samplesFromPrices(100, 100, 100))
	assert.InDelta(t, 2.0/3.0, two, 1e-9)
	assert.InDelta(t, 3.0/4.0, three, 1e-9)
	assert.Greater(t, three, two, "more agreeing sources must score higher")

	tight := confidenceScore(samplesFromPrices(99, 101))
	wide := confidenceScore(samplesFromPrices(50, 150))
	assert.Greater(t, tight, wide, "dispersion must lower the score")

	// Dispersion beyond the mean clamps to zero confidence.
	assert.Zero(t, confidenceScore(samplesFromPrices(1, 1, 1, 1000)))

	for _, c := range []float64{two, three, tight, wide} {
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestNewAggregatorValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSources = 0
	// withDefaults treats zero as unset, so this builds fine.
	_, err := NewAggregator(cfg, nil, logging.NewNoopLogger())
	require.NoError(t, err)

	cfg = DefaultConfig()
	cfg.MinSources = -1
	_, err = NewAggregator(cfg, nil, logging.NewNoopLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.CacheMaxSize = -5
	_, err = NewAggregator(cfg, nil, logging.NewNoopLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
