package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/metrics"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
	"github.com/shopspring/decimal"
)

// sourceRecord is the aggregator's bookkeeping for one registered source.
// source and weight are immutable after registration; healthy and
// lastChecked are updated under mu after every call outcome.
type sourceRecord struct {
	source  sources.Source
	weight  float64
	breaker *circuitBreaker

	mu          sync.Mutex
	healthy     bool
	lastChecked time.Time
}

// eligibleSource pairs a record with its name for one fan-out pass.
type eligibleSource struct {
	name string
	rec  *sourceRecord
}

// Aggregator combines price samples from registered sources into a single
// aggregated price per symbol, filtering statistical outliers, tracking
// per-source health through circuit breakers and caching results.
// All methods are safe for concurrent use.
type Aggregator struct {
	cfg    Config
	logger *logging.Logger
	cache  *PriceCache

	mu      sync.RWMutex
	records map[string]*sourceRecord
	order   []string

	strategyMu sync.RWMutex
	strategy   Strategy
}

// NewAggregator creates an aggregator with the given configuration and
// active strategy. A nil strategy defaults to median, a nil logger to a
// no-op logger.
func NewAggregator(cfg Config, strategy Strategy, logger *logging.Logger) (*Aggregator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strategy == nil {
		strategy = NewMedianStrategy()
	}
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	cache, err := NewPriceCache(cfg.CacheTTL, cfg.CacheMaxSize)
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		records:  make(map[string]*sourceRecord),
		strategy: strategy,
	}, nil
}

// AddSource registers a source with the given weight. The weight is used
// by weight-aware strategies and never changes on fetch failures.
func (a *Aggregator) AddSource(src sources.Source, weight float64) error {
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidConfig)
	}
	name := src.Name()
	if name == "" {
		return fmt.Errorf("%w: source has no name", ErrInvalidConfig)
	}
	if weight < 0 {
		return fmt.Errorf("%w: negative weight %v for source %s", ErrInvalidConfig, weight, name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.records[name]; exists {
		return fmt.Errorf("%w: %s", ErrSourceExists, name)
	}
	a.records[name] = &sourceRecord{
		source:  src,
		weight:  weight,
		healthy: src.IsHealthy(),
		breaker: newCircuitBreaker(name, a.cfg, a.logger),
	}
	a.order = append(a.order, name)

	a.logger.Info("source registered", "source", name, "weight", weight)
	return nil
}

// RemoveSource unregisters a source and drops its cached samples.
func (a *Aggregator) RemoveSource(name string) error {
	a.mu.Lock()
	if _, ok := a.records[name]; !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	delete(a.records, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.mu.Unlock()

	a.cache.InvalidateSource(name)
	a.logger.Info("source removed", "source", name)
	return nil
}

// SetStrategy switches the active aggregation strategy. Results already
// cached are unaffected. A nil strategy is ignored.
func (a *Aggregator) SetStrategy(s Strategy) {
	if s == nil {
		return
	}
	a.strategyMu.Lock()
	a.strategy = s
	a.strategyMu.Unlock()
	a.logger.Info("aggregation strategy changed", "strategy", s.Name())
}

func (a *Aggregator) activeStrategy() Strategy {
	a.strategyMu.RLock()
	defer a.strategyMu.RUnlock()
	return a.strategy
}

// GetSources returns a snapshot of every registered source in
// registration order.
func (a *Aggregator) GetSources() []SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]SourceStatus, 0, len(a.order))
	for _, name := range a.order {
		rec := a.records[name]
		rec.mu.Lock()
		healthy, lastChecked := rec.healthy, rec.lastChecked
		rec.mu.Unlock()

		out = append(out, SourceStatus{
			Name:         name,
			Weight:       rec.weight,
			Healthy:      healthy,
			LastChecked:  lastChecked,
			FailureCount: rec.breaker.Failures(),
			CircuitState: rec.breaker.State(),
		})
	}
	return out
}

// GetAggregatedPrice fetches the symbol's price from every source whose
// circuit admits a call, filters outliers, and reduces the survivors with
// the active strategy. When fewer than MinSources samples survive it falls
// back to a stale cached aggregate within MaxStaleness if fallback is
// enabled, otherwise it fails with an InsufficientSourcesError. Individual
// source failures are recorded against their circuit breakers and never
// surface to the caller.
func (a *Aggregator) GetAggregatedPrice(ctx context.Context, symbol string) (AggregatedPrice, error) {
	normalized := sources.NormalizeSymbol(symbol)
	if normalized == "" {
		return AggregatedPrice{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	eligible := a.eligibleSources()
	samples := a.fanOut(ctx, eligible, normalized)
	return a.aggregateSymbol(normalized, samples)
}

// GetAggregatedPrices aggregates a batch of symbols using a single
// eligibility pass and one batch call per source. Aggregation runs
// per symbol; symbols that cannot be aggregated are logged and omitted
// from the result rather than failing the batch.
func (a *Aggregator) GetAggregatedPrices(ctx context.Context, symbols []string) (map[string]AggregatedPrice, error) {
	normalized := sources.NormalizeSymbols(symbols)
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", ErrInvalidSymbol)
	}

	eligible := a.eligibleSources()
	bySymbol := a.fanOutBatch(ctx, eligible, normalized)

	out := make(map[string]AggregatedPrice, len(normalized))
	for _, sym := range normalized {
		agg, err := a.aggregateSymbol(sym, bySymbol[sym])
		if err != nil {
			a.logger.Warn("aggregation failed", "symbol", sym, "error", err.Error())
			continue
		}
		out[sym] = agg
	}
	return out, nil
}

// GetPrice bypasses aggregation and returns a single source's sample for
// the symbol, served from the sample cache when fresh. An empty sourceName
// selects the first registered source whose circuit admits a call.
func (a *Aggregator) GetPrice(ctx context.Context, symbol, sourceName string) (sources.PriceSample, error) {
	normalized := sources.NormalizeSymbol(symbol)
	if normalized == "" {
		return sources.PriceSample{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}

	if sourceName == "" {
		name, ok := a.firstEligible()
		if !ok {
			return sources.PriceSample{}, ErrNoEligibleSources
		}
		sourceName = name
	}

	a.mu.RLock()
	rec, ok := a.records[sourceName]
	a.mu.RUnlock()
	if !ok {
		return sources.PriceSample{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceName)
	}

	if sample, ok := a.cache.GetPrice(normalized, sourceName); ok {
		return sample, nil
	}

	if !rec.breaker.Allow() {
		return sources.PriceSample{}, fmt.Errorf("%w: %s", ErrCircuitOpen, sourceName)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	sample, err := rec.source.GetPrice(callCtx, normalized)
	if err == nil && sample.Price.IsNegative() {
		err = fmt.Errorf("%w: negative price %s from %s", sources.ErrInvalidPriceData, sample.Price, sourceName)
	}
	a.recordSourceOutcome(sourceName, rec, err)
	if err != nil {
		return sources.PriceSample{}, err
	}

	a.cache.SetPrice(sample)
	return sample, nil
}

// InvalidateCache drops the aggregated result and every per-source sample
// for the symbol.
func (a *Aggregator) InvalidateCache(symbol string) {
	normalized := sources.NormalizeSymbol(symbol)
	if normalized == "" {
		return
	}
	a.cache.Invalidate(normalized)
}

// InvalidateAll clears both cache namespaces.
func (a *Aggregator) InvalidateAll() {
	a.cache.InvalidateAll()
}

// CacheStats reports entry counts for both cache namespaces.
func (a *Aggregator) CacheStats() CacheStats {
	return a.cache.Stats()
}

// eligibleSources admits one fan-out call per source whose circuit allows
// it, in registration order. Admission reserves half-open trial slots, so
// every returned source must be called and its outcome recorded.
func (a *Aggregator) eligibleSources() []eligibleSource {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]eligibleSource, 0, len(a.order))
	for _, name := range a.order {
		rec := a.records[name]
		if !rec.breaker.Allow() {
			a.logger.Debug("source skipped, circuit open", "source", name)
			continue
		}
		out = append(out, eligibleSource{name: name, rec: rec})
	}
	return out
}

// firstEligible returns the first registered source whose circuit would
// admit a call, without reserving a trial slot.
func (a *Aggregator) firstEligible() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, name := range a.order {
		if a.records[name].breaker.Eligible() {
			return name, true
		}
	}
	return "", false
}

// fanOut calls GetPrice on every eligible source concurrently, each call
// bounded by its own timeout, and collects the valid samples in source
// order. Every outcome, including timeouts and cancellations, is recorded
// against the source's breaker.
func (a *Aggregator) fanOut(ctx context.Context, eligible []eligibleSource, symbol string) []sources.PriceSample {
	results := make([]sources.PriceSample, len(eligible))
	valid := make([]bool, len(eligible))

	var wg sync.WaitGroup
	for i, es := range eligible {
		wg.Add(1)
		go func(i int, es eligibleSource) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
			defer cancel()

			sample, err := es.rec.source.GetPrice(callCtx, symbol)
			if err == nil && sample.Price.IsNegative() {
				err = fmt.Errorf("%w: negative price %s from %s", sources.ErrInvalidPriceData, sample.Price, es.name)
			}
			a.recordSourceOutcome(es.name, es.rec, err)
			if err != nil {
				a.logger.Warn("source call failed", "source", es.name, "symbol", symbol, "error", err.Error())
				return
			}

			a.cache.SetPrice(sample)
			results[i] = sample
			valid[i] = true
		}(i, es)
	}
	wg.Wait()

	samples := make([]sources.PriceSample, 0, len(eligible))
	for i, ok := range valid {
		if ok {
			samples = append(samples, results[i])
		}
	}
	return samples
}

// fanOutBatch calls GetPrices on every eligible source concurrently and
// groups the returned samples by symbol. Sources may return partial
// results; samples for symbols that were not requested are dropped.
func (a *Aggregator) fanOutBatch(ctx context.Context, eligible []eligibleSource, symbols []string) map[string][]sources.PriceSample {
	requested := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		requested[sym] = struct{}{}
	}

	results := make([][]sources.PriceSample, len(eligible))

	var wg sync.WaitGroup
	for i, es := range eligible {
		wg.Add(1)
		go func(i int, es eligibleSource) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
			defer cancel()

			samples, err := es.rec.source.GetPrices(callCtx, symbols)
			a.recordSourceOutcome(es.name, es.rec, err)
			if err != nil {
				a.logger.Warn("source batch call failed", "source", es.name, "error", err.Error())
				return
			}
			results[i] = samples
		}(i, es)
	}
	wg.Wait()

	bySymbol := make(map[string][]sources.PriceSample, len(symbols))
	for _, batch := range results {
		for _, sample := range batch {
			sym := sources.NormalizeSymbol(sample.Symbol)
			if _, ok := requested[sym]; !ok {
				continue
			}
			if sample.Price.IsNegative() {
				a.logger.Warn("dropping negative price", "source", sample.Source, "symbol", sym)
				continue
			}
			a.cache.SetPrice(sample)
			bySymbol[sym] = append(bySymbol[sym], sample)
		}
	}
	return bySymbol
}

// recordSourceOutcome feeds one call outcome into the source's breaker and
// health bookkeeping.
func (a *Aggregator) recordSourceOutcome(name string, rec *sourceRecord, err error) {
	success := err == nil
	rec.breaker.Record(success)

	rec.mu.Lock()
	rec.healthy = success
	rec.lastChecked = time.Now()
	rec.mu.Unlock()

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = "timeout"
	default:
		status = "error"
	}
	metrics.RecordSourceRequest(name, status)
}

// aggregateSymbol turns collected samples into an AggregatedPrice: outlier
// filtering, the minimum-sources gate with stale fallback, strategy
// reduction, confidence scoring and the cache write.
func (a *Aggregator) aggregateSymbol(symbol string, samples []sources.PriceSample) (AggregatedPrice, error) {
	strategy := a.activeStrategy()
	start := time.Now()
	defer func() {
		metrics.RecordAggregation(strategy.Name(), time.Since(start))
	}()

	kept := samples
	var outlierNames []string
	if a.cfg.EnableOutlierDetection {
		var outliers []sources.PriceSample
		kept, outliers = FilterOutliers(samples, a.cfg.OutlierMethod, a.cfg.ZScoreThreshold)
		for _, o := range outliers {
			outlierNames = append(outlierNames, o.Source)
			metrics.RecordOutlierRejection(symbol, string(a.cfg.OutlierMethod))
			a.logger.Warn("outlier rejected",
				"symbol", symbol,
				"source", o.Source,
				"price", o.Price.String(),
				"method", string(a.cfg.OutlierMethod))
		}
	}

	if len(kept) < a.cfg.MinSources {
		if stale, ok := a.fallback(symbol); ok {
			return stale, nil
		}
		a.logger.Warn("insufficient sources", "symbol", symbol, "got", len(kept), "need", a.cfg.MinSources)
		return AggregatedPrice{}, &InsufficientSourcesError{Symbol: symbol, Got: len(kept), Need: a.cfg.MinSources}
	}

	price, err := strategy.Aggregate(kept, a.weightsFor(kept))
	if err != nil {
		return AggregatedPrice{}, err
	}

	confidence := confidenceScore(kept)
	metrics.RecordConfidence(symbol, confidence)

	used := make([]string, 0, len(kept))
	for _, s := range kept {
		used = append(used, s.Source)
	}

	agg := AggregatedPrice{
		Symbol:           symbol,
		Price:            price,
		Timestamp:        time.Now(),
		Confidence:       confidence,
		SourcesUsed:      used,
		OutliersFiltered: outlierNames,
		SourceCount:      len(kept),
	}
	a.cache.SetAggregated(agg)

	a.logger.Debug("price aggregated",
		"symbol", symbol,
		"price", price.String(),
		"strategy", strategy.Name(),
		"sources", len(kept),
		"outliers", len(outlierNames),
		"confidence", confidence)
	return agg, nil
}

// fallback serves the cached aggregate for the symbol when it is still
// within MaxStaleness, tagged stale in its metadata. The cached entry's
// own metadata map is never mutated.
func (a *Aggregator) fallback(symbol string) (AggregatedPrice, bool) {
	if !a.cfg.EnableFallback {
		return AggregatedPrice{}, false
	}
	cached, ok := a.cache.GetAggregatedStale(symbol, a.cfg.MaxStaleness)
	if !ok {
		return AggregatedPrice{}, false
	}

	meta := make(map[string]string, len(cached.Metadata)+1)
	for k, v := range cached.Metadata {
		meta[k] = v
	}
	meta[MetadataKeyStale] = "true"
	cached.Metadata = meta

	metrics.RecordFallbackServe(symbol)
	a.logger.Warn("serving stale aggregated price",
		"symbol", symbol,
		"age", time.Since(cached.Timestamp).String())
	return cached, true
}

// weightsFor maps each sample's source to its registered weight. Sources
// no longer registered are left out and default inside the strategy.
func (a *Aggregator) weightsFor(samples []sources.PriceSample) map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	weights := make(map[string]float64, len(samples))
	for _, s := range samples {
		if rec, ok := a.records[s.Source]; ok {
			weights[s.Source] = rec.weight
		}
	}
	return weights
}

// confidenceScore rates agreement among the samples used for a result:
// 1 − min(1, stddev/mean) scaled by n/(n+1), so the score rises with the
// number of agreeing sources and falls with dispersion, staying in [0,1].
func confidenceScore(samples []sources.PriceSample) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	countFactor := float64(n) / float64(n+1)

	mean := meanOfSamples(samples)
	if mean.IsZero() {
		return countFactor
	}

	variance := decimal.Zero
	for _, s := range samples {
		dev := s.Price.Sub(mean)
		variance = variance.Add(dev.Mul(dev))
	}
	varianceFloat, _ := variance.Div(decimal.NewFromInt(int64(n))).Float64()
	meanFloat, _ := mean.Float64()

	dispersion := math.Sqrt(varianceFloat) / meanFloat
	if dispersion > 1 {
		dispersion = 1
	}
	return (1 - dispersion) * countFactor
}
