package oracle

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
)

const (
	// StrategyMedian selects the middle price, ignoring weights.
	StrategyMedian = "median"
	// StrategyWeightedAverage computes a weight-scaled arithmetic mean.
	StrategyWeightedAverage = "weighted_average"
	// StrategyTWAP computes a freshness-weighted average over a window.
	StrategyTWAP = "twap"
)

// Strategy reduces a set of surviving samples to a single price.
// Implementations must not mutate the input slice.
type Strategy interface {
	// Aggregate computes the aggregated price from samples.
	// weights maps source names to their weights (1.0 = standard);
	// strategies that do not use weights ignore the map.
	Aggregate(samples []sources.PriceSample, weights map[string]float64) (decimal.Decimal, error)

	// Name returns the strategy name
	Name() string
}

// NewStrategy creates a strategy by name using the engine configuration
// for strategy parameters.
func NewStrategy(name string, cfg Config) (Strategy, error) {
	switch name {
	case StrategyMedian:
		return NewMedianStrategy(), nil
	case StrategyWeightedAverage:
		return NewWeightedAverageStrategy(), nil
	case StrategyTWAP:
		return NewTWAPStrategy(cfg.TWAPWindow, cfg.TWAPDecay), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: median, weighted_average, twap)", ErrUnknownStrategy, name)
	}
}

// MedianStrategy aggregates by the median price. Weights are ignored:
// the median is a rank statistic and weighting it would silently turn
// it into a different estimator.
type MedianStrategy struct{}

// Ensure MedianStrategy implements Strategy interface.
var _ Strategy = (*MedianStrategy)(nil)

// NewMedianStrategy creates a new median strategy
func NewMedianStrategy() *MedianStrategy {
	return &MedianStrategy{}
}

// Name returns the strategy name
func (s *MedianStrategy) Name() string {
	return StrategyMedian
}

// Aggregate returns the median of the sample prices
func (s *MedianStrategy) Aggregate(samples []sources.PriceSample, _ map[string]float64) (decimal.Decimal, error) {
	if len(samples) == 0 {
		return decimal.Zero, fmt.Errorf("%w: median", ErrEmptyAggregationInput)
	}
	if len(samples) == 1 {
		return samples[0].Price, nil
	}

	return medianOfPrices(sortedPrices(samples)), nil
}

// WeightedAverageStrategy aggregates by Σ(price*weight) / Σweight.
// Sources missing from the weight map count with weight 1.0.
type WeightedAverageStrategy struct{}

// Ensure WeightedAverageStrategy implements Strategy interface.
var _ Strategy = (*WeightedAverageStrategy)(nil)

// NewWeightedAverageStrategy creates a new weighted average strategy
func NewWeightedAverageStrategy() *WeightedAverageStrategy {
	return &WeightedAverageStrategy{}
}

// Name returns the strategy name
func (s *WeightedAverageStrategy) Name() string {
	return StrategyWeightedAverage
}

// Aggregate returns the weighted arithmetic mean of the sample prices.
// A zero total weight degrades to the unweighted mean instead of failing.
func (s *WeightedAverageStrategy) Aggregate(samples []sources.PriceSample, weights map[string]float64) (decimal.Decimal, error) {
	if len(samples) == 0 {
		return decimal.Zero, fmt.Errorf("%w: weighted_average", ErrEmptyAggregationInput)
	}

	weightedSum := decimal.Zero
	totalWeight := 0.0

	for _, sample := range samples {
		weight := 1.0
		if w, ok := weights[sample.Source]; ok {
			weight = w
		}
		weightedSum = weightedSum.Add(sample.Price.Mul(decimal.NewFromFloat(weight)))
		totalWeight += weight
	}

	if totalWeight == 0 {
		return meanOfSamples(samples), nil
	}

	return weightedSum.Div(decimal.NewFromFloat(totalWeight)), nil
}

// TWAPStrategy aggregates by a time-weighted average within a lookback
// window, weighting each sample by e^(-age/decay) so fresh samples
// dominate. Samples older than the window get zero weight.
type TWAPStrategy struct {
	window time.Duration
	decay  time.Duration

	// now is replaceable for deterministic tests
	now func() time.Time
}

// Ensure TWAPStrategy implements Strategy interface.
var _ Strategy = (*TWAPStrategy)(nil)

// NewTWAPStrategy creates a new TWAP strategy. Non-positive window or
// decay fall back to the engine defaults.
func NewTWAPStrategy(window, decay time.Duration) *TWAPStrategy {
	if window <= 0 {
		window = DefaultConfig().TWAPWindow
	}
	if decay <= 0 {
		decay = DefaultConfig().TWAPDecay
	}
	return &TWAPStrategy{
		window: window,
		decay:  decay,
		now:    time.Now,
	}
}

// Name returns the strategy name
func (s *TWAPStrategy) Name() string {
	return StrategyTWAP
}

// Aggregate returns the freshness-weighted average of the sample prices.
// If every sample is outside the window, it degrades to the unweighted
// mean of all samples rather than failing.
func (s *TWAPStrategy) Aggregate(samples []sources.PriceSample, _ map[string]float64) (decimal.Decimal, error) {
	if len(samples) == 0 {
		return decimal.Zero, fmt.Errorf("%w: twap", ErrEmptyAggregationInput)
	}

	now := s.now()
	numerator := decimal.Zero
	denominator := decimal.Zero

	for _, sample := range samples {
		age := now.Sub(sample.Timestamp)
		if age > s.window {
			continue
		}

		weight := s.timeWeight(age)
		weightDecimal := decimal.NewFromFloat(weight)

		numerator = numerator.Add(sample.Price.Mul(weightDecimal))
		denominator = denominator.Add(weightDecimal)
	}

	if denominator.IsZero() {
		return meanOfSamples(samples), nil
	}

	return numerator.Div(denominator), nil
}

// timeWeight returns the exponential decay weight for a sample age.
// age=0 gives 1.0, age=decay gives ~0.368, age=2*decay gives ~0.135.
func (s *TWAPStrategy) timeWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / float64(s.decay))
}
