package oracle

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/sources"
)

const (
	// minSamplesIQR is the minimum sample count for IQR detection.
	minSamplesIQR = 4
	// minSamplesZScore is the minimum sample count for z-score detection.
	minSamplesZScore = 3
	// defaultZScoreThreshold is used when no threshold is configured.
	defaultZScoreThreshold = 2.0
	// iqrFenceMultiplier scales the interquartile range into fences.
	iqrFenceMultiplier = 1.5
)

// DetectOutliers returns the samples flagged as outliers by the given
// method. It never fails: below the method's minimum sample count, with
// an unknown method, or on degenerate input (zero spread) it returns an
// empty slice. The input is not modified.
func DetectOutliers(samples []sources.PriceSample, method OutlierMethod, threshold float64) []sources.PriceSample {
	flags := outlierFlags(samples, method, threshold)
	outliers := make([]sources.PriceSample, 0)
	for i, flagged := range flags {
		if flagged {
			outliers = append(outliers, samples[i])
		}
	}
	return outliers
}

// FilterOutliers partitions samples into kept and outliers, preserving
// input order in both. len(kept)+len(outliers) == len(samples).
func FilterOutliers(samples []sources.PriceSample, method OutlierMethod, threshold float64) (kept, outliers []sources.PriceSample) {
	flags := outlierFlags(samples, method, threshold)
	kept = make([]sources.PriceSample, 0, len(samples))
	outliers = make([]sources.PriceSample, 0)
	for i, flagged := range flags {
		if flagged {
			outliers = append(outliers, samples[i])
		} else {
			kept = append(kept, samples[i])
		}
	}
	return kept, outliers
}

// outlierFlags marks each sample as outlier or not, by input index
func outlierFlags(samples []sources.PriceSample, method OutlierMethod, threshold float64) []bool {
	flags := make([]bool, len(samples))

	switch method {
	case OutlierMethodIQR:
		iqrFlags(samples, flags)
	case OutlierMethodZScore:
		zscoreFlags(samples, threshold, flags)
	}

	return flags
}

// iqrFlags applies Tukey fences at 1.5*IQR. Quartiles are the medians of
// the lower and upper halves of the sorted prices (the middle element is
// excluded from both halves for odd counts).
func iqrFlags(samples []sources.PriceSample, flags []bool) {
	if len(samples) < minSamplesIQR {
		return
	}

	sorted := sortedPrices(samples)
	n := len(sorted)
	half := n / 2

	q1 := medianOfPrices(sorted[:half])
	var q3 decimal.Decimal
	if n%2 == 0 {
		q3 = medianOfPrices(sorted[half:])
	} else {
		q3 = medianOfPrices(sorted[half+1:])
	}

	iqr := q3.Sub(q1)
	fence := iqr.Mul(decimal.NewFromFloat(iqrFenceMultiplier))
	lowerFence := q1.Sub(fence)
	upperFence := q3.Add(fence)

	for i, sample := range samples {
		if sample.Price.LessThan(lowerFence) || sample.Price.GreaterThan(upperFence) {
			flags[i] = true
		}
	}
}

// zscoreFlags marks samples whose z-score against the population mean
// exceeds the threshold. Zero standard deviation means identical prices,
// so nothing is flagged.
func zscoreFlags(samples []sources.PriceSample, threshold float64, flags []bool) {
	if len(samples) < minSamplesZScore {
		return
	}
	if threshold <= 0 {
		threshold = defaultZScoreThreshold
	}

	mean := meanOfSamples(samples)

	// Population variance: Σ(Pi - mean)² / n
	sumSquaredDev := decimal.Zero
	for _, sample := range samples {
		deviation := sample.Price.Sub(mean)
		sumSquaredDev = sumSquaredDev.Add(deviation.Mul(deviation))
	}
	variance := sumSquaredDev.Div(decimal.NewFromInt(int64(len(samples))))

	// Convert to float64 for sqrt, then compare in float space
	varianceFloat, _ := variance.Float64()
	stdDev := math.Sqrt(varianceFloat)
	if stdDev == 0 {
		return
	}

	for i, sample := range samples {
		deviation, _ := sample.Price.Sub(mean).Abs().Float64()
		if deviation/stdDev > threshold {
			flags[i] = true
		}
	}
}

// sortedPrices returns the sample prices sorted ascending
func sortedPrices(samples []sources.PriceSample) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(samples))
	for i, sample := range samples {
		prices[i] = sample.Price
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].LessThan(prices[j])
	})
	return prices
}

// medianOfPrices computes the median of a sorted price list
func medianOfPrices(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 0 {
		return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
	}
	return sorted[n/2]
}

// meanOfSamples computes the arithmetic mean of sample prices
func meanOfSamples(samples []sources.PriceSample) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, sample := range samples {
		sum = sum.Add(sample.Price)
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples))))
}
