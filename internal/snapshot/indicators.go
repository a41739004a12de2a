package snapshot

import (
	"math"
	"sort"

	"github.com/aurumdesk/riskgate/models"
)

// wilderATR calculates Wilder's smoothed Average True Range. Requires
// period+1 bars; callers surface ErrInsufficientData below that.
func wilderATR(bars []models.PriceBar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}

	trueRanges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		// True Range is the greatest of:
		// 1. Current High - Current Low
		// 2. Abs(Current High - Previous Close)
		// 3. Abs(Current Low - Previous Close)
		highLow := bars[i].High - bars[i].Low
		highPrevClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowPrevClose := math.Abs(bars[i].Low - bars[i-1].Close)
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highPrevClose, lowPrevClose)))
	}

	// Seed with the simple average of the first period, then smooth.
	var atr float64
	for _, tr := range trueRanges[:period] {
		atr += tr
	}
	atr /= float64(period)

	for _, tr := range trueRanges[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

// logReturns returns the log return series of the closes.
func logReturns(bars []models.PriceBar) []float64 {
	var returns []float64
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		returns = append(returns, math.Log(bars[i].Close/bars[i-1].Close))
	}
	return returns
}

// stdev is the sample standard deviation.
func stdev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// pearson computes the Pearson correlation coefficient of two equal-length
// series. Returns NaN when either series is degenerate.
func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return math.NaN()
	}

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(varA*varB)
}

// percentile returns the nearest-rank percentile (p in [0,100]) of values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// rangeSpreadBps estimates the effective spread of a bar in basis points
// from its high/low range. Quote history is not retained over the lookback
// window, so the bar range serves as the distribution proxy.
func rangeSpreadBps(bar models.PriceBar) float64 {
	if bar.Close <= 0 {
		return 0
	}
	return (bar.High - bar.Low) / bar.Close * 10000
}
