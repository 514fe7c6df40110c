package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// TrendRecognizer detects a small set of structural patterns from the price
// series: trends, breakouts, double tops/bottoms, and consolidation.
type TrendRecognizer struct {
	logger *zap.Logger
}

func NewTrendRecognizer(logger *zap.Logger) *TrendRecognizer {
	return &TrendRecognizer{logger: logger.Named("patterns")}
}

func (r *TrendRecognizer) Recognize(ctx context.Context, symbol string, history []types.HistoricalPoint) (*PatternReport, error) {
	if len(history) < 10 {
		return nil, fmt.Errorf("need at least 10 points, got %d", len(history))
	}

	prices := make([]float64, len(history))
	for i, h := range history {
		prices[i] = h.Price
	}
	report := &PatternReport{Symbol: symbol, GeneratedAt: time.Now().UTC()}

	if m, ok := detectTrend(prices); ok {
		report.Patterns = append(report.Patterns, m)
	}
	if m, ok := detectBreakout(prices); ok {
		report.Patterns = append(report.Patterns, m)
	}
	if m, ok := detectDoubleExtreme(prices); ok {
		report.Patterns = append(report.Patterns, m)
	}
	if m, ok := detectConsolidation(prices); ok {
		report.Patterns = append(report.Patterns, m)
	}
	return report, nil
}

// detectTrend counts higher-highs / lower-lows over the tail of the series.
func detectTrend(prices []float64) (PatternMatch, bool) {
	n := len(prices)
	win := 8
	if n < win+1 {
		win = n - 1
	}
	ups, downs := 0, 0
	for i := n - win; i < n-1; i++ {
		if prices[i+1] > prices[i] {
			ups++
		} else if prices[i+1] < prices[i] {
			downs++
		}
	}
	frac := float64(ups) / float64(win)
	switch {
	case frac >= 0.7:
		return PatternMatch{
			Name: "uptrend", Direction: "bullish", Confidence: frac,
			Description: "consistent higher closes",
		}, true
	case frac <= 0.3:
		return PatternMatch{
			Name: "downtrend", Direction: "bearish", Confidence: 1 - frac,
			Description: "consistent lower closes",
		}, true
	}
	return PatternMatch{}, false
}

// detectBreakout flags a close beyond the prior range by a margin.
func detectBreakout(prices []float64) (PatternMatch, bool) {
	n := len(prices)
	body := prices[:n-1]
	hi, lo := body[0], body[0]
	for _, p := range body {
		if p > hi {
			hi = p
		}
		if p < lo {
			lo = p
		}
	}
	last := prices[n-1]
	rng := hi - lo
	if rng <= 0 {
		return PatternMatch{}, false
	}
	switch {
	case last > hi+0.02*rng:
		return PatternMatch{
			Name: "breakout", Direction: "bullish",
			Confidence:  clamp((last-hi)/rng*5, 0.5, 0.95),
			Description: "close above prior range high",
		}, true
	case last < lo-0.02*rng:
		return PatternMatch{
			Name: "breakdown", Direction: "bearish",
			Confidence:  clamp((lo-last)/rng*5, 0.5, 0.95),
			Description: "close below prior range low",
		}, true
	}
	return PatternMatch{}, false
}

// detectDoubleExtreme looks for two comparable peaks (double top) or troughs
// (double bottom) separated by a retracement.
func detectDoubleExtreme(prices []float64) (PatternMatch, bool) {
	peaks, troughs := localExtremes(prices)
	if len(peaks) >= 2 {
		a, b := prices[peaks[len(peaks)-2]], prices[peaks[len(peaks)-1]]
		if similar(a, b, 0.02) {
			return PatternMatch{
				Name: "double_top", Direction: "bearish", Confidence: 0.6,
				Description: "two comparable peaks",
			}, true
		}
	}
	if len(troughs) >= 2 {
		a, b := prices[troughs[len(troughs)-2]], prices[troughs[len(troughs)-1]]
		if similar(a, b, 0.02) {
			return PatternMatch{
				Name: "double_bottom", Direction: "bullish", Confidence: 0.6,
				Description: "two comparable troughs",
			}, true
		}
	}
	return PatternMatch{}, false
}

// detectConsolidation flags a tight range relative to the price level.
func detectConsolidation(prices []float64) (PatternMatch, bool) {
	n := len(prices)
	win := 8
	if n < win {
		win = n
	}
	tail := prices[n-win:]
	hi, lo := tail[0], tail[0]
	for _, p := range tail {
		if p > hi {
			hi = p
		}
		if p < lo {
			lo = p
		}
	}
	m := mean(tail)
	if m <= 0 {
		return PatternMatch{}, false
	}
	if (hi-lo)/m < 0.015 {
		return PatternMatch{
			Name: "consolidation", Direction: "neutral", Confidence: 0.7,
			Description: "price compressed into a tight range",
		}, true
	}
	return PatternMatch{}, false
}

func localExtremes(prices []float64) (peaks, troughs []int) {
	for i := 1; i < len(prices)-1; i++ {
		if prices[i] > prices[i-1] && prices[i] > prices[i+1] {
			peaks = append(peaks, i)
		}
		if prices[i] < prices[i-1] && prices[i] < prices[i+1] {
			troughs = append(troughs, i)
		}
	}
	return peaks, troughs
}

func similar(a, b, tol float64) bool {
	if a == 0 {
		return b == 0
	}
	return math.Abs(a-b)/math.Abs(a) <= tol
}
