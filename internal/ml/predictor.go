package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// StatPredictor is a momentum/trend predictor. It blends short and long
// moving averages with recent momentum and derives confidence from how
// consistently recent moves agree on direction.
type StatPredictor struct {
	logger *zap.Logger
}

func NewStatPredictor(logger *zap.Logger) *StatPredictor {
	return &StatPredictor{logger: logger.Named("predictor")}
}

func (p *StatPredictor) Predict(ctx context.Context, symbol, horizon string, history []types.HistoricalPoint) (*Prediction, error) {
	if len(history) < 5 {
		return nil, fmt.Errorf("need at least 5 points, got %d", len(history))
	}

	prices := make([]float64, len(history))
	for i, h := range history {
		prices[i] = h.Price
	}
	current := prices[len(prices)-1]
	if current <= 0 {
		return nil, fmt.Errorf("non-positive current price for %s", symbol)
	}

	shortWin := 5
	longWin := len(prices)
	if longWin > 20 {
		longWin = 20
	}
	shortMA := mean(prices[len(prices)-shortWin:])
	longMA := mean(prices[len(prices)-longWin:])

	// Momentum over the short window, as a fraction of current price.
	momentum := (current - prices[len(prices)-shortWin]) / current

	// Trend signal: short MA above long MA leans up.
	trend := 0.0
	if longMA > 0 {
		trend = (shortMA - longMA) / longMA
	}

	signal := 0.6*momentum + 0.4*trend
	predicted := current * (1 + signal)

	// Directional consistency of the last moves drives confidence.
	ups, total := 0, 0
	for i := len(prices) - shortWin; i < len(prices)-1; i++ {
		if prices[i+1] > prices[i] {
			ups++
		}
		total++
	}
	consistency := math.Abs(float64(ups)/float64(total) - 0.5) * 2
	confidence := 0.4 + 0.5*consistency
	if confidence > 0.9 {
		confidence = 0.9
	}

	direction := "flat"
	switch {
	case signal > 0.005:
		direction = "up"
	case signal < -0.005:
		direction = "down"
	}

	return &Prediction{
		Symbol:         symbol,
		Horizon:        horizon,
		CurrentPrice:   current,
		PredictedPrice: predicted,
		ChangePct:      signal * 100,
		Direction:      direction,
		Confidence:     confidence,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
