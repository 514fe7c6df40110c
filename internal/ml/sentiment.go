package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// CompositeSentiment scores market mood from price momentum, volume pressure,
// and volatility, labelled on a fear/greed scale.
type CompositeSentiment struct {
	logger *zap.Logger
}

func NewCompositeSentiment(logger *zap.Logger) *CompositeSentiment {
	return &CompositeSentiment{logger: logger.Named("sentiment")}
}

func (s *CompositeSentiment) Analyze(ctx context.Context, quote *types.Quote, history []types.HistoricalPoint) (*SentimentResult, error) {
	if quote == nil {
		return nil, fmt.Errorf("quote is required")
	}

	components := map[string]float64{}

	// 24h momentum, clamped to [-1, 1] at +/-20%.
	momentum := clamp(quote.Change24h/20, -1, 1)
	components["momentum"] = momentum

	// Weekly drift carries less weight.
	weekly := clamp(quote.Change7d/40, -1, 1)
	components["weekly"] = weekly

	// Volume pressure: recent volume vs the series average.
	volume := 0.0
	if len(history) >= 5 {
		vols := make([]float64, len(history))
		for i, h := range history {
			vols[i] = h.Volume
		}
		avg := mean(vols)
		recent := mean(vols[len(vols)-3:])
		if avg > 0 {
			// Rising volume amplifies the direction of the price move.
			ratio := clamp((recent-avg)/avg, -1, 1)
			if momentum < 0 {
				ratio = -ratio
			}
			volume = ratio
		}
	}
	components["volume"] = volume

	// High volatility reads as fear.
	volatility := 0.0
	if len(history) >= 5 {
		rets := returns(history)
		vol := stddev(rets)
		volatility = -clamp(vol/0.1, 0, 1)
	}
	components["volatility"] = volatility

	score := clamp(0.45*momentum+0.15*weekly+0.25*volume+0.15*volatility, -1, 1)

	return &SentimentResult{
		Symbol:      quote.Symbol,
		Score:       score,
		Label:       sentimentLabel(score),
		Components:  components,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func sentimentLabel(score float64) string {
	switch {
	case score <= -0.6:
		return "extreme_fear"
	case score <= -0.2:
		return "fear"
	case score < 0.2:
		return "neutral"
	case score < 0.6:
		return "greed"
	default:
		return "extreme_greed"
	}
}

func returns(history []types.HistoricalPoint) []float64 {
	out := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Price
		if prev <= 0 {
			continue
		}
		out = append(out, (history[i].Price-prev)/prev)
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
