package autonomous

import (
	"math"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// optimizeEvery triggers the adaptive strategy pass every N closed trades.
const optimizeEvery = 10

// optimizeStrategy is the coarse adaptive layer on top of the Q-policy: it
// reacts to the last optimizeEvery trades as a block, scaling exposure with
// realized edge.
func (a *Agent) optimizeStrategy() {
	a.mu.Lock()
	window := append([]types.Trade(nil), a.recentTrades...)
	if len(window) > optimizeEvery {
		window = window[len(window)-optimizeEvery:]
	}
	streak := a.streak
	a.mu.Unlock()

	if len(window) < optimizeEvery {
		return
	}

	wins := 0
	pnls := make([]float64, 0, len(window))
	for _, t := range window {
		pnl, _ := t.PnL.Float64()
		pnls = append(pnls, pnl)
		if t.Outcome == types.OutcomeWin {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(window))
	sharpe := sharpeRatio(pnls)

	consecutiveLosses := 0
	if streak < 0 {
		consecutiveLosses = -streak
	}

	// Three independent adjustments; any combination may fire on one block.
	s := a.controller.Strategy()
	changed := false
	if winRate < 0.4 {
		// Losing block: tighten the stop and cut size.
		s.Exit.StopLossFrac = clampFloat(s.Exit.StopLossFrac*0.95, minStopLossFrac, maxStopLossFrac)
		s.Sizing.BaseAmountSOL = clampFloat(s.Sizing.BaseAmountSOL*0.9, minBuyAmountSOL, maxBuyAmountSOL)
		changed = true
	}
	if winRate > 0.6 && sharpe > 1.5 {
		// Winning block with consistent returns: lean in modestly.
		s.Sizing.BaseAmountSOL = clampFloat(s.Sizing.BaseAmountSOL*1.05, minBuyAmountSOL, maxBuyAmountSOL)
		changed = true
	}
	if consecutiveLosses >= 3 {
		// A live losing streak demands deeper pools.
		s.Entry.MinLiquiditySOL = clampFloat(s.Entry.MinLiquiditySOL*1.2, minLiquidityBar, maxLiquidityBar)
		changed = true
	}
	if changed {
		a.controller.UpdateStrategy(s)
	}

	a.logger.Info("strategy optimization pass",
		zap.Float64("winRate", winRate),
		zap.Float64("sharpe", sharpe),
		zap.Int("consecutiveLosses", consecutiveLosses),
		zap.Bool("adjusted", changed))
}

// sharpeRatio over a PnL series, with no risk-free leg.
func sharpeRatio(pnls []float64) float64 {
	if len(pnls) < 2 {
		return 0
	}
	m := 0.0
	for _, p := range pnls {
		m += p
	}
	m /= float64(len(pnls))

	variance := 0.0
	for _, p := range pnls {
		d := p - m
		variance += d * d
	}
	variance /= float64(len(pnls) - 1)
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return m / sd
}
