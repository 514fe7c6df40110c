package engine

import (
	"github.com/shopspring/decimal"

	"github.com/solterm/trading-core/pkg/types"
)

// statsState holds the running counters. Guarded by the engine mutex.
type statsState struct {
	buys          int
	sells         int
	wins          int
	losses        int
	totalPnL      decimal.Decimal
	totalDeployed decimal.Decimal
	bestTrade     decimal.Decimal
	worstTrade    decimal.Decimal
	hasClosed     bool
}

func (s *statsState) apply(trade types.Trade) {
	switch trade.Kind {
	case types.TradeBuy:
		s.buys++
		s.totalDeployed = s.totalDeployed.Add(trade.AmountSOL)
	case types.TradeSell:
		s.sells++
		s.totalPnL = s.totalPnL.Add(trade.PnL)
		if trade.Outcome == types.OutcomeWin {
			s.wins++
		} else {
			s.losses++
		}
		if !s.hasClosed || trade.PnL.GreaterThan(s.bestTrade) {
			s.bestTrade = trade.PnL
		}
		if !s.hasClosed || trade.PnL.LessThan(s.worstTrade) {
			s.worstTrade = trade.PnL
		}
		s.hasClosed = true
	}
}

// Stats is the engine counter snapshot.
type Stats struct {
	Running       bool            `json:"running"`
	Mode          types.TradingMode `json:"mode"`
	OpenPositions int             `json:"openPositions"`
	Watchlist     int             `json:"watchlist"`
	Blacklisted   int             `json:"blacklisted"`
	Buys          int             `json:"buys"`
	Sells         int             `json:"sells"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	WinRate       float64         `json:"winRate"`
	TotalPnLSOL   decimal.Decimal `json:"totalPnlSol"`
	BestTradeSOL  decimal.Decimal `json:"bestTradeSol"`
	WorstTradeSOL decimal.Decimal `json:"worstTradeSol"`
	DeployedSOL   decimal.Decimal `json:"deployedSol"`
	ROIPct        float64         `json:"roiPct"`
}

// GetStats returns the counter snapshot.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Running:       e.running,
		Mode:          e.cfg.Mode,
		OpenPositions: len(e.positions),
		Watchlist:     len(e.watchlist),
		Blacklisted:   len(e.blacklist),
		Buys:          e.stats.buys,
		Sells:         e.stats.sells,
		Wins:          e.stats.wins,
		Losses:        e.stats.losses,
		TotalPnLSOL:   e.stats.totalPnL,
		BestTradeSOL:  e.stats.bestTrade,
		WorstTradeSOL: e.stats.worstTrade,
		DeployedSOL:   e.stats.totalDeployed,
	}
	if closed := s.Wins + s.Losses; closed > 0 {
		s.WinRate = float64(s.Wins) / float64(closed)
	}
	if !e.stats.totalDeployed.IsZero() {
		roi, _ := e.stats.totalPnL.Div(e.stats.totalDeployed).Mul(decimal.NewFromInt(100)).Float64()
		s.ROIPct = roi
	}
	return s
}

// Status is the lightweight liveness view.
type Status struct {
	Running       bool              `json:"running"`
	Mode          types.TradingMode `json:"mode"`
	OpenPositions int               `json:"openPositions"`
	MaxPositions  int               `json:"maxPositions"`
	Platforms     []types.Platform  `json:"platforms"`
}

// GetStatus returns the liveness view.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	platforms := make([]types.Platform, 0, len(e.scanners))
	for _, s := range e.scanners {
		platforms = append(platforms, s.Platform())
	}
	return Status{
		Running:       e.running,
		Mode:          e.cfg.Mode,
		OpenPositions: len(e.positions),
		MaxPositions:  e.cfg.MaxPositions,
		Platforms:     platforms,
	}
}
