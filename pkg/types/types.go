// Package types provides shared type definitions for the trading core.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingMode selects between simulated and live execution.
type TradingMode string

const (
	ModeSimulation TradingMode = "simulation"
	ModeLive       TradingMode = "live"
)

// Platform identifies a token launchpad.
type Platform string

const (
	PlatformPumpFun Platform = "pump.fun"
	PlatformBonkFun Platform = "bonk.fun"
)

// TradeKind represents buy or sell.
type TradeKind string

const (
	TradeBuy  TradeKind = "buy"
	TradeSell TradeKind = "sell"
)

// TradeOutcome classifies a closed trade.
type TradeOutcome string

const (
	OutcomeWin  TradeOutcome = "win"
	OutcomeLoss TradeOutcome = "loss"
)

// PositionState tracks a position through its lifecycle.
type PositionState string

const (
	PositionOpening PositionState = "opening"
	PositionOpen    PositionState = "open"
	PositionClosing PositionState = "closing"
	PositionClosed  PositionState = "closed"
	PositionFailed  PositionState = "failed"
)

// Token is a launchpad token sighting. Metric fields are pointers because
// metadata enrichment can leave any of them unknown; filters only apply to
// fields that are present.
type Token struct {
	Address      string    `json:"address"`
	Platform     Platform  `json:"platform"`
	DiscoveredAt time.Time `json:"discoveredAt"`
	Name         string    `json:"name,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	LiquiditySOL *float64  `json:"liquiditySol,omitempty"`
	MarketCapSOL *float64  `json:"marketCapSol,omitempty"`
	Holders      *int      `json:"holders,omitempty"`
	Volume24hSOL *float64  `json:"volume24hSol,omitempty"`
	PriceUSD     *float64  `json:"priceUsd,omitempty"`
	IsVerified   *bool     `json:"isVerified,omitempty"`
}

// AgeSeconds returns the token age relative to now.
func (t *Token) AgeSeconds(now time.Time) float64 {
	return now.Sub(t.DiscoveredAt).Seconds()
}

// Position is an owned token quantity with its exit conditions. Mutable
// fields (CurrentPrice, HighestSeen, TrailingStopRef, State) are owned by
// the monitor loop.
type Position struct {
	ID              string          `json:"id"`
	Token           Token           `json:"token"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	CurrentPrice    decimal.Decimal `json:"currentPrice"`
	EntryTime       time.Time       `json:"entryTime"`
	NotionalSOL     decimal.Decimal `json:"notionalSol"`
	TokensOwned     decimal.Decimal `json:"tokensOwned"`
	StopLoss        decimal.Decimal `json:"stopLoss"`
	TakeProfit      decimal.Decimal `json:"takeProfit"`
	TrailingStopRef decimal.Decimal `json:"trailingStopRef"` // zero until armed
	HighestSeen     decimal.Decimal `json:"highestSeen"`
	Signature       string          `json:"signature"`
	StrategyTag     string          `json:"strategyTag"`
	AIDecision      *AIDecision     `json:"aiDecision,omitempty"`
	State           PositionState   `json:"state"`
	DBPositionID    string          `json:"dbPositionId,omitempty"`
}

// MinutesHeld returns how long the position has been open.
func (p *Position) MinutesHeld(now time.Time) float64 {
	return now.Sub(p.EntryTime).Minutes()
}

// Trade is an append-only record of an executed buy or sell.
type Trade struct {
	ID           string          `json:"id"`
	Kind         TradeKind       `json:"kind"`
	TokenAddress string          `json:"tokenAddress"`
	Symbol       string          `json:"symbol,omitempty"`
	AmountSOL    decimal.Decimal `json:"amountSol"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
	Signature    string          `json:"signature"`
	PnL          decimal.Decimal `json:"pnl"`
	PnLPct       float64         `json:"pnlPct"`
	Outcome      TradeOutcome    `json:"outcome,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// AIDecisionKind is the verdict of an AI token analysis.
type AIDecisionKind string

const (
	DecisionStrongBuy   AIDecisionKind = "strong_buy"
	DecisionBuy         AIDecisionKind = "buy"
	DecisionHold        AIDecisionKind = "hold"
	DecisionAvoid       AIDecisionKind = "avoid"
	DecisionStrongAvoid AIDecisionKind = "strong_avoid"
)

// IsBuy reports whether the decision recommends entering.
func (k AIDecisionKind) IsBuy() bool {
	return k == DecisionBuy || k == DecisionStrongBuy
}

// AIDecision is a structured token analysis returned by the AI overlay.
type AIDecision struct {
	Decision         AIDecisionKind `json:"decision"`
	Confidence       float64        `json:"confidence"` // 0..1
	RiskScore        float64        `json:"riskScore"`  // 0..10
	RedFlags         []string       `json:"redFlags,omitempty"`
	GreenFlags       []string       `json:"greenFlags,omitempty"`
	SuggestedBuySOL  float64        `json:"suggestedBuyAmountSol,omitempty"`
	SuggestedStopPct float64        `json:"suggestedStopLossPct,omitempty"`
	SuggestedTakePct float64        `json:"suggestedTakeProfitPct,omitempty"`
	Reasoning        string         `json:"reasoning,omitempty"`
}

// EntryThresholds are the scanner admission thresholds the agent may tune.
type EntryThresholds struct {
	MinLiquiditySOL float64 `json:"minLiquiditySol"`
	MaxMarketCapSOL float64 `json:"maxMarketCapSol"`
	MinVolume24hSOL float64 `json:"minVolume24hSol"`
	MaxAgeSec       float64 `json:"maxAgeSec"`
}

// ExitBands are the exit parameters applied to every new position.
type ExitBands struct {
	StopLossFrac     float64 `json:"stopLossFrac"`
	TakeProfitFrac   float64 `json:"takeProfitFrac"`
	TrailingStopFrac float64 `json:"trailingStopFrac"`
	MaxHoldMinutes   float64 `json:"maxHoldMinutes"`
}

// Sizing controls position sizing.
type Sizing struct {
	BaseAmountSOL float64 `json:"baseAmountSol"`
	MaxPositions  int     `json:"maxPositions"`
	RiskPerTrade  float64 `json:"riskPerTrade"`
}

// Strategy bundles the tunable trading parameters. The agent mutates the
// bounded knobs (stop-loss fraction, base amount, min liquidity); everything
// else is fixed after start.
type Strategy struct {
	Entry  EntryThresholds `json:"entry"`
	Exit   ExitBands       `json:"exit"`
	Sizing Sizing          `json:"sizing"`
}

// Quote is the canonical normalized market quote.
type Quote struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Change24h   float64   `json:"change24h"`
	Change7d    float64   `json:"change7d,omitempty"`
	Volume24h   float64   `json:"volume24h"`
	MarketCap   float64   `json:"marketCap"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// HistoricalPoint is one sample of a normalized historical series.
type HistoricalPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
}

// TradeResult is the normalized response from the execution backend.
type TradeResult struct {
	Success     bool            `json:"success"`
	Signature   string          `json:"signature"`
	Price       decimal.Decimal `json:"price"`
	AmountSOL   decimal.Decimal `json:"amount"`
	ProceedsSOL decimal.Decimal `json:"proceeds,omitempty"`
	Error       string          `json:"error,omitempty"`
}
