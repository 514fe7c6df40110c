// Package execution abstracts trade execution. Live mode drives an external
// execution service over HTTP; simulation mode runs against a synthetic
// price walk.
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/solterm/trading-core/pkg/types"
)

// TradeRequest describes one buy or sell to execute.
type TradeRequest struct {
	Kind        types.TradeKind `json:"kind"`
	Token       types.Token     `json:"token"`
	AmountSOL   decimal.Decimal `json:"amountSol"`
	TokensOwned decimal.Decimal `json:"tokensOwned,omitempty"`
	UseJito     bool            `json:"useJito,omitempty"`
}

// Backend executes trades and quotes current prices.
type Backend interface {
	Name() string
	ExecuteTrade(ctx context.Context, req TradeRequest) (*types.TradeResult, error)
	CurrentPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

// Analyzer is the optional AI token-analysis overlay a backend may expose.
type Analyzer interface {
	AnalyzeToken(ctx context.Context, token types.Token) (*types.AIDecision, error)
}

// Mirror is the optional database mirror a backend may expose. Mirror calls
// are best-effort; failures never block trading.
type Mirror interface {
	MirrorPosition(ctx context.Context, pos *types.Position) (string, error)
	MirrorTrade(ctx context.Context, trade *types.Trade) error
	ClosePosition(ctx context.Context, dbPositionID string, exitPrice decimal.Decimal, reason string) error
}
