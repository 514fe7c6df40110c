package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/execution"
	"github.com/solterm/trading-core/pkg/types"
)

// exitReason labels why a position was closed.
const (
	exitStopLoss   = "stop_loss"
	exitTakeProfit = "take_profit"
	exitTrailing   = "trailing_stop"
	exitMaxHold    = "max_hold"
)

// monitorIteration refreshes prices and applies the exit ladder to every
// open position.
func (e *Engine) monitorIteration(ctx context.Context) {
	e.mu.RLock()
	open := make([]*types.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.State == types.PositionOpen {
			open = append(open, p)
		}
	}
	strategy := e.strategy
	e.mu.RUnlock()

	for _, pos := range open {
		price, err := e.backend.CurrentPrice(ctx, pos.Token.Address)
		if err != nil {
			e.logger.Warn("price refresh failed",
				zap.String("token", pos.Token.Address), zap.Error(err))
			continue
		}
		e.updateAndCheck(ctx, pos, price, strategy)
	}
}

// updateAndCheck applies one price observation. Exit checks run in a fixed
// order: stop-loss, take-profit, trailing stop, max hold.
func (e *Engine) updateAndCheck(ctx context.Context, pos *types.Position, price decimal.Decimal, strategy types.Strategy) {
	one := decimal.NewFromInt(1)

	e.mu.Lock()
	pos.CurrentPrice = price
	if price.GreaterThan(pos.HighestSeen) {
		pos.HighestSeen = price
	}
	// The trailing stop arms once the position has been in profit.
	if pos.HighestSeen.GreaterThan(pos.EntryPrice) {
		pos.TrailingStopRef = pos.HighestSeen.Mul(
			one.Sub(decimal.NewFromFloat(strategy.Exit.TrailingStopFrac)))
	}
	held := pos.MinutesHeld(time.Now())

	reason := ""
	switch {
	case price.LessThanOrEqual(pos.StopLoss):
		reason = exitStopLoss
	case price.GreaterThanOrEqual(pos.TakeProfit):
		reason = exitTakeProfit
	case !pos.TrailingStopRef.IsZero() && price.LessThanOrEqual(pos.TrailingStopRef):
		reason = exitTrailing
	case held > strategy.Exit.MaxHoldMinutes:
		reason = exitMaxHold
	}
	e.mu.Unlock()

	if reason == "" {
		return
	}
	if err := e.closePosition(ctx, pos, price, reason); err != nil {
		// The position stays open; the next tick retries the sell.
		e.logger.Warn("sell failed, will retry",
			zap.String("token", pos.Token.Address),
			zap.String("reason", reason), zap.Error(err))
	}
}

// closePosition sells the position at market and settles the bookkeeping.
func (e *Engine) closePosition(ctx context.Context, pos *types.Position, price decimal.Decimal, reason string) error {
	e.mu.Lock()
	if pos.State != types.PositionOpen {
		e.mu.Unlock()
		return nil
	}
	pos.State = types.PositionClosing
	e.mu.Unlock()

	result, err := e.backend.ExecuteTrade(ctx, execution.TradeRequest{
		Kind:        types.TradeSell,
		Token:       pos.Token,
		AmountSOL:   pos.NotionalSOL,
		TokensOwned: pos.TokensOwned,
		UseJito:     e.cfg.UseJito,
	})
	if err == nil && !result.Success {
		err = fmt.Errorf("backend rejected sell: %s", result.Error)
	}
	if err != nil {
		e.mu.Lock()
		pos.State = types.PositionOpen
		e.mu.Unlock()
		return err
	}

	proceeds := result.ProceedsSOL
	if proceeds.IsZero() {
		proceeds = pos.TokensOwned.Mul(result.Price)
	}
	pnl := proceeds.Sub(pos.NotionalSOL)
	pnlPct := 0.0
	if !pos.NotionalSOL.IsZero() {
		pnlPct, _ = pnl.Div(pos.NotionalSOL).Mul(decimal.NewFromInt(100)).Float64()
	}
	outcome := types.OutcomeLoss
	if pnl.IsPositive() {
		outcome = types.OutcomeWin
	}

	e.mu.Lock()
	pos.State = types.PositionClosed
	pos.CurrentPrice = result.Price
	delete(e.positions, pos.Token.Address)
	closed := *pos
	onClosed := e.onPositionClosed
	e.mu.Unlock()

	trade := types.Trade{
		ID:           uuid.New().String(),
		Kind:         types.TradeSell,
		TokenAddress: pos.Token.Address,
		Symbol:       pos.Token.Symbol,
		AmountSOL:    proceeds,
		Price:        result.Price,
		Timestamp:    time.Now().UTC(),
		Signature:    result.Signature,
		PnL:          pnl,
		PnLPct:       pnlPct,
		Outcome:      outcome,
		Reason:       reason,
	}
	e.recordTrade(trade)

	if e.mirror != nil && pos.DBPositionID != "" {
		mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.mirror.ClosePosition(mctx, pos.DBPositionID, result.Price, reason); err != nil {
			e.logger.Warn("position close mirror failed", zap.Error(err))
		}
		cancel()
	}

	e.logger.Info("position closed",
		zap.String("token", pos.Token.Address),
		zap.String("reason", reason),
		zap.String("pnlSol", pnl.String()),
		zap.Float64("pnlPct", pnlPct))
	if e.bus != nil {
		e.bus.Publish(events.EventPositionClosed, "engine", closed)
	}
	if onClosed != nil {
		onClosed(closed, trade)
	}
	return nil
}
