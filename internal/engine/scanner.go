package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/execution"
	"github.com/solterm/trading-core/internal/launchpad"
	"github.com/solterm/trading-core/pkg/types"
)

// scanIteration fans out across platforms, then walks the discoveries
// through the admission pipeline one at a time.
func (e *Engine) scanIteration(ctx context.Context) error {
	type scanResult struct {
		platform types.Platform
		tokens   []types.Token
		err      error
	}

	results := make([]scanResult, len(e.scanners))
	var wg sync.WaitGroup
	for i, s := range e.scanners {
		wg.Add(1)
		go func(i int, s launchpad.Scanner) {
			defer wg.Done()
			tokens, err := s.Scan(ctx)
			results[i] = scanResult{platform: s.Platform(), tokens: tokens, err: err}
		}(i, s)
	}
	wg.Wait()

	failures := 0
	var lastErr error
	for _, r := range results {
		if r.err != nil {
			failures++
			lastErr = r.err
			e.logger.Warn("platform scan failed",
				zap.String("platform", string(r.platform)), zap.Error(r.err))
			continue
		}
		if e.metrics != nil {
			e.metrics.TokensScanned.WithLabelValues(string(r.platform)).Add(float64(len(r.tokens)))
		}
		for _, tok := range r.tokens {
			e.considerToken(ctx, tok)
		}
	}
	if failures == len(e.scanners) {
		return fmt.Errorf("every platform scan failed: %w", lastErr)
	}
	return nil
}

// considerToken runs the admission pipeline for one discovery. An address
// is admitted at most once per session: the scanned set records every
// address that enters the pipeline, so later sightings (and re-listings
// after a position closes) are ignored.
func (e *Engine) considerToken(ctx context.Context, tok types.Token) {
	e.mu.Lock()
	if _, ok := e.scanned[tok.Address]; ok {
		e.mu.Unlock()
		return
	}
	if _, ok := e.blacklist[tok.Address]; ok {
		e.mu.Unlock()
		return
	}
	e.scanned[tok.Address] = struct{}{}
	atCapacity := len(e.positions) >= e.cfg.MaxPositions
	strategy := e.strategy
	e.watchlist[tok.Address] = tok
	if e.bus != nil {
		e.bus.Publish(events.EventTokenDiscovered, "engine", tok)
	}
	e.mu.Unlock()

	if atCapacity {
		return
	}
	if age := tok.AgeSeconds(time.Now()); age > strategy.Entry.MaxAgeSec {
		return
	}
	if !passesFilters(tok, strategy.Entry, e.cfg.Filters) {
		return
	}

	// The AI overlay speaks first. A confident verdict settles the entry on
	// its own; only errors and low-confidence answers fall back to the
	// risk-score rule.
	var decision *types.AIDecision
	if e.analyzer != nil {
		d, err := e.analyzer.AnalyzeToken(ctx, tok)
		if err != nil {
			e.logger.Warn("ai analysis failed, falling back to risk rule",
				zap.String("token", tok.Address), zap.Error(err))
		} else {
			decision = d
			if d.Confidence >= aiVetoConfidence {
				if !d.Decision.IsBuy() {
					e.logger.Info("ai vetoed entry",
						zap.String("token", tok.Address),
						zap.String("decision", string(d.Decision)),
						zap.Float64("confidence", d.Confidence))
					return
				}
				e.buyOrBlacklist(ctx, tok, decision)
				return
			}
		}
	}

	if risk := riskScore(tok); risk >= highRiskThreshold {
		e.logger.Debug("token rejected on risk",
			zap.String("token", tok.Address), zap.Float64("risk", risk))
		return
	}
	e.buyOrBlacklist(ctx, tok, decision)
}

// buyOrBlacklist executes the entry; a failed buy blacklists the address.
func (e *Engine) buyOrBlacklist(ctx context.Context, tok types.Token, decision *types.AIDecision) {
	if err := e.executeBuy(ctx, tok, decision); err != nil {
		e.logger.Warn("buy failed, blacklisting token",
			zap.String("token", tok.Address), zap.Error(err))
		e.mu.Lock()
		e.blacklist[tok.Address] = struct{}{}
		e.mu.Unlock()
	}
}

// passesFilters applies the entry thresholds to the metric fields that are
// present. Absent fields do not disqualify.
func passesFilters(tok types.Token, entry types.EntryThresholds, filters types.FilterConfig) bool {
	if tok.LiquiditySOL != nil && *tok.LiquiditySOL < entry.MinLiquiditySOL {
		return false
	}
	if tok.MarketCapSOL != nil && *tok.MarketCapSOL > entry.MaxMarketCapSOL {
		return false
	}
	if tok.Volume24hSOL != nil && *tok.Volume24hSOL < entry.MinVolume24hSOL {
		return false
	}
	if tok.Holders != nil && *tok.Holders < filters.MinHolders {
		return false
	}
	if filters.RequireVerified && (tok.IsVerified == nil || !*tok.IsVerified) {
		return false
	}
	return true
}

// riskScore averages the risk factors derivable from the token's present
// metrics. A token with no metrics at all scores 0.5. An explicit
// unverified flag adds 0.3 on top, clamped to 1.
func riskScore(tok types.Token) float64 {
	var factors []float64
	if tok.LiquiditySOL != nil {
		f := 1 - *tok.LiquiditySOL/10
		if f < 0 {
			f = 0
		}
		factors = append(factors, f)
	}
	if tok.MarketCapSOL != nil {
		f := *tok.MarketCapSOL / 200
		if f > 1 {
			f = 1
		}
		factors = append(factors, f)
	}
	if tok.Holders != nil {
		f := 1 - float64(*tok.Holders)/100
		if f < 0 {
			f = 0
		}
		factors = append(factors, f)
	}
	if tok.Volume24hSOL != nil {
		f := 1 - *tok.Volume24hSOL/5
		if f < 0 {
			f = 0
		}
		factors = append(factors, f)
	}

	score := 0.5
	if len(factors) > 0 {
		sum := 0.0
		for _, f := range factors {
			sum += f
		}
		score = sum / float64(len(factors))
	}
	if tok.IsVerified != nil && !*tok.IsVerified {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

// executeBuy reserves capacity, executes, and opens the position.
func (e *Engine) executeBuy(ctx context.Context, tok types.Token, decision *types.AIDecision) error {
	e.mu.Lock()
	if len(e.positions) >= e.cfg.MaxPositions {
		e.mu.Unlock()
		return nil
	}
	strategy := e.strategy

	amount := decimal.NewFromFloat(strategy.Sizing.BaseAmountSOL)
	if decision != nil && decision.SuggestedBuySOL > 0 {
		suggested := decimal.NewFromFloat(decision.SuggestedBuySOL)
		ceiling := amount.Mul(decimal.NewFromInt(2))
		if suggested.GreaterThan(ceiling) {
			suggested = ceiling
		}
		amount = suggested
	}

	pos := &types.Position{
		ID:          uuid.New().String(),
		Token:       tok,
		EntryTime:   time.Now().UTC(),
		NotionalSOL: amount,
		StrategyTag: "launchpad_snipe",
		AIDecision:  decision,
		State:       types.PositionOpening,
	}
	e.positions[tok.Address] = pos
	e.mu.Unlock()

	result, err := e.backend.ExecuteTrade(ctx, execution.TradeRequest{
		Kind:      types.TradeBuy,
		Token:     tok,
		AmountSOL: amount,
		UseJito:   e.cfg.UseJito,
	})
	if err == nil && !result.Success {
		err = fmt.Errorf("backend rejected buy: %s", result.Error)
	}
	if err != nil {
		e.mu.Lock()
		delete(e.positions, tok.Address)
		e.mu.Unlock()
		return err
	}

	slFrac := strategy.Exit.StopLossFrac
	tpFrac := strategy.Exit.TakeProfitFrac
	if decision != nil {
		if decision.SuggestedStopPct > 0 {
			slFrac = decision.SuggestedStopPct / 100
		}
		if decision.SuggestedTakePct > 0 {
			tpFrac = decision.SuggestedTakePct / 100
		}
	}

	one := decimal.NewFromInt(1)
	entry := result.Price
	e.mu.Lock()
	pos.EntryPrice = entry
	pos.CurrentPrice = entry
	pos.HighestSeen = entry
	pos.TokensOwned = decimal.Zero
	if !entry.IsZero() {
		pos.TokensOwned = amount.Div(entry)
	}
	pos.StopLoss = entry.Mul(one.Sub(decimal.NewFromFloat(slFrac)))
	pos.TakeProfit = entry.Mul(one.Add(decimal.NewFromFloat(tpFrac)))
	pos.Signature = result.Signature
	pos.State = types.PositionOpen
	e.mu.Unlock()

	trade := types.Trade{
		ID:           uuid.New().String(),
		Kind:         types.TradeBuy,
		TokenAddress: tok.Address,
		Symbol:       tok.Symbol,
		AmountSOL:    amount,
		Price:        entry,
		Timestamp:    time.Now().UTC(),
		Signature:    result.Signature,
	}
	e.recordTrade(trade)

	if e.mirror != nil {
		if id, err := e.mirror.MirrorPosition(ctx, pos); err != nil {
			e.logger.Warn("position mirror failed", zap.Error(err))
		} else {
			e.mu.Lock()
			pos.DBPositionID = id
			e.mu.Unlock()
		}
	}

	e.logger.Info("position opened",
		zap.String("token", tok.Address),
		zap.String("symbol", tok.Symbol),
		zap.String("entry", entry.String()),
		zap.String("amountSol", amount.String()))
	if e.metrics != nil {
		e.metrics.TokensAdmitted.WithLabelValues(string(tok.Platform)).Inc()
	}
	return nil
}

// recordTrade appends to history, updates counters, mirrors, and notifies.
func (e *Engine) recordTrade(trade types.Trade) {
	e.mu.Lock()
	e.trades = append(e.trades, trade)
	e.stats.apply(trade)
	onTrade := e.onTrade
	openCount := len(e.positions)
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.TradesExecuted.WithLabelValues(string(trade.Kind), string(e.cfg.Mode)).Inc()
		e.metrics.OpenPositions.Set(float64(openCount))
	}
	if e.bus != nil {
		e.bus.Publish(events.EventTradeExecuted, "engine", trade)
	}
	if e.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.mirror.MirrorTrade(ctx, &trade); err != nil {
			e.logger.Warn("trade mirror failed", zap.Error(err))
		}
		cancel()
	}
	if onTrade != nil {
		onTrade(trade)
	}
}
