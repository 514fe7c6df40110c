// Package engine runs the live scanner and trading loop: token discovery,
// admission filtering, execution, and position monitoring.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/execution"
	"github.com/solterm/trading-core/internal/launchpad"
	"github.com/solterm/trading-core/internal/metrics"
	"github.com/solterm/trading-core/pkg/types"
)

// highRiskThreshold declines tokens whose composite risk score reaches it;
// only scores strictly below it may buy on rules alone.
const highRiskThreshold = 0.6

// aiVetoConfidence is the minimum confidence at which an AI verdict is
// decisive on its own: a buy enters regardless of the risk score, and a
// non-buy declines without falling through to the rules.
const aiVetoConfidence = 0.7

// Engine owns the scan and monitor loops.
type Engine struct {
	cfg     types.EngineConfig
	logger  *zap.Logger
	backend execution.Backend
	bus     *events.Bus
	metrics *metrics.Metrics

	// Optional backend capabilities, discovered at wiring time.
	analyzer execution.Analyzer
	mirror   execution.Mirror

	scanners []launchpad.Scanner

	mu        sync.RWMutex
	running   bool
	strategy  types.Strategy
	positions map[string]*types.Position // keyed by token address
	scanned   map[string]struct{}        // admit-once set; an address runs the pipeline exactly once
	blacklist map[string]struct{}
	watchlist map[string]types.Token
	trades    []types.Trade
	stats     statsState

	onTrade          func(types.Trade)
	onPositionClosed func(types.Position, types.Trade)

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New wires the engine. Analyzer and mirror capabilities are taken from the
// backend when it provides them and AI analysis / database use are enabled.
func New(cfg types.EngineConfig, backend execution.Backend, scanners []launchpad.Scanner,
	bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if backend == nil {
		return nil, fmt.Errorf("execution backend is required")
	}
	if len(scanners) == 0 {
		return nil, fmt.Errorf("at least one launchpad scanner is required")
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger.Named("engine"),
		backend:   backend,
		bus:       bus,
		metrics:   m,
		scanners:  scanners,
		strategy:  cfg.Strategy(),
		positions: make(map[string]*types.Position),
		scanned:   make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
		watchlist: make(map[string]types.Token),
		stopChan:  make(chan struct{}),
	}
	if cfg.UseAIAnalysis {
		if a, ok := backend.(execution.Analyzer); ok {
			e.analyzer = a
		} else {
			e.logger.Warn("ai analysis enabled but backend cannot analyze, continuing without")
		}
	}
	if cfg.UseDatabase {
		if dbm, ok := backend.(execution.Mirror); ok {
			e.mirror = dbm
		} else {
			e.logger.Warn("database mirror enabled but backend cannot mirror, continuing without")
		}
	}
	return e, nil
}

// SetAnalyzer installs an AI overlay when the backend did not supply one.
// A backend-provided analyzer is never replaced.
func (e *Engine) SetAnalyzer(a execution.Analyzer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.analyzer == nil {
		e.analyzer = a
	}
}

// SetOnTrade installs a callback invoked after every executed trade.
func (e *Engine) SetOnTrade(fn func(types.Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = fn
}

// SetOnPositionClosed installs a callback invoked when a position closes.
func (e *Engine) SetOnPositionClosed(fn func(types.Position, types.Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPositionClosed = fn
}

// Strategy returns a copy of the current strategy.
func (e *Engine) Strategy() types.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy
}

// UpdateStrategy swaps in tuned parameters. The agent calls this with
// bounded adjustments.
func (e *Engine) UpdateStrategy(s types.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = s
	e.logger.Info("strategy updated",
		zap.Float64("stopLossFrac", s.Exit.StopLossFrac),
		zap.Float64("baseAmountSol", s.Sizing.BaseAmountSOL),
		zap.Float64("minLiquiditySol", s.Entry.MinLiquiditySOL))
}

// Start launches the scan and monitor loops.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("engine starting",
		zap.String("mode", string(e.cfg.Mode)),
		zap.Int("platforms", len(e.scanners)),
		zap.Int("maxPositions", e.cfg.MaxPositions))

	e.wg.Add(2)
	go e.scanLoop(ctx)
	go e.monitorLoop(ctx)
	return nil
}

// Stop halts both loops, waits up to the drain timeout, and in live mode
// closes every remaining position at market.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopChan)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.DrainTimeout):
		e.logger.Warn("loops did not drain before timeout")
	}

	if e.cfg.Mode == types.ModeLive {
		e.closeAllPositions("shutdown")
	}
	e.logger.Info("engine stopped")
}

// IsRunning reports whether the loops are active.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// scanLoop discovers and admits tokens at the scan interval, backing off
// after a failed iteration.
func (e *Engine) scanLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	backoff := e.cfg.ErrorBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := e.scanIteration(ctx); err != nil {
				e.logger.Warn("scan iteration failed", zap.Error(err))
				e.publishError("scan", err)
				select {
				case <-time.After(backoff):
				case <-e.stopChan:
					return
				case <-ctx.Done():
					return
				}
				// One doubling step, then hold.
				if backoff == e.cfg.ErrorBackoff {
					backoff = 2 * e.cfg.ErrorBackoff
				}
			} else {
				backoff = e.cfg.ErrorBackoff
			}
			if e.metrics != nil {
				e.metrics.ScanDuration.Observe(time.Since(start).Seconds())
			}
		}
	}
}

// monitorLoop walks open positions at the monitor interval.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.monitorIteration(ctx)
		}
	}
}

func (e *Engine) publishError(source string, err error) {
	if e.bus != nil {
		e.bus.Publish(events.EventError, "engine."+source, err.Error())
	}
}

// closeAllPositions force-sells everything. Used on live-mode shutdown.
func (e *Engine) closeAllPositions(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	e.CloseMatching(ctx, reason, func(types.Position) bool { return true })
}

// CloseMatching sells every open position the match predicate accepts and
// returns how many were closed. The agent drives this for its bulk exits.
func (e *Engine) CloseMatching(ctx context.Context, reason string, match func(types.Position) bool) int {
	e.mu.RLock()
	open := make([]*types.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.State == types.PositionOpen && match(*p) {
			open = append(open, p)
		}
	}
	e.mu.RUnlock()

	if len(open) == 0 {
		return 0
	}
	e.logger.Info("closing positions", zap.Int("count", len(open)), zap.String("reason", reason))

	closed := 0
	for _, pos := range open {
		price := pos.CurrentPrice
		if p, err := e.backend.CurrentPrice(ctx, pos.Token.Address); err == nil {
			price = p
		}
		if err := e.closePosition(ctx, pos, price, reason); err != nil {
			e.logger.Error("failed to close position",
				zap.String("token", pos.Token.Address),
				zap.String("reason", reason), zap.Error(err))
			continue
		}
		closed++
	}
	return closed
}

// OpenPositions returns copies of the open positions.
func (e *Engine) OpenPositions() []types.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Trades returns a copy of the trade history.
func (e *Engine) Trades() []types.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]types.Trade(nil), e.trades...)
}

// Watchlist returns tokens that passed discovery but were not bought.
func (e *Engine) Watchlist() []types.Token {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Token, 0, len(e.watchlist))
	for _, t := range e.watchlist {
		out = append(out, t)
	}
	return out
}
