package engine

import (
	"context"
	"time"

	"github.com/solterm/trading-core/pkg/types"
)

// Test-only handles into the unexported pipeline pieces.
var (
	RiskScore     = riskScore
	PassesFilters = passesFilters
)

const (
	ExitStopLoss   = exitStopLoss
	ExitTakeProfit = exitTakeProfit
	ExitTrailing   = exitTrailing
	ExitMaxHold    = exitMaxHold
)

func (e *Engine) ConsiderToken(ctx context.Context, tok types.Token) { e.considerToken(ctx, tok) }
func (e *Engine) ScanOnce(ctx context.Context) error                 { return e.scanIteration(ctx) }
func (e *Engine) MonitorOnce(ctx context.Context)                    { e.monitorIteration(ctx) }

// BackdateEntry shifts a tracked position's entry time into the past.
func (e *Engine) BackdateEntry(addr string, d time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[addr]
	if ok {
		pos.EntryTime = time.Now().Add(-d)
	}
	return ok
}

// PositionState reports the live state of a tracked position.
func (e *Engine) PositionState(addr string) (types.PositionState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[addr]
	if !ok {
		return "", false
	}
	return pos.State, true
}
