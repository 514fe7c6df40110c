package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/engine"
	"github.com/solterm/trading-core/internal/execution"
	"github.com/solterm/trading-core/internal/launchpad"
	"github.com/solterm/trading-core/pkg/types"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
func bptr(v bool) *bool       { return &v }

type fakeScanner struct {
	platform types.Platform
	tokens   []types.Token
	err      error
}

func (f *fakeScanner) Platform() types.Platform { return f.platform }
func (f *fakeScanner) Scan(ctx context.Context) ([]types.Token, error) {
	return f.tokens, f.err
}

// fakeBackend scripts trade results and prices.
type fakeBackend struct {
	mu        sync.Mutex
	buyErr    error
	sellErr   error
	price     decimal.Decimal
	buys      int
	sells     int
	analyzed  int
	analyzeFn func(types.Token) (*types.AIDecision, error)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) ExecuteTrade(ctx context.Context, req execution.TradeRequest) (*types.TradeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Kind == types.TradeBuy {
		f.buys++
		if f.buyErr != nil {
			return nil, f.buyErr
		}
	} else {
		f.sells++
		if f.sellErr != nil {
			return nil, f.sellErr
		}
	}
	res := &types.TradeResult{
		Success:   true,
		Signature: "sig",
		Price:     f.price,
		AmountSOL: req.AmountSOL,
	}
	if req.Kind == types.TradeSell {
		res.ProceedsSOL = req.TokensOwned.Mul(f.price)
	}
	return res, nil
}

func (f *fakeBackend) CurrentPrice(ctx context.Context, addr string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, nil
}

func (f *fakeBackend) AnalyzeToken(ctx context.Context, tok types.Token) (*types.AIDecision, error) {
	f.mu.Lock()
	f.analyzed++
	fn := f.analyzeFn
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no analysis")
	}
	return fn(tok)
}

func (f *fakeBackend) setPrice(p decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = p
}

func (f *fakeBackend) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buys
}

func (f *fakeBackend) analyzeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzed
}

func goodToken(addr string) types.Token {
	return types.Token{
		Address:      addr,
		Platform:     types.PlatformPumpFun,
		DiscoveredAt: time.Now().Add(-time.Minute),
		Symbol:       "TST",
		LiquiditySOL: fptr(9),
		MarketCapSOL: fptr(40),
		Holders:      iptr(80),
		Volume24hSOL: fptr(4),
	}
}

// riskyToken passes every entry filter but carries a composite risk score
// of 0.675, past the decline threshold.
func riskyToken(addr string) types.Token {
	return types.Token{
		Address:      addr,
		Platform:     types.PlatformPumpFun,
		DiscoveredAt: time.Now().Add(-time.Minute),
		Symbol:       "RSK",
		LiquiditySOL: fptr(5),
		MarketCapSOL: fptr(100),
		Holders:      iptr(10),
		Volume24hSOL: fptr(1),
	}
}

func newTestEngine(t *testing.T, cfg types.EngineConfig, backend execution.Backend, scanners ...launchpad.Scanner) *engine.Engine {
	t.Helper()
	if len(scanners) == 0 {
		scanners = []launchpad.Scanner{&fakeScanner{platform: types.PlatformPumpFun}}
	}
	e, err := engine.New(cfg, backend, scanners, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRiskScore(t *testing.T) {
	cases := []struct {
		name string
		tok  types.Token
		want float64
	}{
		{"no metrics defaults to half", types.Token{}, 0.5},
		{"deep liquidity is low risk", types.Token{LiquiditySOL: fptr(10)}, 0},
		{"thin liquidity is high risk", types.Token{LiquiditySOL: fptr(1)}, 0.9},
		{"unverified adds penalty", types.Token{LiquiditySOL: fptr(10), IsVerified: bptr(false)}, 0.3},
		{"penalty clamps at one", types.Token{LiquiditySOL: fptr(0), IsVerified: bptr(false)}, 1},
		{"market cap scales", types.Token{MarketCapSOL: fptr(100)}, 0.5},
		{"factors average", types.Token{LiquiditySOL: fptr(10), Holders: iptr(50)}, 0.25},
		{"marginal metrics compound", riskyToken("X"), 0.675},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.RiskScore(tc.tok)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("RiskScore = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPassesFiltersOnlyChecksPresentFields(t *testing.T) {
	entry := types.EntryThresholds{MinLiquiditySOL: 5, MaxMarketCapSOL: 100, MinVolume24hSOL: 1}
	filters := types.FilterConfig{MinHolders: 10}

	if !engine.PassesFilters(types.Token{}, entry, filters) {
		t.Error("token with no metrics should pass")
	}
	if engine.PassesFilters(types.Token{LiquiditySOL: fptr(2)}, entry, filters) {
		t.Error("thin liquidity should fail")
	}
	if engine.PassesFilters(types.Token{MarketCapSOL: fptr(500)}, entry, filters) {
		t.Error("oversized market cap should fail")
	}
	if engine.PassesFilters(types.Token{Holders: iptr(3)}, entry, filters) {
		t.Error("too few holders should fail")
	}
	filters.RequireVerified = true
	if engine.PassesFilters(types.Token{}, entry, filters) {
		t.Error("unknown verification should fail when required")
	}
	if !engine.PassesFilters(types.Token{IsVerified: bptr(true)}, entry, filters) {
		t.Error("verified token should pass")
	}
}

func TestScanOpensPosition(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.002)}
	scanner := &fakeScanner{platform: types.PlatformPumpFun, tokens: []types.Token{goodToken("MINT1")}}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend, scanner)

	if err := e.ScanOnce(context.Background()); err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}

	positions := e.OpenPositions()
	if len(positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(positions))
	}
	pos := positions[0]
	if pos.State != types.PositionOpen {
		t.Errorf("state = %s", pos.State)
	}
	if !pos.EntryPrice.Equal(decimal.NewFromFloat(0.002)) {
		t.Errorf("entry = %s", pos.EntryPrice)
	}
	// 0.1 SOL at 0.002 buys 50 tokens.
	if !pos.TokensOwned.Equal(decimal.NewFromInt(50)) {
		t.Errorf("tokensOwned = %s", pos.TokensOwned)
	}
	if !pos.StopLoss.LessThan(pos.EntryPrice) || !pos.TakeProfit.GreaterThan(pos.EntryPrice) {
		t.Errorf("exit bands wrong: sl=%s tp=%s", pos.StopLoss, pos.TakeProfit)
	}
	if got := e.GetStats(); got.Buys != 1 {
		t.Errorf("buys = %d", got.Buys)
	}
}

func TestHighRiskTokenDeclined(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.001)}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)

	e.ConsiderToken(context.Background(), riskyToken("RISKY"))
	if len(e.OpenPositions()) != 0 {
		t.Fatal("risk 0.675 token should be declined")
	}
	if backend.buyCount() != 0 {
		t.Errorf("backend buys = %d, want 0", backend.buyCount())
	}

	// The decline boundary is inclusive: a score of exactly 0.6 is out,
	// just below it is in.
	atEdge := types.Token{
		Address: "EDGE", Platform: types.PlatformPumpFun,
		DiscoveredAt: time.Now().Add(-time.Minute), Holders: iptr(40),
	}
	if got := engine.RiskScore(atEdge); got != 0.6 {
		t.Fatalf("edge token risk = %v, want 0.6", got)
	}
	e.ConsiderToken(context.Background(), atEdge)
	if len(e.OpenPositions()) != 0 {
		t.Fatal("risk exactly 0.6 should be declined")
	}

	below := types.Token{
		Address: "BELOW", Platform: types.PlatformPumpFun,
		DiscoveredAt: time.Now().Add(-time.Minute), Holders: iptr(41),
	}
	e.ConsiderToken(context.Background(), below)
	if len(e.OpenPositions()) != 1 {
		t.Fatal("risk just below 0.6 should buy")
	}
}

func TestTokenAdmittedOnlyOnce(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.004)}
	backend.analyzeFn = func(types.Token) (*types.AIDecision, error) {
		return &types.AIDecision{Decision: types.DecisionHold, Confidence: 0.3}, nil
	}
	cfg := types.DefaultEngineConfig()
	cfg.UseAIAnalysis = true
	e := newTestEngine(t, cfg, backend)

	e.ConsiderToken(context.Background(), goodToken("MINT1"))
	if len(e.OpenPositions()) != 1 {
		t.Fatal("first sighting should buy")
	}

	// A repeat sighting never re-enters the pipeline, so the analyzer is
	// not consulted again.
	e.ConsiderToken(context.Background(), goodToken("MINT1"))
	if got := backend.analyzeCount(); got != 1 {
		t.Errorf("analyzer calls = %d, want 1", got)
	}
	if backend.buyCount() != 1 {
		t.Errorf("backend buys = %d, want 1", backend.buyCount())
	}

	// Even after the position closes, a re-listing of the same address
	// stays out.
	backend.setPrice(decimal.NewFromFloat(0.002))
	e.MonitorOnce(context.Background())
	if len(e.OpenPositions()) != 0 {
		t.Fatal("stop loss should have closed the position")
	}
	e.ConsiderToken(context.Background(), goodToken("MINT1"))
	if len(e.OpenPositions()) != 0 || backend.buyCount() != 1 {
		t.Error("closed token was re-bought on a later sighting")
	}
}

func TestMaxPositionsEnforced(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.001)}
	cfg := types.DefaultEngineConfig()
	cfg.MaxPositions = 1
	e := newTestEngine(t, cfg, backend)

	e.ConsiderToken(context.Background(), goodToken("MINT1"))
	e.ConsiderToken(context.Background(), goodToken("MINT2"))

	if got := len(e.OpenPositions()); got != 1 {
		t.Fatalf("positions = %d, want 1", got)
	}
	if backend.buyCount() != 1 {
		t.Errorf("backend buys = %d, want 1", backend.buyCount())
	}
}

func TestBuyFailureBlacklists(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.001), buyErr: fmt.Errorf("slippage")}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)

	e.ConsiderToken(context.Background(), goodToken("BADMINT"))
	if len(e.OpenPositions()) != 0 {
		t.Fatal("failed buy left a position behind")
	}

	// The address never reaches the backend again.
	backend.mu.Lock()
	backend.buyErr = nil
	backend.mu.Unlock()
	e.ConsiderToken(context.Background(), goodToken("BADMINT"))
	if backend.buyCount() != 1 {
		t.Errorf("backend buys = %d, want 1", backend.buyCount())
	}
}

func TestAIVetoBlocksEntry(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.001)}
	backend.analyzeFn = func(types.Token) (*types.AIDecision, error) {
		return &types.AIDecision{Decision: types.DecisionAvoid, Confidence: 0.8}, nil
	}
	cfg := types.DefaultEngineConfig()
	cfg.UseAIAnalysis = true
	e := newTestEngine(t, cfg, backend)

	e.ConsiderToken(context.Background(), goodToken("MINT1"))
	if len(e.OpenPositions()) != 0 {
		t.Fatal("confident avoid verdict should veto the entry")
	}

	// A low-confidence avoid does not override the rules.
	backend.analyzeFn = func(types.Token) (*types.AIDecision, error) {
		return &types.AIDecision{Decision: types.DecisionAvoid, Confidence: 0.5}, nil
	}
	e.ConsiderToken(context.Background(), goodToken("MINT2"))
	if len(e.OpenPositions()) != 1 {
		t.Fatal("low-confidence avoid should not veto")
	}
}

func TestConfidentBuyOverridesRiskScore(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.001)}
	backend.analyzeFn = func(types.Token) (*types.AIDecision, error) {
		return &types.AIDecision{Decision: types.DecisionStrongBuy, Confidence: 0.9}, nil
	}
	cfg := types.DefaultEngineConfig()
	cfg.UseAIAnalysis = true
	e := newTestEngine(t, cfg, backend)

	// Risk 0.675 would decline on rules, but the AI verdict comes first.
	e.ConsiderToken(context.Background(), riskyToken("RISKY"))
	if len(e.OpenPositions()) != 1 {
		t.Fatal("confident buy verdict should enter regardless of risk score")
	}
	if backend.buyCount() != 1 {
		t.Errorf("backend buys = %d, want 1", backend.buyCount())
	}
}

func openTestPosition(t *testing.T, e *engine.Engine, backend *fakeBackend, addr string, entry float64) {
	t.Helper()
	backend.setPrice(decimal.NewFromFloat(entry))
	e.ConsiderToken(context.Background(), goodToken(addr))
	if state, ok := e.PositionState(addr); !ok || state != types.PositionOpen {
		t.Fatalf("position %s not opened", addr)
	}
}

func TestStopLossExit(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)
	openTestPosition(t, e, backend, "MINT1", 0.004)

	// Default stop loss is 25% below entry.
	backend.setPrice(decimal.NewFromFloat(0.0029))
	e.MonitorOnce(context.Background())

	if len(e.OpenPositions()) != 0 {
		t.Fatal("position not closed on stop loss")
	}
	trades := e.Trades()
	last := trades[len(trades)-1]
	if last.Reason != engine.ExitStopLoss {
		t.Errorf("reason = %q, want %q", last.Reason, engine.ExitStopLoss)
	}
	if last.Outcome != types.OutcomeLoss {
		t.Errorf("outcome = %q", last.Outcome)
	}
}

func TestTakeProfitExit(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)
	openTestPosition(t, e, backend, "MINT1", 0.004)

	// Default take profit is 100% above entry.
	backend.setPrice(decimal.NewFromFloat(0.009))
	e.MonitorOnce(context.Background())

	trades := e.Trades()
	last := trades[len(trades)-1]
	if last.Reason != engine.ExitTakeProfit {
		t.Errorf("reason = %q, want %q", last.Reason, engine.ExitTakeProfit)
	}
	if last.Outcome != types.OutcomeWin {
		t.Errorf("outcome = %q", last.Outcome)
	}
	if !last.PnL.IsPositive() {
		t.Errorf("pnl = %s, want positive", last.PnL)
	}
}

func TestTrailingStopExit(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)
	openTestPosition(t, e, backend, "MINT1", 0.004)

	// Run the price up (below take profit) to arm the trailing stop.
	backend.setPrice(decimal.NewFromFloat(0.007))
	e.MonitorOnce(context.Background())
	if len(e.OpenPositions()) != 1 {
		t.Fatal("position should still be open after the run-up")
	}

	// Pull back more than the 15% trailing fraction from the high.
	backend.setPrice(decimal.NewFromFloat(0.0058))
	e.MonitorOnce(context.Background())

	trades := e.Trades()
	last := trades[len(trades)-1]
	if last.Reason != engine.ExitTrailing {
		t.Errorf("reason = %q, want %q", last.Reason, engine.ExitTrailing)
	}
	if last.Outcome != types.OutcomeWin {
		t.Errorf("outcome = %q, trailing exit above entry should win", last.Outcome)
	}
}

func TestMaxHoldExit(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)
	openTestPosition(t, e, backend, "MINT1", 0.004)

	if !e.BackdateEntry("MINT1", 61*time.Minute) {
		t.Fatal("position missing")
	}

	// Price inside the bands; only the hold timer can fire.
	backend.setPrice(decimal.NewFromFloat(0.0041))
	e.MonitorOnce(context.Background())

	trades := e.Trades()
	last := trades[len(trades)-1]
	if last.Reason != engine.ExitMaxHold {
		t.Errorf("reason = %q, want %q", last.Reason, engine.ExitMaxHold)
	}
}

func TestSellFailureKeepsPositionAndRetries(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)
	openTestPosition(t, e, backend, "MINT1", 0.004)

	backend.mu.Lock()
	backend.sellErr = fmt.Errorf("rpc timeout")
	backend.mu.Unlock()
	backend.setPrice(decimal.NewFromFloat(0.002))
	e.MonitorOnce(context.Background())

	if len(e.OpenPositions()) != 1 {
		t.Fatal("position should survive a failed sell")
	}
	if state, _ := e.PositionState("MINT1"); state != types.PositionOpen {
		t.Errorf("state = %s, want open for retry", state)
	}

	backend.mu.Lock()
	backend.sellErr = nil
	backend.mu.Unlock()
	e.MonitorOnce(context.Background())
	if len(e.OpenPositions()) != 0 {
		t.Fatal("retry should close the position")
	}
}

func TestCloseMatchingSelectsByPredicate(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, types.DefaultEngineConfig(), backend)
	openTestPosition(t, e, backend, "MINT1", 0.004)
	openTestPosition(t, e, backend, "MINT2", 0.008)

	closed := e.CloseMatching(context.Background(), "rotation", func(p types.Position) bool {
		return p.Token.Address == "MINT2"
	})
	if closed != 1 {
		t.Fatalf("closed = %d, want 1", closed)
	}
	if len(e.OpenPositions()) != 1 {
		t.Fatalf("positions = %d, want 1", len(e.OpenPositions()))
	}
	trades := e.Trades()
	last := trades[len(trades)-1]
	if last.TokenAddress != "MINT2" || last.Reason != "rotation" {
		t.Errorf("last trade = %s/%s, want MINT2/rotation", last.TokenAddress, last.Reason)
	}
}

func TestStartStop(t *testing.T) {
	backend := &fakeBackend{price: decimal.NewFromFloat(0.001)}
	cfg := types.DefaultEngineConfig()
	cfg.ScanInterval = 10 * time.Millisecond
	cfg.MonitorInterval = 10 * time.Millisecond
	cfg.DrainTimeout = time.Second
	scanner := &fakeScanner{platform: types.PlatformPumpFun, tokens: []types.Token{goodToken("MINT1")}}
	e := newTestEngine(t, cfg, backend, scanner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	time.Sleep(50 * time.Millisecond)
	e.Stop()
	if e.IsRunning() {
		t.Error("engine still running after Stop")
	}
	if len(e.OpenPositions()) == 0 && backend.buyCount() == 0 {
		t.Error("scan loop never executed")
	}
}
