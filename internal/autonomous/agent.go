package autonomous

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/engine"
	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/metrics"
	"github.com/solterm/trading-core/internal/store"
	"github.com/solterm/trading-core/pkg/types"
)

const maxDecisionLog = 100

// Controller is the engine surface the agent drives.
type Controller interface {
	Strategy() types.Strategy
	UpdateStrategy(types.Strategy)
	GetStatus() engine.Status
	OpenPositions() []types.Position
	CloseMatching(ctx context.Context, reason string, match func(types.Position) bool) int
}

// Decision is one entry of the agent's decision log.
type Decision struct {
	Timestamp time.Time `json:"timestamp"`
	StateKey  string    `json:"stateKey"`
	Action    Action    `json:"action"`
	Explored  bool      `json:"explored"`
	Reward    float64   `json:"reward"`
	Epsilon   float64   `json:"epsilon"`
}

// Performance is the agent's performance summary.
type Performance struct {
	CapitalSOL      float64 `json:"capitalSol"`
	PeakCapitalSOL  float64 `json:"peakCapitalSol"`
	ROIPct          float64 `json:"roiPct"`
	Drawdown        float64 `json:"drawdown"`
	TotalTrades     int     `json:"totalTrades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"winRate"`
	Streak          int     `json:"streak"`
	Episodes        int     `json:"episodes"`
	ExplorationRate float64 `json:"explorationRate"`
	QTableSize      int     `json:"qTableSize"`
}

// Agent is the Q-learning decision loop. It observes realized performance,
// picks a bounded strategy adjustment every decision interval, and learns
// from the reward that follows.
type Agent struct {
	cfg        types.AgentConfig
	logger     *zap.Logger
	controller Controller
	store      *store.Store
	bus        *events.Bus
	metrics    *metrics.Metrics

	mu           sync.Mutex
	running      bool
	qtable       *QTable
	epsilon      float64
	episodes     int
	capital      float64
	peakCapital  float64
	wins         int
	losses       int
	streak       int
	totalPnL      float64
	pnlSinceStep  float64
	pendingReward float64 // stashed by bulk exits at apply time
	penalized     bool    // set when applying the previous action panicked
	recentTrades  []types.Trade
	decisions    []Decision
	prevState    string
	prevAction   Action
	hasPrev      bool
	rng          *rand.Rand

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAgent wires the agent. The store may be nil (no persistence).
func NewAgent(cfg types.AgentConfig, controller Controller, st *store.Store,
	bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Agent {

	return &Agent{
		cfg:         cfg,
		logger:      logger.Named("agent"),
		controller:  controller,
		store:       st,
		bus:         bus,
		metrics:     m,
		qtable:      NewQTable(),
		epsilon:     cfg.ExplorationRate,
		capital:     cfg.StartingCapitalSOL,
		peakCapital: cfg.StartingCapitalSOL,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan:    make(chan struct{}),
	}
}

// Start restores persisted state and launches the decision loop.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent already running")
	}
	a.running = true
	a.stopChan = make(chan struct{})
	a.mu.Unlock()

	if err := a.restore(); err != nil {
		a.logger.Warn("failed to restore agent state, starting fresh", zap.Error(err))
	}

	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("agent started",
		zap.Duration("interval", a.cfg.DecisionInterval),
		zap.Float64("epsilon", a.epsilon))
	return nil
}

// Stop halts the loop and persists a snapshot.
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopChan)
	a.wg.Wait()

	if err := a.persist(); err != nil {
		a.logger.Error("failed to persist agent state", zap.Error(err))
	}
	a.logger.Info("agent stopped")
}

func (a *Agent) loop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.DecisionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.Step()
		}
	}
}

// OnPositionClosed feeds a realized trade back into the agent. Wired to the
// engine's position-closed callback.
func (a *Agent) OnPositionClosed(pos types.Position, trade types.Trade) {
	pnl, _ := trade.PnL.Float64()

	a.mu.Lock()
	a.capital += pnl
	a.totalPnL += pnl
	a.pnlSinceStep += pnl
	if a.capital > a.peakCapital {
		a.peakCapital = a.capital
	}
	if trade.Outcome == types.OutcomeWin {
		a.wins++
		if a.streak < 0 {
			a.streak = 0
		}
		a.streak++
	} else {
		a.losses++
		if a.streak > 0 {
			a.streak = 0
		}
		a.streak--
	}
	a.recentTrades = append(a.recentTrades, trade)
	if len(a.recentTrades) > maxDecisionLog {
		a.recentTrades = a.recentTrades[1:]
	}
	closed := a.wins + a.losses
	a.mu.Unlock()

	if closed > 0 && closed%optimizeEvery == 0 {
		a.optimizeStrategy()
	}
}

// Step runs one decision cycle: settle the previous action's reward, then
// pick and apply the next action from the set legal at current exposure.
func (a *Agent) Step() {
	obs := a.observe()
	state := StateKey(obs)
	available := availableActions(obs.OpenPositions, obs.MaxPositions)
	base := a.controller.Strategy().Sizing.BaseAmountSOL

	a.mu.Lock()
	// Settle the previous transition first.
	if a.hasPrev {
		reward := a.settleReward(base)
		a.qtable.Update(a.prevState, a.prevAction, reward, state, available,
			a.cfg.LearningRate, a.cfg.DiscountFactor)
		if n := len(a.decisions); n > 0 {
			a.decisions[n-1].Reward = reward
		}
		a.pnlSinceStep = 0
		a.pendingReward = 0
		a.penalized = false
	}

	action, explored := pickAction(a.qtable, state, available, a.epsilon, a.rng)
	a.decisions = append(a.decisions, Decision{
		Timestamp: time.Now().UTC(),
		StateKey:  state,
		Action:    action,
		Explored:  explored,
		Epsilon:   a.epsilon,
	})
	if len(a.decisions) > maxDecisionLog {
		a.decisions = a.decisions[1:]
	}
	a.prevState = state
	a.prevAction = action
	a.hasPrev = true
	a.episodes++
	a.epsilon = clampFloat(a.epsilon*a.cfg.ExplorationDecay, a.cfg.MinExploration, 1)
	a.mu.Unlock()

	a.apply(action)

	if a.metrics != nil {
		a.metrics.AgentDecisions.WithLabelValues(string(action)).Inc()
	}
	if a.bus != nil {
		a.bus.Publish(events.EventAgentDecision, "agent", map[string]interface{}{
			"state":    state,
			"action":   string(action),
			"explored": explored,
		})
	}
	a.logger.Debug("decision",
		zap.String("state", state),
		zap.String("action", string(action)),
		zap.Bool("explored", explored))
}

// settleReward prices the previous action. A panic during apply overrides
// everything with the hard penalty. Bulk exits stashed their reward when
// they ran; entries are judged on the PnL realized since the decision,
// normalized by the base position size; the rest carry fixed values.
// Called with a.mu held.
func (a *Agent) settleReward(base float64) float64 {
	if a.penalized {
		return actionPenalty
	}
	switch a.prevAction {
	case ActionExitAll, ActionExitLosers, ActionExitWinners:
		return a.pendingReward
	case ActionEnterAggressive, ActionEnterConservative:
		if base <= 0 {
			return 0
		}
		return a.pnlSinceStep / base
	default:
		r, _ := flatReward(a.prevAction)
		return r
	}
}

// apply executes the chosen action. A panic during apply is absorbed into
// the next reward as a hard penalty.
func (a *Agent) apply(action Action) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("action application panicked", zap.Any("panic", r))
			a.mu.Lock()
			a.penalized = true
			a.mu.Unlock()
		}
	}()
	switch action {
	case ActionWait:
		return
	case ActionExitAll, ActionExitLosers, ActionExitWinners:
		a.applyExit(action)
		return
	}
	current := a.controller.Strategy()
	updated := applyAction(action, current)
	if updated != current {
		a.controller.UpdateStrategy(updated)
	}
}

// applyExit closes the matching open positions. The action is rewarded from
// the unrealized PnL snapshot taken here: exit_all banks the whole book,
// exit_winners its profitable side, and exit_losers half the loss it cut.
func (a *Agent) applyExit(action Action) {
	open := a.controller.OpenPositions()
	base := a.controller.Strategy().Sizing.BaseAmountSOL

	var total, winners, losers float64
	for _, p := range open {
		pnl := unrealizedPnL(p)
		total += pnl
		if pnl > 0 {
			winners += pnl
		} else if pnl < 0 {
			losers += pnl
		}
	}

	var reward float64
	var match func(types.Position) bool
	switch action {
	case ActionExitAll:
		reward = total
		match = func(types.Position) bool { return true }
	case ActionExitLosers:
		reward = math.Abs(losers) * 0.5
		match = func(p types.Position) bool { return unrealizedPnL(p) < 0 }
	case ActionExitWinners:
		reward = winners
		match = func(p types.Position) bool { return unrealizedPnL(p) > 0 }
	default:
		return
	}
	if base > 0 {
		reward /= base
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	closed := a.controller.CloseMatching(ctx, string(action), match)

	a.mu.Lock()
	a.pendingReward = reward
	a.mu.Unlock()

	a.logger.Info("bulk exit applied",
		zap.String("action", string(action)),
		zap.Int("closed", closed),
		zap.Float64("reward", reward))
}

// unrealizedPnL of an open position, in SOL.
func unrealizedPnL(p types.Position) float64 {
	v, _ := p.TokensOwned.Mul(p.CurrentPrice).Sub(p.NotionalSOL).Float64()
	return v
}

func (a *Agent) observe() Observation {
	status := a.controller.GetStatus()

	a.mu.Lock()
	defer a.mu.Unlock()

	obs := Observation{
		CapitalRatio:  1,
		Streak:        a.streak,
		OpenPositions: status.OpenPositions,
		MaxPositions:  status.MaxPositions,
		Hour:          time.Now().UTC().Hour(),
	}
	if a.cfg.StartingCapitalSOL > 0 {
		obs.CapitalRatio = a.capital / a.cfg.StartingCapitalSOL
	}
	if a.peakCapital > 0 {
		obs.Drawdown = (a.peakCapital - a.capital) / a.peakCapital
	}
	if closed := a.wins + a.losses; closed > 0 {
		obs.WinRate = float64(a.wins) / float64(closed)
	}
	return obs
}

// Performance returns the agent's performance summary.
func (a *Agent) Performance() Performance {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := Performance{
		CapitalSOL:      a.capital,
		PeakCapitalSOL:  a.peakCapital,
		TotalTrades:     a.wins + a.losses,
		Wins:            a.wins,
		Losses:          a.losses,
		Streak:          a.streak,
		Episodes:        a.episodes,
		ExplorationRate: a.epsilon,
		QTableSize:      a.qtable.Size(),
	}
	if a.cfg.StartingCapitalSOL > 0 {
		p.ROIPct = (a.capital - a.cfg.StartingCapitalSOL) / a.cfg.StartingCapitalSOL * 100
	}
	if a.peakCapital > 0 {
		p.Drawdown = (a.peakCapital - a.capital) / a.peakCapital
	}
	if p.TotalTrades > 0 {
		p.WinRate = float64(a.wins) / float64(p.TotalTrades)
	}
	return p
}

// Decisions returns a copy of the decision log, newest last. A positive n
// limits the result to the n most recent entries.
func (a *Agent) Decisions(n int) []Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := append([]Decision(nil), a.decisions...)
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func (a *Agent) persist() error {
	if a.store == nil {
		return nil
	}
	a.mu.Lock()
	snap := &store.Snapshot{
		QTable:          a.qtable.ToRecords(),
		ExplorationRate: a.epsilon,
		Episodes:        a.episodes,
		CapitalSOL:      a.capital,
		PeakCapitalSOL:  a.peakCapital,
		TotalTrades:     a.wins + a.losses,
		Wins:            a.wins,
		Losses:          a.losses,
		TotalPnLSOL:     a.totalPnL,
		Strategy:        a.controller.Strategy(),
		RecentTrades:    append([]types.Trade(nil), a.recentTrades...),
	}
	a.mu.Unlock()
	return a.store.SaveSnapshot(snap)
}

func (a *Agent) restore() error {
	if a.store == nil {
		return nil
	}
	snap, err := a.store.LoadSnapshot()
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	a.mu.Lock()
	a.qtable = FromRecords(snap.QTable)
	if snap.ExplorationRate > 0 {
		a.epsilon = snap.ExplorationRate
	}
	a.episodes = snap.Episodes
	if snap.CapitalSOL > 0 {
		a.capital = snap.CapitalSOL
	}
	if snap.PeakCapitalSOL > a.peakCapital {
		a.peakCapital = snap.PeakCapitalSOL
	}
	a.wins = snap.Wins
	a.losses = snap.Losses
	a.totalPnL = snap.TotalPnLSOL
	a.recentTrades = snap.RecentTrades
	a.mu.Unlock()

	a.logger.Info("agent state restored",
		zap.Int("qCells", len(snap.QTable)),
		zap.Int("episodes", snap.Episodes))
	return nil
}
