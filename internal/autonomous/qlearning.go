// Package autonomous implements the Q-learning agent that tunes the trading
// strategy from realized performance.
package autonomous

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/solterm/trading-core/internal/store"
)

// Observation is the continuous agent state before discretization.
type Observation struct {
	CapitalRatio  float64 // current capital / starting capital
	Drawdown      float64 // (peak - current) / peak
	WinRate       float64
	Streak        int // +n consecutive wins, -n consecutive losses
	OpenPositions int
	MaxPositions  int
	Hour          int // 0..23, UTC
}

// Bucket boundaries. Values land in the bucket of the first boundary they
// are below; past the last boundary is the final bucket.
var (
	capitalBuckets  = []float64{0.5, 0.8, 1.0, 1.5}
	drawdownBuckets = []float64{0.1, 0.2, 0.3}
	winRateBuckets  = []float64{0.3, 0.5, 0.7}
)

const streakEdge = 3

func bucketize(v float64, bounds []float64) int {
	for i, b := range bounds {
		if v < b {
			return i
		}
	}
	return len(bounds)
}

func streakLabel(streak int) string {
	switch {
	case streak >= streakEdge:
		return "hot"
	case streak <= -streakEdge:
		return "cold"
	default:
		return "neutral"
	}
}

func timeOfDay(hour int) string {
	switch {
	case hour < 6:
		return "night"
	case hour < 12:
		return "morning"
	case hour < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// StateKey discretizes an observation into the Q-table key:
// openPositions_capital_drawdown_winRate_streak_timeOfDay.
func StateKey(obs Observation) string {
	return fmt.Sprintf("%d_%d_%d_%d_%s_%s",
		obs.OpenPositions,
		bucketize(obs.CapitalRatio, capitalBuckets),
		bucketize(obs.Drawdown, drawdownBuckets),
		bucketize(obs.WinRate, winRateBuckets),
		streakLabel(obs.Streak),
		timeOfDay(obs.Hour))
}

// QTable is the tabular value function. Not safe for concurrent use; the
// agent serializes access behind its own mutex.
type QTable struct {
	values map[string]map[Action]float64
}

func NewQTable() *QTable {
	return &QTable{values: make(map[string]map[Action]float64)}
}

// Get returns the value of a state/action pair (zero for unseen pairs).
func (q *QTable) Get(state string, action Action) float64 {
	return q.values[state][action]
}

func (q *QTable) set(state string, action Action, v float64) {
	row, ok := q.values[state]
	if !ok {
		row = make(map[Action]float64)
		q.values[state] = row
	}
	row[action] = v
}

// MaxValue returns the best attainable value from a state over the given
// action set.
func (q *QTable) MaxValue(state string, actions []Action) float64 {
	best := 0.0
	first := true
	for _, a := range actions {
		v := q.Get(state, a)
		if first || v > best {
			best = v
			first = false
		}
	}
	return best
}

// BestAction returns the greedy action for a state over the given action
// set. Unseen pairs score zero, so early on this walks the set in order.
func (q *QTable) BestAction(state string, actions []Action) Action {
	best := actions[0]
	bestV := q.Get(state, best)
	for _, a := range actions[1:] {
		if v := q.Get(state, a); v > bestV {
			best, bestV = a, v
		}
	}
	return best
}

// Update applies the Bellman update for one transition. nextActions is the
// action set available in the next state; the bootstrap maxes over it.
func (q *QTable) Update(state string, action Action, reward float64, nextState string, nextActions []Action, alpha, gamma float64) {
	current := q.Get(state, action)
	target := reward + gamma*q.MaxValue(nextState, nextActions)
	q.set(state, action, current+alpha*(target-current))
}

// Size returns the number of stored state/action cells.
func (q *QTable) Size() int {
	n := 0
	for _, row := range q.values {
		n += len(row)
	}
	return n
}

// ToRecords flattens the table for persistence, sorted for stable output.
func (q *QTable) ToRecords() []store.QRecord {
	out := make([]store.QRecord, 0, q.Size())
	for state, row := range q.values {
		for action, v := range row {
			out = append(out, store.QRecord{StateKey: state, Action: string(action), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StateKey != out[j].StateKey {
			return out[i].StateKey < out[j].StateKey
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// FromRecords rebuilds a table from its flat persisted form.
func FromRecords(records []store.QRecord) *QTable {
	q := NewQTable()
	for _, r := range records {
		q.set(r.StateKey, Action(r.Action), r.Value)
	}
	return q
}

// pickAction is the epsilon-greedy policy over the currently legal actions.
func pickAction(q *QTable, state string, actions []Action, epsilon float64, rng *rand.Rand) (Action, bool) {
	if rng.Float64() < epsilon {
		return actions[rng.Intn(len(actions))], true
	}
	return q.BestAction(state, actions), false
}
