package autonomous

import (
	"github.com/solterm/trading-core/pkg/types"
)

// Action is one move the agent can take: a posture adjustment, an entry
// tilt, or a bulk exit.
type Action string

const (
	ActionWait              Action = "wait"
	ActionTightenStops      Action = "tighten_stops"
	ActionLoosenStops       Action = "loosen_stops"
	ActionIncreaseSize      Action = "increase_size"
	ActionDecreaseSize      Action = "decrease_size"
	ActionEnterAggressive   Action = "enter_aggressive"
	ActionEnterConservative Action = "enter_conservative"
	ActionExitAll           Action = "exit_all"
	ActionExitLosers        Action = "exit_losers"
	ActionExitWinners       Action = "exit_winners"
)

var allActions = []Action{
	ActionWait,
	ActionTightenStops,
	ActionLoosenStops,
	ActionIncreaseSize,
	ActionDecreaseSize,
	ActionEnterAggressive,
	ActionEnterConservative,
	ActionExitAll,
	ActionExitLosers,
	ActionExitWinners,
}

// availableActions returns the actions legal at the current exposure.
// Entries need headroom under the position cap; exits need something open.
func availableActions(open, max int) []Action {
	acts := []Action{
		ActionWait,
		ActionTightenStops,
		ActionLoosenStops,
		ActionIncreaseSize,
		ActionDecreaseSize,
	}
	if open < max {
		acts = append(acts, ActionEnterAggressive, ActionEnterConservative)
	}
	if open > 0 {
		acts = append(acts, ActionExitAll, ActionExitLosers, ActionExitWinners)
	}
	return acts
}

// Strategy knob bounds. Actions never push a knob past these.
const (
	minBuyAmountSOL = 0.01
	maxBuyAmountSOL = 1.0
	minStopLossFrac = 0.05
	maxStopLossFrac = 0.5
	minLiquidityBar = 1.0
	maxLiquidityBar = 50.0

	// actionPenalty replaces the reward when applying an action panics.
	actionPenalty = -1.0
)

// flatReward is the fixed reward of the posture actions. Entries and exits
// are rewarded from PnL instead; they report ok=false here.
func flatReward(a Action) (r float64, ok bool) {
	switch a {
	case ActionWait, ActionLoosenStops:
		return -0.01, true
	case ActionTightenStops, ActionDecreaseSize:
		return 0.01, true
	case ActionIncreaseSize:
		return 0, true
	}
	return 0, false
}

// applyAction returns the adjusted strategy for the strategy-mutating
// actions. Entry tilts move the liquidity bar: aggressive admits thinner
// pools, conservative demands deeper ones. Exits are handled by the agent
// directly and leave the strategy unchanged here, as does ActionWait.
func applyAction(a Action, s types.Strategy) types.Strategy {
	switch a {
	case ActionIncreaseSize:
		s.Sizing.BaseAmountSOL = clampFloat(s.Sizing.BaseAmountSOL*1.1, minBuyAmountSOL, maxBuyAmountSOL)
	case ActionDecreaseSize:
		s.Sizing.BaseAmountSOL = clampFloat(s.Sizing.BaseAmountSOL*0.9, minBuyAmountSOL, maxBuyAmountSOL)
	case ActionTightenStops:
		s.Exit.StopLossFrac = clampFloat(s.Exit.StopLossFrac-0.02, minStopLossFrac, maxStopLossFrac)
	case ActionLoosenStops:
		s.Exit.StopLossFrac = clampFloat(s.Exit.StopLossFrac+0.02, minStopLossFrac, maxStopLossFrac)
	case ActionEnterAggressive:
		s.Entry.MinLiquiditySOL = clampFloat(s.Entry.MinLiquiditySOL*0.8, minLiquidityBar, maxLiquidityBar)
	case ActionEnterConservative:
		s.Entry.MinLiquiditySOL = clampFloat(s.Entry.MinLiquiditySOL*1.2, minLiquidityBar, maxLiquidityBar)
	}
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
