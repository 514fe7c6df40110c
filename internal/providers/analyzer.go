package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

const analyzerSystemPrompt = `You are a Solana memecoin risk analyst. Given one token's metrics,
respond with a single JSON object and nothing else:
{"decision":"strong_buy|buy|hold|avoid|strong_avoid","confidence":0.0,
"risk_score":0.0,"red_flags":[],"green_flags":[],
"suggested_buy_amount_sol":0.0,"suggested_stop_loss_pct":0.0,
"suggested_take_profit_pct":0.0,"reasoning":""}
Confidence is 0..1, risk_score is 0..10.`

// TokenAnalyzer answers the engine's AI-overlay queries through the
// provider orchestrator. It satisfies the analyzer contract the engine
// expects from a backend, so it slots in when the execution backend has no
// analysis endpoint of its own.
type TokenAnalyzer struct {
	orch   *Orchestrator
	logger *zap.Logger
}

// NewTokenAnalyzer wires the analyzer over an orchestrator.
func NewTokenAnalyzer(orch *Orchestrator, logger *zap.Logger) *TokenAnalyzer {
	return &TokenAnalyzer{orch: orch, logger: logger.Named("analyzer")}
}

// decisionWire is the JSON shape the model is prompted to produce.
type decisionWire struct {
	Decision         string   `json:"decision"`
	Confidence       float64  `json:"confidence"`
	RiskScore        float64  `json:"risk_score"`
	RedFlags         []string `json:"red_flags"`
	GreenFlags       []string `json:"green_flags"`
	SuggestedBuySOL  float64  `json:"suggested_buy_amount_sol"`
	SuggestedStopPct float64  `json:"suggested_stop_loss_pct"`
	SuggestedTakePct float64  `json:"suggested_take_profit_pct"`
	Reasoning        string   `json:"reasoning"`
}

// AnalyzeToken asks the providers for a structured verdict on one token.
func (ta *TokenAnalyzer) AnalyzeToken(ctx context.Context, token types.Token) (*types.AIDecision, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	resp, err := ta.orch.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: analyzerSystemPrompt},
			{Role: "user", Content: "Analyze this token:\n" + string(payload)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("unparseable analysis from %s: %w", resp.Provider, err)
	}
	ta.logger.Debug("token analyzed",
		zap.String("token", token.Address),
		zap.String("provider", resp.Provider),
		zap.String("decision", string(decision.Decision)),
		zap.Float64("confidence", decision.Confidence))
	return decision, nil
}

// parseDecision extracts the JSON object from a model reply, tolerating
// prose around it, and normalizes it into a domain decision.
func parseDecision(content string) (*types.AIDecision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}

	var wire decisionWire
	if err := json.Unmarshal([]byte(content[start:end+1]), &wire); err != nil {
		return nil, err
	}

	kind := types.AIDecisionKind(strings.ToLower(strings.TrimSpace(wire.Decision)))
	switch kind {
	case types.DecisionStrongBuy, types.DecisionBuy, types.DecisionHold,
		types.DecisionAvoid, types.DecisionStrongAvoid:
	default:
		return nil, fmt.Errorf("unknown decision %q", wire.Decision)
	}

	return &types.AIDecision{
		Decision:         kind,
		Confidence:       clamp01(wire.Confidence),
		RiskScore:        wire.RiskScore,
		RedFlags:         wire.RedFlags,
		GreenFlags:       wire.GreenFlags,
		SuggestedBuySOL:  wire.SuggestedBuySOL,
		SuggestedStopPct: wire.SuggestedStopPct,
		SuggestedTakePct: wire.SuggestedTakePct,
		Reasoning:        wire.Reasoning,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
