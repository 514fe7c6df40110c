package alerts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/cache"
	"github.com/solterm/trading-core/internal/ml"
)

// evaluate runs one alert's evaluator. It returns whether the alert fired
// and the human-readable trigger message.
func (m *Manager) evaluate(ctx context.Context, a Alert) (bool, string, error) {
	switch a.Type {
	case TypePrice:
		return m.evalPrice(ctx, a)
	case TypePattern:
		return m.evalPattern(ctx, a)
	case TypeSentiment:
		return m.evalSentiment(ctx, a)
	case TypeAnomaly:
		return m.evalAnomaly(ctx, a)
	default:
		return false, "", fmt.Errorf("unknown alert type %q", a.Type)
	}
}

func (m *Manager) evalPrice(ctx context.Context, a Alert) (bool, string, error) {
	quote, err := m.data.Quote(ctx, a.Symbol)
	if err != nil {
		return false, "", fmt.Errorf("quote fetch failed: %w", err)
	}
	fired := false
	switch a.Condition {
	case ">":
		fired = quote.Price > a.Threshold
	case "<":
		fired = quote.Price < a.Threshold
	case ">=":
		fired = quote.Price >= a.Threshold
	case "<=":
		fired = quote.Price <= a.Threshold
	}
	if fired {
		return true, fmt.Sprintf("%s price %.6f %s %.6f", a.Symbol, quote.Price, a.Condition, a.Threshold), nil
	}
	return false, "", nil
}

func (m *Manager) evalPattern(ctx context.Context, a Alert) (bool, string, error) {
	if m.analyzers.Patterns == nil {
		return false, "", fmt.Errorf("pattern recognizer not configured")
	}
	var report ml.PatternReport
	key := cache.Fingerprint(a.Symbol, cache.KindPattern, nil)
	if hit, _ := m.cacheGet(ctx, key, &report); !hit {
		history, err := m.data.History(ctx, a.Symbol)
		if err != nil {
			return false, "", fmt.Errorf("history fetch failed: %w", err)
		}
		r, err := m.analyzers.Patterns.Recognize(ctx, a.Symbol, history)
		if err != nil {
			return false, "", err
		}
		report = *r
		m.cacheSet(ctx, key, cache.KindPattern, report)
	}

	for _, p := range report.Patterns {
		if containsFold(p.Name, a.Condition) || containsFold(p.Description, a.Condition) {
			return true, fmt.Sprintf("%s pattern %s (%s, confidence %.2f)",
				a.Symbol, p.Name, p.Direction, p.Confidence), nil
		}
	}
	return false, "", nil
}

func (m *Manager) evalSentiment(ctx context.Context, a Alert) (bool, string, error) {
	if m.analyzers.Sentiment == nil {
		return false, "", fmt.Errorf("sentiment analyzer not configured")
	}
	var result ml.SentimentResult
	key := cache.Fingerprint(a.Symbol, cache.KindSentiment, nil)
	if hit, _ := m.cacheGet(ctx, key, &result); !hit {
		quote, err := m.data.Quote(ctx, a.Symbol)
		if err != nil {
			return false, "", fmt.Errorf("quote fetch failed: %w", err)
		}
		history, err := m.data.History(ctx, a.Symbol)
		if err != nil {
			return false, "", fmt.Errorf("history fetch failed: %w", err)
		}
		r, err := m.analyzers.Sentiment.Analyze(ctx, quote, history)
		if err != nil {
			return false, "", err
		}
		result = *r
		m.cacheSet(ctx, key, cache.KindSentiment, result)
	}

	if containsFold(result.Label, a.Condition) {
		return true, fmt.Sprintf("%s sentiment %s (score %.2f)",
			a.Symbol, result.Label, result.Score), nil
	}
	return false, "", nil
}

func (m *Manager) evalAnomaly(ctx context.Context, a Alert) (bool, string, error) {
	if m.analyzers.Anomaly == nil {
		return false, "", fmt.Errorf("anomaly detector not configured")
	}
	var report ml.AnomalyReport
	key := cache.Fingerprint(a.Symbol, cache.KindAnomaly, nil)
	if hit, _ := m.cacheGet(ctx, key, &report); !hit {
		history, err := m.data.History(ctx, a.Symbol)
		if err != nil {
			return false, "", fmt.Errorf("history fetch failed: %w", err)
		}
		r, err := m.analyzers.Anomaly.Detect(ctx, a.Symbol, history)
		if err != nil {
			return false, "", err
		}
		report = *r
		m.cacheSet(ctx, key, cache.KindAnomaly, report)
	}

	if report.Total > 0 {
		first := report.Anomalies[0]
		return true, fmt.Sprintf("%s anomaly: %s (%s)",
			a.Symbol, first.Type, first.Description), nil
	}
	return false, "", nil
}

func (m *Manager) cacheGet(ctx context.Context, key string, out interface{}) (bool, error) {
	if m.cache == nil {
		return false, nil
	}
	return m.cache.Get(ctx, key, out)
}

func (m *Manager) cacheSet(ctx context.Context, key string, kind cache.Kind, v interface{}) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, key, kind, v); err != nil {
		m.logger.Debug("cache write failed", zap.Error(err))
	}
}

// containsFold is a case-insensitive substring check. An empty needle
// matches anything.
func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
