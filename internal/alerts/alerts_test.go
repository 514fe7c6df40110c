package alerts_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/alerts"
	"github.com/solterm/trading-core/internal/ml"
	"github.com/solterm/trading-core/pkg/types"
)

type fakeData struct {
	price   float64
	history []types.HistoricalPoint
	err     error
}

func (f *fakeData) Quote(ctx context.Context, symbol string) (*types.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Quote{Symbol: symbol, Price: f.price}, nil
}

func (f *fakeData) History(ctx context.Context, symbol string) ([]types.HistoricalPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.history, nil
}

type fakePatterns struct{ report ml.PatternReport }

func (f *fakePatterns) Recognize(ctx context.Context, symbol string, h []types.HistoricalPoint) (*ml.PatternReport, error) {
	r := f.report
	r.Symbol = symbol
	return &r, nil
}

type fakeSentiment struct{ result ml.SentimentResult }

func (f *fakeSentiment) Analyze(ctx context.Context, q *types.Quote, h []types.HistoricalPoint) (*ml.SentimentResult, error) {
	r := f.result
	r.Symbol = q.Symbol
	return &r, nil
}

type fakeAnomaly struct{ report ml.AnomalyReport }

func (f *fakeAnomaly) Detect(ctx context.Context, symbol string, h []types.HistoricalPoint) (*ml.AnomalyReport, error) {
	r := f.report
	r.Symbol = symbol
	return &r, nil
}

func newManager(t *testing.T, data alerts.DataSource, an alerts.Analyzers) *alerts.Manager {
	t.Helper()
	m := alerts.NewManager(types.AlertsConfig{CheckInterval: time.Hour}, data, an, nil, nil, nil, zap.NewNop())
	t.Cleanup(m.Stop)
	return m
}

func TestAddValidation(t *testing.T) {
	m := newManager(t, &fakeData{}, alerts.Analyzers{})

	if _, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "BTC", Condition: "sideways", Threshold: 1}); err == nil {
		t.Error("bad price condition accepted")
	}
	if _, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "BTC", Condition: "above"}); err == nil {
		t.Error("zero threshold accepted")
	}
	if _, err := m.Add(alerts.Alert{Type: "volume", Symbol: "BTC"}); err == nil {
		t.Error("unknown type accepted")
	}
	if _, err := m.Add(alerts.Alert{Type: alerts.TypeAnomaly}); err == nil {
		t.Error("missing symbol accepted")
	}
}

func TestPriceAlertFiresOnce(t *testing.T) {
	data := &fakeData{price: 120}
	m := newManager(t, data, alerts.Analyzers{})

	var fired []alerts.Alert
	m.SetOnTrigger(func(a alerts.Alert) { fired = append(fired, a) })

	a, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "sol", Condition: "above", Threshold: 100})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Symbol != "SOL" {
		t.Errorf("symbol not normalized: %q", a.Symbol)
	}

	m.CheckAll(context.Background())
	m.CheckAll(context.Background())

	if len(fired) != 1 {
		t.Fatalf("fired %d times, want once", len(fired))
	}
	got, err := m.Get(a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Triggered || got.TriggeredAt == nil {
		t.Error("alert not marked triggered")
	}

	stats := m.GetStats()
	if stats.Triggered != 1 || stats.Active != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPriceBelowNotFiredAboveThreshold(t *testing.T) {
	data := &fakeData{price: 120}
	m := newManager(t, data, alerts.Analyzers{})

	fired := 0
	m.SetOnTrigger(func(alerts.Alert) { fired++ })
	if _, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "SOL", Condition: "below", Threshold: 100}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m.CheckAll(context.Background())
	if fired != 0 {
		t.Error("below alert fired while price above threshold")
	}
}

func TestPriceOperatorConditions(t *testing.T) {
	cases := []struct {
		name      string
		condition string
		price     float64
		threshold float64
		fires     bool
	}{
		{"gt strict at threshold", ">", 100, 100, false},
		{"gt strict above", ">", 100.01, 100, true},
		{"lt strict at threshold", "<", 100, 100, false},
		{"lt strict below", "<", 99.99, 100, true},
		{"gte at threshold", ">=", 100, 100, true},
		{"lte at threshold", "<=", 100, 100, true},
		{"gte unicode alias", "≥", 100, 100, true},
		{"lte unicode alias", "≤", 100.5, 100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newManager(t, &fakeData{price: tc.price}, alerts.Analyzers{})

			fired := 0
			m.SetOnTrigger(func(alerts.Alert) { fired++ })
			if _, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "SOL", Condition: tc.condition, Threshold: tc.threshold}); err != nil {
				t.Fatalf("Add(%q): %v", tc.condition, err)
			}

			m.CheckAll(context.Background())
			if (fired == 1) != tc.fires {
				t.Errorf("condition %q with price %v vs %v: fired=%d, want fires=%v",
					tc.condition, tc.price, tc.threshold, fired, tc.fires)
			}
		})
	}
}

func TestPriceConditionNormalized(t *testing.T) {
	m := newManager(t, &fakeData{}, alerts.Analyzers{})

	a, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "SOL", Condition: "≥", Threshold: 1})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Condition != ">=" {
		t.Errorf("condition = %q, want canonical >=", a.Condition)
	}
}

func TestPatternAlertSubstringMatchIsCaseInsensitive(t *testing.T) {
	an := alerts.Analyzers{Patterns: &fakePatterns{report: ml.PatternReport{
		Patterns: []ml.PatternMatch{{Name: "double_top", Direction: "bearish", Confidence: 0.6}},
	}}}
	m := newManager(t, &fakeData{}, an)

	fired := 0
	m.SetOnTrigger(func(alerts.Alert) { fired++ })

	if _, err := m.Add(alerts.Alert{Type: alerts.TypePattern, Symbol: "SOL", Condition: "DOUBLE"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Add(alerts.Alert{Type: alerts.TypePattern, Symbol: "SOL", Condition: "head_and_shoulders"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m.CheckAll(context.Background())
	if fired != 1 {
		t.Errorf("fired = %d, want only the substring match", fired)
	}
}

func TestSentimentAlert(t *testing.T) {
	an := alerts.Analyzers{Sentiment: &fakeSentiment{result: ml.SentimentResult{Label: "extreme_greed", Score: 0.8}}}
	m := newManager(t, &fakeData{price: 100}, an)

	fired := 0
	m.SetOnTrigger(func(alerts.Alert) { fired++ })
	if _, err := m.Add(alerts.Alert{Type: alerts.TypeSentiment, Symbol: "BTC", Condition: "greed"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m.CheckAll(context.Background())
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestAnomalyAlertFiresOnAnyAnomaly(t *testing.T) {
	an := alerts.Analyzers{Anomaly: &fakeAnomaly{report: ml.AnomalyReport{
		Anomalies: []ml.Anomaly{{Type: "volume_spike", Description: "5 sigma"}},
		Total:     1,
	}}}
	m := newManager(t, &fakeData{}, an)

	fired := 0
	m.SetOnTrigger(func(alerts.Alert) { fired++ })
	if _, err := m.Add(alerts.Alert{Type: alerts.TypeAnomaly, Symbol: "SOL"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	m.CheckAll(context.Background())
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestEvaluationErrorKeepsAlertActive(t *testing.T) {
	data := &fakeData{err: fmt.Errorf("service down")}
	m := newManager(t, data, alerts.Analyzers{})

	a, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "SOL", Condition: "above", Threshold: 100})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	m.CheckAll(context.Background())

	got, _ := m.Get(a.ID)
	if got.Triggered {
		t.Error("alert triggered despite evaluation error")
	}
}

func TestAutoStartStop(t *testing.T) {
	m := newManager(t, &fakeData{}, alerts.Analyzers{})

	if m.GetStats().Running {
		t.Error("loop running with no alerts")
	}
	a, err := m.Add(alerts.Alert{Type: alerts.TypePrice, Symbol: "SOL", Condition: "above", Threshold: 1e9})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !m.GetStats().Running {
		t.Error("loop not running after first alert")
	}
	if err := m.Remove(a.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if m.GetStats().Running {
		t.Error("loop still running after list drained")
	}
}

func TestClearAll(t *testing.T) {
	m := newManager(t, &fakeData{}, alerts.Analyzers{})
	for i := 0; i < 3; i++ {
		if _, err := m.Add(alerts.Alert{Type: alerts.TypeAnomaly, Symbol: "SOL"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if n := m.ClearAll(); n != 3 {
		t.Errorf("ClearAll = %d, want 3", n)
	}
	if len(m.List()) != 0 {
		t.Error("alerts remain after ClearAll")
	}
}
