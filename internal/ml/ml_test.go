package ml_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/ml"
	"github.com/solterm/trading-core/pkg/types"
)

func series(prices ...float64) []types.HistoricalPoint {
	base := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	out := make([]types.HistoricalPoint, len(prices))
	for i, p := range prices {
		out[i] = types.HistoricalPoint{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Price:     p,
			Volume:    1000,
		}
	}
	return out
}

func TestPredictorUptrend(t *testing.T) {
	p := ml.NewStatPredictor(zap.NewNop())
	pred, err := p.Predict(context.Background(), "SOL", "24h",
		series(100, 102, 104, 107, 110, 113, 117, 121))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Direction != "up" {
		t.Errorf("direction = %q, want up", pred.Direction)
	}
	if pred.PredictedPrice <= pred.CurrentPrice {
		t.Errorf("predicted %v not above current %v", pred.PredictedPrice, pred.CurrentPrice)
	}
	if pred.Confidence < 0.4 || pred.Confidence > 0.9 {
		t.Errorf("confidence %v out of range", pred.Confidence)
	}
}

func TestPredictorNeedsHistory(t *testing.T) {
	p := ml.NewStatPredictor(zap.NewNop())
	if _, err := p.Predict(context.Background(), "SOL", "24h", series(100, 101)); err == nil {
		t.Fatal("expected error with short history")
	}
}

func TestSentimentLabels(t *testing.T) {
	s := ml.NewCompositeSentiment(zap.NewNop())
	hist := series(100, 101, 102, 104, 106, 109)

	bull, err := s.Analyze(context.Background(), &types.Quote{Symbol: "BTC", Change24h: 15, Change7d: 20}, hist)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if bull.Score <= 0 {
		t.Errorf("bullish quote scored %v", bull.Score)
	}

	bear, err := s.Analyze(context.Background(), &types.Quote{Symbol: "BTC", Change24h: -18, Change7d: -25}, series(109, 106, 104, 102, 101, 100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if bear.Score >= 0 {
		t.Errorf("bearish quote scored %v", bear.Score)
	}
	if bear.Label == bull.Label {
		t.Errorf("labels should differ, both %q", bear.Label)
	}
}

func TestAnomalyDetectsVolumeSpike(t *testing.T) {
	d := ml.NewZScoreDetector(zap.NewNop())
	hist := series(100, 100.1, 100.2, 100.1, 100.3, 100.2, 100.4, 100.3, 100.5, 100.4, 100.6)
	hist[len(hist)-1].Volume = 50000 // spike

	report, err := d.Detect(context.Background(), "SOL", hist)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	found := false
	for _, a := range report.Anomalies {
		if a.Type == "volume_spike" {
			found = true
			// The baseline volume is perfectly flat, so the spike has no
			// finite z-score but must still be reported.
			if a.Severity != "high" {
				t.Errorf("flat-baseline spike severity = %q, want high", a.Severity)
			}
		}
	}
	if !found {
		t.Errorf("volume spike not detected: %+v", report.Anomalies)
	}
	if report.Total != len(report.Anomalies) {
		t.Errorf("total mismatch")
	}
}

func TestAnomalyQuietSeries(t *testing.T) {
	d := ml.NewZScoreDetector(zap.NewNop())
	report, err := d.Detect(context.Background(), "SOL",
		series(100, 100.1, 100, 100.2, 100.1, 100, 100.1, 100.2, 100.1, 100, 100.1))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if report.Total != 0 {
		t.Errorf("quiet series flagged %d anomalies: %+v", report.Total, report.Anomalies)
	}
}

func TestPatternUptrend(t *testing.T) {
	r := ml.NewTrendRecognizer(zap.NewNop())
	report, err := r.Recognize(context.Background(), "SOL",
		series(100, 102, 104, 106, 109, 112, 115, 119, 123, 128))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	found := false
	for _, p := range report.Patterns {
		if p.Name == "uptrend" && p.Direction == "bullish" {
			found = true
		}
	}
	if !found {
		t.Errorf("uptrend not recognized: %+v", report.Patterns)
	}
}
