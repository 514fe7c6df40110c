// Package ml provides the statistical market analyzers behind the alert
// engine and the API. Implementations are deliberately replaceable; the
// interfaces are the contract.
package ml

import (
	"context"
	"time"

	"github.com/solterm/trading-core/pkg/types"
)

// Prediction is a price forecast for one symbol over one horizon.
type Prediction struct {
	Symbol         string    `json:"symbol"`
	Horizon        string    `json:"horizon"`
	CurrentPrice   float64   `json:"currentPrice"`
	PredictedPrice float64   `json:"predictedPrice"`
	ChangePct      float64   `json:"changePct"`
	Direction      string    `json:"direction"` // up, down, flat
	Confidence     float64   `json:"confidence"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// SentimentResult is a composite market-mood score in [-1, 1].
type SentimentResult struct {
	Symbol      string             `json:"symbol"`
	Score       float64            `json:"score"`
	Label       string             `json:"label"` // extreme_fear .. extreme_greed
	Components  map[string]float64 `json:"components"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// Anomaly is one detected irregularity.
type Anomaly struct {
	Type        string  `json:"type"` // price_spike, volume_spike, volatility
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
}

// AnomalyReport aggregates the anomalies found for one symbol.
type AnomalyReport struct {
	Symbol      string    `json:"symbol"`
	Anomalies   []Anomaly `json:"anomalies"`
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// PatternMatch is one recognized chart pattern.
type PatternMatch struct {
	Name        string  `json:"name"`
	Direction   string  `json:"direction"` // bullish, bearish, neutral
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// PatternReport lists the patterns recognized in one series.
type PatternReport struct {
	Symbol      string         `json:"symbol"`
	Patterns    []PatternMatch `json:"patterns"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// PricePredictor forecasts near-term price movement from a historical series.
type PricePredictor interface {
	Predict(ctx context.Context, symbol, horizon string, history []types.HistoricalPoint) (*Prediction, error)
}

// SentimentAnalyzer scores market mood for one symbol.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, quote *types.Quote, history []types.HistoricalPoint) (*SentimentResult, error)
}

// AnomalyDetector flags statistical irregularities in a series.
type AnomalyDetector interface {
	Detect(ctx context.Context, symbol string, history []types.HistoricalPoint) (*AnomalyReport, error)
}

// PatternRecognizer finds chart patterns in a series.
type PatternRecognizer interface {
	Recognize(ctx context.Context, symbol string, history []types.HistoricalPoint) (*PatternReport, error)
}
