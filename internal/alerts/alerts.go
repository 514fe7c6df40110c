// Package alerts runs the market alert engine: declarative conditions
// evaluated on a fixed tick, firing once each.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/cache"
	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/metrics"
	"github.com/solterm/trading-core/internal/ml"
	"github.com/solterm/trading-core/pkg/types"
)

// AlertType selects the evaluator.
type AlertType string

const (
	TypePrice     AlertType = "price"
	TypePattern   AlertType = "pattern"
	TypeSentiment AlertType = "sentiment"
	TypeAnomaly   AlertType = "anomaly"
)

// Alert is one registered condition. Alerts fire once: a triggered alert
// stays in the list for inspection but is never evaluated again.
type Alert struct {
	ID          string     `json:"id"`
	Type        AlertType  `json:"type"`
	Symbol      string     `json:"symbol"`
	Condition   string     `json:"condition,omitempty"` // comparison operator for price; substring otherwise
	Threshold   float64    `json:"threshold,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// DataSource feeds the evaluators.
type DataSource interface {
	Quote(ctx context.Context, symbol string) (*types.Quote, error)
	History(ctx context.Context, symbol string) ([]types.HistoricalPoint, error)
}

// Analyzers bundles the ML evaluators the alert types need.
type Analyzers struct {
	Patterns  ml.PatternRecognizer
	Sentiment ml.SentimentAnalyzer
	Anomaly   ml.AnomalyDetector
}

// Stats is the alert counter snapshot.
type Stats struct {
	Total     int            `json:"total"`
	Active    int            `json:"active"`
	Triggered int            `json:"triggered"`
	ByType    map[string]int `json:"byType"`
	Running   bool           `json:"running"`
}

// Manager owns the alert list and the check loop. The loop starts when the
// first alert is added and stops when the list drains.
type Manager struct {
	cfg       types.AlertsConfig
	logger    *zap.Logger
	data      DataSource
	analyzers Analyzers
	cache     *cache.Cache
	bus       *events.Bus
	metrics   *metrics.Metrics

	mu        sync.Mutex
	alerts    map[string]*Alert
	running   bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	onTrigger func(Alert)
}

// NewManager wires the alert engine. The cache may be nil.
func NewManager(cfg types.AlertsConfig, data DataSource, analyzers Analyzers,
	c *cache.Cache, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Manager {

	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 60 * time.Second
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger.Named("alerts"),
		data:      data,
		analyzers: analyzers,
		cache:     c,
		bus:       bus,
		metrics:   m,
		alerts:    make(map[string]*Alert),
	}
}

// normalizePriceOp canonicalizes a price condition to one of the four
// comparison operators. above/below and the unicode forms are aliases.
func normalizePriceOp(cond string) (string, bool) {
	switch strings.TrimSpace(cond) {
	case ">", "above":
		return ">", true
	case "<", "below":
		return "<", true
	case ">=", "≥":
		return ">=", true
	case "<=", "≤":
		return "<=", true
	}
	return "", false
}

// SetOnTrigger installs the per-alert notification callback.
func (m *Manager) SetOnTrigger(fn func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrigger = fn
}

// Add validates and registers an alert, starting the loop if idle.
func (m *Manager) Add(a Alert) (*Alert, error) {
	if a.Symbol == "" {
		return nil, fmt.Errorf("alert symbol is required")
	}
	switch a.Type {
	case TypePrice:
		op, ok := normalizePriceOp(a.Condition)
		if !ok {
			return nil, fmt.Errorf("price alert condition must be one of >, <, >=, <= (or above/below)")
		}
		a.Condition = op
		if a.Threshold <= 0 {
			return nil, fmt.Errorf("price alert threshold must be positive")
		}
	case TypePattern, TypeSentiment, TypeAnomaly:
	default:
		return nil, fmt.Errorf("unknown alert type %q", a.Type)
	}

	a.ID = uuid.New().String()
	a.Symbol = strings.ToUpper(a.Symbol)
	a.CreatedAt = time.Now().UTC()
	a.Triggered = false
	a.TriggeredAt = nil

	m.mu.Lock()
	m.alerts[a.ID] = &a
	shouldStart := !m.running
	if shouldStart {
		m.running = true
		m.stopChan = make(chan struct{})
	}
	m.mu.Unlock()

	if shouldStart {
		m.wg.Add(1)
		go m.loop()
		m.logger.Info("alert loop started", zap.Duration("interval", m.cfg.CheckInterval))
	}
	m.logger.Info("alert added",
		zap.String("id", a.ID), zap.String("type", string(a.Type)), zap.String("symbol", a.Symbol))
	copied := a
	return &copied, nil
}

// Remove deletes an alert, stopping the loop when the list drains.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	if _, ok := m.alerts[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("alert %s not found", id)
	}
	delete(m.alerts, id)
	m.mu.Unlock()

	m.stopIfEmpty()
	return nil
}

// ClearAll drops every alert and stops the loop.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	n := len(m.alerts)
	m.alerts = make(map[string]*Alert)
	m.mu.Unlock()

	m.stopIfEmpty()
	return n
}

func (m *Manager) stopIfEmpty() {
	m.mu.Lock()
	if len(m.alerts) > 0 || !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("alert loop stopped, list empty")
}

// Stop halts the loop regardless of list state. Used at shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()
	m.wg.Wait()
}

// List returns a copy of all alerts.
func (m *Manager) List() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// Get returns one alert by id.
func (m *Manager) Get(id string) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	copied := *a
	return &copied, nil
}

// GetStats returns the counter snapshot.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Total: len(m.alerts), ByType: make(map[string]int), Running: m.running}
	for _, a := range m.alerts {
		s.ByType[string(a.Type)]++
		if a.Triggered {
			s.Triggered++
		} else {
			s.Active++
		}
	}
	return s
}

func (m *Manager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckInterval)
			m.CheckAll(ctx)
			cancel()
		}
	}
}

// CheckAll evaluates every untriggered alert once.
func (m *Manager) CheckAll(ctx context.Context) {
	m.mu.Lock()
	pending := make([]*Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if !a.Triggered {
			pending = append(pending, a)
		}
	}
	m.mu.Unlock()

	for _, a := range pending {
		fired, msg, err := m.evaluate(ctx, *a)
		if err != nil {
			m.logger.Warn("alert evaluation failed",
				zap.String("id", a.ID), zap.String("symbol", a.Symbol), zap.Error(err))
			continue
		}
		if fired {
			m.trigger(a, msg)
		}
	}
}

func (m *Manager) trigger(a *Alert, msg string) {
	now := time.Now().UTC()

	m.mu.Lock()
	a.Triggered = true
	a.TriggeredAt = &now
	a.Message = msg
	fired := *a
	onTrigger := m.onTrigger
	m.mu.Unlock()

	m.logger.Info("alert triggered",
		zap.String("id", fired.ID),
		zap.String("type", string(fired.Type)),
		zap.String("symbol", fired.Symbol),
		zap.String("message", msg))
	if m.metrics != nil {
		m.metrics.AlertsTriggered.WithLabelValues(string(fired.Type)).Inc()
	}
	if m.bus != nil {
		m.bus.Publish(events.EventAlertTriggered, "alerts", fired)
	}
	if onTrigger != nil {
		onTrigger(fired)
	}
}
