// Package metrics holds the prometheus collectors shared across components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors. One instance is created in main and handed
// to each component that reports.
type Metrics struct {
	Registry *prometheus.Registry

	TokensScanned    *prometheus.CounterVec // platform
	TokensAdmitted   *prometheus.CounterVec // platform
	TradesExecuted   *prometheus.CounterVec // kind, mode
	OpenPositions    prometheus.Gauge
	RealizedPnLSOL   prometheus.Gauge
	ScanDuration     prometheus.Histogram
	ProviderRequests *prometheus.CounterVec // provider, status
	AgentDecisions   *prometheus.CounterVec // action
	AlertsTriggered  *prometheus.CounterVec // type
	EventsDropped    prometheus.Counter
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		TokensScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "tokens_scanned_total",
			Help:      "Tokens returned by launchpad scanners.",
		}, []string{"platform"}),
		TokensAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "tokens_admitted_total",
			Help:      "Tokens that passed the admission pipeline.",
		}, []string{"platform"}),
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "trades_executed_total",
			Help:      "Executed trades by kind and mode.",
		}, []string{"kind", "mode"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Name:      "open_positions",
			Help:      "Currently open positions.",
		}),
		RealizedPnLSOL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Name:      "realized_pnl_sol",
			Help:      "Cumulative realized PnL in SOL.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trader",
			Name:      "scan_duration_seconds",
			Help:      "Duration of one scan iteration.",
			Buckets:   prometheus.DefBuckets,
		}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "provider_requests_total",
			Help:      "AI provider requests by outcome.",
		}, []string{"provider", "status"}),
		AgentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "agent_decisions_total",
			Help:      "Q-learning agent decisions by action.",
		}, []string{"action"}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "alerts_triggered_total",
			Help:      "Alerts that fired, by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trader",
			Name:      "events_dropped_total",
			Help:      "Bus events dropped because the buffer was full.",
		}),
	}
	reg.MustRegister(
		m.TokensScanned, m.TokensAdmitted, m.TradesExecuted, m.OpenPositions,
		m.RealizedPnLSOL, m.ScanDuration, m.ProviderRequests, m.AgentDecisions,
		m.AlertsTriggered, m.EventsDropped,
	)
	return m
}
