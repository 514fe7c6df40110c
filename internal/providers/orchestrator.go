package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/metrics"
	"github.com/solterm/trading-core/pkg/types"
)

// ErrNoProviders is returned when the orchestrator has no providers
// configured at all.
var ErrNoProviders = errors.New("no providers configured")

// AllFailedError reports that every configured provider failed one request.
type AllFailedError struct {
	Attempted []string
	LastErr   error
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all providers failed (attempted %s): %v",
		strings.Join(e.Attempted, ", "), e.LastErr)
}

func (e *AllFailedError) Unwrap() error { return e.LastErr }

// ProviderStats is the per-provider counter snapshot.
type ProviderStats struct {
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	Free      bool      `json:"free"`
	Successes int64     `json:"successes"`
	Failures  int64     `json:"failures"`
	LastUsed  time.Time `json:"lastUsed,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Stats is the orchestrator-level snapshot.
type Stats struct {
	Providers    []ProviderStats `json:"providers"`
	LastProvider string          `json:"lastProvider,omitempty"`
	Fallbacks    int64           `json:"fallbacks"`
}

type tracked struct {
	provider  ChatProvider
	tier      types.ProviderTier
	successes int64
	failures  int64
	lastUsed  time.Time
	lastError string
}

// Orchestrator walks the primary tier in declared order, then the optional
// tier, per request. The first provider to answer wins.
type Orchestrator struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu           sync.RWMutex
	primary      []*tracked
	optional     []*tracked
	lastProvider string
	fallbacks    int64
	onSwitch     func(provider string, tier types.ProviderTier, free bool)
}

// New builds the orchestrator from the configured provider list. Declaration
// order is priority order within each tier.
func New(logger *zap.Logger, cfgs []types.ProviderConfig, m *metrics.Metrics) (*Orchestrator, error) {
	o := &Orchestrator{
		logger:  logger.Named("providers"),
		metrics: m,
	}
	for _, cfg := range cfgs {
		p, err := newProvider(cfg, o.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure provider: %w", err)
		}
		t := &tracked{provider: p, tier: cfg.Tier}
		if cfg.Tier == types.TierOptional {
			o.optional = append(o.optional, t)
		} else {
			t.tier = types.TierPrimary
			o.primary = append(o.primary, t)
		}
	}
	o.logger.Info("providers configured",
		zap.Int("primary", len(o.primary)), zap.Int("optional", len(o.optional)))
	return o, nil
}

// SetOnSwitch installs a callback invoked before each optional-tier attempt.
// It receives the optional provider about to be tried, its tier, and
// whether it is free to call.
func (o *Orchestrator) SetOnSwitch(fn func(provider string, tier types.ProviderTier, free bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSwitch = fn
}

// Chat tries each provider in priority order until one answers.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	o.mu.RLock()
	primary := append([]*tracked(nil), o.primary...)
	optional := append([]*tracked(nil), o.optional...)
	onSwitch := o.onSwitch
	o.mu.RUnlock()

	if len(primary)+len(optional) == 0 {
		return nil, ErrNoProviders
	}

	var attempted []string
	var lastErr error

	try := func(t *tracked) (*ChatResponse, error) {
		attempted = append(attempted, t.provider.Name())
		resp, err := t.provider.Chat(ctx, req)

		o.mu.Lock()
		t.lastUsed = time.Now()
		if err != nil {
			t.failures++
			t.lastError = err.Error()
		} else {
			t.successes++
			t.lastError = ""
			o.lastProvider = t.provider.Name()
			resp.Tier = string(t.tier)
			resp.Free = t.provider.Free()
		}
		o.mu.Unlock()

		if o.metrics != nil {
			status := "success"
			if err != nil {
				status = "failure"
			}
			o.metrics.ProviderRequests.WithLabelValues(t.provider.Name(), status).Inc()
		}
		return resp, err
	}

	for _, t := range primary {
		resp, err := try(t)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		o.logger.Warn("provider failed, trying next",
			zap.String("provider", t.provider.Name()), zap.Error(err))
	}

	switched := false
	for _, t := range optional {
		if !switched {
			switched = true
			o.mu.Lock()
			o.fallbacks++
			o.mu.Unlock()
			o.logger.Info("falling back to optional tier",
				zap.String("provider", t.provider.Name()))
		}
		// The switch callback fires before every optional attempt, not just
		// the first, so listeners see each candidate as it is tried.
		if onSwitch != nil {
			onSwitch(t.provider.Name(), t.tier, t.provider.Free())
		}
		resp, err := try(t)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		o.logger.Warn("optional provider failed",
			zap.String("provider", t.provider.Name()), zap.Error(err))
	}

	return nil, &AllFailedError{Attempted: attempted, LastErr: lastErr}
}

// HasProvider reports whether a provider with the given name is configured.
func (o *Orchestrator) HasProvider(name string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, t := range o.primary {
		if strings.EqualFold(t.provider.Name(), name) {
			return true
		}
	}
	for _, t := range o.optional {
		if strings.EqualFold(t.provider.Name(), name) {
			return true
		}
	}
	return false
}

// AvailableCount returns how many providers are configured across both tiers.
func (o *Orchestrator) AvailableCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.primary) + len(o.optional)
}

// Stats returns a snapshot of per-provider counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := Stats{LastProvider: o.lastProvider, Fallbacks: o.fallbacks}
	collect := func(ts []*tracked) {
		for _, t := range ts {
			out.Providers = append(out.Providers, ProviderStats{
				Name:      t.provider.Name(),
				Tier:      string(t.tier),
				Free:      t.provider.Free(),
				Successes: t.successes,
				Failures:  t.failures,
				LastUsed:  t.lastUsed,
				LastError: t.lastError,
			})
		}
	}
	collect(o.primary)
	collect(o.optional)
	return out
}
