package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// HTTPBackend drives the external execution service: trade execution,
// current prices, the AI analysis overlay, and best-effort database mirrors.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPBackend builds the live backend client.
func NewHTTPBackend(cfg types.BackendConfig, logger *zap.Logger) (*HTTPBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("backend"),
	}, nil
}

func (b *HTTPBackend) Name() string { return "http" }

func (b *HTTPBackend) post(ctx context.Context, path string, in, out interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", path, err)
		}
	}
	return nil
}

func (b *HTTPBackend) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path)
	}
	return json.Unmarshal(data, out)
}

func (b *HTTPBackend) ExecuteTrade(ctx context.Context, req TradeRequest) (*types.TradeResult, error) {
	var result types.TradeResult
	if err := b.post(ctx, "/api/v1/execute-trade", req, &result); err != nil {
		return nil, err
	}
	if !result.Success && result.Error == "" {
		result.Error = "backend rejected trade"
	}
	return &result, nil
}

func (b *HTTPBackend) CurrentPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	var resp struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := b.get(ctx, "/api/v1/price/"+tokenAddress, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Price.IsZero() {
		return decimal.Zero, fmt.Errorf("backend returned zero price for %s", tokenAddress)
	}
	return resp.Price, nil
}

// AnalyzeToken asks the backend's AI overlay for a structured verdict.
func (b *HTTPBackend) AnalyzeToken(ctx context.Context, token types.Token) (*types.AIDecision, error) {
	var decision types.AIDecision
	if err := b.post(ctx, "/api/v1/analyze-token", token, &decision); err != nil {
		return nil, err
	}
	if decision.Decision == "" {
		return nil, fmt.Errorf("backend returned empty analysis for %s", token.Address)
	}
	return &decision, nil
}

// MirrorPosition records a position in the backend database and returns the
// backend's position id.
func (b *HTTPBackend) MirrorPosition(ctx context.Context, pos *types.Position) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := b.post(ctx, "/api/v1/positions", pos, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// MirrorTrade records a trade in the backend database.
func (b *HTTPBackend) MirrorTrade(ctx context.Context, trade *types.Trade) error {
	return b.post(ctx, "/api/v1/trades", trade, nil)
}

// ClosePosition marks a mirrored position closed.
func (b *HTTPBackend) ClosePosition(ctx context.Context, dbPositionID string, exitPrice decimal.Decimal, reason string) error {
	body := map[string]interface{}{
		"exitPrice": exitPrice,
		"reason":    reason,
	}
	return b.post(ctx, "/api/v1/positions/"+dbPositionID+"/close", body, nil)
}

// MEVStatus reports whether the backend currently routes through Jito.
func (b *HTTPBackend) MEVStatus(ctx context.Context) (bool, error) {
	var resp struct {
		JitoEnabled bool `json:"jitoEnabled"`
	}
	if err := b.get(ctx, "/api/v1/mev-status", &resp); err != nil {
		return false, err
	}
	return resp.JitoEnabled, nil
}

var (
	_ Backend  = (*HTTPBackend)(nil)
	_ Analyzer = (*HTTPBackend)(nil)
	_ Mirror   = (*HTTPBackend)(nil)
	_ Backend  = (*Simulator)(nil)
)
