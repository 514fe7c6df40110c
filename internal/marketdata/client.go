// Package marketdata is the HTTP client for the external market data service,
// normalizing its responses into canonical quote types.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// GlobalMetrics is the normalized market-wide summary.
type GlobalMetrics struct {
	TotalMarketCapUSD float64   `json:"totalMarketCapUsd"`
	TotalVolume24hUSD float64   `json:"totalVolume24hUsd"`
	BTCDominance      float64   `json:"btcDominance"`
	ETHDominance      float64   `json:"ethDominance"`
	ActiveCurrencies  int       `json:"activeCurrencies"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Metadata is the normalized asset profile.
type Metadata struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Logo        string   `json:"logo,omitempty"`
	Website     string   `json:"website,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Conversion is the result of a currency conversion.
type Conversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Rate   float64 `json:"rate"`
	Result float64 `json:"result"`
}

// GainersLosers pairs the top movers in both directions.
type GainersLosers struct {
	Gainers []types.Quote `json:"gainers"`
	Losers  []types.Quote `json:"losers"`
}

// Client is the market data HTTP client.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds a client from config. An empty base URL yields a client
// whose calls fail fast, which callers treat as the feature being absent.
func NewClient(cfg types.MarketDataConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("marketdata"),
	}
}

// Available reports whether a base URL is configured.
func (c *Client) Available() bool { return c.baseURL != "" }

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("market data service not configured")
	}
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data service returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

// GetQuote fetches the current quote for one symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*types.Quote, error) {
	var raw rawQuote
	params := url.Values{"symbol": {strings.ToUpper(symbol)}}
	if err := c.get(ctx, "/v1/quote", params, &raw); err != nil {
		return nil, err
	}
	q := normalizeQuote(raw)
	if q.Symbol == "" {
		q.Symbol = strings.ToUpper(symbol)
	}
	return &q, nil
}

// GetListings fetches the top listings by market cap.
func (c *Client) GetListings(ctx context.Context, limit int) ([]types.Quote, error) {
	if limit <= 0 {
		limit = 100
	}
	var raw []rawQuote
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v1/listings", params, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Quote, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeQuote(r))
	}
	return out, nil
}

// GetHistoricalQuotes fetches a normalized price/volume series.
func (c *Client) GetHistoricalQuotes(ctx context.Context, symbol, interval string, count int) ([]types.HistoricalPoint, error) {
	if count <= 0 {
		count = 24
	}
	var raw []rawHistoricalPoint
	params := url.Values{
		"symbol":   {strings.ToUpper(symbol)},
		"interval": {interval},
		"count":    {strconv.Itoa(count)},
	}
	if err := c.get(ctx, "/v1/historical", params, &raw); err != nil {
		return nil, err
	}
	return normalizeHistory(raw), nil
}

// GetTrending fetches trending assets.
func (c *Client) GetTrending(ctx context.Context, limit int) ([]types.Quote, error) {
	if limit <= 0 {
		limit = 10
	}
	var raw []rawQuote
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v1/trending", params, &raw); err != nil {
		return nil, err
	}
	out := make([]types.Quote, 0, len(raw))
	for _, r := range raw {
		out = append(out, normalizeQuote(r))
	}
	return out, nil
}

// GetGainersLosers fetches the top movers in both directions.
func (c *Client) GetGainersLosers(ctx context.Context, limit int) (*GainersLosers, error) {
	if limit <= 0 {
		limit = 10
	}
	var raw struct {
		Gainers []rawQuote `json:"gainers"`
		Losers  []rawQuote `json:"losers"`
	}
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/v1/gainers-losers", params, &raw); err != nil {
		return nil, err
	}
	out := &GainersLosers{}
	for _, r := range raw.Gainers {
		out.Gainers = append(out.Gainers, normalizeQuote(r))
	}
	for _, r := range raw.Losers {
		out.Losers = append(out.Losers, normalizeQuote(r))
	}
	return out, nil
}

// GetGlobalMetrics fetches the market-wide summary.
func (c *Client) GetGlobalMetrics(ctx context.Context) (*GlobalMetrics, error) {
	var raw struct {
		TotalMarketCap   float64 `json:"total_market_cap"`
		TotalVolume24h   float64 `json:"total_volume_24h"`
		BTCDominance     float64 `json:"btc_dominance"`
		ETHDominance     float64 `json:"eth_dominance"`
		ActiveCurrencies int     `json:"active_cryptocurrencies"`
		LastUpdated      string  `json:"last_updated"`
	}
	if err := c.get(ctx, "/v1/global-metrics", nil, &raw); err != nil {
		return nil, err
	}
	return &GlobalMetrics{
		TotalMarketCapUSD: raw.TotalMarketCap,
		TotalVolume24hUSD: raw.TotalVolume24h,
		BTCDominance:      raw.BTCDominance,
		ETHDominance:      raw.ETHDominance,
		ActiveCurrencies:  raw.ActiveCurrencies,
		LastUpdated:       parseTimestamp(raw.LastUpdated),
	}, nil
}

// GetMetadata fetches the asset profile for one symbol.
func (c *Client) GetMetadata(ctx context.Context, symbol string) (*Metadata, error) {
	var raw struct {
		Symbol      string   `json:"symbol"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Logo        string   `json:"logo"`
		Website     string   `json:"website"`
		Tags        []string `json:"tags"`
	}
	params := url.Values{"symbol": {strings.ToUpper(symbol)}}
	if err := c.get(ctx, "/v1/metadata", params, &raw); err != nil {
		return nil, err
	}
	return &Metadata{
		Symbol:      strings.ToUpper(raw.Symbol),
		Name:        raw.Name,
		Description: raw.Description,
		Logo:        raw.Logo,
		Website:     raw.Website,
		Tags:        raw.Tags,
	}, nil
}

// Convert converts an amount between two symbols at current prices.
func (c *Client) Convert(ctx context.Context, amount float64, from, to string) (*Conversion, error) {
	var raw struct {
		Rate   float64 `json:"rate"`
		Result float64 `json:"result"`
	}
	params := url.Values{
		"amount": {strconv.FormatFloat(amount, 'f', -1, 64)},
		"from":   {strings.ToUpper(from)},
		"to":     {strings.ToUpper(to)},
	}
	if err := c.get(ctx, "/v1/convert", params, &raw); err != nil {
		return nil, err
	}
	return &Conversion{
		From:   strings.ToUpper(from),
		To:     strings.ToUpper(to),
		Amount: amount,
		Rate:   raw.Rate,
		Result: raw.Result,
	}, nil
}
