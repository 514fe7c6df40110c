// Package launchpad discovers freshly launched tokens on the supported
// platforms. Each scanner unions a frontend scrape endpoint with a
// chain-program indexer endpoint and deduplicates by mint address.
package launchpad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// Scanner produces recent token sightings for one platform.
type Scanner interface {
	Platform() types.Platform
	Scan(ctx context.Context) ([]types.Token, error)
}

// rawToken is the shared shape both endpoints emit (the indexer leaves the
// market fields empty).
type rawToken struct {
	Mint         string   `json:"mint"`
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	CreatedAtMS  int64    `json:"created_timestamp"`
	LiquiditySOL *float64 `json:"liquidity_sol,omitempty"`
	MarketCapSOL *float64 `json:"market_cap_sol,omitempty"`
	Holders      *int     `json:"holder_count,omitempty"`
	Volume24hSOL *float64 `json:"volume_24h_sol,omitempty"`
	PriceUSD     *float64 `json:"price_usd,omitempty"`
	Verified     *bool    `json:"is_verified,omitempty"`
}

// httpScanner is the common fetch/union logic behind both platform adapters.
type httpScanner struct {
	platform   types.Platform
	scrapeURL  string
	indexerURL string
	client     *http.Client
	logger     *zap.Logger
}

func newHTTPScanner(platform types.Platform, scrapeURL, indexerURL string, logger *zap.Logger) *httpScanner {
	return &httpScanner{
		platform:   platform,
		scrapeURL:  scrapeURL,
		indexerURL: indexerURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named(string(platform)),
	}
}

func (s *httpScanner) Platform() types.Platform { return s.platform }

// Scan fetches both sources. One source failing degrades to the other; both
// failing is an error.
func (s *httpScanner) Scan(ctx context.Context) ([]types.Token, error) {
	seen := make(map[string]types.Token)
	var firstErr error
	sources := 0

	for _, u := range []string{s.scrapeURL, s.indexerURL} {
		if u == "" {
			continue
		}
		raws, err := s.fetch(ctx, u)
		if err != nil {
			s.logger.Warn("source fetch failed", zap.String("url", u), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sources++
		for _, r := range raws {
			if r.Mint == "" {
				continue
			}
			tok := s.toToken(r)
			if existing, ok := seen[r.Mint]; ok {
				seen[r.Mint] = mergeTokens(existing, tok)
			} else {
				seen[r.Mint] = tok
			}
		}
	}

	if sources == 0 {
		if firstErr != nil {
			return nil, fmt.Errorf("all %s sources failed: %w", s.platform, firstErr)
		}
		return nil, fmt.Errorf("no sources configured for %s", s.platform)
	}

	out := make([]types.Token, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return out, nil
}

func (s *httpScanner) fetch(ctx context.Context, url string) ([]rawToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var raws []rawToken
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to parse token list: %w", err)
	}
	return raws, nil
}

func (s *httpScanner) toToken(r rawToken) types.Token {
	discovered := time.Now().UTC()
	if r.CreatedAtMS > 0 {
		discovered = time.UnixMilli(r.CreatedAtMS).UTC()
	}
	return types.Token{
		Address:      r.Mint,
		Platform:     s.platform,
		DiscoveredAt: discovered,
		Name:         r.Name,
		Symbol:       r.Symbol,
		LiquiditySOL: r.LiquiditySOL,
		MarketCapSOL: r.MarketCapSOL,
		Holders:      r.Holders,
		Volume24hSOL: r.Volume24hSOL,
		PriceUSD:     r.PriceUSD,
		IsVerified:   r.Verified,
	}
}

// mergeTokens fills nil metric fields of a with values from b.
func mergeTokens(a, b types.Token) types.Token {
	if a.Name == "" {
		a.Name = b.Name
	}
	if a.Symbol == "" {
		a.Symbol = b.Symbol
	}
	if a.LiquiditySOL == nil {
		a.LiquiditySOL = b.LiquiditySOL
	}
	if a.MarketCapSOL == nil {
		a.MarketCapSOL = b.MarketCapSOL
	}
	if a.Holders == nil {
		a.Holders = b.Holders
	}
	if a.Volume24hSOL == nil {
		a.Volume24hSOL = b.Volume24hSOL
	}
	if a.PriceUSD == nil {
		a.PriceUSD = b.PriceUSD
	}
	if a.IsVerified == nil {
		a.IsVerified = b.IsVerified
	}
	if b.DiscoveredAt.Before(a.DiscoveredAt) {
		a.DiscoveredAt = b.DiscoveredAt
	}
	return a
}
