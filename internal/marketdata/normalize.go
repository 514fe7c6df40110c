package marketdata

import (
	"strings"
	"time"

	"github.com/solterm/trading-core/pkg/types"
)

// rawQuote is the upstream listing/quote record. The upstream service emits
// either flat fields or a CMC-style nested quote map; both map onto the
// canonical types.Quote.
type rawQuote struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Change24h   float64 `json:"percent_change_24h,omitempty"`
	Change7d    float64 `json:"percent_change_7d,omitempty"`
	Volume24h   float64 `json:"volume_24h,omitempty"`
	MarketCap   float64 `json:"market_cap,omitempty"`
	LastUpdated string  `json:"last_updated,omitempty"`

	Quote map[string]struct {
		Price       float64 `json:"price"`
		Change24h   float64 `json:"percent_change_24h"`
		Change7d    float64 `json:"percent_change_7d"`
		Volume24h   float64 `json:"volume_24h"`
		MarketCap   float64 `json:"market_cap"`
		LastUpdated string  `json:"last_updated"`
	} `json:"quote,omitempty"`
}

// normalizeQuote maps one upstream record onto the canonical quote. It is
// idempotent: a record already in canonical shape passes through unchanged.
func normalizeQuote(r rawQuote) types.Quote {
	q := types.Quote{
		Symbol:    strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Price:     r.Price,
		Change24h: r.Change24h,
		Change7d:  r.Change7d,
		Volume24h: r.Volume24h,
		MarketCap: r.MarketCap,
	}
	if usd, ok := r.Quote["USD"]; ok {
		q.Price = usd.Price
		q.Change24h = usd.Change24h
		q.Change7d = usd.Change7d
		q.Volume24h = usd.Volume24h
		q.MarketCap = usd.MarketCap
		q.LastUpdated = parseTimestamp(usd.LastUpdated)
	} else {
		q.LastUpdated = parseTimestamp(r.LastUpdated)
	}
	if q.LastUpdated.IsZero() {
		q.LastUpdated = time.Now().UTC()
	}
	return q
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

type rawHistoricalPoint struct {
	Timestamp string  `json:"timestamp"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume_24h"`
}

func normalizeHistory(points []rawHistoricalPoint) []types.HistoricalPoint {
	out := make([]types.HistoricalPoint, 0, len(points))
	for _, p := range points {
		out = append(out, types.HistoricalPoint{
			Timestamp: parseTimestamp(p.Timestamp),
			Price:     p.Price,
			Volume:    p.Volume,
		})
	}
	return out
}
