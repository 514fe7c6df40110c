package marketdata_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/marketdata"
	"github.com/solterm/trading-core/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *marketdata.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return marketdata.NewClient(types.MarketDataConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestGetQuoteNormalizesNestedShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/quote" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"symbol":"btc","quote":{"USD":{"price":45000.5,"percent_change_24h":2.1,"volume_24h":1e9,"market_cap":9e11,"last_updated":"2026-08-24T10:00:00Z"}}}`)
	})

	q, err := c.GetQuote(context.Background(), "btc")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Symbol != "BTC" {
		t.Errorf("symbol = %q, want BTC", q.Symbol)
	}
	if q.Price != 45000.5 {
		t.Errorf("price = %v", q.Price)
	}
	if q.Change24h != 2.1 {
		t.Errorf("change24h = %v", q.Change24h)
	}
	if q.LastUpdated.IsZero() {
		t.Error("lastUpdated not parsed")
	}
}

func TestGetQuoteFlatShapePassesThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"SOL","price":150.25,"percent_change_24h":-1.2,"volume_24h":5e8,"market_cap":7e10,"last_updated":"2026-08-24T10:00:00Z"}`)
	})

	q, err := c.GetQuote(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Price != 150.25 || q.Change24h != -1.2 {
		t.Errorf("flat fields not preserved: %+v", q)
	}
}

func TestGetListings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q", got)
		}
		fmt.Fprint(w, `[{"symbol":"BTC","price":45000},{"symbol":"ETH","price":2500}]`)
	})

	list, err := c.GetListings(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetListings: %v", err)
	}
	if len(list) != 2 || list[1].Symbol != "ETH" {
		t.Errorf("listings = %+v", list)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := c.GetQuote(context.Background(), "BTC"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestUnconfiguredClientFailsFast(t *testing.T) {
	c := marketdata.NewClient(types.MarketDataConfig{}, zap.NewNop())
	if c.Available() {
		t.Error("Available() = true for empty base URL")
	}
	if _, err := c.GetQuote(context.Background(), "BTC"); err == nil {
		t.Fatal("expected error without base URL")
	}
}

func TestGetHistoricalQuotes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"timestamp":"2026-08-24T09:00:00Z","price":100,"volume_24h":1000},{"timestamp":"2026-08-24T10:00:00Z","price":105,"volume_24h":1200}]`)
	})

	pts, err := c.GetHistoricalQuotes(context.Background(), "BTC", "1h", 2)
	if err != nil {
		t.Fatalf("GetHistoricalQuotes: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("points = %d, want 2", len(pts))
	}
	if !pts[1].Timestamp.After(pts[0].Timestamp) {
		t.Error("timestamps not ordered")
	}
}
