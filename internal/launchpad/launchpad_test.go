package launchpad_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/launchpad"
	"github.com/solterm/trading-core/pkg/types"
)

func TestScanUnionsAndDeduplicates(t *testing.T) {
	scrape := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"mint":"AAA","name":"Alpha","symbol":"ALP","liquidity_sol":12.5,"holder_count":40},{"mint":"BBB","symbol":"BET"}]`)
	}))
	defer scrape.Close()
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"mint":"AAA","market_cap_sol":80},{"mint":"CCC","symbol":"GAM","created_timestamp":1756024800000}]`)
	}))
	defer indexer.Close()

	s := launchpad.NewPumpFun(scrape.URL, indexer.URL, zap.NewNop())
	if s.Platform() != types.PlatformPumpFun {
		t.Errorf("platform = %s", s.Platform())
	}

	tokens, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("tokens = %d, want 3 (union of AAA, BBB, CCC)", len(tokens))
	}

	byAddr := map[string]types.Token{}
	for _, tok := range tokens {
		byAddr[tok.Address] = tok
	}
	aaa := byAddr["AAA"]
	if aaa.LiquiditySOL == nil || *aaa.LiquiditySOL != 12.5 {
		t.Error("scrape liquidity lost in merge")
	}
	if aaa.MarketCapSOL == nil || *aaa.MarketCapSOL != 80 {
		t.Error("indexer market cap not merged")
	}
	if byAddr["CCC"].DiscoveredAt.IsZero() {
		t.Error("created timestamp not mapped")
	}
}

func TestScanDegradesWhenOneSourceFails(t *testing.T) {
	scrape := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer scrape.Close()
	indexer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"mint":"DDD","symbol":"DEL"}]`)
	}))
	defer indexer.Close()

	s := launchpad.NewBonkFun(scrape.URL, indexer.URL, zap.NewNop())
	tokens, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Address != "DDD" {
		t.Errorf("tokens = %+v", tokens)
	}
	if tokens[0].Platform != types.PlatformBonkFun {
		t.Errorf("platform = %s", tokens[0].Platform)
	}
}

func TestScanFailsWhenAllSourcesFail(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	s := launchpad.NewPumpFun(broken.URL, broken.URL, zap.NewNop())
	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("expected error when every source fails")
	}
}
