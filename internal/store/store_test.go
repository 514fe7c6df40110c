package store_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/store"
	"github.com/solterm/trading-core/pkg/types"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := store.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := &store.Snapshot{
		QTable: []store.QRecord{
			{StateKey: "1_0_2_1_neutral_morning", Action: "wait", Value: 0.12},
			{StateKey: "1_0_2_1_neutral_morning", Action: "increase_size", Value: -0.3},
		},
		ExplorationRate: 0.21,
		Episodes:        42,
		CapitalSOL:      11.5,
		TotalTrades:     7,
		Wins:            4,
		Losses:          3,
		TotalPnLSOL:     1.5,
	}
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot missing after save")
	}
	if len(got.QTable) != 2 {
		t.Fatalf("qTable len = %d, want 2", len(got.QTable))
	}
	if got.QTable[0].StateKey != "1_0_2_1_neutral_morning" || got.QTable[0].Value != 0.12 {
		t.Errorf("qTable[0] = %+v", got.QTable[0])
	}
	if got.ExplorationRate != 0.21 || got.Episodes != 42 {
		t.Errorf("learning fields not preserved: %+v", got)
	}
	if got.SavedAt.IsZero() {
		t.Error("savedAt not stamped")
	}
}

func TestLoadMissingSnapshotReturnsNil(t *testing.T) {
	s, err := store.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot, got %+v", snap)
	}
}

func TestRecentTradesCapped(t *testing.T) {
	s, err := store.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	trades := make([]types.Trade, 150)
	for i := range trades {
		trades[i] = types.Trade{
			ID:   "t",
			Kind: types.TradeSell,
			PnL:  decimal.NewFromInt(int64(i)),
		}
	}
	if err := s.SaveSnapshot(&store.Snapshot{RecentTrades: trades}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(got.RecentTrades) != 100 {
		t.Fatalf("recentTrades len = %d, want 100", len(got.RecentTrades))
	}
	// The newest entries survive the cap.
	if !got.RecentTrades[99].PnL.Equal(decimal.NewFromInt(149)) {
		t.Errorf("last trade pnl = %s, want 149", got.RecentTrades[99].PnL)
	}
}
