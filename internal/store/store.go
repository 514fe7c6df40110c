// Package store persists agent state as JSON snapshots under the data
// directory. Writes are atomic (temp file + rename).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

const (
	snapshotFile    = "agent_state.json"
	maxRecentTrades = 100
)

// QRecord is one Q-table cell in the flat persisted form.
type QRecord struct {
	StateKey string  `json:"state_key"`
	Action   string  `json:"action"`
	Value    float64 `json:"value"`
}

// Snapshot is the persisted agent state.
type Snapshot struct {
	SavedAt         time.Time      `json:"savedAt"`
	QTable          []QRecord      `json:"qTable"`
	ExplorationRate float64        `json:"explorationRate"`
	Episodes        int            `json:"episodes"`
	CapitalSOL      float64        `json:"capitalSol"`
	PeakCapitalSOL  float64        `json:"peakCapitalSol"`
	TotalTrades     int            `json:"totalTrades"`
	Wins            int            `json:"wins"`
	Losses          int            `json:"losses"`
	TotalPnLSOL     float64        `json:"totalPnlSol"`
	Strategy        types.Strategy `json:"strategy"`
	RecentTrades    []types.Trade  `json:"recentTrades"`
}

// Store reads and writes snapshots in one directory.
type Store struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// New ensures the data directory exists.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger.Named("store")}, nil
}

// SaveSnapshot writes the snapshot atomically. The recent-trade list is
// capped to the newest entries.
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.SavedAt = time.Now().UTC()
	if len(snap.RecentTrades) > maxRecentTrades {
		snap.RecentTrades = snap.RecentTrades[len(snap.RecentTrades)-maxRecentTrades:]
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := filepath.Join(s.dir, snapshotFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		zap.Int("qCells", len(snap.QTable)), zap.Int("trades", len(snap.RecentTrades)))
	return nil
}

// LoadSnapshot returns the persisted snapshot, or nil when none exists.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, snapshotFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &snap, nil
}
