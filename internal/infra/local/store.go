// Package local implements port.ScenarioProvider on top of a JSON seed
// file. Fetches never touch the network; mutations run through the
// in-process engine and are persisted to a state file next to the seed.
package local

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/cashplanhq/cashplan-api-go/internal/scenario"

	"go.uber.org/zap"
)

// seedScenario is one scenario in the seed file, holding the raw weekly
// aggregates before top-N summarization.
type seedScenario struct {
	ID                   string             `json:"id"`
	StartingBalanceCents *int64             `json:"starting_balance_cents"`
	Weeks                []scenario.WeekRaw `json:"weeks"`
}

type seedFile struct {
	Scenarios []seedScenario `json:"scenarios"`
}

// Store holds scenario snapshots in memory, seeded from a JSON file.
// Mutated snapshots are written to "<seed>.state.json" so they survive
// restarts without touching the seed itself.
type Store struct {
	mu        sync.RWMutex
	seedPath  string
	statePath string
	snapshots map[string]scenario.Snapshot
	logger    *zap.Logger
}

// NewStore creates a store backed by the given seed file.
func NewStore(seedPath string, logger *zap.Logger) *Store {
	return &Store{
		seedPath:  seedPath,
		statePath: seedPath + ".state.json",
		snapshots: make(map[string]scenario.Snapshot),
		logger:    logger,
	}
}

// Load populates the store. A previously saved state file wins over the
// seed so mutations survive restarts.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, err := os.ReadFile(s.statePath); err == nil {
		var snapshots map[string]scenario.Snapshot
		if err := json.Unmarshal(data, &snapshots); err != nil {
			return fmt.Errorf("parse state file %s: %w", s.statePath, err)
		}
		s.snapshots = snapshots
		s.logger.Info("local: loaded state file",
			zap.String("path", s.statePath),
			zap.Int("scenarios", len(snapshots)),
		)
		return nil
	}

	data, err := os.ReadFile(s.seedPath)
	if err != nil {
		return fmt.Errorf("read seed file %s: %w", s.seedPath, err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", s.seedPath, err)
	}

	for _, sc := range seed.Scenarios {
		starting := scenario.DefaultStartingBalanceCents
		if sc.StartingBalanceCents != nil {
			starting = *sc.StartingBalanceCents
		}
		weeks := scenario.BuildWeeks(sc.Weeks)
		s.snapshots[sc.ID] = scenario.Snapshot{
			ScenarioID:           sc.ID,
			StartingBalanceCents: starting,
			Weeks:                weeks,
			Balance:              scenario.RecalculateRunningBalance(weeks, starting),
		}
	}

	s.logger.Info("local: loaded seed file",
		zap.String("path", s.seedPath),
		zap.Int("scenarios", len(s.snapshots)),
	)
	return nil
}

// Get returns the snapshot for a scenario id.
func (s *Store) Get(scenarioID string) (scenario.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[scenarioID]
	return snap, ok
}

// Put stores a snapshot and persists the whole store to the state file.
func (s *Store) Put(snap scenario.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.ScenarioID] = snap

	data, err := json.MarshalIndent(s.snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(s.statePath, data, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", s.statePath, err)
	}
	return nil
}

// IDs returns the known scenario ids.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids
}
