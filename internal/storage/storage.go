package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/elsadiq7/chestnet/internal/weights"
)

// Storage keys
const (
	keyStats        = "stats"
	weightKeyPrefix = "weights/"
)

// RunStats stores cumulative inference statistics.
type RunStats struct {
	FramesProcessed uint64        `json:"frames_processed"`
	TotalCycles     uint64        `json:"total_cycles"`
	ForcedFrames    uint64        `json:"forced_frames"`
	DroppedSamples  uint64        `json:"dropped_samples"`
	TotalRunTime    time.Duration `json:"total_run_time"`
	LastRun         time.Time     `json:"last_run"`
}

// NewRunStats returns empty statistics.
func NewRunStats() *RunStats {
	return &RunStats{}
}

// CyclesPerFrame returns the mean cycle count per processed frame.
func (s *RunStats) CyclesPerFrame() float64 {
	if s.FramesProcessed == 0 {
		return 0
	}
	return float64(s.TotalCycles) / float64(s.FramesProcessed)
}

// RunResult is one completed inference run.
type RunResult struct {
	Frames   uint64
	Cycles   uint64
	Forced   uint64
	Dropped  uint64
	Duration time.Duration
}

// Storage wraps BadgerDB for persistent storage.
type Storage struct {
	db *badger.DB
}

// NewStorage opens the store in the platform data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}
	return Open(dbDir)
}

// Open opens the store at an explicit directory.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutWeightSet caches one block's parameter banks under name, serialized
// in the binary weight-file format.
func (s *Storage) PutWeightSet(name string, params *weights.BlockParams) error {
	var buf bytes.Buffer
	if err := params.Write(&buf); err != nil {
		return fmt.Errorf("encode weight set %q: %w", name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(weightKeyPrefix+name), buf.Bytes())
	})
}

// GetWeightSet loads a cached parameter set. The bool reports presence.
func (s *Storage) GetWeightSet(name string, d weights.Dims) (*weights.BlockParams, bool, error) {
	var params *weights.BlockParams
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(weightKeyPrefix + name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p, err := weights.Read(bytes.NewReader(val), d)
			if err != nil {
				return fmt.Errorf("decode weight set %q: %w", name, err)
			}
			params = p
			found = true
			return nil
		})
	})

	return params, found, err
}

// LoadStats loads statistics, returning empty stats if none recorded yet.
func (s *Storage) LoadStats() (*RunStats, error) {
	stats := NewRunStats()

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyStats))
		if err == badger.ErrKeyNotFound {
			return nil // Use empty stats
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, stats)
		})
	})

	return stats, err
}

// SaveStats saves statistics.
func (s *Storage) SaveStats(stats *RunStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyStats), data)
	})
}

// RecordRun folds one completed run into the cumulative statistics.
func (s *Storage) RecordRun(result RunResult) error {
	stats, err := s.LoadStats()
	if err != nil {
		return err
	}

	stats.FramesProcessed += result.Frames
	stats.TotalCycles += result.Cycles
	stats.ForcedFrames += result.Forced
	stats.DroppedSamples += result.Dropped
	stats.TotalRunTime += result.Duration
	stats.LastRun = time.Now()

	return s.SaveStats(stats)
}
