// Package checkpoint persists per-table sync progress so an interrupted
// run can resume from the last committed key.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoCheckpoint is returned when no checkpoint exists for a table.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// Checkpoint records the last key committed for one table. LastKey holds
// the text form of each primary-key component in declaration order; it
// only ever advances after the owning batch transaction commits.
type Checkpoint struct {
	Table     string    `json:"table"`
	RunID     string    `json:"run_id"`
	LastKey   []string  `json:"last_key"`
	Rows      int64     `json:"rows_committed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store handles checkpoint persistence. Each table has a single writer
// (its sync worker), so no locking is layered on top of the storage.
type Store interface {
	Load(table string) (*Checkpoint, error)
	Save(cp *Checkpoint) error
	Clear(table string) error
}

// NewFileStore persists one JSON file per table under dir.
func NewFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return &fileStore{dir: dir}, nil
}

type fileStore struct {
	dir string
}

func (s *fileStore) path(table string) string {
	return filepath.Join(s.dir, fmt.Sprintf("checkpoint_%s.json", table))
}

func (s *fileStore) Load(table string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	return &cp, nil
}

func (s *fileStore) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically so a crash never leaves a torn checkpoint.
	path := s.path(cp.Table)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

func (s *fileStore) Clear(table string) error {
	if err := os.Remove(s.path(table)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint file: %w", err)
	}
	return nil
}
