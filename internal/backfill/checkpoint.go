package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the on-disk resume state for a backfill run.
type Checkpoint struct {
	LastCompletedWeekAnchor time.Time   `json:"last_completed_week_anchor"`
	FailedWeeks             []time.Time `json:"failed_weeks"`
	StartedAt               time.Time   `json:"started_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// LoadCheckpoint reads path, or returns a fresh Checkpoint if the file
// doesn't exist yet.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Checkpoint{}, nil
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

// SaveCheckpoint writes cp to path atomically: write to a temp file in the
// same directory, then rename over the destination.
func SaveCheckpoint(path string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint into place: %w", err)
	}
	return nil
}

// addFailedWeek appends anchor to FailedWeeks if not already present.
func (cp *Checkpoint) addFailedWeek(anchor time.Time) {
	for _, w := range cp.FailedWeeks {
		if w.Equal(anchor) {
			return
		}
	}
	cp.FailedWeeks = append(cp.FailedWeeks, anchor)
}
