package backfill

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadCheckpointRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	anchor := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	cp := Checkpoint{
		LastCompletedWeekAnchor: anchor,
		FailedWeeks:             []time.Time{anchor.AddDate(0, 0, 7)},
		StartedAt:               anchor.Add(-time.Hour),
		UpdatedAt:               anchor,
	}

	if err := SaveCheckpoint(path, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if !loaded.LastCompletedWeekAnchor.Equal(anchor) {
		t.Fatalf("expected anchor %v, got %v", anchor, loaded.LastCompletedWeekAnchor)
	}
	if len(loaded.FailedWeeks) != 1 {
		t.Fatalf("expected 1 failed week, got %d", len(loaded.FailedWeeks))
	}
}

func TestLoadCheckpointMissingFileReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	cp, err := LoadCheckpoint(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if !cp.LastCompletedWeekAnchor.IsZero() {
		t.Fatalf("expected zero-value checkpoint, got %+v", cp)
	}
}

func TestAddFailedWeekDeduplicates(t *testing.T) {
	anchor := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	cp := Checkpoint{}
	cp.addFailedWeek(anchor)
	cp.addFailedWeek(anchor)
	if len(cp.FailedWeeks) != 1 {
		t.Fatalf("expected dedup to 1 entry, got %d", len(cp.FailedWeeks))
	}
}
