// Package backfill implements the Backfill Driver (C7): iterating calendar
// weeks over a historical range with checkpoint/resume, grounded on the
// week-anchor-loop shape of a weekly calendar job but driven by our own
// Calendar Scraper and Store instead of a publish/archive pipeline.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"sentimentpipe/internal/calendar"
	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/ratelimit"
	"sentimentpipe/internal/store"
	"sentimentpipe/internal/types"
)

// Config tunes retry and politeness behavior.
type Config struct {
	CheckpointPath  string
	MaxAttempts     int
	InterWeekDelay  time.Duration
	InterWeekJitter time.Duration
}

// DefaultConfig returns spec-aligned defaults.
func DefaultConfig() Config {
	return Config{
		CheckpointPath:  "backfill_checkpoint.json",
		MaxAttempts:     3,
		InterWeekDelay:  2 * time.Second,
		InterWeekJitter: time.Second,
	}
}

// Result summarizes a completed (or interrupted) run.
type Result struct {
	WeeksCompleted int
	WeeksFailed    int
	Checkpoint     Checkpoint
}

// Driver iterates weeks between a start and end date, scraping each via
// scraper and persisting via st, checkpointing progress after every commit.
type Driver struct {
	scraper *calendar.Scraper
	store   *store.Store
	cfg     Config
}

// New builds a Driver.
func New(scraper *calendar.Scraper, st *store.Store, cfg Config) *Driver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = "backfill_checkpoint.json"
	}
	return &Driver{scraper: scraper, store: st, cfg: cfg}
}

// Run iterates ISO weeks from start to end ascending, skipping weeks at or
// before the checkpoint's last-completed anchor (resume), and recording
// weeks that fail after MaxAttempts in the checkpoint's failed_weeks list
// rather than aborting the run.
func (d *Driver) Run(ctx context.Context, start, end time.Time) (Result, error) {
	cp, err := LoadCheckpoint(d.cfg.CheckpointPath)
	if err != nil {
		return Result{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}

	var result Result
	first := true

	for anchor := calendar.WeekAnchor(start); !anchor.After(calendar.WeekAnchor(end)); anchor = anchor.AddDate(0, 0, 7) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if !cp.LastCompletedWeekAnchor.IsZero() && !anchor.After(cp.LastCompletedWeekAnchor) {
			logger.Debug(ctx, "skipping already-completed backfill week", "week", anchor)
			continue
		}

		if !first {
			if err := ratelimit.PoliteDelay(ctx, d.cfg.InterWeekDelay, d.cfg.InterWeekJitter); err != nil {
				return result, err
			}
		}
		first = false

		events, err := d.fetchWeekWithRetry(ctx, anchor)
		if err != nil {
			logger.Warn(ctx, "backfill week failed after retries, recording and continuing",
				"week", anchor, "error", err)
			cp.addFailedWeek(anchor)
			cp.UpdatedAt = time.Now().UTC()
			if saveErr := SaveCheckpoint(d.cfg.CheckpointPath, cp); saveErr != nil {
				return result, fmt.Errorf("save checkpoint after failed week %v: %w", anchor, saveErr)
			}
			result.WeeksFailed++
			continue
		}

		if _, err := d.store.UpsertEvents(ctx, events); err != nil {
			return result, fmt.Errorf("persist week %v: %w", anchor, err)
		}

		cp.LastCompletedWeekAnchor = anchor
		cp.UpdatedAt = time.Now().UTC()
		if err := SaveCheckpoint(d.cfg.CheckpointPath, cp); err != nil {
			return result, fmt.Errorf("save checkpoint after week %v: %w", anchor, err)
		}
		result.WeeksCompleted++
	}

	result.Checkpoint = cp
	return result, nil
}

// fetchWeekWithRetry wraps the scraper call in a bounded exponential-backoff
// retry; the scraper's own rate-limit/politeness handling already covers
// page-level retries, so this layer only bounds week-level attempts.
func (d *Driver) fetchWeekWithRetry(ctx context.Context, anchor time.Time) ([]types.EconomicEvent, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2

	return backoff.Retry(ctx, func() ([]types.EconomicEvent, error) {
		return d.scraper.ScrapeWeek(ctx, anchor)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(d.cfg.MaxAttempts)))
}
