// Package calendar implements the Calendar Scraper (C1): fetching a
// week or day of economic events from a public HTML calendar behind an
// anti-bot challenge, with DST-aware Eastern-to-UTC conversion.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v5"

	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/ratelimit"
	"sentimentpipe/internal/types"
)

// Config tunes scraper behavior.
type Config struct {
	BaseURL           string // e.g. "https://example-calendar.test/week"
	MinDelay          time.Duration
	MaxJitter         time.Duration
	MaxRetriesPerWeek int
	RequestTimeout    time.Duration
}

// DefaultConfig returns spec-aligned defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://example-calendar.test/week",
		MinDelay:          1500 * time.Millisecond,
		MaxJitter:         500 * time.Millisecond,
		MaxRetriesPerWeek: 3,
		RequestTimeout:    15 * time.Second,
	}
}

// Scraper drives a Renderer against the calendar's week-anchored pages.
type Scraper struct {
	renderer Renderer
	cfg      Config
	limiter  *ratelimit.Limiter
}

// New builds a Scraper. If renderer is nil, a CollyRenderer is constructed.
func New(renderer Renderer, cfg Config) *Scraper {
	if renderer == nil {
		renderer = NewCollyRenderer(cfg.RequestTimeout)
	}
	return &Scraper{
		renderer: renderer,
		cfg:      cfg,
		limiter:  ratelimit.New(1, cfg.MinDelay),
	}
}

// Close releases the underlying renderer (e.g. a browser process).
func (s *Scraper) Close() error { return s.renderer.Close() }

// WeekAnchor returns the Monday of the week containing t.
func WeekAnchor(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
}

// weekURL derives the source URL from the week anchor using its
// month+day+year URL scheme.
func (s *Scraper) weekURL(anchor time.Time) string {
	return fmt.Sprintf("%s?anchor=%s", s.cfg.BaseURL, anchor.Format("Jan02.2006"))
}

// ScrapeWeek returns the events for the week containing date, ordered by
// UTC timestamp ascending. Returns an empty (nil) slice if the source
// reports no events; returns a non-nil error for network/page-structure
// failures after retries are exhausted.
func (s *Scraper) ScrapeWeek(ctx context.Context, date time.Time) ([]types.EconomicEvent, error) {
	anchor := WeekAnchor(date)
	url := s.weekURL(anchor)

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.KindCancelled, "calendar.ScrapeWeek", err)
	}
	if err := ratelimit.PoliteDelay(ctx, s.cfg.MinDelay, s.cfg.MaxJitter); err != nil {
		return nil, types.NewError(types.KindCancelled, "calendar.ScrapeWeek", err)
	}

	events, err := s.fetchAndParse(ctx, url, anchor)
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}

// ScrapeDay returns events for the single calendar day (source timezone)
// matching date, derived by filtering ScrapeWeek's result.
func (s *Scraper) ScrapeDay(ctx context.Context, date time.Time) ([]types.EconomicEvent, error) {
	week, err := s.ScrapeWeek(ctx, date)
	if err != nil {
		return nil, err
	}

	eastern, _ := time.LoadLocation("America/New_York")
	if eastern == nil {
		eastern = time.UTC
	}
	target := date.In(eastern)
	y, m, d := target.Date()

	var out []types.EconomicEvent
	for _, e := range week {
		ey, em, ed := e.Timestamp.In(eastern).Date()
		if ey == y && em == m && ed == d {
			out = append(out, e)
		}
	}
	return out, nil
}

// fetchAndParse drives the state machine: Navigating -> Loaded -> Parsing
// -> Done, with bounded backoff retries on bot-challenge/transient errors.
func (s *Scraper) fetchAndParse(ctx context.Context, url string, anchor time.Time) ([]types.EconomicEvent, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2

	operation := func() (renderResult, error) {
		doc, status, err := s.renderer.Render(ctx, url)
		if err != nil {
			return renderResult{}, err
		}
		if status == 429 || isBotChallenge(doc) {
			return renderResult{}, fmt.Errorf("bot challenge or rate-limited (status %d)", status)
		}
		if status >= 400 && status < 500 {
			// Permanent 4xx: not retriable.
			return renderResult{}, backoff.Permanent(
				types.NewError(types.KindPermanentNetwork, "calendar.fetchAndParse", fmt.Errorf("status %d", status)))
		}
		if status >= 500 {
			return renderResult{}, fmt.Errorf("server error: status %d", status)
		}
		return renderResult{doc: doc}, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxRetriesPerWeek+1)))
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.KindCancelled, "calendar.fetchAndParse", ctx.Err())
		}
		if kind, ok := types.KindOf(err); ok && kind == types.KindPermanentNetwork {
			return nil, err
		}
		return nil, types.NewError(types.KindTransientNetwork, "calendar.fetchAndParse", err)
	}

	events, parseErrs := ParseWeekDocument(result.doc, anchor)
	for _, pe := range parseErrs {
		logger.Warn(ctx, "skipping unparseable calendar row", "error", pe.Error())
	}
	return events, nil
}

type renderResult struct {
	doc *goquery.Document
}

// isBotChallenge looks for markup patterns a bot-challenge interstitial
// commonly carries (captcha widgets, challenge scripts) rather than the
// real calendar table.
func isBotChallenge(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	return doc.Find("div#challenge-form").Length() > 0 || doc.Find(".g-recaptcha").Length() > 0
}
