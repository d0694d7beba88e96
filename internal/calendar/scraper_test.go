package calendar

import (
	"context"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinDelay = time.Millisecond
	cfg.MaxJitter = 0
	cfg.MaxRetriesPerWeek = 1
	return cfg
}

func TestScrapeWeekReturnsOrderedEvents(t *testing.T) {
	cfg := testConfig()
	anchor := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	renderer := &StaticRenderer{Pages: map[string]StaticPage{}}
	s := New(renderer, cfg)
	defer s.Close()

	url := s.weekURL(anchor)
	renderer.Pages[url] = StaticPage{HTML: fixtureHTML, StatusCode: 200}

	events, err := s.ScrapeWeek(context.Background(), anchor)
	if err != nil {
		t.Fatalf("ScrapeWeek: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events not ordered ascending by timestamp")
		}
	}
}

func TestScrapeWeekEmptySourceReturnsEmpty(t *testing.T) {
	cfg := testConfig()
	anchor := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	renderer := &StaticRenderer{Pages: map[string]StaticPage{}}
	s := New(renderer, cfg)
	defer s.Close()

	url := s.weekURL(anchor)
	renderer.Pages[url] = StaticPage{HTML: `<table></table>`, StatusCode: 200}

	events, err := s.ScrapeWeek(context.Background(), anchor)
	if err != nil {
		t.Fatalf("ScrapeWeek: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestScrapeWeekPermanentErrorNotRetried(t *testing.T) {
	cfg := testConfig()
	anchor := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	renderer := &StaticRenderer{Pages: map[string]StaticPage{}}
	s := New(renderer, cfg)
	defer s.Close()

	url := s.weekURL(anchor)
	renderer.Pages[url] = StaticPage{HTML: `<table></table>`, StatusCode: 404}

	_, err := s.ScrapeWeek(context.Background(), anchor)
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
