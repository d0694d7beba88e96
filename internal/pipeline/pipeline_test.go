package pipeline

import (
	"context"
	"errors"
	"testing"

	"sentimentpipe/internal/types"
)

func TestRunWithNoActionsIsANoop(t *testing.T) {
	o := New(nil, nil, nil, nil)
	result, err := o.Run(context.Background(), Action{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EventsHarvested != 0 || result.PostsHarvested != 0 || result.Analyzed != 0 {
		t.Fatalf("expected a no-op result, got %+v", result)
	}
}

func TestRunScrapeEventsWithoutScraperIsAnError(t *testing.T) {
	o := New(nil, nil, nil, nil)
	_, err := o.Run(context.Background(), Action{ScrapeEvents: ScrapeEventsToday})
	if err == nil {
		t.Fatalf("expected error when scrape-events requested with no scraper configured")
	}
}

func TestRunScrapePostsWithoutClientIsAnError(t *testing.T) {
	o := New(nil, nil, nil, nil)
	_, err := o.Run(context.Background(), Action{ScrapePosts: ScrapePostsHot})
	if err == nil {
		t.Fatalf("expected error when scrape-posts requested with no forum client configured")
	}
}

func TestRunAnalyzeWithoutAnalyzerIsAnError(t *testing.T) {
	o := New(nil, nil, nil, nil)
	_, err := o.Run(context.Background(), Action{Analyze: true})
	if err == nil {
		t.Fatalf("expected error when analyze requested with no analyzer configured")
	}
}

func TestIsFatalPhaseErrorClassifiesByKind(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"config", types.NewError(types.KindConfig, "op", errors.New("bad")), true},
		{"rate limit", types.NewError(types.KindRateLimit, "op", errors.New("bad")), true},
		{"transient network", types.NewError(types.KindTransientNetwork, "op", errors.New("bad")), false},
		{"permanent network", types.NewError(types.KindPermanentNetwork, "op", errors.New("bad")), false},
		{"cancelled", types.NewError(types.KindCancelled, "op", errors.New("bad")), false},
		{"untagged", errors.New("plain db error"), true},
	}
	for _, c := range cases {
		if got := isFatalPhaseError(c.err); got != c.fatal {
			t.Errorf("%s: isFatalPhaseError = %v, want %v", c.name, got, c.fatal)
		}
	}
}

func TestFilterEventsByCurrencyKeepsOnlyRequested(t *testing.T) {
	events := []types.EconomicEvent{
		{Currency: "EUR"},
		{Currency: "USD"},
		{Currency: "JPY"},
	}
	got := filterEventsByCurrency(events, []string{"EUR", "USD"})
	if len(got) != 2 || got[0].Currency != "EUR" || got[1].Currency != "USD" {
		t.Fatalf("expected EUR and USD only, got %+v", got)
	}
}

func TestFilterEventsByCurrencyEmptyFilterKeepsAll(t *testing.T) {
	events := []types.EconomicEvent{{Currency: "EUR"}, {Currency: "JPY"}}
	got := filterEventsByCurrency(events, nil)
	if len(got) != 2 {
		t.Fatalf("expected no filtering with an empty currency list, got %+v", got)
	}
}

func TestFilterPostsByChannelKeepsOnlyRequested(t *testing.T) {
	posts := []types.ForumPost{
		{Channel: "wallstreetbets"},
		{Channel: "stocks"},
		{Channel: "finance"},
	}
	got := filterPostsByChannel(posts, []string{"stocks"})
	if len(got) != 1 || got[0].Channel != "stocks" {
		t.Fatalf("expected stocks only, got %+v", got)
	}
}

func TestFilterPostsByChannelEmptyFilterKeepsAll(t *testing.T) {
	posts := []types.ForumPost{{Channel: "wallstreetbets"}, {Channel: "stocks"}}
	got := filterPostsByChannel(posts, nil)
	if len(got) != 2 {
		t.Fatalf("expected no filtering with an empty channel list, got %+v", got)
	}
}
