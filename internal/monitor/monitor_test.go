package monitor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"sentimentpipe/internal/aggregator"
	"sentimentpipe/internal/pipeline"
)

type zeroAverager struct{}

func (zeroAverager) AverageSentiment(ctx context.Context, ccy string, since time.Time) (float64, int, error) {
	return 0, 0, nil
}

func TestRunStopsAfterCurrentTickOnCancel(t *testing.T) {
	orchestrator := pipeline.New(nil, nil, nil, nil)
	agg := aggregator.New(zeroAverager{})
	var out bytes.Buffer

	m := New(orchestrator, agg, Config{Interval: time.Hour, Pair: "EURUSD"}, &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: Run should execute its first tick then exit

	err := m.Run(ctx)
	if err == nil {
		t.Fatalf("expected ctx.Err() to propagate once the loop observes cancellation")
	}
}

func TestDefaultConfigSetsThirtyMinuteInterval(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval != 30*time.Minute {
		t.Fatalf("expected 30m default interval, got %v", cfg.Interval)
	}
}

func TestScopedChannelsDedupesAcrossLegs(t *testing.T) {
	byCurrency := map[string][]string{
		"EUR": {"eurotrades", "forex"},
		"USD": {"forex", "wallstreetbets"},
	}
	got := scopedChannels(byCurrency, "EUR", "USD")
	want := []string{"eurotrades", "forex", "wallstreetbets"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestScopedChannelsEmptyForUnmappedLegs(t *testing.T) {
	got := scopedChannels(map[string][]string{"GBP": {"forex"}}, "EUR", "USD")
	if len(got) != 0 {
		t.Fatalf("expected no channels for unmapped legs, got %v", got)
	}
}

func TestTickScopesActionToPairLegsAndChannels(t *testing.T) {
	orchestrator := pipeline.New(nil, nil, nil, nil)
	agg := aggregator.New(zeroAverager{})
	var out bytes.Buffer

	m := New(orchestrator, agg, Config{
		Interval: time.Hour,
		Pair:     "EURUSD",
		ChannelsByCurrency: map[string][]string{
			"EUR": {"eurotrades"},
			"USD": {"wallstreetbets"},
		},
		FallbackChannels: []string{"finance"},
		PostLimit:        10,
	}, &out)

	// tick() logs and returns on the (expected) nil-scraper/forum error; it
	// never reaches the aggregator print, so this only exercises that tick
	// builds its scoped action without panicking. The scoping logic itself
	// is covered directly by the scopedChannels tests above.
	m.tick(context.Background())
}
