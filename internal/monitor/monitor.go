// Package monitor implements the Monitor Loop (C8): a single non-overlapping
// tick that runs the orchestrator then the pair aggregator on a fixed
// interval, in the style of the trading bot's ticker-driven main loop.
package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"sentimentpipe/internal/aggregator"
	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/pipeline"
)

// Config tunes the monitor loop.
type Config struct {
	Interval time.Duration
	Pair     string
	// ChannelsByCurrency maps a currency code to the forum channels relevant
	// to it. Each tick derives Pair's legs via aggregator.Legs and looks up
	// both legs here to build the tick's scoped channel list, per spec:
	// the harvest+analyze tick is narrowed to the configured pair's
	// currencies and channels.
	ChannelsByCurrency map[string][]string
	// FallbackChannels is used for a tick's forum harvest when Pair is
	// unrecognized or neither leg has an entry in ChannelsByCurrency.
	FallbackChannels []string
	PostLimit        int
}

// DefaultConfig returns spec-aligned defaults.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Minute, PostLimit: 25}
}

// Monitor runs the orchestrator then the aggregator every Interval, never
// overlapping ticks, and exits cleanly once the in-flight tick finishes
// after ctx is cancelled.
type Monitor struct {
	orchestrator *pipeline.Orchestrator
	aggregator   *aggregator.Aggregator
	cfg          Config
	out          io.Writer
}

// New builds a Monitor. out receives each tick's printed pair-sentiment
// report (typically os.Stdout).
func New(orchestrator *pipeline.Orchestrator, agg *aggregator.Aggregator, cfg Config, out io.Writer) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	return &Monitor{orchestrator: orchestrator, aggregator: agg, cfg: cfg, out: out}
}

// Run blocks, ticking until ctx is cancelled. The current tick always
// finishes before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	m.tick(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one harvest+analyze+aggregate cycle. Errors are logged, never
// propagated — a bad tick should not kill the loop.
func (m *Monitor) tick(ctx context.Context) {
	var currencies []string
	channels := m.cfg.FallbackChannels
	if base, quote, ok := aggregator.Legs(m.cfg.Pair); ok {
		currencies = []string{base, quote}
		if scoped := scopedChannels(m.cfg.ChannelsByCurrency, base, quote); len(scoped) > 0 {
			channels = scoped
		}
	}

	action := pipeline.Action{
		ScrapeEvents:    pipeline.ScrapeEventsToday,
		ScrapePosts:     pipeline.ScrapePostsHot,
		Analyze:         true,
		EventCurrencies: currencies,
		PostChannels:    channels,
		PostLimit:       m.cfg.PostLimit,
	}

	result, err := m.orchestrator.Run(ctx, action)
	if err != nil {
		logger.Error(ctx, "monitor tick: pipeline run failed", "error", err)
		return
	}
	logger.Info(ctx, "monitor tick: pipeline run completed",
		"events_stored", result.EventsStored, "posts_stored", result.PostsStored, "analyzed", result.Analyzed)

	pairResult, err := m.aggregator.Compute(ctx, m.cfg.Pair, 0)
	if err != nil {
		logger.Error(ctx, "monitor tick: pair aggregation failed", "pair", m.cfg.Pair, "error", err)
		return
	}

	fmt.Fprintf(m.out, "[%s] %s sentiment=%.3f (%s) base=%.3f(n=%d) quote=%.3f(n=%d) lookback=%s\n",
		time.Now().UTC().Format(time.RFC3339), pairResult.Pair, pairResult.PairSentiment, pairResult.SignalTag,
		pairResult.BaseAvg, pairResult.BaseCount, pairResult.QuoteAvg, pairResult.QuoteCount, pairResult.Lookback)
}

// scopedChannels dedupes the forum channels mapped to any of legs, preserving
// first-seen order.
func scopedChannels(byCurrency map[string][]string, legs ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, leg := range legs {
		for _, channel := range byCurrency[leg] {
			if !seen[channel] {
				seen[channel] = true
				out = append(out, channel)
			}
		}
	}
	return out
}
