// Package aggregator implements the Pair Aggregator (C6): directional
// sentiment for a fixed set of currency pairs derived from per-currency
// average event scores over a lookback window.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"sentimentpipe/internal/types"
)

// DefaultLookback is the default Δt used when none is supplied.
const DefaultLookback = 168 * time.Hour

// SupportedPairs is the fixed set of base/quote pairs this aggregator
// understands.
var SupportedPairs = []string{
	"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD",
	"USDCAD", "NZDUSD", "EURGBP", "EURJPY", "GBPJPY",
}

var supportedSet = func() map[string][2]string {
	m := make(map[string][2]string, len(SupportedPairs))
	for _, p := range SupportedPairs {
		m[p] = [2]string{p[:3], p[3:]}
	}
	return m
}()

// Legs splits a supported pair into its base and quote currency codes, e.g.
// "EURUSD" -> ("EUR", "USD", true). ok is false for an unsupported pair.
// This is the single source of truth other components (the Monitor Loop's
// pair-scoped tick) use to derive a pair's currencies, so they never drift
// from the pairs Compute actually understands.
func Legs(pair string) (base, quote string, ok bool) {
	legs, ok := supportedSet[pair]
	if !ok {
		return "", "", false
	}
	return legs[0], legs[1], true
}

// CurrencyAverager is the Store dependency: mean sentiment and sample count
// for a currency over a lookback window.
type CurrencyAverager interface {
	AverageSentiment(ctx context.Context, ccy string, since time.Time) (avg float64, count int, err error)
}

// Result is the pair-sentiment report for a single pair.
type Result struct {
	Pair          string
	BaseCurrency  string
	QuoteCurrency string
	BaseAvg       float64
	BaseCount     int
	QuoteAvg      float64
	QuoteCount    int
	PairSentiment float64
	Lookback      time.Duration
	SignalTag     string
}

// Aggregator computes pair sentiment via an injected CurrencyAverager.
type Aggregator struct {
	store CurrencyAverager
}

// New builds an Aggregator around store.
func New(store CurrencyAverager) *Aggregator {
	return &Aggregator{store: store}
}

// Compute returns the pair-sentiment Result for pair (e.g. "EURUSD") over
// lookback. lookback <= 0 uses DefaultLookback. Unknown pairs return
// types.ErrBadPair.
func (a *Aggregator) Compute(ctx context.Context, pair string, lookback time.Duration) (Result, error) {
	legs, ok := supportedSet[pair]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", types.ErrBadPair, pair)
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	since := time.Now().UTC().Add(-lookback)
	base, quote := legs[0], legs[1]

	baseAvg, baseCount, err := a.store.AverageSentiment(ctx, base, since)
	if err != nil {
		return Result{}, fmt.Errorf("average sentiment for %s: %w", base, err)
	}
	quoteAvg, quoteCount, err := a.store.AverageSentiment(ctx, quote, since)
	if err != nil {
		return Result{}, fmt.Errorf("average sentiment for %s: %w", quote, err)
	}

	pairSentiment := types.ClampScore(baseAvg - quoteAvg)

	return Result{
		Pair:          pair,
		BaseCurrency:  base,
		QuoteCurrency: quote,
		BaseAvg:       baseAvg,
		BaseCount:     baseCount,
		QuoteAvg:      quoteAvg,
		QuoteCount:    quoteCount,
		PairSentiment: pairSentiment,
		Lookback:      lookback,
		SignalTag:     signalTag(pairSentiment),
	}, nil
}

// ComputeAll runs Compute over every entry in SupportedPairs, for pair-all.
func (a *Aggregator) ComputeAll(ctx context.Context, lookback time.Duration) ([]Result, error) {
	out := make([]Result, 0, len(SupportedPairs))
	for _, pair := range SupportedPairs {
		r, err := a.Compute(ctx, pair, lookback)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func signalTag(pairSentiment float64) string {
	switch {
	case pairSentiment >= 0.3:
		return "Favor base strength"
	case pairSentiment <= -0.3:
		return "Favor quote strength"
	default:
		return "Neutral"
	}
}
