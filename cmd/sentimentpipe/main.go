package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sentimentpipe/internal/aggregator"
	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/pipeline"
)

// cliArgs is the parsed form of the flag surface. flag.Parse mutates
// package-level state, so parseArgs takes an explicit argv and returns a
// plain struct - this keeps flag parsing testable without touching os.Args.
type cliArgs struct {
	configPath string

	scrapeEvents string
	scrapePosts  string
	postsLimit   int
	channels     string
	analyze      bool
	pair         string
	pairAll      bool
	dryRun       bool

	monitor       bool
	backfillStart string
	backfillEnd   string
}

func parseArgs(argv []string) (cliArgs, error) {
	fs := flag.NewFlagSet("sentimentpipe", flag.ContinueOnError)
	var a cliArgs

	fs.StringVar(&a.configPath, "config", "config.yaml", "path to YAML configuration")
	fs.StringVar(&a.scrapeEvents, "scrape-events", "", "harvest economic events: today|week|month")
	fs.StringVar(&a.scrapePosts, "scrape-posts", "", "harvest forum posts: hot|new|top")
	fs.IntVar(&a.postsLimit, "posts-limit", 25, "max posts per channel")
	fs.StringVar(&a.channels, "channels", "", "comma-separated forum channel override")
	fs.BoolVar(&a.analyze, "analyze", false, "analyze unscored events and posts")
	fs.StringVar(&a.pair, "pair", "", "compute pair sentiment for a single pair, e.g. EURUSD")
	fs.BoolVar(&a.pairAll, "pair-all", false, "compute pair sentiment for every supported pair")
	fs.BoolVar(&a.dryRun, "dry-run", false, "run every phase inside a rolled-back transaction")
	fs.BoolVar(&a.monitor, "monitor", false, "run the continuous monitor loop instead of a one-shot action")
	fs.StringVar(&a.backfillStart, "backfill-start", "", "RFC3339 date: run the backfill driver from this week")
	fs.StringVar(&a.backfillEnd, "backfill-end", "", "RFC3339 date: backfill driver's last week (default: now)")

	if err := fs.Parse(argv); err != nil {
		return cliArgs{}, err
	}
	return a, nil
}

func (a cliArgs) hasAction() bool {
	return a.scrapeEvents != "" || a.scrapePosts != "" || a.analyze ||
		a.pair != "" || a.pairAll || a.monitor || a.backfillStart != ""
}

func (a cliArgs) channelList() []string {
	if a.channels == "" {
		return nil
	}
	parts := strings.Split(a.channels, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func usage() {
	fmt.Fprintln(os.Stderr, `sentimentpipe - financial news/event sentiment ingestion pipeline

Usage:
  sentimentpipe [flags]

Flags:
  -scrape-events today|week|month   harvest economic calendar events
  -scrape-posts hot|new|top         harvest forum posts
  -posts-limit N                    max posts per channel (default 25)
  -channels a,b,c                   override default forum channels
  -analyze                          analyze unscored events/posts
  -pair EURUSD                      compute pair sentiment
  -pair-all                         compute sentiment for every supported pair
  -dry-run                          roll back all writes of the run on exit
  -monitor                          run the continuous monitor loop
  -backfill-start 2024-01-01T00:00:00Z   run the backfill driver
  -backfill-end   2024-06-01T00:00:00Z   backfill end (default: now)
  -config path.yaml                 configuration file (default config.yaml)

No action flag supplied: this message is printed and the process exits 0.`)
}

func must(ctx context.Context, err error) {
	if err != nil {
		logger.ErrorWithErr(ctx, "fatal error", err)
		log.Fatal(err)
	}
}

func main() {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		// flag already printed its own message to stderr.
		os.Exit(2)
	}

	if !args.hasAction() {
		usage()
		os.Exit(0)
	}

	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	ctx, mainSpan := logger.StartSpan(ctx, "sentimentpipe-run")
	defer mainSpan.End()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := logger.Shutdown(shutdownCtx); err != nil {
			log.Printf("error shutting down tracer: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info(ctx, "shutdown signal received - cancelling in-flight work")
		cancel()
	}()

	cfg, err := loadConfig(ctx, args.configPath)
	must(ctx, err)

	sys, err := buildSystem(ctx, cfg)
	must(ctx, err)
	defer sys.Close()

	if err := run(ctx, sys, args); err != nil {
		logger.ErrorWithErr(ctx, "run failed", err)
		os.Exit(1)
	}
}

// run dispatches to the monitor loop, the backfill driver, or a one-shot
// pipeline run (optionally followed by pair aggregation), per args.
func run(ctx context.Context, sys *system, args cliArgs) error {
	switch {
	case args.monitor:
		return sys.monitor.Run(ctx)

	case args.backfillStart != "":
		start, err := time.Parse(time.RFC3339, args.backfillStart)
		if err != nil {
			return fmt.Errorf("parse backfill-start: %w", err)
		}
		end := time.Now().UTC()
		if args.backfillEnd != "" {
			end, err = time.Parse(time.RFC3339, args.backfillEnd)
			if err != nil {
				return fmt.Errorf("parse backfill-end: %w", err)
			}
		}
		result, err := sys.backfill.Run(ctx, start, end)
		if err != nil {
			return err
		}
		logger.Info(ctx, "backfill complete",
			"weeks_completed", result.WeeksCompleted, "weeks_failed", result.WeeksFailed)
		return nil

	default:
		return runOneShot(ctx, sys, args)
	}
}

func runOneShot(ctx context.Context, sys *system, args cliArgs) error {
	action := pipeline.Action{
		ScrapeEvents: pipeline.ScrapeEventsMode(args.scrapeEvents),
		ScrapePosts:  pipeline.ScrapePostsMode(args.scrapePosts),
		Analyze:      args.analyze,
		DryRun:       args.dryRun,
		PostChannels: args.channelList(),
		PostLimit:    args.postsLimit,
	}

	if action.ScrapeEvents != "" || action.ScrapePosts != "" || action.Analyze {
		result, err := sys.orchestrator.Run(ctx, action)
		if err != nil {
			return fmt.Errorf("pipeline run: %w", err)
		}
		logger.Info(ctx, "pipeline run complete",
			"events_harvested", result.EventsHarvested, "events_stored", result.EventsStored,
			"posts_harvested", result.PostsHarvested, "posts_stored", result.PostsStored,
			"analyzed", result.Analyzed, "warnings", len(result.Warnings))
		for _, w := range result.Warnings {
			logger.Warn(ctx, "pipeline warning", "detail", w)
		}
	}

	if args.pairAll {
		return printPairAll(ctx, sys.aggregator)
	}
	if args.pair != "" {
		return printPair(ctx, sys.aggregator, args.pair)
	}
	return nil
}

func printPair(ctx context.Context, agg *aggregator.Aggregator, pair string) error {
	r, err := agg.Compute(ctx, pair, 0)
	if err != nil {
		return fmt.Errorf("compute pair sentiment: %w", err)
	}
	printPairResult(r)
	return nil
}

func printPairAll(ctx context.Context, agg *aggregator.Aggregator) error {
	results, err := agg.ComputeAll(ctx, 0)
	for _, r := range results {
		printPairResult(r)
	}
	if err != nil {
		return fmt.Errorf("compute pair sentiment: %w", err)
	}
	return nil
}

func printPairResult(r aggregator.Result) {
	fmt.Printf("%s sentiment=%.3f (%s) base=%s:%.3f(n=%d) quote=%s:%.3f(n=%d) lookback=%s\n",
		r.Pair, r.PairSentiment, r.SignalTag,
		r.BaseCurrency, r.BaseAvg, r.BaseCount,
		r.QuoteCurrency, r.QuoteAvg, r.QuoteCount,
		r.Lookback)
}
