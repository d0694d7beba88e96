package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"

	"sentimentpipe/internal/aggregator"
	"sentimentpipe/internal/analyzer"
	"sentimentpipe/internal/analyzerobs"
	"sentimentpipe/internal/backfill"
	"sentimentpipe/internal/calendar"
	"sentimentpipe/internal/forum"
	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/monitor"
	"sentimentpipe/internal/pipeline"
	"sentimentpipe/internal/store"
	"sentimentpipe/internal/trace"

	"github.com/joho/godotenv"
)

// initializeSystem loads environment variables and brings up the logger and
// tracer, in that order, mirroring the bot's own bootstrap sequence.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration.
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// system bundles every component the CLI's subcommands dispatch into, built
// once from a loaded Config and a live Store.
type system struct {
	cfg          *store.Config
	st           *store.Store
	scraper      *calendar.Scraper
	forumClient  *forum.Client
	analyzer     *analyzer.Analyzer
	aggregator   *aggregator.Aggregator
	orchestrator *pipeline.Orchestrator
	backfill     *backfill.Driver
	monitor      *monitor.Monitor
}

// buildSystem wires every component from cfg, connecting to the database
// with the process-wide tracer. Callers must call st.Close() (via
// system.Close) when done.
func buildSystem(ctx context.Context, cfg *store.Config) (*system, error) {
	tracer := otel.Tracer("sentimentpipe")

	st, err := store.Connect(ctx, cfg.DB, tracer)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	scraper := calendar.New(nil, calendar.Config{
		BaseURL:           cfg.Calendar.BaseURL,
		MinDelay:          time.Duration(cfg.Calendar.MinDelaySeconds * float64(time.Second)),
		MaxJitter:         time.Duration(cfg.Calendar.MaxJitterSeconds * float64(time.Second)),
		MaxRetriesPerWeek: cfg.Calendar.MaxRetriesPerWeek,
		RequestTimeout:    15 * time.Second,
	})

	forumClient := forum.New(forum.Config{
		BaseURL:        "https://forum.example.test",
		TokenURL:       "https://forum.example.test/api/v1/access_token",
		ClientID:       cfg.ForumClientID,
		ClientSecret:   cfg.ForumClientSecret,
		RequestsPerMin: cfg.Forum.RequestsPerMin,
		RequestTimeout: 15 * time.Second,
	})

	an, err := initializeAnalyzer(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	agg := aggregator.New(st)
	orch := pipeline.New(scraper, forumClient, an, st)

	bf := backfill.New(scraper, st, backfill.Config{
		CheckpointPath: cfg.Backfill.CheckpointPath,
		MaxAttempts:    cfg.Backfill.MaxAttempts,
	})

	mon := monitor.New(orch, agg, monitor.Config{
		Interval:           time.Duration(cfg.Monitor.IntervalSeconds) * time.Second,
		Pair:               cfg.Monitor.Pair,
		ChannelsByCurrency: cfg.Monitor.ChannelsByCurrency,
		FallbackChannels:   cfg.Forum.DefaultChannels,
		PostLimit:          25,
	}, os.Stdout)

	return &system{
		cfg:          cfg,
		st:           st,
		scraper:      scraper,
		forumClient:  forumClient,
		analyzer:     an,
		aggregator:   agg,
		orchestrator: orch,
		backfill:     bf,
		monitor:      mon,
	}, nil
}

// initializeAnalyzer builds the configured LLM provider, wrapped with
// observability. Returns a nil *analyzer.Analyzer (not an error) when no
// API key is configured, so harvest-only invocations still work; the
// orchestrator rejects analyze phases against a nil analyzer with a plain
// error instead of panicking on a nil provider.
func initializeAnalyzer(ctx context.Context, cfg *store.Config) (*analyzer.Analyzer, error) {
	if cfg.LLMAPIKey == "" {
		logger.Warn(ctx, "no LLM_API_KEY configured - analyze phases will fail if invoked")
		return nil, nil
	}

	analyzerCfg := analyzer.Config{
		MaxRetries:   cfg.LLM.MaxRetries,
		BaseDelay:    time.Duration(cfg.LLM.BaseDelayMS) * time.Millisecond,
		ImageTimeout: 10 * time.Second,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  float64(cfg.LLM.Temperature),
	}

	provider, err := analyzer.NewOpenAIProvider(cfg.LLMAPIKey, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}

	return analyzer.New(analyzerobs.Wrap(provider), analyzerCfg), nil
}

// Close releases the system's database connection.
func (s *system) Close() {
	if s.st != nil {
		s.st.Close()
	}
}
