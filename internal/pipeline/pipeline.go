// Package pipeline implements the Pipeline Orchestrator (C5): sequencing
// harvest, store, and analyze phases over a selected period according to
// an action-flag contract.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"sentimentpipe/internal/analyzer"
	"sentimentpipe/internal/calendar"
	"sentimentpipe/internal/forum"
	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/store"
	"sentimentpipe/internal/types"
)

// ScrapeEventsMode selects the event-harvest period.
type ScrapeEventsMode string

const (
	ScrapeEventsNone  ScrapeEventsMode = "none"
	ScrapeEventsToday ScrapeEventsMode = "today"
	ScrapeEventsWeek  ScrapeEventsMode = "week"
	ScrapeEventsMonth ScrapeEventsMode = "month"
)

// ScrapePostsMode selects the forum listing sort.
type ScrapePostsMode string

const (
	ScrapePostsNone ScrapePostsMode = "none"
	ScrapePostsHot  ScrapePostsMode = "hot"
	ScrapePostsNew  ScrapePostsMode = "new"
	ScrapePostsTop  ScrapePostsMode = "top"
)

// Action is the orchestrator's full input contract for one run.
type Action struct {
	ScrapeEvents ScrapeEventsMode
	ScrapePosts  ScrapePostsMode
	Analyze      bool
	DryRun       bool
	PostChannels []string
	PostLimit    int
	// EventCurrencies, when non-empty, scopes both the harvested events
	// (dropped before storage if their Currency isn't in this set) and the
	// analyze phase's unscored-events snapshot to these currencies. The
	// Monitor Loop sets this to the configured pair's legs so a tick never
	// touches data outside its pair; one-shot CLI runs leave it empty to
	// cover everything.
	EventCurrencies []string
}

// Result summarizes what a run actually did. Warnings records recoverable
// per-phase failures that did not fail the run.
type Result struct {
	EventsHarvested int
	EventsStored    int
	PostsHarvested  int
	PostsStored     int
	Analyzed        int
	Warnings        []string
}

// Orchestrator wires the components C5 sequences.
type Orchestrator struct {
	scraper  *calendar.Scraper
	forum    *forum.Client
	analyzer *analyzer.Analyzer
	store    *store.Store
}

// New builds an Orchestrator. Any of scraper/forumClient/an may be nil if
// the corresponding phases will never be requested.
func New(scraper *calendar.Scraper, forumClient *forum.Client, an *analyzer.Analyzer, st *store.Store) *Orchestrator {
	return &Orchestrator{scraper: scraper, forum: forumClient, analyzer: an, store: st}
}

// Run executes the phases named by action, in spec order: scrape events ->
// store events -> scrape posts -> store posts -> analyze unscored. Each
// phase is independently skippable. In dry-run mode the whole run shares a
// single transaction that is rolled back on completion; otherwise each
// phase commits independently.
func (o *Orchestrator) Run(ctx context.Context, action Action) (Result, error) {
	st := o.store
	if action.DryRun {
		dryStore, err := o.store.BeginDryRun(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("begin dry run: %w", err)
		}
		defer func() {
			if err := dryStore.Rollback(ctx); err != nil {
				logger.Warn(ctx, "dry-run rollback failed", "error", err)
			}
		}()
		st = dryStore
	}

	var result Result

	if action.ScrapeEvents != ScrapeEventsNone && action.ScrapeEvents != "" {
		events, err := o.harvestEvents(ctx, action.ScrapeEvents)
		if err != nil {
			if isFatalPhaseError(err) {
				return result, fmt.Errorf("harvest events: %w", err)
			}
			logger.Warn(ctx, "harvest events failed, continuing to remaining phases", "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("harvest events: %v", err))
		} else {
			events = filterEventsByCurrency(events, action.EventCurrencies)
			result.EventsHarvested = len(events)

			stored, err := st.UpsertEvents(ctx, events)
			if err != nil {
				return result, fmt.Errorf("store events: %w", err)
			}
			result.EventsStored = stored
		}
	}

	if action.ScrapePosts != ScrapePostsNone && action.ScrapePosts != "" {
		posts, err := o.harvestPosts(ctx, action.ScrapePosts, action.PostChannels, action.PostLimit)
		if err != nil {
			if isFatalPhaseError(err) {
				return result, fmt.Errorf("harvest posts: %w", err)
			}
			logger.Warn(ctx, "harvest posts failed, continuing to remaining phases", "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("harvest posts: %v", err))
		} else {
			result.PostsHarvested = len(posts)

			stored, err := st.UpsertPosts(ctx, posts)
			if err != nil {
				return result, fmt.Errorf("store posts: %w", err)
			}
			result.PostsStored = stored
		}
	}

	if action.Analyze {
		n, warnings, err := o.analyzeUnscored(ctx, st, action.EventCurrencies, action.PostChannels)
		if err != nil {
			return result, fmt.Errorf("analyze unscored: %w", err)
		}
		result.Analyzed = n
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result, nil
}

// isFatalPhaseError reports whether err should abort the whole run rather
// than being logged as a warning with the phase skipped. Per the error
// taxonomy, only Config errors and exhausted-retry Rate-limit errors are
// fatal to a run; transient/permanent network failures and cancellation
// are fatal only for that phase's data, not the run as a whole. Errors
// with no taxonomy Kind (e.g. a Store/database failure) are treated as
// fatal conservatively, since nothing else in the pipeline classifies them.
func isFatalPhaseError(err error) bool {
	kind, ok := types.KindOf(err)
	if !ok {
		return true
	}
	return kind == types.KindConfig || kind == types.KindRateLimit
}

// filterEventsByCurrency returns events whose Currency is in currencies. An
// empty currencies leaves events untouched.
func filterEventsByCurrency(events []types.EconomicEvent, currencies []string) []types.EconomicEvent {
	if len(currencies) == 0 {
		return events
	}
	want := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		want[c] = true
	}
	out := events[:0:0]
	for _, e := range events {
		if want[e.Currency] {
			out = append(out, e)
		}
	}
	return out
}

// filterPostsByChannel returns posts whose Channel is in channels. An empty
// channels leaves posts untouched.
func filterPostsByChannel(posts []types.ForumPost, channels []string) []types.ForumPost {
	if len(channels) == 0 {
		return posts
	}
	want := make(map[string]bool, len(channels))
	for _, c := range channels {
		want[c] = true
	}
	out := posts[:0:0]
	for _, p := range posts {
		if want[p.Channel] {
			out = append(out, p)
		}
	}
	return out
}

func (o *Orchestrator) harvestEvents(ctx context.Context, mode ScrapeEventsMode) ([]types.EconomicEvent, error) {
	if o.scraper == nil {
		return nil, types.NewError(types.KindConfig, "pipeline.harvestEvents",
			fmt.Errorf("scrape-events requested but no calendar scraper configured"))
	}
	now := time.Now().UTC()

	switch mode {
	case ScrapeEventsToday:
		return o.scraper.ScrapeDay(ctx, now)
	case ScrapeEventsWeek:
		return o.scraper.ScrapeWeek(ctx, now)
	case ScrapeEventsMonth:
		return o.scrapeMonth(ctx, now)
	default:
		return nil, types.NewError(types.KindConfig, "pipeline.harvestEvents",
			fmt.Errorf("unknown scrape-events mode %q", mode))
	}
}

// scrapeMonth walks every ISO week overlapping now's calendar month.
func (o *Orchestrator) scrapeMonth(ctx context.Context, now time.Time) ([]types.EconomicEvent, error) {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastOfMonth := firstOfMonth.AddDate(0, 1, -1)

	var all []types.EconomicEvent
	for anchor := calendar.WeekAnchor(firstOfMonth); !anchor.After(lastOfMonth); anchor = anchor.AddDate(0, 0, 7) {
		week, err := o.scraper.ScrapeWeek(ctx, anchor)
		if err != nil {
			return all, err
		}
		all = append(all, week...)
	}
	return all, nil
}

func (o *Orchestrator) harvestPosts(ctx context.Context, mode ScrapePostsMode, channels []string, limit int) ([]types.ForumPost, error) {
	if o.forum == nil {
		return nil, types.NewError(types.KindConfig, "pipeline.harvestPosts",
			fmt.Errorf("scrape-posts requested but no forum client configured"))
	}

	switch mode {
	case ScrapePostsHot:
		return o.forum.FetchHot(ctx, channels, limit)
	case ScrapePostsNew:
		return o.forum.FetchNew(ctx, channels, limit)
	case ScrapePostsTop:
		return o.forum.FetchTop(ctx, channels, forum.TimeDay, limit)
	default:
		return nil, types.NewError(types.KindConfig, "pipeline.harvestPosts",
			fmt.Errorf("unknown scrape-posts mode %q", mode))
	}
}

// analyzeUnscored reads a snapshot of unscored events and posts, analyzes
// them via a bounded worker pool, and writes each score back in its own
// per-row transaction so a failure partway through never loses earlier
// progress. Individual analyze/update failures are recorded as warnings,
// never fatal.
func (o *Orchestrator) analyzeUnscored(ctx context.Context, st *store.Store, eventCurrencies, postChannels []string) (int, []string, error) {
	if o.analyzer == nil {
		return 0, nil, fmt.Errorf("analyze requested but no analyzer configured")
	}

	const batchLimit = 100
	events, err := st.UnscoredEvents(ctx, batchLimit)
	if err != nil {
		return 0, nil, fmt.Errorf("list unscored events: %w", err)
	}
	events = filterEventsByCurrency(events, eventCurrencies)

	posts, err := st.UnscoredPosts(ctx, batchLimit)
	if err != nil {
		return 0, nil, fmt.Errorf("list unscored posts: %w", err)
	}
	posts = filterPostsByChannel(posts, postChannels)

	items := make([]analyzer.AnalyzeItem, 0, len(events)+len(posts))
	for i := range events {
		items = append(items, analyzer.AnalyzeItem{Event: &events[i]})
	}
	for i := range posts {
		items = append(items, analyzer.AnalyzeItem{Post: &posts[i]})
	}
	if len(items) == 0 {
		return 0, nil, nil
	}

	results := o.analyzer.Batch(ctx, items)

	var warnings []string
	analyzed := 0
	for i, item := range items {
		res := results[i]
		var updateErr error
		switch {
		case item.Event != nil:
			updateErr = st.UpdateEventScore(ctx, item.Event.ID, res.SentimentScore, res.RawResponse)
		case item.Post != nil:
			updateErr = st.UpdatePostScore(ctx, item.Post.ID, res.SentimentScore, res.Symbols, res.SymbolSentiments, res.RawResponse)
		}
		if updateErr != nil {
			warnings = append(warnings, fmt.Sprintf("update score failed: %v", updateErr))
			logger.Warn(ctx, "failed to persist analysis result", "error", updateErr)
			continue
		}
		analyzed++
		if res.Metadata.FailureReason != "" {
			warnings = append(warnings, fmt.Sprintf("analysis degraded: %s", res.Metadata.FailureReason))
		}
	}

	return analyzed, warnings, nil
}
