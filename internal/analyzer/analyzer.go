// Package analyzer implements the Sentiment Analyzer (C3): converting a
// single event or post into an Analysis Result via an LLM, with a
// keyword-heuristic fallback when the model's response can't be parsed.
package analyzer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"sentimentpipe/internal/logger"
	"sentimentpipe/internal/types"
)

// Config tunes retry and image-handling behavior.
type Config struct {
	MaxRetries   int
	BaseDelay    time.Duration
	ImageTimeout time.Duration
	MaxTokens    int
	Temperature  float64
	BatchWorkers int
}

// DefaultConfig returns spec-aligned defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    time.Second,
		ImageTimeout: 10 * time.Second,
		MaxTokens:    400,
		Temperature:  0.2,
		BatchWorkers: 4,
	}
}

// Analyzer converts events and posts into Analysis Results. It never
// returns an error from analyze_*; construction is the only place a
// fatal configuration error (missing API key) can surface.
type Analyzer struct {
	provider Provider
	cfg      Config
	images   *imageFetcher
}

// New builds an Analyzer around provider.
func New(provider Provider, cfg Config) *Analyzer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}
	return &Analyzer{
		provider: provider,
		cfg:      cfg,
		images:   newImageFetcher(cfg.ImageTimeout),
	}
}

// AnalyzeEvent scores a single economic event.
func (a *Analyzer) AnalyzeEvent(ctx context.Context, event types.EconomicEvent) types.AnalysisResult {
	req := CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildEventPrompt(event),
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
	}
	return a.complete(ctx, req)
}

// AnalyzePost scores a single forum post, attempting to attach its image
// (if any) and falling back to a context-only prompt when the image can't
// be fetched.
func (a *Analyzer) AnalyzePost(ctx context.Context, post types.ForumPost) types.AnalysisResult {
	imageUnavailable := false
	failureReason := ""
	imageURL := ""

	if post.URL != nil && looksLikeImage(*post.URL) {
		if _, err := a.images.fetch(ctx, *post.URL); err != nil {
			imageUnavailable = true
			failureReason = err.Error()
			logger.Warn(ctx, "post image download failed, falling back to text-only prompt",
				"url", *post.URL, "error", err)
		} else {
			imageURL = *post.URL
		}
	}

	req := CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPostPrompt(post, imageUnavailable),
		ImageURL:     imageURL,
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
	}

	result := a.complete(ctx, req)
	result.Metadata.ImageDownloadFailed = imageUnavailable
	if failureReason != "" {
		result.Metadata.FailureReason = failureReason
	}
	return result
}

// Batch runs AnalyzeEvent or AnalyzePost (via analyzeOne) across items with
// a bounded worker pool, preserving input order. Individual failures never
// abort the batch — they surface only as a zero-score result with metadata.
func (a *Analyzer) Batch(ctx context.Context, items []AnalyzeItem) []types.AnalysisResult {
	results := make([]types.AnalysisResult, len(items))
	jobs := make(chan int)

	workers := a.cfg.BatchWorkers
	if workers > len(items) {
		workers = len(items)
	}
	if workers <= 0 {
		return results
	}

	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				results[i] = a.analyzeOne(ctx, items[i])
			}
			done <- struct{}{}
		}()
	}

	go func() {
		for i := range items {
			jobs <- i
		}
		close(jobs)
	}()

	for w := 0; w < workers; w++ {
		<-done
	}
	return results
}

// AnalyzeItem is a tagged union for Batch: exactly one of Event or Post
// should be set.
type AnalyzeItem struct {
	Event *types.EconomicEvent
	Post  *types.ForumPost
}

func (a *Analyzer) analyzeOne(ctx context.Context, item AnalyzeItem) types.AnalysisResult {
	switch {
	case item.Event != nil:
		return a.AnalyzeEvent(ctx, *item.Event)
	case item.Post != nil:
		return a.AnalyzePost(ctx, *item.Post)
	default:
		return types.AnalysisResult{Metadata: types.AnalysisMetadata{FailureReason: "empty analyze item"}}
	}
}

// complete runs the LLM call with the retry policy: rate-limit/resource
// exhausted errors retry up to MaxRetries with base_delay*2^attempt;
// any other API error is not retried and yields a zero-score result.
func (a *Analyzer) complete(ctx context.Context, req CompletionRequest) types.AnalysisResult {
	var lastErr error
	retryCount := 0

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		raw, err := a.provider.Complete(ctx, req)
		if err == nil {
			result := parseResponse(raw)
			result.Metadata.Model = a.provider.Name()
			result.Metadata.RetryCount = retryCount
			result.RawResponse = []byte(raw)
			return result
		}

		lastErr = err
		if !isRetriableProviderError(err) || attempt == a.cfg.MaxRetries {
			break
		}

		retryCount++
		delay := a.cfg.BaseDelay * time.Duration(1<<uint(attempt))
		logger.Warn(ctx, "retrying analyzer completion after rate-limit/exhaustion error",
			"attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = a.cfg.MaxRetries + 1
		case <-time.After(delay):
		}
	}

	errBody, _ := json.Marshal(map[string]string{"error": lastErr.Error()})
	return types.AnalysisResult{
		SentimentScore: 0.0,
		Reasoning:      "analysis failed: " + lastErr.Error(),
		RawResponse:    errBody,
		Metadata: types.AnalysisMetadata{
			Model:         a.provider.Name(),
			RetryCount:    retryCount,
			FailureReason: lastErr.Error(),
		},
	}
}

// isRetriableProviderError reports whether err looks like a rate-limit or
// resource-exhausted response worth retrying.
func isRetriableProviderError(err error) bool {
	if sc, ok := err.(interface{ StatusCode() int }); ok {
		code := sc.StatusCode()
		return code == 429
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "overloaded")
}
