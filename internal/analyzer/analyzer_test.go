package analyzer

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"sentimentpipe/internal/types"
)

type fakeProvider struct {
	calls     int32
	responses []fakeCall
}

type fakeCall struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string { return "fake:test" }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	i := atomic.AddInt32(&f.calls, 1) - 1
	if int(i) >= len(f.responses) {
		return f.responses[len(f.responses)-1].text, f.responses[len(f.responses)-1].err
	}
	c := f.responses[i]
	return c.text, c.err
}

type rateLimitErr struct{}

func (rateLimitErr) Error() string { return "429 rate limit exceeded" }

func testAnalyzerConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	return cfg
}

func TestAnalyzeEventSucceedsOnFirstTry(t *testing.T) {
	fp := &fakeProvider{responses: []fakeCall{{text: `{"score": 0.5, "reasoning": "ok"}`}}}
	a := New(fp, testAnalyzerConfig())

	result := a.AnalyzeEvent(context.Background(), types.EconomicEvent{EventName: "CPI", Currency: "USD"})
	if result.SentimentScore != 0.5 {
		t.Fatalf("expected score 0.5, got %v", result.SentimentScore)
	}
	if result.Metadata.RetryCount != 0 {
		t.Fatalf("expected no retries, got %d", result.Metadata.RetryCount)
	}
}

func TestAnalyzeEventRetriesOnRateLimit(t *testing.T) {
	fp := &fakeProvider{responses: []fakeCall{
		{err: rateLimitErr{}},
		{err: rateLimitErr{}},
		{text: `{"score": 0.2, "reasoning": "recovered"}`},
	}}
	a := New(fp, testAnalyzerConfig())

	result := a.AnalyzeEvent(context.Background(), types.EconomicEvent{EventName: "NFP"})
	if result.SentimentScore != 0.2 {
		t.Fatalf("expected eventual success score 0.2, got %v", result.SentimentScore)
	}
	if result.Metadata.RetryCount != 2 {
		t.Fatalf("expected 2 retries, got %d", result.Metadata.RetryCount)
	}
}

func TestAnalyzeEventNeverReturnsErrorOnPermanentFailure(t *testing.T) {
	fp := &fakeProvider{responses: []fakeCall{{err: fmt.Errorf("invalid api key")}}}
	a := New(fp, testAnalyzerConfig())

	result := a.AnalyzeEvent(context.Background(), types.EconomicEvent{EventName: "GDP"})
	if result.SentimentScore != 0.0 {
		t.Fatalf("expected zero score on permanent failure, got %v", result.SentimentScore)
	}
	if result.Metadata.FailureReason == "" {
		t.Fatalf("expected failure reason to be set")
	}
	if result.Metadata.RetryCount != 0 {
		t.Fatalf("expected no retries for non-rate-limit error, got %d", result.Metadata.RetryCount)
	}
}

func TestAnalyzePostWithUnfetchableImageUsesFallbackPrompt(t *testing.T) {
	fp := &fakeProvider{responses: []fakeCall{{text: `{"score": 0.1, "reasoning": "context only"}`}}}
	a := New(fp, testAnalyzerConfig())

	url := "https://media.example.test/missing.jpg"
	post := types.ForumPost{Title: "Chart attached", URL: &url}

	result := a.AnalyzePost(context.Background(), post)
	if !result.Metadata.ImageDownloadFailed {
		t.Fatalf("expected ImageDownloadFailed=true for an unreachable image host")
	}
	if result.Metadata.FailureReason == "" {
		t.Fatalf("expected a failure reason recorded")
	}
}

func TestBatchPreservesOrderAndIsolatesFailures(t *testing.T) {
	fp := &fakeProvider{responses: []fakeCall{
		{text: `{"score": 0.1, "reasoning": "a"}`},
		{err: fmt.Errorf("boom")},
		{text: `{"score": 0.9, "reasoning": "c"}`},
	}}
	a := New(fp, testAnalyzerConfig())

	items := []AnalyzeItem{
		{Event: &types.EconomicEvent{EventName: "A"}},
		{Event: &types.EconomicEvent{EventName: "B"}},
		{Event: &types.EconomicEvent{EventName: "C"}},
	}
	a.cfg.BatchWorkers = 1 // force deterministic ordering of fake call sequence

	results := a.Batch(context.Background(), items)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].SentimentScore != 0.1 || results[2].SentimentScore != 0.9 {
		t.Fatalf("unexpected batch scores: %+v", results)
	}
	if results[1].Metadata.FailureReason == "" {
		t.Fatalf("expected failure recorded on item B, not aborting the batch")
	}
}
