// Package analyzerobs wraps an analyzer.Provider with structured logging
// and timing, in the style of the trading bot's LLM observability wrapper.
package analyzerobs

import (
	"context"
	"time"

	"sentimentpipe/internal/analyzer"
	"sentimentpipe/internal/logger"
)

// ObservableProvider wraps an analyzer.Provider, logging each completion
// call's duration and outcome without altering its behavior.
type ObservableProvider struct {
	inner analyzer.Provider
}

// Wrap returns an analyzer.Provider that logs around inner's calls.
func Wrap(inner analyzer.Provider) *ObservableProvider {
	return &ObservableProvider{inner: inner}
}

func (p *ObservableProvider) Name() string { return p.inner.Name() }

func (p *ObservableProvider) Complete(ctx context.Context, req analyzer.CompletionRequest) (string, error) {
	timer := logger.StartOperation(ctx, "llm_completion",
		"provider", p.inner.Name(), "has_image", req.ImageURL != "")

	start := time.Now()
	raw, err := p.inner.Complete(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "llm completion failed", err,
			"provider", p.inner.Name(), "elapsed_ms", elapsed.Milliseconds())
		timer.EndWithError(err)
		return "", err
	}

	logger.DebugSkip(ctx, 1, "llm completion succeeded",
		"provider", p.inner.Name(), "elapsed_ms", elapsed.Milliseconds(), "response_len", len(raw))
	timer.End()
	return raw, nil
}
