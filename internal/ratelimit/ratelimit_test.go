package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := New(2, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if !l.tryAcquire() {
		t.Fatalf("expected first token to be available")
	}
	if !l.tryAcquire() {
		t.Fatalf("expected second token to be available")
	}
	if l.tryAcquire() {
		t.Fatalf("expected bucket to be empty after burst")
	}
	if err := l.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to block past ctx deadline with an empty bucket and a 1h refill")
	}
}

func TestMultiLimiterIsolatesSourcesByKey(t *testing.T) {
	m := NewMulti()
	m.Add("wallstreetbets", 1, time.Hour)
	m.Add("stocks", 1, time.Hour)

	ctx := context.Background()
	if err := m.Wait(ctx, "wallstreetbets"); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if err := m.Wait(ctx, "stocks"); err != nil {
		t.Fatalf("expected stocks' own bucket to be unaffected by wallstreetbets' consumption: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if err := m.Wait(shortCtx, "wallstreetbets"); err == nil {
		t.Fatalf("expected wallstreetbets' bucket to be exhausted")
	}
}

func TestMultiLimiterWaitOnUnknownSourceIsANoop(t *testing.T) {
	m := NewMulti()
	if err := m.Wait(context.Background(), "never-registered"); err != nil {
		t.Fatalf("expected a no-op for an unregistered source, got %v", err)
	}
}

func TestMultiLimiterHasReflectsRegistration(t *testing.T) {
	m := NewMulti()
	if m.Has("stocks") {
		t.Fatalf("expected Has to report false before registration")
	}
	m.Add("stocks", 5, time.Minute)
	if !m.Has("stocks") {
		t.Fatalf("expected Has to report true after registration")
	}
}
