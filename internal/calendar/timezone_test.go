package calendar

import "testing"

func TestEasternToUTCStandardTime(t *testing.T) {
	// Jan 15 2024 08:30 EST (UTC-5) -> 13:30 UTC
	got := EasternToUTC(2024, 1, 15, 8, 30)
	if got.Hour() != 13 || got.Minute() != 30 {
		t.Fatalf("expected 13:30 UTC, got %v", got)
	}
}

func TestEasternToUTCDaylightTime(t *testing.T) {
	// Jun 3 2024 08:30 EDT (UTC-4) -> 12:30 UTC
	got := EasternToUTC(2024, 6, 3, 8, 30)
	if got.Hour() != 12 || got.Minute() != 30 {
		t.Fatalf("expected 12:30 UTC, got %v", got)
	}
}

func TestEasternToUTCFallBackAmbiguousResolvesToFirstOccurrence(t *testing.T) {
	// Nov 3 2024 01:30 is the repeated hour (clocks fall back at 2am EDT).
	// The first occurrence is still EDT (UTC-4) -> 05:30 UTC.
	got := EasternToUTC(2024, 11, 3, 1, 30)
	if got.Hour() != 5 || got.Minute() != 30 {
		t.Fatalf("expected first-occurrence 05:30 UTC, got %v", got)
	}
}
