package main

import "testing"

func TestParseArgsNoFlagsHasNoAction(t *testing.T) {
	a, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if a.hasAction() {
		t.Fatalf("expected no action with zero flags")
	}
}

func TestParseArgsScrapeEventsIsAnAction(t *testing.T) {
	a, err := parseArgs([]string{"-scrape-events", "today"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if !a.hasAction() {
		t.Fatalf("expected -scrape-events to count as an action")
	}
	if a.scrapeEvents != "today" {
		t.Fatalf("expected scrapeEvents=today, got %q", a.scrapeEvents)
	}
}

func TestParseArgsUnknownFlagIsAnError(t *testing.T) {
	if _, err := parseArgs([]string{"-not-a-real-flag"}); err == nil {
		t.Fatalf("expected an error for an unrecognized flag")
	}
}

func TestChannelListSplitsAndTrims(t *testing.T) {
	a := cliArgs{channels: " wallstreetbets, stocks ,,investing"}
	got := a.channelList()
	want := []string{"wallstreetbets", "stocks", "investing"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestChannelListEmptyReturnsNil(t *testing.T) {
	a := cliArgs{}
	if got := a.channelList(); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestHasActionRecognizesEachFlag(t *testing.T) {
	cases := []cliArgs{
		{scrapePosts: "hot"},
		{analyze: true},
		{pair: "EURUSD"},
		{pairAll: true},
		{monitor: true},
		{backfillStart: "2024-01-01T00:00:00Z"},
	}
	for _, c := range cases {
		if !c.hasAction() {
			t.Fatalf("expected %+v to report an action", c)
		}
	}
}
