package analyzer

import "testing"

func TestParseResponseStrictJSON(t *testing.T) {
	raw := `{"score": 0.6, "reasoning": "beats forecast", "symbols": ["AAPL", "aapl"], "symbol_sentiments": {"AAPL": 0.6, "TSLA": 0.2}}`
	result := parseResponse(raw)

	if result.SentimentScore != 0.6 {
		t.Fatalf("expected score 0.6, got %v", result.SentimentScore)
	}
	if len(result.Symbols) != 1 || result.Symbols[0] != "AAPL" {
		t.Fatalf("expected deduped [AAPL], got %v", result.Symbols)
	}
	if len(result.SymbolSentiments) != 1 || result.SymbolSentiments["AAPL"] != 0.6 {
		t.Fatalf("expected TSLA dropped (not in symbols), got %v", result.SymbolSentiments)
	}
}

func TestParseResponseStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"score\": -0.4, \"reasoning\": \"miss\"}\n```"
	result := parseResponse(raw)
	if result.SentimentScore != -0.4 {
		t.Fatalf("expected score -0.4, got %v", result.SentimentScore)
	}
	if result.Metadata.UsedFallbackParse {
		t.Fatalf("expected strict parse, not fallback")
	}
}

func TestParseResponseClampsOutOfRangeScore(t *testing.T) {
	result := parseResponse(`{"score": 5.0, "reasoning": "way over"}`)
	if result.SentimentScore != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", result.SentimentScore)
	}
}

func TestParseResponseFallsBackToKeywordHeuristicOnBadJSON(t *testing.T) {
	result := parseResponse("Markets rallied on strong earnings, a clear bullish breakout.")
	if result.SentimentScore != 0.3 {
		t.Fatalf("expected bullish fallback score 0.3, got %v", result.SentimentScore)
	}
	if !result.Metadata.UsedFallbackParse {
		t.Fatalf("expected UsedFallbackParse=true")
	}
}

func TestParseResponseFallbackBearish(t *testing.T) {
	result := parseResponse("Shares crashed amid a lawsuit and downgrade, a bearish signal.")
	if result.SentimentScore != -0.3 {
		t.Fatalf("expected bearish fallback score -0.3, got %v", result.SentimentScore)
	}
}

func TestParseResponseFallbackNeutralWhenNoCues(t *testing.T) {
	result := parseResponse("The committee will meet next Tuesday to discuss the agenda.")
	if result.SentimentScore != 0.0 {
		t.Fatalf("expected neutral fallback score 0.0, got %v", result.SentimentScore)
	}
}

func TestExtractJSONObjectWithSurroundingProse(t *testing.T) {
	got := extractJSONObject(`Sure, here you go: {"score": 0.1} -- hope that helps!`)
	if got != `{"score": 0.1}` {
		t.Fatalf("unexpected extraction: %q", got)
	}
}
