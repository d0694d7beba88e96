package analyzer

import (
	"encoding/json"
	"strings"

	"sentimentpipe/internal/types"
)

// bullishWords and bearishWords ground the keyword-heuristic fallback used
// when the model's response cannot be parsed as JSON.
var (
	bullishWords = []string{
		"bull", "bullish", "surge", "rally", "beat", "beats", "growth", "upbeat",
		"outperform", "recover", "rebound", "strong", "strength", "gain", "gains",
		"upgrade", "buy", "breakout", "optimis",
	}
	bearishWords = []string{
		"bear", "bearish", "slump", "plunge", "miss", "misses", "recession", "downbeat",
		"underperform", "decline", "weak", "weakness", "loss", "losses",
		"downgrade", "sell", "crash", "pessimis", "layoff", "lawsuit",
	}
)

type parsedResponse struct {
	Score            float64            `json:"score"`
	Reasoning        string             `json:"reasoning"`
	Symbols          []string           `json:"symbols"`
	SymbolSentiments map[string]float64 `json:"symbol_sentiments"`
}

// parseResponse implements the two-tier contract: strip code fences and
// locate the outermost JSON object; if that parses, use it directly;
// otherwise fall back to keyword heuristics over the raw text.
func parseResponse(raw string) types.AnalysisResult {
	cleaned := extractJSONObject(stripCodeFence(raw))
	if cleaned != "" {
		var pr parsedResponse
		if err := json.Unmarshal([]byte(cleaned), &pr); err == nil {
			return types.AnalysisResult{
				SentimentScore:   types.ClampScore(pr.Score),
				Reasoning:        pr.Reasoning,
				Symbols:          dedupeSymbols(pr.Symbols),
				SymbolSentiments: reconcileSentiments(pr.Symbols, pr.SymbolSentiments),
			}
		}
	}

	score, label := keywordHeuristic(raw)
	return types.AnalysisResult{
		SentimentScore: score,
		Reasoning:      raw,
		Metadata:       types.AnalysisMetadata{UsedFallbackParse: true, FailureReason: "json_parse_failed:" + label},
	}
}

// stripCodeFence removes a surrounding ```json ... ``` or ``` ... ``` fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "json") {
		s = strings.TrimSpace(s[4:])
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject locates the outermost {...} span, tolerating leading or
// trailing prose around the JSON payload.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return s[start : end+1]
}

func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// reconcileSentiments keeps only symbol_sentiments entries whose key also
// appears in the deduplicated symbols list.
func reconcileSentiments(symbols []string, sentiments map[string]float64) map[string]float64 {
	if len(sentiments) == 0 {
		return nil
	}
	allowed := dedupeSymbols(symbols)
	allowedSet := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = true
	}

	out := make(map[string]float64, len(sentiments))
	for ticker, score := range sentiments {
		upper := strings.ToUpper(strings.TrimSpace(ticker))
		if !allowedSet[upper] {
			continue
		}
		out[upper] = types.ClampScore(score)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// keywordHeuristic scans for bullish/bearish cues and maps to +-0.3 / 0.
func keywordHeuristic(text string) (float64, string) {
	lower := strings.ToLower(text)
	bull := countAny(lower, bullishWords)
	bear := countAny(lower, bearishWords)

	switch {
	case bull > bear:
		return 0.3, "bullish"
	case bear > bull:
		return -0.3, "bearish"
	default:
		return 0.0, "neutral"
	}
}

func countAny(text string, words []string) int {
	count := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			count++
		}
	}
	return count
}
