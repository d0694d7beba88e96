package analyzer

import (
	"fmt"
	"strings"

	"sentimentpipe/internal/types"
)

const systemPrompt = `You are a financial sentiment analyst. Respond with a single JSON object and nothing else.`

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// buildEventPrompt enumerates an event's fields and the scoring rubric.
func buildEventPrompt(event types.EconomicEvent) string {
	var sb strings.Builder
	sb.WriteString("Score the market sentiment implied by this economic event.\n\n")
	fmt.Fprintf(&sb, "event_name: %s\n", event.EventName)
	fmt.Fprintf(&sb, "currency: %s\n", event.Currency)
	fmt.Fprintf(&sb, "impact: %s\n", event.Impact)
	fmt.Fprintf(&sb, "actual: %s\n", orNA(event.Actual))
	fmt.Fprintf(&sb, "forecast: %s\n", orNA(event.Forecast))
	fmt.Fprintf(&sb, "previous: %s\n", orNA(event.Previous))
	sb.WriteString("\nWeigh the direction and magnitude of actual vs forecast, the stated impact level, ")
	sb.WriteString("and the indicator's general market significance.\n")
	sb.WriteString(`Respond with: {"score": <number in [-1,1]>, "reasoning": "<short string>"}`)
	return sb.String()
}

// buildPostPrompt includes title/body/url and asks for per-ticker symbol
// sentiments in addition to the overall score.
func buildPostPrompt(post types.ForumPost, imageUnavailable bool) string {
	var sb strings.Builder
	sb.WriteString("Score the market sentiment implied by this forum post and identify any stock/crypto tickers it discusses.\n\n")
	fmt.Fprintf(&sb, "title: %s\n", post.Title)
	if post.Body != nil && strings.TrimSpace(*post.Body) != "" {
		fmt.Fprintf(&sb, "body: %s\n", *post.Body)
	} else {
		sb.WriteString("body: N/A\n")
	}
	if post.URL != nil && *post.URL != "" {
		fmt.Fprintf(&sb, "url: %s\n", *post.URL)
		if imageUnavailable {
			sb.WriteString("note: the URL points to an image that could not be downloaded. ")
			sb.WriteString("Reason from the title and surrounding context only; do not assume the image content.\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(`Respond with: {"score": <number in [-1,1]>, "reasoning": "<short string>", ` +
		`"symbols": ["TICKER", ...], "symbol_sentiments": {"TICKER": <number in [-1,1]>}}`)
	return sb.String()
}
