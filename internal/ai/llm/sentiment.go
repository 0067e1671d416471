package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const sentimentSystemPrompt = `You are a crypto market sentiment analyst. Respond with strict JSON only, no prose, no markdown fences. Schema: {"action": "buy"|"sell"|"hold"|"avoid", "confidence": 0-100, "warnings": ["..."]}.`

// Advisory is the parsed sentiment verdict. It never blocks a trade on its
// own; shouldAvoid is the only field the engine acts on, shouldBoost is
// logged but does not alter sizing.
type Advisory struct {
	Sentiment   string  `json:"sentiment"` // bullish, bearish, neutral
	NewsScore   float64 `json:"news_score"`
	ShouldBoost bool    `json:"should_boost"`
	ShouldAvoid bool    `json:"should_avoid"`
	Warnings    []string `json:"warnings,omitempty"`
}

type sentimentResponse struct {
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings"`
}

// BuildSentimentPrompt renders the user message for one opportunity.
func BuildSentimentPrompt(symbol string, direction string, price, change24h, volatility float64, userPrompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assess market sentiment for %s.\n", symbol)
	fmt.Fprintf(&b, "Proposed direction: %s. Price: %.6g. 24h change: %.2f%%. Volatility: %.2f%%.\n", direction, price, change24h, volatility)
	if userPrompt != "" {
		fmt.Fprintf(&b, "Trader notes: %s\n", userPrompt)
	}
	b.WriteString("Return the JSON verdict only.")
	return b.String()
}

// RequestSentiment performs the advisory call and parses the response. Any
// failure returns nil: the trade decision proceeds without sentiment input.
func RequestSentiment(ctx context.Context, client *Client, symbol, direction string, price, change24h, volatility float64, userPrompt string) *Advisory {
	raw, err := client.Complete(ctx, sentimentSystemPrompt,
		BuildSentimentPrompt(symbol, direction, price, change24h, volatility, userPrompt))
	if err != nil {
		client.log.Warn("sentiment call failed", "symbol", symbol, "error", err.Error())
		return nil
	}
	return ParseSentiment(raw)
}

// ParseSentiment maps the model's {action, confidence, warnings} JSON onto an
// advisory. Parse failures yield nil.
func ParseSentiment(raw string) *Advisory {
	raw = stripFences(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil
	}

	var resp sentimentResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &resp); err != nil {
		return nil
	}
	if resp.Confidence < 0 || resp.Confidence > 100 {
		return nil
	}

	advisory := &Advisory{Warnings: resp.Warnings}
	switch strings.ToLower(resp.Action) {
	case "buy":
		advisory.Sentiment = "bullish"
		advisory.NewsScore = resp.Confidence
	case "sell":
		advisory.Sentiment = "bearish"
		advisory.NewsScore = -resp.Confidence
	case "hold":
		advisory.Sentiment = "neutral"
	case "avoid":
		advisory.Sentiment = "neutral"
		advisory.ShouldAvoid = true
	default:
		return nil
	}

	if len(resp.Warnings) >= 2 {
		advisory.ShouldAvoid = true
	}
	if !advisory.ShouldAvoid && resp.Confidence >= 70 && len(resp.Warnings) == 0 {
		advisory.ShouldBoost = true
	}
	return advisory
}

// stripFences removes markdown code fences the model sometimes adds despite
// the strict-JSON instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
