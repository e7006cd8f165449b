package llm

import (
	"fmt"
	"sort"
	"strings"

	"metaapi-trading-bot/internal/analysis"
)

// SystemPromptTradeConfirmation asks for a one-word advisory verdict
const SystemPromptTradeConfirmation = `You are a cautious commodities trading assistant reviewing a signal produced by a rule-based system.

You receive the instrument, the proposed direction, the signal confidence, the contributing sub-signals and an indicator snapshot.

Answer with exactly one word: "YES" if the trade should be placed, "NO" if it should be skipped.
Answer NO when the indicators contradict the proposed direction or the news sentiment opposes it.`

// BuildConfirmationPrompt formats an analysis for the confirmation step
func BuildConfirmationPrompt(commodity string, res analysis.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Instrument: %s\n", commodity)
	fmt.Fprintf(&b, "Proposed direction: %s\n", res.Signal)
	fmt.Fprintf(&b, "Confidence: %.1f%% (score %.2f)\n", res.Confidence, res.TotalScore)
	fmt.Fprintf(&b, "News: %s (score %.2f, %d articles)\n", res.News.Sentiment, res.News.Score, res.News.Articles)

	b.WriteString("\nSub-signals:\n")
	for _, s := range res.Signals {
		fmt.Fprintf(&b, "- %s\n", s)
	}

	keys := make([]string, 0, len(res.Indicators))
	for k := range res.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("\nIndicators:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %.4f\n", k, res.Indicators[k])
	}

	if res.Support > 0 || res.Resistance > 0 {
		fmt.Fprintf(&b, "\nSupport: %.4f, Resistance: %.4f\n", res.Support, res.Resistance)
	}

	b.WriteString("\nShould this trade be placed? Answer YES or NO.")
	return b.String()
}
