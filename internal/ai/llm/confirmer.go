package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"metaapi-trading-bot/internal/analysis"
)

// Verdict is the parsed answer of a confirmation request
type Verdict int

const (
	VerdictUnclear Verdict = iota
	VerdictYes
	VerdictNo
)

func (v Verdict) String() string {
	switch v {
	case VerdictYes:
		return "yes"
	case VerdictNo:
		return "no"
	default:
		return "unclear"
	}
}

var (
	yesWords = map[string]bool{"yes": true, "y": true, "ja": true, "approve": true, "approved": true, "confirm": true, "confirmed": true}
	noWords  = map[string]bool{"no": true, "n": true, "nein": true, "reject": true, "rejected": true, "decline": true, "skip": true}
)

// ParseVerdict reads the first word of a reply as yes or no
func ParseVerdict(reply string) Verdict {
	fields := strings.Fields(strings.ToLower(reply))
	if len(fields) == 0 {
		return VerdictUnclear
	}
	word := strings.Trim(fields[0], ".,!:;\"'*`")
	switch {
	case yesWords[word]:
		return VerdictYes
	case noWords[word]:
		return VerdictNo
	default:
		return VerdictUnclear
	}
}

// Completer is the completion surface the confirmer needs
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// TradeConfirmer asks an LLM whether a signal should be traded
type TradeConfirmer struct {
	client Completer
	logger zerolog.Logger
}

// NewTradeConfirmer creates a confirmer over an LLM client
func NewTradeConfirmer(client Completer, logger zerolog.Logger) *TradeConfirmer {
	return &TradeConfirmer{
		client: client,
		logger: logger.With().Str("component", "LLMConfirm").Logger(),
	}
}

// Confirm returns false only for an explicit "no". Unclear replies approve.
// Errors are returned to the caller, which decides how to treat them.
func (c *TradeConfirmer) Confirm(ctx context.Context, commodity string, res analysis.Result) (bool, error) {
	reply, err := c.client.Complete(ctx, SystemPromptTradeConfirmation, BuildConfirmationPrompt(commodity, res))
	if err != nil {
		return false, fmt.Errorf("llm confirmation: %w", err)
	}

	verdict := ParseVerdict(reply)
	c.logger.Info().
		Str("commodity", commodity).
		Str("signal", res.Signal).
		Str("verdict", verdict.String()).
		Msg("LLM confirmation")

	return verdict != VerdictNo, nil
}
