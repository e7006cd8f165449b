package broker

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// rawPosition is a position as MetaAPI reports it
type rawPosition struct {
	ID               flexString `json:"id"`
	PositionID       flexString `json:"positionId"`
	Ticket           flexString `json:"ticket"`
	Type             string     `json:"type"`
	Symbol           string     `json:"symbol"`
	OpenPrice        float64    `json:"openPrice"`
	CurrentPrice     float64    `json:"currentPrice"`
	Volume           float64    `json:"volume"`
	Profit           *float64   `json:"profit"`
	UnrealizedProfit *float64   `json:"unrealizedProfit"`
	Time             string     `json:"time"`
	UpdateTime       string     `json:"updateTime"`
}

func (r rawPosition) ticket() string {
	for _, v := range []flexString{r.ID, r.PositionID, r.Ticket} {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

func (r rawPosition) profit() *float64 {
	if r.Profit != nil {
		return r.Profit
	}
	return r.UnrealizedProfit
}

func parseBrokerTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC()
	}
	return time.Time{}
}

func hasRealProfit(p Position) bool {
	return p.Profit != nil && math.Abs(*p.Profit) > 0.01
}

// better reports whether a should replace b among duplicates of one ticket
func better(a, b Position) bool {
	if hasRealProfit(a) != hasRealProfit(b) {
		return hasRealProfit(a)
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.OpenedAt.After(b.OpenedAt)
}

// normalizePositions converts raw broker entries into Positions. Error
// entries (TRADE_RETCODE_*) and entries without a ticket are dropped, and
// duplicate tickets collapse to the entry with real profit, then the newest.
func normalizePositions(platform string, raw []rawPosition, logger zerolog.Logger) []Position {
	order := make([]string, 0, len(raw))
	best := make(map[string]Position, len(raw))
	dropped := 0

	for _, r := range raw {
		ticket := r.ticket()
		if strings.Contains(ticket, "TRADE_RETCODE") || strings.Contains(r.Symbol, "TRADE_RETCODE") {
			logger.Debug().Str("ticket", ticket).Str("symbol", r.Symbol).Msg("Filtered error position")
			dropped++
			continue
		}
		if ticket == "" {
			logger.Warn().Str("symbol", r.Symbol).Msg("Dropping position without ticket")
			dropped++
			continue
		}
		dir, err := ParseDirection(r.Type)
		if err != nil {
			logger.Warn().Str("ticket", ticket).Str("type", r.Type).Msg("Dropping position with unknown type")
			dropped++
			continue
		}

		p := Position{
			Ticket:       ticket,
			Platform:     platform,
			Symbol:       r.Symbol,
			Direction:    dir,
			EntryPrice:   r.OpenPrice,
			CurrentPrice: r.CurrentPrice,
			Volume:       r.Volume,
			Profit:       r.profit(),
			OpenedAt:     parseBrokerTime(r.Time),
			UpdatedAt:    parseBrokerTime(r.UpdateTime),
		}

		existing, seen := best[ticket]
		if !seen {
			order = append(order, ticket)
			best[ticket] = p
			continue
		}
		logger.Warn().Str("ticket", ticket).Msg("Duplicate ticket in broker positions")
		if better(p, existing) {
			best[ticket] = p
		}
	}

	out := make([]Position, 0, len(order))
	for _, t := range order {
		out = append(out, best[t])
	}

	if len(out) != len(raw) {
		logger.Info().
			Int("raw", len(raw)).
			Int("kept", len(out)).
			Int("dropped", dropped).
			Msg("Normalized broker positions")
	}
	return out
}
