package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"metaapi-trading-bot/config"
)

// ErrNoHistory is returned when the feed yields no bars
var ErrNoHistory = errors.New("no price history")

// CandleSource supplies price history for a Yahoo symbol
type CandleSource interface {
	Candles(ctx context.Context, symbol string) ([]Candle, error)
}

// YahooFeed reads price history from the Yahoo Finance chart endpoint
type YahooFeed struct {
	interval datetime.Interval
	lookback time.Duration
	now      func() time.Time
}

// NewYahooFeed creates a Yahoo history feed
func NewYahooFeed(cfg config.MarketConfig) *YahooFeed {
	interval := cfg.Interval
	if interval == "" {
		interval = string(datetime.OneHour)
	}
	days := cfg.LookbackDays
	if days <= 0 {
		days = 30
	}
	return &YahooFeed{
		interval: datetime.Interval(interval),
		lookback: time.Duration(days) * 24 * time.Hour,
		now:      time.Now,
	}
}

// Candles returns the bars in the configured lookback window, oldest first
func (y *YahooFeed) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	end := y.now()
	start := end.Add(-y.lookback)

	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: y.interval,
	})

	var candles []Candle
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := iter.Bar()
		closePrice, _ := bar.Close.Float64()
		if closePrice <= 0 {
			continue
		}
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		candles = append(candles, Candle{
			Time:   time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrNoHistory)
	}
	return candles, nil
}
