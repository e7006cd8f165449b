package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/logging"
)

func flatCandles(n int, price, spread float64) []Candle {
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Open:  price,
			High:  price + spread/2,
			Low:   price - spread/2,
			Close: price,
		}
	}
	return out
}

func TestIndicatorsOnFlatSeries(t *testing.T) {
	candles := flatCandles(60, 100, 2)

	assert.InDelta(t, 100, CalculateSMA(candles, 20), 1e-9)
	assert.InDelta(t, 100, CalculateEMA(candles, 12), 1e-9)
	assert.InDelta(t, 50, CalculateRSI(candles, 14), 1e-9)
	assert.InDelta(t, 2, CalculateATR(candles, 14), 1e-9)

	macd := CalculateMACD(candles, 12, 26, 9)
	assert.InDelta(t, 0, macd.MACD, 1e-9)
	assert.InDelta(t, 0, macd.Histogram, 1e-9)

	bb := CalculateBollingerBands(candles, 20, 2)
	assert.InDelta(t, 100, bb.Upper, 1e-9)
	assert.InDelta(t, 100, bb.Lower, 1e-9)

	support, resistance := FindSupportResistance(candles, 20)
	assert.Equal(t, 99.0, support)
	assert.Equal(t, 101.0, resistance)
}

func TestRSIAndStochasticOnRisingSeries(t *testing.T) {
	candles := flatCandles(30, 100, 2)
	for i := range candles {
		p := 100 + float64(i)
		candles[i].Close = p
		candles[i].High = p
		candles[i].Low = p - 1
	}

	assert.InDelta(t, 100, CalculateRSI(candles, 14), 1e-9)
	stoch := CalculateStochastic(candles, 14, 3)
	assert.InDelta(t, 100, stoch.K, 1e-9)
	assert.InDelta(t, 100, stoch.D, 1e-9)
}

func TestMACDSignalTracksMACDLine(t *testing.T) {
	candles := flatCandles(80, 100, 2)
	// Jump at the end: MACD turns positive before the signal catches up
	for i := 70; i < len(candles); i++ {
		candles[i].Close = 110
	}
	macd := CalculateMACD(candles, 12, 26, 9)
	assert.Greater(t, macd.MACD, 0.0)
	assert.Greater(t, macd.MACD, macd.Signal)
	assert.InDelta(t, macd.MACD-macd.Signal, macd.Histogram, 1e-12)
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name       string
		ind        map[string]float64
		news       News
		signal     string
		score      float64
		confidence float64
	}{
		{
			name: "strong buy",
			ind: map[string]float64{
				KeyRSI: 25, KeyMACDDiff: 1, KeyCurrentPrice: 110, KeySMA20: 105, KeySMA50: 100,
				KeyBBUpper: 120, KeyBBLower: 90, KeyStochK: 50,
			},
			news:       NeutralNews(),
			signal:     SignalBuy,
			score:      5,
			confidence: 75,
		},
		{
			name: "strong sell caps confidence",
			ind: map[string]float64{
				KeyRSI: 75, KeyMACDDiff: -1, KeyCurrentPrice: 90, KeySMA20: 95, KeySMA50: 100,
				KeyBBUpper: 89, KeyBBLower: 80, KeyStochK: 85,
			},
			news:       News{Sentiment: SentimentBearish, Score: -1, Articles: 3},
			signal:     SignalSell,
			score:      -9.5,
			confidence: 100,
		},
		{
			name:       "neutral defaults with mild news hold",
			ind:        DefaultIndicators(),
			news:       News{Sentiment: SentimentBullish, Score: 0.5, Articles: 10},
			signal:     SignalHold,
			score:      1,
			confidence: 0,
		},
		{
			name: "below threshold",
			ind: map[string]float64{
				KeyRSI: 35, KeyMACDDiff: 0.2, KeyCurrentPrice: 99.5, KeySMA20: 100, KeySMA50: 102,
				KeyBBUpper: 110, KeyBBLower: 90, KeyStochK: 50,
			},
			news:       NeutralNews(),
			signal:     SignalHold,
			score:      1,
			confidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.ind, tt.news)
			assert.Equal(t, tt.signal, res.Signal)
			assert.InDelta(t, tt.score, res.TotalScore, 1e-9)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.NotEmpty(t, res.Signals)
		})
	}
}

func TestAnalyzeShortHistoryIsNeutral(t *testing.T) {
	a := NewAnalyzer(logging.Nop())
	res := a.Analyze("GOLD", flatCandles(10, 2300, 4), NeutralNews())

	assert.Equal(t, "GOLD", res.Commodity)
	assert.Equal(t, SignalHold, res.Signal)
	assert.Equal(t, 0.0, res.Price())
	assert.Equal(t, 0.0, res.ATR())
	assert.False(t, res.IsDirectional())
}

func TestAnalyzeFullHistoryCarriesPriceAndATR(t *testing.T) {
	a := NewAnalyzer(logging.Nop())
	res := a.Analyze("GOLD", flatCandles(60, 2300, 4), NeutralNews())

	assert.Equal(t, 2300.0, res.Price())
	assert.InDelta(t, 4, res.ATR(), 1e-9)
	assert.Equal(t, 2298.0, res.Support)
	assert.Equal(t, 2302.0, res.Resistance)
}

func TestScoreArticles(t *testing.T) {
	bullish := ScoreArticles([]Article{
		{Title: "Gold prices surge to record high"},
		{Title: "Gold rally continues", Description: "strong demand"},
	})
	assert.Equal(t, SentimentBullish, bullish.Sentiment)
	assert.InDelta(t, 2.0, bullish.Score, 1e-9)
	assert.Equal(t, 2, bullish.Articles)

	bearish := ScoreArticles([]Article{{Title: "Oil prices plunge"}})
	assert.Equal(t, SentimentBearish, bearish.Sentiment)

	assert.Equal(t, NeutralNews(), ScoreArticles(nil))
}

func TestNewsClientQueriesNewsAPI(t *testing.T) {
	var gotKey, gotQuery, gotPageSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotQuery = r.URL.Query().Get("q")
		gotPageSize = r.URL.Query().Get("pageSize")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(newsResponse{
			Status:   "ok",
			Articles: []Article{{Title: "Gold prices surge"}},
		})
	}))
	defer srv.Close()

	client := NewNewsClient(config.NewsConfig{Enabled: true, APIKey: "k", BaseURL: srv.URL}, logging.Nop())
	news := client.Sentiment(context.Background(), "GOLD")

	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "gold prices OR gold market", gotQuery)
	assert.Equal(t, "20", gotPageSize)
	assert.Equal(t, SentimentBullish, news.Sentiment)
}

func TestNewsClientFailuresAreNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewNewsClient(config.NewsConfig{Enabled: true, APIKey: "k", BaseURL: srv.URL}, logging.Nop())
	require.Equal(t, NeutralNews(), client.Sentiment(context.Background(), "SILVER"))

	disabled := NewNewsClient(config.NewsConfig{Enabled: true}, logging.Nop())
	assert.Equal(t, NeutralNews(), disabled.Sentiment(context.Background(), "GOLD"))
}
