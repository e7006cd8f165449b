// Package analysis computes technical indicators over price history and
// combines them with news sentiment into a BUY/SELL/HOLD signal.
package analysis

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Signal values
const (
	SignalBuy  = "BUY"
	SignalSell = "SELL"
	SignalHold = "HOLD"
)

// MinCandles is the shortest history the indicators are computed on.
// Shorter histories fall back to neutral defaults.
const MinCandles = 50

// Score thresholds for a directional signal
const (
	buyThreshold  = 3.0
	sellThreshold = -3.0
	confidencePer = 15.0
)

// Indicator keys in Result.Indicators
const (
	KeyRSI          = "rsi"
	KeyMACD         = "macd"
	KeyMACDSignal   = "macd_signal"
	KeyMACDDiff     = "macd_diff"
	KeySMA20        = "sma_20"
	KeySMA50        = "sma_50"
	KeyEMA12        = "ema_12"
	KeyEMA26        = "ema_26"
	KeyBBUpper      = "bb_upper"
	KeyBBMiddle     = "bb_middle"
	KeyBBLower      = "bb_lower"
	KeyATR          = "atr"
	KeyStochK       = "stoch_k"
	KeyStochD       = "stoch_d"
	KeyCurrentPrice = "current_price"
)

// Result is the outcome of one commodity analysis
type Result struct {
	Commodity  string             `json:"commodity"`
	Signal     string             `json:"signal"`
	Confidence float64            `json:"confidence"` // 0-100
	TotalScore float64            `json:"total_score"`
	Signals    []string           `json:"signals"`
	Indicators map[string]float64 `json:"indicators"`
	News       News               `json:"news"`
	Support    float64            `json:"support"`
	Resistance float64            `json:"resistance"`
}

// Price returns the last close used for the analysis
func (r Result) Price() float64 {
	return r.Indicators[KeyCurrentPrice]
}

// ATR returns the average true range of the analysis
func (r Result) ATR() float64 {
	return r.Indicators[KeyATR]
}

// IsDirectional reports whether the result is a BUY or SELL
func (r Result) IsDirectional() bool {
	return r.Signal == SignalBuy || r.Signal == SignalSell
}

// Analyzer scores indicator and news signals
type Analyzer struct {
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(logger zerolog.Logger) *Analyzer {
	return &Analyzer{logger: logger.With().Str("component", "Analyzer").Logger()}
}

// DefaultIndicators is the neutral snapshot used when history is too short
func DefaultIndicators() map[string]float64 {
	return map[string]float64{
		KeyRSI: 50, KeyMACD: 0, KeyMACDSignal: 0, KeyMACDDiff: 0,
		KeySMA20: 0, KeySMA50: 0, KeyEMA12: 0, KeyEMA26: 0,
		KeyBBUpper: 0, KeyBBMiddle: 0, KeyBBLower: 0,
		KeyATR: 0, KeyStochK: 50, KeyStochD: 50, KeyCurrentPrice: 0,
	}
}

// ComputeIndicators returns the indicator snapshot for the candles
func ComputeIndicators(candles []Candle) map[string]float64 {
	if len(candles) < MinCandles {
		return DefaultIndicators()
	}

	price := candles[len(candles)-1].Close
	macd := CalculateMACD(candles, 12, 26, 9)
	bb := CalculateBollingerBands(candles, 20, 2)
	stoch := CalculateStochastic(candles, 14, 3)

	atr := CalculateATR(candles, 14)
	if atr <= 0 || math.IsNaN(atr) {
		atr = price * 0.02
	}

	return map[string]float64{
		KeyRSI:          CalculateRSI(candles, 14),
		KeyMACD:         macd.MACD,
		KeyMACDSignal:   macd.Signal,
		KeyMACDDiff:     macd.Histogram,
		KeySMA20:        CalculateSMA(candles, 20),
		KeySMA50:        CalculateSMA(candles, 50),
		KeyEMA12:        CalculateEMA(candles, 12),
		KeyEMA26:        CalculateEMA(candles, 26),
		KeyBBUpper:      bb.Upper,
		KeyBBMiddle:     bb.Middle,
		KeyBBLower:      bb.Lower,
		KeyATR:          atr,
		KeyStochK:       stoch.K,
		KeyStochD:       stoch.D,
		KeyCurrentPrice: price,
	}
}

// Analyze computes indicators for the candles and scores them with news
func (a *Analyzer) Analyze(commodity string, candles []Candle, news News) Result {
	indicators := ComputeIndicators(candles)
	if len(candles) < MinCandles {
		a.logger.Warn().Str("commodity", commodity).Int("candles", len(candles)).
			Msg("Not enough price history, using neutral indicators")
	}

	res := Score(indicators, news)
	res.Commodity = commodity
	res.Support, res.Resistance = FindSupportResistance(candles, 20)

	a.logger.Info().
		Str("commodity", commodity).
		Str("signal", res.Signal).
		Float64("confidence", res.Confidence).
		Float64("score", res.TotalScore).
		Msg("Analysis complete")

	return res
}

// Score combines indicator and news sub-signals into a weighted total
func Score(ind map[string]float64, news News) Result {
	var signals []string
	total := 0.0
	add := func(label string, score float64) {
		signals = append(signals, label)
		total += score
	}

	// RSI
	switch rsi := ind[KeyRSI]; {
	case rsi < 30:
		add("RSI: oversold (BUY)", 2)
	case rsi < 40:
		add("RSI: slightly oversold (BUY)", 1)
	case rsi > 70:
		add("RSI: overbought (SELL)", -2)
	case rsi > 60:
		add("RSI: slightly overbought (SELL)", -1)
	default:
		add("RSI: neutral", 0)
	}

	// MACD
	switch diff := ind[KeyMACDDiff]; {
	case diff > 0:
		add("MACD: bullish crossover (BUY)", 1.5)
	case diff < 0:
		add("MACD: bearish crossover (SELL)", -1.5)
	default:
		add("MACD: neutral", 0)
	}

	price := ind[KeyCurrentPrice]
	sma20, sma50 := ind[KeySMA20], ind[KeySMA50]
	if price > 0 && sma20 > 0 && sma50 > 0 {
		switch {
		case sma20 > sma50 && price > sma20:
			add("MA: strong uptrend (BUY)", 1.5)
		case sma20 < sma50 && price < sma20:
			add("MA: strong downtrend (SELL)", -1.5)
		case price > sma20:
			add("MA: above SMA20 (BUY)", 0.5)
		case price < sma20:
			add("MA: below SMA20 (SELL)", -0.5)
		}
	}

	upper, lower := ind[KeyBBUpper], ind[KeyBBLower]
	if price > 0 && upper > 0 && lower > 0 {
		switch {
		case price <= lower:
			add("BB: price at lower band (BUY)", 1.5)
		case price >= upper:
			add("BB: price at upper band (SELL)", -1.5)
		}
	}

	switch k := ind[KeyStochK]; {
	case k < 20:
		add("Stochastic: oversold (BUY)", 1)
	case k > 80:
		add("Stochastic: overbought (SELL)", -1)
	}

	switch news.Sentiment {
	case SentimentBullish:
		add(fmt.Sprintf("News: positive (%d articles)", news.Articles), news.Score*2)
	case SentimentBearish:
		add(fmt.Sprintf("News: negative (%d articles)", news.Articles), news.Score*2)
	default:
		add("News: neutral", 0)
	}

	res := Result{
		Signal:     SignalHold,
		TotalScore: round(total, 2),
		Signals:    signals,
		Indicators: ind,
		News:       news,
	}
	switch {
	case total >= buyThreshold:
		res.Signal = SignalBuy
		res.Confidence = round(math.Min(100, math.Abs(total)*confidencePer), 1)
	case total <= sellThreshold:
		res.Signal = SignalSell
		res.Confidence = round(math.Min(100, math.Abs(total)*confidencePer), 1)
	}
	return res
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
