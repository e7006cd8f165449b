package analysis

import (
	"math"
	"time"
)

// Candle is one OHLCV bar of price history, oldest first in every slice
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

func closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average over the last period closes
func CalculateSMA(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// emaSeries returns the EMA of values, seeded with the SMA of the first
// period values. Entries before the seed are NaN.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out[i] = ema
	}
	return out
}

// CalculateEMA calculates Exponential Moving Average
func CalculateEMA(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}
	series := emaSeries(closes(candles), period)
	return series[len(series)-1]
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index with Wilder smoothing
func CalculateRSI(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates MACD, Signal line, and Histogram. The signal
// line is a real EMA over the MACD series.
func CalculateMACD(candles []Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod+signalPeriod {
		return &MACDResult{0, 0, 0}
	}

	values := closes(candles)
	fast := emaSeries(values, fastPeriod)
	slow := emaSeries(values, slowPeriod)

	// MACD is defined once the slow EMA is seeded
	macdLine := make([]float64, 0, len(values)-slowPeriod+1)
	for i := slowPeriod - 1; i < len(values); i++ {
		macdLine = append(macdLine, fast[i]-slow[i])
	}

	signal := emaSeries(macdLine, signalPeriod)
	last := len(macdLine) - 1

	return &MACDResult{
		MACD:      macdLine[last],
		Signal:    signal[last],
		Histogram: macdLine[last] - signal[last],
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBandsResult holds Bollinger Bands values
type BollingerBandsResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollingerBands calculates Bollinger Bands
func CalculateBollingerBands(candles []Candle, period int, stdDevMultiplier float64) *BollingerBandsResult {
	if period <= 0 || len(candles) < period {
		return &BollingerBandsResult{0, 0, 0}
	}

	// Middle band is SMA
	middle := CalculateSMA(candles, period)

	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(period))

	return &BollingerBandsResult{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

func trueRange(cur, prev Candle) float64 {
	return math.Max(
		cur.High-cur.Low,
		math.Max(
			math.Abs(cur.High-prev.Close),
			math.Abs(cur.Low-prev.Close),
		),
	)
}

// CalculateATR calculates Average True Range with Wilder smoothing
func CalculateATR(candles []Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := 1; i <= period; i++ {
		trSum += trueRange(candles[i], candles[i-1])
	}
	atr := trSum / float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(candles[i], candles[i-1])) / float64(period)
	}
	return atr
}

// ============================================================================
// STOCHASTIC OSCILLATOR
// ============================================================================

// StochasticResult holds Stochastic Oscillator values
type StochasticResult struct {
	K float64
	D float64
}

func percentK(window []Candle) float64 {
	highestHigh := window[0].High
	lowestLow := window[0].Low
	for _, c := range window {
		if c.High > highestHigh {
			highestHigh = c.High
		}
		if c.Low < lowestLow {
			lowestLow = c.Low
		}
	}
	if highestHigh == lowestLow {
		return 50
	}
	return ((window[len(window)-1].Close - lowestLow) / (highestHigh - lowestLow)) * 100
}

// CalculateStochastic calculates Stochastic Oscillator. %D is the SMA of
// the last dPeriod %K values.
func CalculateStochastic(candles []Candle, kPeriod, dPeriod int) *StochasticResult {
	if kPeriod <= 0 || len(candles) < kPeriod {
		return &StochasticResult{50, 50}
	}

	k := percentK(candles[len(candles)-kPeriod:])

	available := len(candles) - kPeriod + 1
	if dPeriod <= 0 || available < dPeriod {
		return &StochasticResult{K: k, D: k}
	}

	sum := 0.0
	for i := 0; i < dPeriod; i++ {
		end := len(candles) - i
		sum += percentK(candles[end-kPeriod : end])
	}

	return &StochasticResult{K: k, D: sum / float64(dPeriod)}
}

// ============================================================================
// SUPPORT AND RESISTANCE
// ============================================================================

// FindSupportResistance returns the lowest low and highest high of the
// last period candles
func FindSupportResistance(candles []Candle, period int) (support float64, resistance float64) {
	if period <= 0 || len(candles) < period {
		return 0, 0
	}

	startIdx := len(candles) - period
	high := candles[startIdx].High
	low := candles[startIdx].Low

	for i := startIdx; i < len(candles); i++ {
		if candles[i].High > high {
			high = candles[i].High
		}
		if candles[i].Low < low {
			low = candles[i].Low
		}
	}

	return low, high
}
