package services

import (
	"math"
)

// Pattern is a label from the candlestick and chart pattern catalog.
type Pattern string

const (
	PatternDoji             Pattern = "doji"
	PatternHammer           Pattern = "hammer"
	PatternShootingStar     Pattern = "shooting_star"
	PatternBullishEngulfing Pattern = "bullish_engulfing"
	PatternBearishEngulfing Pattern = "bearish_engulfing"
	PatternMorningStar      Pattern = "morning_star"
	PatternEveningStar      Pattern = "evening_star"
	PatternGoldenCross      Pattern = "golden_cross"
	PatternDeathCross       Pattern = "death_cross"
	PatternBollingerSqueeze Pattern = "bollinger_squeeze"
)

// patternBias is the directional weight of each catalog entry.
var patternBias = map[Pattern]float64{
	PatternDoji:             0,
	PatternHammer:           0.5,
	PatternShootingStar:     -0.5,
	PatternBullishEngulfing: 0.7,
	PatternBearishEngulfing: -0.7,
	PatternMorningStar:      0.8,
	PatternEveningStar:      -0.8,
	PatternGoldenCross:      0.7,
	PatternDeathCross:       -0.7,
	PatternBollingerSqueeze: 0,
}

// Bias returns the pattern's directional weight.
func (p Pattern) Bias() float64 { return patternBias[p] }

// Divergence is a price versus oscillator disagreement label.
type Divergence string

const (
	DivergenceBullishRSI  Divergence = "bullish_rsi_divergence"
	DivergenceBearishRSI  Divergence = "bearish_rsi_divergence"
	DivergenceBullishMACD Divergence = "bullish_macd_divergence"
	DivergenceBearishMACD Divergence = "bearish_macd_divergence"
)

var divergenceBias = map[Divergence]float64{
	DivergenceBullishRSI:  0.4,
	DivergenceBearishRSI:  -0.4,
	DivergenceBullishMACD: 0.3,
	DivergenceBearishMACD: -0.3,
}

// Bias returns the divergence's directional weight.
func (d Divergence) Bias() float64 { return divergenceBias[d] }

const (
	crossLookback   = 5
	squeezeLookback = 20
)

type candle struct {
	open, high, low, close float64
}

func (c candle) body() float64        { return math.Abs(c.close - c.open) }
func (c candle) span() float64        { return c.high - c.low }
func (c candle) upperShadow() float64 { return c.high - math.Max(c.open, c.close) }
func (c candle) lowerShadow() float64 { return math.Min(c.open, c.close) - c.low }
func (c candle) bullish() bool        { return c.close > c.open }
func (c candle) bearish() bool        { return c.close < c.open }

func detectPatterns(set *IndicatorSet) []Pattern {
	bars := set.Bars
	n := len(bars)
	if n == 0 {
		return nil
	}
	candles := make([]candle, n)
	for i, b := range bars {
		candles[i] = candle{open: b.Open, high: b.High, low: b.Low, close: b.Close}
	}
	cur := candles[n-1]

	var found []Pattern
	if cur.span() > 0 && cur.body() <= 0.1*cur.span() {
		found = append(found, PatternDoji)
	}
	if body := cur.body(); body > 0 {
		if cur.lowerShadow() >= 2*body && cur.upperShadow() <= 0.5*body {
			found = append(found, PatternHammer)
		}
		if cur.upperShadow() >= 2*body && cur.lowerShadow() <= 0.5*body {
			found = append(found, PatternShootingStar)
		}
	}

	if n >= 2 {
		prev := candles[n-2]
		if prev.bearish() && cur.bullish() && cur.open <= prev.close && cur.close >= prev.open {
			found = append(found, PatternBullishEngulfing)
		}
		if prev.bullish() && cur.bearish() && cur.open >= prev.close && cur.close <= prev.open {
			found = append(found, PatternBearishEngulfing)
		}
	}

	if n >= 3 {
		first, middle := candles[n-3], candles[n-2]
		firstMid := (first.open + first.close) / 2
		smallMiddle := middle.body() < 0.3*first.body()
		if first.bearish() && first.body() > 0.5*first.span() && smallMiddle && cur.bullish() && cur.close > firstMid {
			found = append(found, PatternMorningStar)
		}
		if first.bullish() && first.body() > 0.5*first.span() && smallMiddle && cur.bearish() && cur.close < firstMid {
			found = append(found, PatternEveningStar)
		}
	}

	if cross, ok := detectCross(set.SMA[set.Config.SMAMedium], set.SMA[set.Config.SMALong], crossLookback); ok {
		found = append(found, cross)
	}
	if detectSqueeze(set.Bollinger, squeezeLookback) {
		found = append(found, PatternBollingerSqueeze)
	}
	return found
}

// detectCross looks for the fast average crossing the slow one within the
// last lookback bars.
func detectCross(fast, slow Series, lookback int) (Pattern, bool) {
	n := fast.Len()
	from := n - lookback - 1
	if from < 0 {
		from = 0
	}
	for i := n - 1; i > from; i-- {
		f0, ok1 := fast.At(i - 1)
		s0, ok2 := slow.At(i - 1)
		f1, ok3 := fast.At(i)
		s1, ok4 := slow.At(i)
		if !(ok1 && ok2 && ok3 && ok4) {
			return "", false
		}
		if f0 <= s0 && f1 > s1 {
			return PatternGoldenCross, true
		}
		if f0 >= s0 && f1 < s1 {
			return PatternDeathCross, true
		}
	}
	return "", false
}

// detectSqueeze reports whether the latest band width is the narrowest of
// the lookback window.
func detectSqueeze(bb BollingerSeries, lookback int) bool {
	n := bb.Middle.Len()
	if n == 0 {
		return false
	}
	widths := make([]float64, 0, lookback)
	for i := n - lookback; i < n; i++ {
		u, ok1 := bb.Upper.At(i)
		l, ok2 := bb.Lower.At(i)
		m, ok3 := bb.Middle.At(i)
		if !(ok1 && ok2 && ok3) || m == 0 {
			return false
		}
		widths = append(widths, (u-l)/m)
	}
	last := widths[len(widths)-1]
	for _, w := range widths[:len(widths)-1] {
		if w <= last {
			return false
		}
	}
	return true
}

// detectDivergences compares the latest lookback window against the one
// before it. Price making a lower low while the oscillator makes a higher
// low is bullish; the mirror case is bearish.
func detectDivergences(set *IndicatorSet, lookback int) []Divergence {
	closes := set.Closes()
	var found []Divergence
	if d, ok := divergence(closes, set.RSI, lookback, DivergenceBullishRSI, DivergenceBearishRSI); ok {
		found = append(found, d)
	}
	if d, ok := divergence(closes, set.MACD.Histogram, lookback, DivergenceBullishMACD, DivergenceBearishMACD); ok {
		found = append(found, d)
	}
	return found
}

func divergence(closes []float64, osc Series, lookback int, bullish, bearish Divergence) (Divergence, bool) {
	n := len(closes)
	if lookback < 2 || n < 2*lookback || osc.Start > n-2*lookback {
		return "", false
	}
	prior := window{closes: closes[n-2*lookback : n-lookback], osc: osc.Values[n-2*lookback : n-lookback]}
	recent := window{closes: closes[n-lookback:], osc: osc.Values[n-lookback:]}

	priceLowPrior, priceHighPrior := minMax(prior.closes)
	priceLowRecent, priceHighRecent := minMax(recent.closes)
	oscLowPrior, oscHighPrior := minMax(prior.osc)
	oscLowRecent, oscHighRecent := minMax(recent.osc)

	switch {
	case priceLowRecent < priceLowPrior && oscLowRecent > oscLowPrior:
		return bullish, true
	case priceHighRecent > priceHighPrior && oscHighRecent < oscHighPrior:
		return bearish, true
	}
	return "", false
}

type window struct {
	closes []float64
	osc    []float64
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
