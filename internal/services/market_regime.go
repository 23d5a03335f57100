package services

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
)

// RegimeType classifies recent price behaviour.
type RegimeType string

const (
	RegimeTrending RegimeType = "trending"
	RegimeRanging  RegimeType = "ranging"
	RegimeVolatile RegimeType = "volatile"
)

// VolatilityLevel buckets ATR against its own history.
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityNormal VolatilityLevel = "normal"
	VolatilityHigh   VolatilityLevel = "high"
)

// TrendDirection is the sign of the net move over the regime window.
type TrendDirection string

const (
	DirectionUp   TrendDirection = "up"
	DirectionDown TrendDirection = "down"
	DirectionFlat TrendDirection = "flat"
)

// MarketRegime is derived once per analysis from the latest window.
type MarketRegime struct {
	Type          RegimeType      `json:"type"`
	TrendStrength float64         `json:"trend_strength"`
	Volatility    VolatilityLevel `json:"volatility"`
	Direction     TrendDirection  `json:"direction"`

	// Diagnostics behind the classification.
	ATRRatio      *float64 `json:"atr_ratio,omitempty"`
	RangeATRRatio *float64 `json:"range_atr_ratio,omitempty"`
	ATRPercentile *float64 `json:"atr_percentile,omitempty"`
	Insufficient  bool     `json:"insufficient_data"`
}

// RegimeClassifier turns an IndicatorSet into a MarketRegime.
type RegimeClassifier struct {
	config config.RegimeConfig
	logger *logrus.Logger
}

// NewRegimeClassifier creates a classifier.
func NewRegimeClassifier(cfg config.RegimeConfig, logger *logrus.Logger) *RegimeClassifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &RegimeClassifier{config: cfg, logger: logger}
}

// Classify evaluates volatility first, then trend, and falls back to ranging.
func (rc *RegimeClassifier) Classify(set *IndicatorSet) MarketRegime {
	regime := MarketRegime{
		Type:       RegimeRanging,
		Volatility: VolatilityNormal,
		Direction:  DirectionFlat,
	}

	n := set.Len()
	atr, atrOK := set.ATR.Last()
	if n == 0 || !atrOK || atr <= 0 {
		regime.Insufficient = true
		return regime
	}

	w := rc.config.Window
	if w > n-1 {
		w = n - 1
	}
	closes := set.Closes()
	last := closes[n-1]

	netMove := last - closes[n-1-w]
	regime.Direction = directionOf(netMove)

	regime.TrendStrength = rc.trendStrength(set, closes, w, netMove, atr)

	// range of the window relative to the current ATR
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, b := range set.Bars[n-w:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	rangeRatio := (hi - lo) / atr
	regime.RangeATRRatio = ptr(rangeRatio)

	history := set.ATR.Tail(rc.config.VolatilityLookback)
	atrRatio := atr / mean(history)
	regime.ATRRatio = ptr(atrRatio)

	if pct, ok := atrPercentile(set, rc.config.VolatilityLookback); ok {
		regime.ATRPercentile = ptr(pct)
		switch {
		case pct < rc.config.LowVolPercentile:
			regime.Volatility = VolatilityLow
		case pct > rc.config.HighVolPercentile:
			regime.Volatility = VolatilityHigh
		}
	}

	// strict comparisons so exact ties stay ranging
	switch {
	case len(history) > 1 && atrRatio > rc.config.VolatileATRRatio:
		regime.Type = RegimeVolatile
	case regime.TrendStrength > rc.config.TrendStrengthThreshold && rangeRatio > rc.config.RangeATRThreshold:
		regime.Type = RegimeTrending
	}

	rc.logger.WithFields(logrus.Fields{
		"regime":         regime.Type,
		"trend_strength": regime.TrendStrength,
		"volatility":     regime.Volatility,
		"direction":      regime.Direction,
	}).Debug("Classified market regime")

	return regime
}

// trendStrength averages three consistency measures, each in [0,1]:
// which side of the reference average price sits on, how consistently the
// average slopes one way, and the net move measured in ATRs.
func (rc *RegimeClassifier) trendStrength(set *IndicatorSet, closes []float64, w int, netMove, atr float64) float64 {
	ma := set.SMA[set.Config.SMAMedium]
	if _, ok := ma.Last(); !ok {
		ma = set.SMA[set.Config.SMAShort]
	}

	n := len(closes)
	var above, total, rising, steps int
	for i := n - w; i < n; i++ {
		m, ok := ma.At(i)
		if !ok {
			continue
		}
		total++
		if closes[i] > m {
			above++
		}
		if prev, ok := ma.At(i - 1); ok && prev != m {
			steps++
			if m > prev {
				rising++
			}
		}
	}

	var components []float64
	if total > 0 {
		components = append(components, math.Abs(2*float64(above)/float64(total)-1))
	}
	if steps > 0 {
		components = append(components, math.Abs(2*float64(rising)/float64(steps)-1))
	}
	components = append(components, clamp(math.Abs(netMove)/(atr*rc.config.DirectionalATRMultiple), 0, 1))
	return clamp(mean(components), 0, 1)
}

// atrPercentile ranks the latest ATR-to-price ratio against the lookback.
func atrPercentile(set *IndicatorSet, lookback int) (float64, bool) {
	n := set.Len()
	from := n - lookback
	if from < 0 {
		from = 0
	}
	var ratios []float64
	for i := from; i < n; i++ {
		if a, ok := set.ATR.At(i); ok && set.Bars[i].Close > 0 {
			ratios = append(ratios, a/set.Bars[i].Close)
		}
	}
	if len(ratios) < 2 {
		return 0, false
	}
	latest := ratios[len(ratios)-1]
	sort.Float64s(ratios)
	below := sort.SearchFloat64s(ratios, latest)
	return float64(below) / float64(len(ratios)-1), true
}

func directionOf(move float64) TrendDirection {
	switch {
	case move > 0:
		return DirectionUp
	case move < 0:
		return DirectionDown
	}
	return DirectionFlat
}
