package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
)

// MACDSeries holds the three MACD columns.
type MACDSeries struct {
	Line      Series `json:"line"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// BollingerSeries holds the band columns.
type BollingerSeries struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

// StochasticSeries holds %K and its %D smoothing.
type StochasticSeries struct {
	K Series `json:"k"`
	D Series `json:"d"`
}

// IndicatorSet is every indicator the pipeline consumes, aligned with Bars.
type IndicatorSet struct {
	Bars       []models.Bar     `json:"-"`
	SMA        map[int]Series   `json:"sma"`
	EMA        map[int]Series   `json:"ema"`
	RSI        Series           `json:"rsi"`
	MACD       MACDSeries       `json:"macd"`
	Bollinger  BollingerSeries  `json:"bollinger"`
	ATR        Series           `json:"atr"`
	VolumeMA   Series           `json:"volume_ma"`
	OBV        Series           `json:"obv"`
	Stochastic StochasticSeries `json:"stochastic"`

	// SupportLevels and ResistanceLevels are ascending. LevelsDetected is
	// false when the series is too short to scan for extrema.
	SupportLevels    []float64    `json:"support_levels"`
	ResistanceLevels []float64    `json:"resistance_levels"`
	LevelsDetected   bool         `json:"levels_detected"`
	Patterns         []Pattern    `json:"patterns"`
	Divergences      []Divergence `json:"divergences"`

	Config config.IndicatorConfig `json:"-"`
}

// Len returns the number of bars.
func (s *IndicatorSet) Len() int { return len(s.Bars) }

// LastClose returns the most recent close.
func (s *IndicatorSet) LastClose() float64 {
	if len(s.Bars) == 0 {
		return 0
	}
	return s.Bars[len(s.Bars)-1].Close
}

// Closes returns the close column.
func (s *IndicatorSet) Closes() []float64 { return models.Closes(s.Bars) }

// IndicatorAggregator computes an IndicatorSet from bars.
type IndicatorAggregator struct {
	config config.IndicatorConfig
	logger *logrus.Logger
}

// NewIndicatorAggregator creates an aggregator with the given windows.
func NewIndicatorAggregator(cfg config.IndicatorConfig, logger *logrus.Logger) *IndicatorAggregator {
	if logger == nil {
		logger = logrus.New()
	}
	return &IndicatorAggregator{config: cfg, logger: logger}
}

// Aggregate computes every indicator. Windows longer than the series
// produce absent columns rather than errors.
func (a *IndicatorAggregator) Aggregate(bars []models.Bar) (*IndicatorSet, error) {
	if err := models.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("invalid bar sequence: %w", err)
	}

	cfg := a.config
	closes := models.Closes(bars)
	highs := models.Highs(bars)
	lows := models.Lows(bars)
	volumes := models.Volumes(bars)
	n := len(bars)

	set := &IndicatorSet{
		Bars:   bars,
		SMA:    make(map[int]Series, 3),
		EMA:    make(map[int]Series, 2),
		Config: cfg,
	}

	for _, period := range []int{cfg.SMAShort, cfg.SMAMedium, cfg.SMALong} {
		set.SMA[period] = computeSMA(closes, period)
	}
	for _, period := range []int{cfg.EMAFast, cfg.EMASlow} {
		set.EMA[period] = computeEMA(closes, period)
	}

	set.RSI = computeRSI(closes, cfg.RSIPeriod)
	set.MACD = computeMACD(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	set.Bollinger = computeBollinger(closes, cfg.BollingerPeriod, cfg.BollingerStdDev)
	set.ATR = computeATR(highs, lows, closes, cfg.ATRPeriod)
	set.VolumeMA = computeSMA(volumes, cfg.VolumePeriod)
	set.OBV = computeOBV(closes, volumes)
	set.Stochastic = computeStochastic(highs, lows, closes, cfg.StochasticK, cfg.StochasticD)

	set.SupportLevels, set.ResistanceLevels, set.LevelsDetected = detectLevels(bars, cfg)
	set.Patterns = detectPatterns(set)
	set.Divergences = detectDivergences(set, cfg.DivergenceLookback)

	a.logger.WithFields(logrus.Fields{
		"bars":        n,
		"patterns":    len(set.Patterns),
		"divergences": len(set.Divergences),
		"supports":    len(set.SupportLevels),
		"resistances": len(set.ResistanceLevels),
	}).Debug("Computed indicator set")

	return set, nil
}

func computeSMA(values []float64, period int) Series {
	if period <= 0 || len(values) < period {
		return absentSeries(len(values))
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return alignSeries(len(values), helper.ChanToSlice(sma.Compute(helper.SliceToChan(values))))
}

func computeEMA(values []float64, period int) Series {
	if period <= 0 || len(values) < period {
		return absentSeries(len(values))
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return alignSeries(len(values), helper.ChanToSlice(ema.Compute(helper.SliceToChan(values))))
}

func computeRSI(values []float64, period int) Series {
	if period <= 0 || len(values) <= period {
		return absentSeries(len(values))
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return alignSeries(len(values), helper.ChanToSlice(rsi.Compute(helper.SliceToChan(values))))
}

// computeMACD derives MACD from two independent EMA passes so that the
// line and signal columns never share a channel.
func computeMACD(values []float64, fast, slow, signal int) MACDSeries {
	n := len(values)
	out := MACDSeries{Line: absentSeries(n), Signal: absentSeries(n), Histogram: absentSeries(n)}
	if n < slow {
		return out
	}

	fastEMA := computeEMA(values, fast)
	slowEMA := computeEMA(values, slow)
	line := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		f, okF := fastEMA.At(i)
		s, okS := slowEMA.At(i)
		if okF && okS {
			line = append(line, f-s)
		}
	}
	out.Line = alignSeries(n, line)

	if len(line) < signal {
		return out
	}
	signalEMA := computeEMA(line, signal)
	out.Signal = alignSeries(n, signalEMA.Tail(len(line)))

	hist := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		l, okL := out.Line.At(i)
		s, okS := out.Signal.At(i)
		if okL && okS {
			hist = append(hist, l-s)
		}
	}
	out.Histogram = alignSeries(n, hist)
	return out
}

func computeBollinger(values []float64, period int, stdDevs float64) BollingerSeries {
	n := len(values)
	middle := computeSMA(values, period)
	out := BollingerSeries{Upper: absentSeries(n), Middle: middle, Lower: absentSeries(n)}
	if !middle.Present() {
		return out
	}
	start := middle.Start
	if start < period-1 {
		start = period - 1
	}
	for i := start; i < n; i++ {
		m, _ := middle.At(i)
		var variance float64
		for _, v := range values[i-period+1 : i+1] {
			variance += (v - m) * (v - m)
		}
		sd := math.Sqrt(variance / float64(period))
		out.Upper.Values[i] = m + stdDevs*sd
		out.Lower.Values[i] = m - stdDevs*sd
	}
	out.Upper.Start = start
	out.Lower.Start = start
	return out
}

func computeATR(highs, lows, closes []float64, period int) Series {
	if period <= 0 || len(closes) <= period {
		return absentSeries(len(closes))
	}
	atr := volatility.NewAtrWithPeriod[float64](period)
	values := atr.Compute(helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes))
	return alignSeries(len(closes), helper.ChanToSlice(values))
}

func computeOBV(closes, volumes []float64) Series {
	if len(closes) < 2 {
		return absentSeries(len(closes))
	}
	obv := volume.NewObv[float64]()
	return alignSeries(len(closes), helper.ChanToSlice(obv.Compute(helper.SliceToChan(closes), helper.SliceToChan(volumes))))
}

func computeStochastic(highs, lows, closes []float64, kPeriod, dPeriod int) StochasticSeries {
	n := len(closes)
	out := StochasticSeries{K: absentSeries(n), D: absentSeries(n)}
	if kPeriod <= 0 || n < kPeriod {
		return out
	}
	k := make([]float64, 0, n-kPeriod+1)
	for i := kPeriod - 1; i < n; i++ {
		lowest, highest := lows[i], highs[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			lowest = math.Min(lowest, lows[j])
			highest = math.Max(highest, highs[j])
		}
		if highest == lowest {
			k = append(k, 50)
			continue
		}
		k = append(k, (closes[i]-lowest)/(highest-lowest)*100)
	}
	out.K = alignSeries(n, k)
	out.D = alignSeries(n, computeSMA(k, dPeriod).Tail(len(k)))
	return out
}

// detectLevels scans the recent bars for local extrema. A low that is the
// minimum of its window is a support candidate, a high that is the maximum
// is a resistance candidate. Nearby candidates are merged.
func detectLevels(bars []models.Bar, cfg config.IndicatorConfig) (supports, resistances []float64, ok bool) {
	w := cfg.SRWindow
	if len(bars) < 2*w+1 {
		return nil, nil, false
	}
	recent := bars
	if cfg.SRLookback > 0 && len(recent) > cfg.SRLookback {
		recent = recent[len(recent)-cfg.SRLookback:]
	}
	price := bars[len(bars)-1].Close

	var lowsFound, highsFound []float64
	for i := w; i < len(recent)-w; i++ {
		isLow, isHigh := true, true
		for j := i - w; j <= i+w; j++ {
			if j == i {
				continue
			}
			if recent[j].Low < recent[i].Low {
				isLow = false
			}
			if recent[j].High > recent[i].High {
				isHigh = false
			}
		}
		if isLow {
			lowsFound = append(lowsFound, recent[i].Low)
		}
		if isHigh {
			highsFound = append(highsFound, recent[i].High)
		}
	}

	for _, level := range mergeLevels(lowsFound, cfg.SRMergeTolerance) {
		if level < price {
			supports = append(supports, level)
		}
	}
	for _, level := range mergeLevels(highsFound, cfg.SRMergeTolerance) {
		if level > price {
			resistances = append(resistances, level)
		}
	}

	// keep the levels closest to price
	if len(supports) > cfg.MaxLevels {
		supports = supports[len(supports)-cfg.MaxLevels:]
	}
	if len(resistances) > cfg.MaxLevels {
		resistances = resistances[:cfg.MaxLevels]
	}
	return supports, resistances, true
}

// mergeLevels sorts levels and averages runs that sit within tolerance of
// the run's first level.
func mergeLevels(levels []float64, tolerance float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)

	var merged []float64
	anchor, sum, count := sorted[0], sorted[0], 1
	for _, v := range sorted[1:] {
		if anchor != 0 && (v-anchor)/math.Abs(anchor) <= tolerance {
			sum += v
			count++
			continue
		}
		merged = append(merged, sum/float64(count))
		anchor, sum, count = v, v, 1
	}
	return append(merged, sum/float64(count))
}
