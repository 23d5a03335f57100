package services

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/utils"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(config.DefaultAnalysisConfig(), quietLogger())
	require.NoError(t, err)
	return a
}

func TestAnalyzer_FullPipeline(t *testing.T) {
	bars := barsFromCloses(randomWalkCloses(250, 42))
	result, err := newAnalyzer(t).Analyze(AnalysisInput{
		Symbol:      "AAPL",
		Timeframe:   models.Timeframe1d,
		Period:      models.Period1y,
		Bars:        bars,
		Capital:     10000,
		RiskPercent: 2,
		Instrument:  models.InstrumentEquity,
	})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, bars[len(bars)-1].Close, result.LastPrice)
	assert.Equal(t, bars[len(bars)-1].Timestamp, result.LastUpdated)
	assert.Equal(t, 250, result.Indicators.BarCount)
	assert.Contains(t, result.Indicators.SMA, "sma_200")
	assert.NotNil(t, result.Indicators.SMA["sma_200"])
	assert.NotNil(t, result.Indicators.RSI)
	assert.NotNil(t, result.Indicators.ATR)

	assert.Contains(t, allSignals, result.Signals.ValidatedSignal)
	assert.GreaterOrEqual(t, result.Signals.AdjustedConfidence, 0.0)
	assert.LessOrEqual(t, result.Signals.AdjustedConfidence, 1.0)
	assert.Equal(t, 50.0, result.CapitalPlan.MaxPositionSizePercent)
	assert.NotNil(t, result.CapitalPlan.CapitalEfficiency)

	_, err = json.Marshal(result)
	assert.NoError(t, err)
}

func TestAnalyzer_Idempotent(t *testing.T) {
	a := newAnalyzer(t)
	in := AnalysisInput{
		Symbol:      "BTC-USD",
		Bars:        barsFromCloses(randomWalkCloses(150, 9)),
		Capital:     5000,
		RiskPercent: 1,
		Instrument:  models.InstrumentCrypto,
	}
	first, err := a.Analyze(in)
	require.NoError(t, err)
	second, err := a.Analyze(in)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestAnalyzer_NeutralSignalMarksCapitalError(t *testing.T) {
	// thresholds no composite can clear
	params := config.AnalysisConfig{}
	params.Signal.WeakThreshold = 0.999
	params.Signal.NormalThreshold = 0.9995
	params.Signal.StrongThreshold = 0.9999

	result, err := newAnalyzer(t).Analyze(AnalysisInput{
		Symbol:      "FLAT",
		Bars:        barsFromCloses(randomWalkCloses(120, 21)),
		Capital:     10000,
		RiskPercent: 2,
		Instrument:  models.InstrumentEquity,
		Params:      &params,
	})
	require.NoError(t, err)

	assert.Equal(t, SignalNeutral, result.Signals.ValidatedSignal)
	assert.Nil(t, result.Signals.StopLoss)
	require.NotNil(t, result.CapitalPlan.CapitalEfficiency)
	assert.NotNil(t, result.CapitalPlan.CapitalEfficiency.Error)
	assert.Zero(t, *result.CapitalPlan.PositionSizeUSD)
	assert.False(t, result.Pyramiding.Eligible)
}

func TestAnalyzer_ShortSeries(t *testing.T) {
	result, err := newAnalyzer(t).Analyze(AnalysisInput{
		Symbol:      "NEW",
		Bars:        barsFromCloses(linearCloses(10, 50, 0.5)),
		Capital:     1000,
		RiskPercent: 1,
		Instrument:  models.InstrumentEquity,
	})
	require.NoError(t, err)

	assert.Nil(t, result.Indicators.SMA["sma_200"])
	assert.True(t, result.Regime.Insufficient)
	assert.True(t, result.Signals.HasWarning(WarningInsufficientData))
}

func TestAnalyzer_RejectsInvalidInput(t *testing.T) {
	bars := barsFromCloses(linearCloses(30, 100, 1))
	valid := AnalysisInput{Symbol: "X", Bars: bars, Capital: 1000, RiskPercent: 2, Instrument: models.InstrumentEquity}

	tests := []struct {
		name   string
		mutate func(*AnalysisInput)
	}{
		{"no bars", func(in *AnalysisInput) { in.Bars = nil }},
		{"zero capital", func(in *AnalysisInput) { in.Capital = 0 }},
		{"negative risk", func(in *AnalysisInput) { in.RiskPercent = -1 }},
		{"risk above max", func(in *AnalysisInput) { in.RiskPercent = 50 }},
		{"unknown instrument", func(in *AnalysisInput) { in.Instrument = "bond" }},
		{"position cap above 100", func(in *AnalysisInput) { in.MaxPositionSizePercent = 120 }},
		{"unordered bars", func(in *AnalysisInput) {
			in.Bars = append([]models.Bar(nil), bars...)
			in.Bars[5], in.Bars[6] = in.Bars[6], in.Bars[5]
		}},
		{"nan close", func(in *AnalysisInput) {
			in.Bars = append([]models.Bar(nil), bars...)
			in.Bars[len(in.Bars)-1].Close = math.NaN()
		}},
		{"high below low", func(in *AnalysisInput) {
			in.Bars = append([]models.Bar(nil), bars...)
			in.Bars[3].High = in.Bars[3].Low - 1
		}},
		{"weights not summing to one", func(in *AnalysisInput) {
			params := config.AnalysisConfig{}
			params.Signal.Weights = config.SignalWeights{Trend: 0.9, Momentum: 0.9}
			in.Params = &params
		}},
	}

	a := newAnalyzer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := a.Analyze(in)
			require.Error(t, err)
			var ve *utils.ValidationError
			assert.True(t, errors.As(err, &ve), "got %T: %v", err, err)
		})
	}
}

func TestAnalyzer_ParamsOverride(t *testing.T) {
	params := config.AnalysisConfig{}
	params.Signal.Weights = config.EqualSignalWeights()
	params.Capital.MaxPositionSizePercent = 20

	result, err := newAnalyzer(t).Analyze(AnalysisInput{
		Symbol:      "MSFT",
		Bars:        barsFromCloses(randomWalkCloses(220, 5)),
		Capital:     10000,
		RiskPercent: 2,
		Instrument:  models.InstrumentEquity,
		Params:      &params,
	})
	require.NoError(t, err)

	assert.Equal(t, 20.0, result.CapitalPlan.MaxPositionSizePercent)
	for f, w := range result.Signals.EffectiveWeights {
		assert.InDelta(t, 1.0/float64(len(result.Signals.EffectiveWeights)), w, 1e-9, "factor %s", f)
	}
	if result.CapitalPlan.PositionSizeUSD != nil {
		assert.LessOrEqual(t, *result.CapitalPlan.PositionSizeUSD, 2000.0+1e-9)
	}
}

func TestAnalyzer_JPYPairUsesWidePip(t *testing.T) {
	closes := linearCloses(120, 150, 0.05)
	result, err := newAnalyzer(t).Analyze(AnalysisInput{
		Symbol:      "USDJPY=X",
		Bars:        barsFromCloses(closes),
		Capital:     10000,
		RiskPercent: 2,
		Instrument:  models.InstrumentForex,
	})
	require.NoError(t, err)

	if units := result.CapitalPlan.Units; units != nil {
		require.NotNil(t, units.PipValue)
		assert.InDelta(t, units.Units*jpyPipSize, *units.PipValue, 0.01)
	}
}
