package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/utils"
)

func newCapitalManager() *CapitalManager {
	return NewCapitalManager(config.DefaultAnalysisConfig().Capital, quietLogger())
}

func baseRequest(entry, stop, target, confidence float64) CapitalRequest {
	return CapitalRequest{
		TotalCapital:           10000,
		RiskPercent:            2,
		MaxPositionSizePercent: 50,
		Instrument:             models.InstrumentEquity,
		EntryPrice:             entry,
		StopLoss:               ptr(stop),
		TakeProfit:             ptr(target),
		Validation: ValidationResult{
			SignalResult:       SignalResult{Signal: SignalBuy},
			ValidatedSignal:    SignalBuy,
			AdjustedConfidence: confidence,
		},
		Regime: MarketRegime{Type: RegimeRanging, Volatility: VolatilityNormal},
	}
}

func TestCapitalManager_StandardLongPosition(t *testing.T) {
	plan := newCapitalManager().Plan(baseRequest(100, 95, 115, 0.8))

	assert.InDelta(t, 200, plan.RiskAmountUSD, 1e-9)
	require.NotNil(t, plan.PerUnitRisk)
	assert.InDelta(t, 5, *plan.PerUnitRisk, 1e-9)
	require.NotNil(t, plan.PositionSizeUnits)
	assert.InDelta(t, 40, *plan.PositionSizeUnits, 1e-9)
	require.NotNil(t, plan.PositionSizeUSD)
	assert.InDelta(t, 4000, *plan.PositionSizeUSD, 1e-9)
	assert.InDelta(t, 40, *plan.PositionSizePercent, 1e-9)
	assert.False(t, plan.Capped)

	require.NotNil(t, plan.PotentialProfitUSD)
	assert.InDelta(t, 600, *plan.PotentialProfitUSD, 1e-9)
	require.NotNil(t, plan.StopLossUSD)
	assert.InDelta(t, 200, *plan.StopLossUSD, 1e-9)
	require.NotNil(t, plan.RiskRewardRatio)
	assert.InDelta(t, 3.0, *plan.RiskRewardRatio, 1e-9)

	// win rate 0.9 against a 3:1 payoff
	assert.InDelta(t, 0.9-0.1/3, plan.KellyCriterion, 1e-9)
	assert.InDelta(t, 2, plan.PortfolioRisk, 1e-9)
	assert.False(t, plan.PortfolioRiskExceeded)

	require.NotNil(t, plan.CapitalEfficiency)
	assert.Nil(t, plan.CapitalEfficiency.Error)
	require.NotNil(t, plan.CapitalEfficiency.ExpectedValue)
	assert.InDelta(t, 0.9*600-0.1*200, *plan.CapitalEfficiency.ExpectedValue, 1e-9)
	assert.InDelta(t, 25, *plan.CapitalEfficiency.OptimalPositionPercent, 1e-9)

	require.NotNil(t, plan.Units)
	assert.Equal(t, "shares", plan.Units.UnitLabel)
	assert.InDelta(t, 40, *plan.Units.WholeUnits, 1e-9)
}

func TestCapitalManager_DegenerateStop(t *testing.T) {
	plan := newCapitalManager().Plan(baseRequest(100, 100, 115, 0.8))

	require.NotNil(t, plan.CapitalEfficiency)
	require.NotNil(t, plan.CapitalEfficiency.Error)
	assert.Contains(t, *plan.CapitalEfficiency.Error, "stop distance")
	require.NotNil(t, plan.PositionSizeUSD)
	assert.Zero(t, *plan.PositionSizeUSD)
	assert.Nil(t, plan.RiskRewardRatio)
	assert.Zero(t, plan.KellyCriterion)
	assert.InDelta(t, 200, plan.RiskAmountUSD, 1e-9)
}

func TestCapitalManager_MissingStop(t *testing.T) {
	req := baseRequest(100, 95, 115, 0.5)
	req.StopLoss = nil
	req.TakeProfit = nil
	plan := newCapitalManager().Plan(req)

	require.NotNil(t, plan.CapitalEfficiency)
	require.NotNil(t, plan.CapitalEfficiency.Error)
	assert.Zero(t, *plan.PositionSizeUnits)
}

func TestCapitalManager_MissingTarget(t *testing.T) {
	req := baseRequest(100, 95, 115, 0.5)
	req.TakeProfit = nil
	plan := newCapitalManager().Plan(req)

	assert.InDelta(t, 4000, *plan.PositionSizeUSD, 1e-9)
	assert.Nil(t, plan.RiskRewardRatio)
	assert.Zero(t, plan.KellyCriterion)
	require.NotNil(t, plan.CapitalEfficiency.Error)
}

func TestCapitalManager_PositionNeverExceedsCapital(t *testing.T) {
	cm := newCapitalManager()
	for _, maxPct := range []float64{1, 25, 50, 100} {
		for _, stopDistance := range []float64{0.001, 0.01, 0.5, 2, 10, 60} {
			req := baseRequest(100, 100-stopDistance, 100+2*stopDistance, 0.6)
			req.MaxPositionSizePercent = maxPct
			plan := cm.Plan(req)

			require.NotNil(t, plan.PositionSizeUSD)
			assert.LessOrEqual(t, *plan.PositionSizeUSD, req.TotalCapital+1e-9)
			assert.LessOrEqual(t, *plan.PositionSizeUSD, req.TotalCapital*maxPct/100+1e-9)
			assert.LessOrEqual(t, *plan.StopLossUSD, plan.RiskAmountUSD+1e-9)
		}
	}
}

func TestCapitalManager_TightStopIsCapped(t *testing.T) {
	plan := newCapitalManager().Plan(baseRequest(100, 99.9, 100.3, 0.6))

	assert.True(t, plan.Capped)
	assert.InDelta(t, 5000, *plan.PositionSizeUSD, 1e-9)
	assert.InDelta(t, 50, *plan.PositionSizeUnits, 1e-9)
	assert.InDelta(t, 3, *plan.RiskRewardRatio, 1e-6)
}

func TestCapitalManager_RiskRewardRoundTrip(t *testing.T) {
	cm := newCapitalManager()
	cases := []struct{ entry, stop, target float64 }{
		{100, 95, 115},
		{100, 105, 85},
		{1.1000, 1.0950, 1.1200},
		{25000, 24000, 28000},
	}
	for _, c := range cases {
		plan := cm.Plan(baseRequest(c.entry, c.stop, c.target, 0.5))
		require.NotNil(t, plan.RiskRewardRatio)
		want := abs(c.target-c.entry) / abs(c.entry-c.stop)
		assert.InDelta(t, want, *plan.RiskRewardRatio, 1e-6)
		assert.InDelta(t, *plan.PotentialProfitUSD / *plan.StopLossUSD, *plan.RiskRewardRatio, 1e-9)
	}
}

func TestKelly_Bounds(t *testing.T) {
	for _, conf := range []float64{0, 0.1, 0.3, 0.5, 0.8, 1} {
		for _, rr := range []float64{0.01, 0.5, 1, 2, 3, 100} {
			k := kelly(conf, ptr(rr))
			assert.GreaterOrEqual(t, k, 0.0)
			assert.LessOrEqual(t, k, 1.0)
		}
		assert.Zero(t, kelly(conf, nil))
		assert.Zero(t, kelly(conf, ptr(0)))
	}
	assert.InDelta(t, 0.5, EstimatedWinRate(0), 1e-9)
	assert.InDelta(t, 1, EstimatedWinRate(1), 1e-9)
}

func TestCapitalManager_ZeroKellyIsNotAnError(t *testing.T) {
	// 1:5 payoff with a weak signal leaves no Kelly edge
	plan := newCapitalManager().Plan(baseRequest(100, 95, 101, 0.1))

	require.NotNil(t, plan.RiskRewardRatio)
	assert.InDelta(t, 0.2, *plan.RiskRewardRatio, 1e-9)
	assert.Zero(t, plan.KellyCriterion)

	eff := plan.CapitalEfficiency
	require.NotNil(t, eff)
	assert.Nil(t, eff.Error)
	require.NotNil(t, eff.ExpectedValue)
	assert.InDelta(t, 0.55*40-0.45*200, *eff.ExpectedValue, 1e-9)
	require.NotNil(t, eff.OptimalPositionPercent)
	assert.Zero(t, *eff.OptimalPositionPercent)
	require.NotNil(t, eff.PositionVsOptimal)
	assert.Zero(t, *eff.PositionVsOptimal)
}

func TestCapitalManager_VolatilityAdjustedSize(t *testing.T) {
	cm := newCapitalManager()

	req := baseRequest(100, 95, 115, 0.8)
	req.Regime = MarketRegime{Type: RegimeVolatile, Volatility: VolatilityHigh}
	plan := cm.Plan(req)
	assert.InDelta(t, 20, *plan.VolatilityAdjustedSize, 1e-9)

	req = baseRequest(100, 95, 115, 0.8)
	req.Regime = MarketRegime{Type: RegimeTrending, Direction: DirectionUp, Volatility: VolatilityNormal}
	req.Validation.RegimeCompatibility = 1
	plan = cm.Plan(req)
	assert.InDelta(t, 50, *plan.VolatilityAdjustedSize, 1e-9)
}

func TestCapitalManager_UnitConversion(t *testing.T) {
	cm := newCapitalManager()

	forex := cm.convertUnits(150000, CapitalRequest{Instrument: models.InstrumentForex, PipSize: defaultPipSize})
	assert.Equal(t, "units", forex.UnitLabel)
	assert.InDelta(t, 1.5, *forex.Lots, 1e-9)
	assert.InDelta(t, 15, *forex.MiniLots, 1e-9)
	assert.InDelta(t, 15, *forex.PipValue, 1e-9)

	jpy := cm.convertUnits(150000, CapitalRequest{Instrument: models.InstrumentForex, PipSize: jpyPipSize})
	assert.InDelta(t, 1500, *jpy.PipValue, 1e-9)

	crypto := cm.convertUnits(0.123456789123, CapitalRequest{Instrument: models.InstrumentCrypto})
	assert.Equal(t, "coins", crypto.UnitLabel)
	assert.InDelta(t, 0.12345678, crypto.Units, 1e-12)
	assert.Nil(t, crypto.WholeUnits)

	shares := cm.convertUnits(12.345678, CapitalRequest{Instrument: models.InstrumentIndex})
	assert.Equal(t, "shares", shares.UnitLabel)
	assert.InDelta(t, 12.3456, shares.Units, 1e-9)
	assert.InDelta(t, 12, *shares.WholeUnits, 1e-9)
}

func TestCapitalManager_ValidateRequest(t *testing.T) {
	cm := newCapitalManager()
	valid := CapitalRequest{TotalCapital: 1000, RiskPercent: 2, MaxPositionSizePercent: 50, Instrument: models.InstrumentCrypto}
	require.NoError(t, cm.ValidateRequest(valid))

	tests := []struct {
		name   string
		mutate func(*CapitalRequest)
	}{
		{"zero capital", func(r *CapitalRequest) { r.TotalCapital = 0 }},
		{"negative capital", func(r *CapitalRequest) { r.TotalCapital = -5 }},
		{"zero risk", func(r *CapitalRequest) { r.RiskPercent = 0 }},
		{"risk above max", func(r *CapitalRequest) { r.RiskPercent = 11 }},
		{"position above 100", func(r *CapitalRequest) { r.MaxPositionSizePercent = 150 }},
		{"unknown instrument", func(r *CapitalRequest) { r.Instrument = "bond" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := cm.ValidateRequest(req)
			require.Error(t, err)
			var ve *utils.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestSafeDivide(t *testing.T) {
	v, err := safeDivide(10, 4, "x")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	_, err = safeDivide(10, 0, "stop distance")
	var de *DegenerateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "stop distance", de.Quantity)

	_, err = safeDivide(10, 1e-15, "tiny")
	assert.Error(t, err)
}

func TestCapitalManager_Pyramid(t *testing.T) {
	cm := newCapitalManager()
	validation := ValidationResult{
		SignalResult:    SignalResult{Signal: SignalStrongBuy, EntryPrice: 100, ATR: ptr(2)},
		ValidatedSignal: SignalStrongBuy,
	}
	regime := MarketRegime{Type: RegimeTrending, Direction: DirectionUp, TrendStrength: 0.8}
	plan := CapitalPlan{TotalCapital: 10000, PositionSizeUnits: ptr(40), PositionSizeUSD: ptr(4000)}

	out := cm.Pyramid(validation, regime, plan)
	require.True(t, out.Eligible)
	require.Len(t, out.Levels, 3)

	total := 4000.0
	for _, level := range out.Levels {
		total += level.SizeUSD
	}
	require.NotNil(t, out.TotalPositionUSD)
	assert.InDelta(t, total, *out.TotalPositionUSD, 1e-9)
	require.NotNil(t, out.TotalPositionPercent)
	assert.InDelta(t, total/100, *out.TotalPositionPercent, 1e-9)

	assert.InDelta(t, 103, out.Levels[0].EntryPrice, 1e-9)
	assert.InDelta(t, 28, out.Levels[0].SizeUnits, 1e-9)
	assert.InDelta(t, 100, out.Levels[0].StopLoss, 1e-9)
	assert.InDelta(t, 106, out.Levels[1].EntryPrice, 1e-9)
	assert.InDelta(t, 19.6, out.Levels[1].SizeUnits, 1e-9)
	assert.InDelta(t, 103, out.Levels[1].StopLoss, 1e-9)
	assert.InDelta(t, 0.343, out.Levels[2].SizeFraction, 1e-9)

	validation.ValidatedSignal = SignalBuy
	assert.False(t, cm.Pyramid(validation, regime, plan).Eligible)

	validation.ValidatedSignal = SignalStrongBuy
	regime.TrendStrength = 0.2
	assert.False(t, cm.Pyramid(validation, regime, plan).Eligible)
}
