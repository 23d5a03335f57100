package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irfndi/signalforge-go/internal/config"
)

func newValidator() *SignalValidator {
	return NewSignalValidator(config.DefaultAnalysisConfig().Validator, quietLogger())
}

var allSignals = []SignalType{
	SignalStrongBuy, SignalBuy, SignalWeakBuy, SignalNeutral, SignalWeakSell, SignalSell, SignalStrongSell,
}

func TestCompatibility_Exhaustive(t *testing.T) {
	regimes := []MarketRegime{
		{Type: RegimeTrending, Direction: DirectionUp},
		{Type: RegimeTrending, Direction: DirectionDown},
		{Type: RegimeTrending, Direction: DirectionFlat},
		{Type: RegimeRanging, Direction: DirectionUp},
		{Type: RegimeVolatile, Direction: DirectionDown},
	}

	for _, regime := range regimes {
		for _, signal := range allSignals {
			got := Compatibility(signal, regime)

			var want float64
			switch regime.Type {
			case RegimeTrending:
				trend := map[TrendDirection]int{DirectionUp: 1, DirectionDown: -1}[regime.Direction]
				if dir := signal.Direction(); dir != 0 && trend != 0 {
					if dir == trend {
						want = 1
					} else {
						want = -1
					}
				}
			case RegimeVolatile:
				if signal.Strong() {
					want = -1
				}
			}
			assert.Equal(t, want, got, "%s in %s/%s", signal, regime.Type, regime.Direction)
			assert.Contains(t, []float64{-1, 0, 1}, got)
		}
	}
}

func TestSignalValidator_TrendFollowingBoost(t *testing.T) {
	regime := MarketRegime{Type: RegimeTrending, Direction: DirectionUp, Volatility: VolatilityNormal, TrendStrength: 0.8}

	for _, original := range []float64{0.5, 0.9} {
		result := newValidator().Validate(SignalResult{Signal: SignalBuy, Confidence: original}, regime, nil)

		assert.Equal(t, 1.0, result.RegimeCompatibility)
		assert.InDelta(t, min(1.0, original*1.2), result.AdjustedConfidence, 1e-9)
		assert.Equal(t, original, result.OriginalConfidence)
		assert.Equal(t, SignalBuy, result.ValidatedSignal)
		assert.Empty(t, result.WarningFlags)
	}
}

func TestSignalValidator_CounterTrendPenalty(t *testing.T) {
	regime := MarketRegime{Type: RegimeTrending, Direction: DirectionUp, Volatility: VolatilityNormal}
	result := newValidator().Validate(SignalResult{Signal: SignalStrongSell, Confidence: 0.8}, regime, nil)

	assert.Equal(t, -1.0, result.RegimeCompatibility)
	assert.True(t, result.HasWarning(WarningCounterTrend))
	assert.Equal(t, SignalSell, result.ValidatedSignal)
	assert.Equal(t, SignalStrongSell, result.Signal)
	assert.Less(t, result.AdjustedConfidence, result.OriginalConfidence)
}

func TestSignalValidator_Warnings(t *testing.T) {
	tests := []struct {
		name    string
		signal  SignalResult
		regime  MarketRegime
		warning string
	}{
		{
			name:    "high volatility",
			signal:  SignalResult{Signal: SignalBuy, Confidence: 0.6},
			regime:  MarketRegime{Type: RegimeRanging, Volatility: VolatilityHigh},
			warning: WarningHighVolatility,
		},
		{
			name:    "low confidence",
			signal:  SignalResult{Signal: SignalWeakBuy, Confidence: 0.15},
			regime:  MarketRegime{Type: RegimeRanging, Volatility: VolatilityNormal},
			warning: WarningLowConfidence,
		},
		{
			name:    "insufficient data",
			signal:  SignalResult{Signal: SignalBuy, Confidence: 0.5, ExcludedFactors: []Factor{FactorTrend}},
			regime:  MarketRegime{Type: RegimeRanging, Volatility: VolatilityNormal},
			warning: WarningInsufficientData,
		},
		{
			name:    "strong signal in volatile market",
			signal:  SignalResult{Signal: SignalStrongBuy, Confidence: 0.8},
			regime:  MarketRegime{Type: RegimeVolatile, Volatility: VolatilityHigh},
			warning: WarningCounterTrend,
		},
		{
			name: "weak confluence",
			signal: SignalResult{
				Signal:          SignalStrongBuy,
				Confidence:      0.75,
				ComponentScores: ComponentScores{Trend: ptr(0.1), Momentum: ptr(0.05)},
			},
			regime:  MarketRegime{Type: RegimeRanging, Volatility: VolatilityNormal},
			warning: WarningWeakConfluence,
		},
		{
			name: "trend and momentum conflict",
			signal: SignalResult{
				Signal:          SignalBuy,
				Confidence:      0.4,
				ComponentScores: ComponentScores{Trend: ptr(0.8), Momentum: ptr(-0.6)},
			},
			regime:  MarketRegime{Type: RegimeRanging, Volatility: VolatilityNormal},
			warning: WarningFactorConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newValidator().Validate(tt.signal, tt.regime, nil)
			assert.True(t, result.HasWarning(tt.warning), "warnings: %v", result.WarningFlags)
		})
	}
}

func TestSignalValidator_ProximityToResistance(t *testing.T) {
	set := &IndicatorSet{
		Bars:             barsFromCloses([]float64{100}),
		ResistanceLevels: []float64{101},
		LevelsDetected:   true,
	}
	regime := MarketRegime{Type: RegimeRanging, Volatility: VolatilityNormal}
	result := newValidator().Validate(SignalResult{Signal: SignalBuy, Confidence: 0.5}, regime, set)

	assert.True(t, result.HasWarning(WarningNearResistance))
	assert.InDelta(t, 0.45, result.AdjustedConfidence, 1e-9)
}

func TestSignalValidator_ConfidenceBounded(t *testing.T) {
	regimes := []MarketRegime{
		{Type: RegimeTrending, Direction: DirectionUp, Volatility: VolatilityLow},
		{Type: RegimeTrending, Direction: DirectionDown, Volatility: VolatilityHigh},
		{Type: RegimeRanging, Volatility: VolatilityNormal},
		{Type: RegimeVolatile, Volatility: VolatilityHigh},
	}
	for _, regime := range regimes {
		for _, signal := range allSignals {
			for _, conf := range []float64{0, 0.25, 0.5, 0.85, 1} {
				result := newValidator().Validate(SignalResult{Signal: signal, Confidence: conf}, regime, nil)
				assert.GreaterOrEqual(t, result.AdjustedConfidence, 0.0)
				assert.LessOrEqual(t, result.AdjustedConfidence, 1.0)
				if result.RegimeCompatibility <= 0 {
					assert.LessOrEqual(t, result.AdjustedConfidence, conf+1e-12)
				}
			}
		}
	}
}
