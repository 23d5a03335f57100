package config

import (
	"fmt"
	"math"

	"github.com/creasty/defaults"
)

// AnalysisConfig holds every tunable of the signal pipeline. Zero values
// are replaced by the `default` tags, so a partial override only needs the
// fields it changes.
type AnalysisConfig struct {
	Indicators IndicatorConfig `mapstructure:"indicators" json:"indicators"`
	Regime     RegimeConfig    `mapstructure:"regime" json:"regime"`
	Signal     SignalConfig    `mapstructure:"signal" json:"signal"`
	Validator  ValidatorConfig `mapstructure:"validator" json:"validator"`
	Capital    CapitalConfig   `mapstructure:"capital" json:"capital"`
}

// IndicatorConfig sets the indicator windows.
type IndicatorConfig struct {
	SMAShort           int     `mapstructure:"sma_short" json:"sma_short" default:"20" validate:"gt=0"`
	SMAMedium          int     `mapstructure:"sma_medium" json:"sma_medium" default:"50" validate:"gt=0"`
	SMALong            int     `mapstructure:"sma_long" json:"sma_long" default:"200" validate:"gt=0"`
	EMAFast            int     `mapstructure:"ema_fast" json:"ema_fast" default:"9" validate:"gt=0"`
	EMASlow            int     `mapstructure:"ema_slow" json:"ema_slow" default:"21" validate:"gt=0"`
	RSIPeriod          int     `mapstructure:"rsi_period" json:"rsi_period" default:"14" validate:"gt=1"`
	MACDFast           int     `mapstructure:"macd_fast" json:"macd_fast" default:"12" validate:"gt=0"`
	MACDSlow           int     `mapstructure:"macd_slow" json:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal         int     `mapstructure:"macd_signal" json:"macd_signal" default:"9" validate:"gt=0"`
	BollingerPeriod    int     `mapstructure:"bollinger_period" json:"bollinger_period" default:"20" validate:"gt=1"`
	BollingerStdDev    float64 `mapstructure:"bollinger_std_dev" json:"bollinger_std_dev" default:"2" validate:"gt=0"`
	ATRPeriod          int     `mapstructure:"atr_period" json:"atr_period" default:"14" validate:"gt=0"`
	VolumePeriod       int     `mapstructure:"volume_period" json:"volume_period" default:"20" validate:"gt=0"`
	StochasticK        int     `mapstructure:"stochastic_k" json:"stochastic_k" default:"14" validate:"gt=0"`
	StochasticD        int     `mapstructure:"stochastic_d" json:"stochastic_d" default:"3" validate:"gt=0"`
	SRWindow           int     `mapstructure:"sr_window" json:"sr_window" default:"2" validate:"gt=0"`
	SRLookback         int     `mapstructure:"sr_lookback" json:"sr_lookback" default:"100" validate:"gt=0"`
	SRMergeTolerance   float64 `mapstructure:"sr_merge_tolerance" json:"sr_merge_tolerance" default:"0.005" validate:"gte=0,lt=1"`
	MaxLevels          int     `mapstructure:"max_levels" json:"max_levels" default:"3" validate:"gt=0"`
	DivergenceLookback int     `mapstructure:"divergence_lookback" json:"divergence_lookback" default:"14" validate:"gt=1"`
}

// RegimeConfig sets the regime classifier thresholds.
type RegimeConfig struct {
	Window                 int     `mapstructure:"window" json:"window" default:"20" validate:"gt=1"`
	VolatilityLookback     int     `mapstructure:"volatility_lookback" json:"volatility_lookback" default:"100" validate:"gt=1"`
	TrendStrengthThreshold float64 `mapstructure:"trend_strength_threshold" json:"trend_strength_threshold" default:"0.6" validate:"gt=0,lte=1"`
	RangeATRThreshold      float64 `mapstructure:"range_atr_threshold" json:"range_atr_threshold" default:"4" validate:"gt=0"`
	VolatileATRRatio       float64 `mapstructure:"volatile_atr_ratio" json:"volatile_atr_ratio" default:"1.5" validate:"gt=1"`
	DirectionalATRMultiple float64 `mapstructure:"directional_atr_multiple" json:"directional_atr_multiple" default:"5" validate:"gt=0"`
	LowVolPercentile       float64 `mapstructure:"low_vol_percentile" json:"low_vol_percentile" default:"0.33" validate:"gt=0,lt=1"`
	HighVolPercentile      float64 `mapstructure:"high_vol_percentile" json:"high_vol_percentile" default:"0.67" validate:"gtfield=LowVolPercentile,lt=1"`
}

// SignalConfig sets factor weights and the category thresholds.
type SignalConfig struct {
	Weights            SignalWeights `mapstructure:"weights" json:"weights"`
	StrongThreshold    float64       `mapstructure:"strong_threshold" json:"strong_threshold" default:"0.7" validate:"gtfield=NormalThreshold,lte=1"`
	NormalThreshold    float64       `mapstructure:"normal_threshold" json:"normal_threshold" default:"0.3" validate:"gtfield=WeakThreshold"`
	WeakThreshold      float64       `mapstructure:"weak_threshold" json:"weak_threshold" default:"0.1" validate:"gte=0"`
	StopATRMultiple    float64       `mapstructure:"stop_atr_multiple" json:"stop_atr_multiple" default:"1.5" validate:"gt=0"`
	TargetATRMultiple  float64       `mapstructure:"target_atr_multiple" json:"target_atr_multiple" default:"2.5" validate:"gt=0"`
	ReasonThreshold    float64       `mapstructure:"reason_threshold" json:"reason_threshold" default:"0.2" validate:"gte=0,lte=1"`
	FallbackATRPercent float64       `mapstructure:"fallback_atr_percent" json:"fallback_atr_percent" default:"0.02" validate:"gt=0,lt=1"`
	SRProximity        float64       `mapstructure:"sr_proximity" json:"sr_proximity" default:"0.02" validate:"gt=0,lt=1"`
}

// SignalWeights are the composite weights of the six scoring factors.
// They must sum to 1.
type SignalWeights struct {
	Trend             float64 `mapstructure:"trend" json:"trend" validate:"gte=0,lte=1"`
	Momentum          float64 `mapstructure:"momentum" json:"momentum" validate:"gte=0,lte=1"`
	Volume            float64 `mapstructure:"volume" json:"volume" validate:"gte=0,lte=1"`
	Volatility        float64 `mapstructure:"volatility" json:"volatility" validate:"gte=0,lte=1"`
	Pattern           float64 `mapstructure:"pattern" json:"pattern" validate:"gte=0,lte=1"`
	SupportResistance float64 `mapstructure:"support_resistance" json:"support_resistance" validate:"gte=0,lte=1"`
}

const weightTolerance = 1e-6

// DefaultSignalWeights mirrors the factor emphasis used in production.
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Trend:             0.30,
		Momentum:          0.20,
		Volume:            0.15,
		Volatility:        0.10,
		Pattern:           0.10,
		SupportResistance: 0.15,
	}
}

// EqualSignalWeights gives every factor the same weight.
func EqualSignalWeights() SignalWeights {
	w := 1.0 / 6.0
	return SignalWeights{Trend: w, Momentum: w, Volume: w, Volatility: w, Pattern: w, SupportResistance: w}
}

// Sum returns the total weight.
func (w SignalWeights) Sum() float64 {
	return w.Trend + w.Momentum + w.Volume + w.Volatility + w.Pattern + w.SupportResistance
}

// OrDefault returns the default weights when none were configured.
func (w SignalWeights) OrDefault() SignalWeights {
	if w.Sum() == 0 {
		return DefaultSignalWeights()
	}
	return w
}

// Validate rejects negative weights and weights that do not sum to 1.
func (w SignalWeights) Validate() error {
	for name, v := range map[string]float64{
		"trend": w.Trend, "momentum": w.Momentum, "volume": w.Volume,
		"volatility": w.Volatility, "pattern": w.Pattern, "support_resistance": w.SupportResistance,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// ValidatorConfig sets signal validation thresholds.
type ValidatorConfig struct {
	LowConfidenceThreshold float64 `mapstructure:"low_confidence_threshold" json:"low_confidence_threshold" default:"0.3" validate:"gte=0,lte=1"`
	ProximityPercent       float64 `mapstructure:"proximity_percent" json:"proximity_percent" default:"0.02" validate:"gt=0,lt=1"`
	WeakFactorThreshold    float64 `mapstructure:"weak_factor_threshold" json:"weak_factor_threshold" default:"0.3" validate:"gte=0,lte=1"`
}

// CapitalConfig sets the position sizing defaults and caps.
type CapitalConfig struct {
	DefaultCapital          float64 `mapstructure:"default_capital" json:"default_capital" default:"10000" validate:"gt=0"`
	DefaultRiskPercent      float64 `mapstructure:"default_risk_percent" json:"default_risk_percent" default:"2" validate:"gt=0,lte=10"`
	MaxRiskPercent          float64 `mapstructure:"max_risk_percent" json:"max_risk_percent" default:"10" validate:"gt=0,lte=100"`
	MaxPositionSizePercent  float64 `mapstructure:"max_position_size_percent" json:"max_position_size_percent" default:"50" validate:"gt=0,lte=100"`
	HighVolatilityFactor    float64 `mapstructure:"high_volatility_factor" json:"high_volatility_factor" default:"0.5" validate:"gt=0,lte=1"`
	TrendingBoost           float64 `mapstructure:"trending_boost" json:"trending_boost" default:"1.25" validate:"gte=1"`
	MaxOptimalPosition      float64 `mapstructure:"max_optimal_position" json:"max_optimal_position" default:"0.25" validate:"gt=0,lte=1"`
	PyramidLevels           int     `mapstructure:"pyramid_levels" json:"pyramid_levels" default:"3" validate:"gte=0"`
	PyramidScale            float64 `mapstructure:"pyramid_scale" json:"pyramid_scale" default:"0.7" validate:"gt=0,lte=1"`
	PyramidATRSpacing       float64 `mapstructure:"pyramid_atr_spacing" json:"pyramid_atr_spacing" default:"1.5" validate:"gt=0"`
	PyramidMinTrendStrength float64 `mapstructure:"pyramid_min_trend_strength" json:"pyramid_min_trend_strength" default:"0.5" validate:"gte=0,lte=1"`
}

// DefaultAnalysisConfig returns a fully populated configuration.
func DefaultAnalysisConfig() AnalysisConfig {
	var cfg AnalysisConfig
	// defaults.Set only fails on malformed tags.
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("analysis defaults: %v", err))
	}
	cfg.Signal.Weights = DefaultSignalWeights()
	return cfg
}
