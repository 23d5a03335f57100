package services

import (
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
)

// Warning flags attached by the validator.
const (
	WarningHighVolatility   = "high volatility"
	WarningLowConfidence    = "low confidence"
	WarningCounterTrend     = "counter-trend signal"
	WarningInsufficientData = "insufficient data"
	WarningWeakConfluence   = "strong signal with weak trend and momentum"
	WarningNearResistance   = "buy signal near resistance"
	WarningNearSupport      = "sell signal near support"
	WarningFactorConflict   = "trend and momentum disagree"
)

const (
	compatibleMultiplier   = 1.2
	neutralMultiplier      = 1.0
	incompatibleMultiplier = 0.6

	weakConfluencePenalty = 0.85
	proximityPenalty      = 0.9
	conflictPenalty       = 0.85
)

// ValidationResult wraps a SignalResult with regime-adjusted confidence.
type ValidationResult struct {
	SignalResult
	ValidatedSignal     SignalType `json:"validated_signal"`
	OriginalConfidence  float64    `json:"original_confidence"`
	AdjustedConfidence  float64    `json:"adjusted_confidence"`
	RegimeCompatibility float64    `json:"regime_compatibility"`
	WarningFlags        []string   `json:"warning_flags"`
}

// HasWarning reports whether flag was raised.
func (v ValidationResult) HasWarning(flag string) bool {
	for _, f := range v.WarningFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// SignalValidator adjusts confidence for the current regime.
type SignalValidator struct {
	config config.ValidatorConfig
	logger *logrus.Logger
}

// NewSignalValidator creates a validator.
func NewSignalValidator(cfg config.ValidatorConfig, logger *logrus.Logger) *SignalValidator {
	if logger == nil {
		logger = logrus.New()
	}
	return &SignalValidator{config: cfg, logger: logger}
}

// Validate applies the regime multiplier and the confluence checks. Every
// check other than the +1 regime multiplier can only lower confidence.
func (sv *SignalValidator) Validate(signal SignalResult, regime MarketRegime, set *IndicatorSet) ValidationResult {
	compat := Compatibility(signal.Signal, regime)
	result := ValidationResult{
		SignalResult:        signal,
		ValidatedSignal:     signal.Signal,
		OriginalConfidence:  signal.Confidence,
		RegimeCompatibility: compat,
	}

	adjusted := clamp(signal.Confidence*compatibilityMultiplier(compat), 0, 1)

	if regime.Volatility == VolatilityHigh {
		result.addWarning(WarningHighVolatility)
	}
	if compat < 0 {
		result.addWarning(WarningCounterTrend)
		if signal.Signal.Strong() {
			result.ValidatedSignal = downgrade(signal.Signal)
		}
	}
	if len(signal.ExcludedFactors) > 0 || regime.Insufficient {
		result.addWarning(WarningInsufficientData)
	}

	dir := signal.Signal.Direction()
	trend := signal.ComponentScores.Trend
	momentum := signal.ComponentScores.Momentum

	if signal.Signal.Strong() && weak(trend, sv.config.WeakFactorThreshold) && weak(momentum, sv.config.WeakFactorThreshold) {
		adjusted *= weakConfluencePenalty
		result.addWarning(WarningWeakConfluence)
	}

	if set != nil && dir != 0 {
		price := set.LastClose()
		if dir > 0 && len(set.ResistanceLevels) > 0 && price > 0 &&
			(set.ResistanceLevels[0]-price)/price <= sv.config.ProximityPercent {
			adjusted *= proximityPenalty
			result.addWarning(WarningNearResistance)
		}
		if dir < 0 && len(set.SupportLevels) > 0 && price > 0 &&
			(price-set.SupportLevels[len(set.SupportLevels)-1])/price <= sv.config.ProximityPercent {
			adjusted *= proximityPenalty
			result.addWarning(WarningNearSupport)
		}
	}

	if trend != nil && momentum != nil && *trend*(*momentum) < 0 &&
		abs(*trend) > sv.config.WeakFactorThreshold && abs(*momentum) > sv.config.WeakFactorThreshold {
		adjusted *= conflictPenalty
		result.addWarning(WarningFactorConflict)
	}

	result.AdjustedConfidence = clamp(adjusted, 0, 1)
	if result.AdjustedConfidence < sv.config.LowConfidenceThreshold {
		result.addWarning(WarningLowConfidence)
	}

	sv.logger.WithFields(logrus.Fields{
		"signal":        signal.Signal,
		"validated":     result.ValidatedSignal,
		"compatibility": compat,
		"original":      result.OriginalConfidence,
		"adjusted":      result.AdjustedConfidence,
		"warnings":      len(result.WarningFlags),
	}).Debug("Validated signal")

	return result
}

// Compatibility scores how well a signal fits the regime: +1 when it
// follows a trend, -1 when it fights one or is a STRONG_* call in a
// volatile market, 0 otherwise.
func Compatibility(signal SignalType, regime MarketRegime) float64 {
	dir := signal.Direction()
	switch regime.Type {
	case RegimeVolatile:
		if signal.Strong() {
			return -1
		}
	case RegimeTrending:
		trendDir := 0
		switch regime.Direction {
		case DirectionUp:
			trendDir = 1
		case DirectionDown:
			trendDir = -1
		}
		if dir == 0 || trendDir == 0 {
			return 0
		}
		if dir == trendDir {
			return 1
		}
		return -1
	}
	return 0
}

func compatibilityMultiplier(compat float64) float64 {
	switch {
	case compat > 0:
		return compatibleMultiplier
	case compat < 0:
		return incompatibleMultiplier
	}
	return neutralMultiplier
}

func downgrade(s SignalType) SignalType {
	switch s {
	case SignalStrongBuy:
		return SignalBuy
	case SignalStrongSell:
		return SignalSell
	}
	return s
}

func weak(score *float64, threshold float64) bool {
	return score == nil || abs(*score) < threshold
}

func (v *ValidationResult) addWarning(flag string) {
	if !v.HasWarning(flag) {
		v.WarningFlags = append(v.WarningFlags, flag)
	}
}
