package services

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/signalforge-go/internal/config"
)

// SignalType is the discrete trading signal.
type SignalType string

const (
	SignalStrongBuy  SignalType = "STRONG_BUY"
	SignalBuy        SignalType = "BUY"
	SignalWeakBuy    SignalType = "WEAK_BUY"
	SignalNeutral    SignalType = "NEUTRAL"
	SignalWeakSell   SignalType = "WEAK_SELL"
	SignalSell       SignalType = "SELL"
	SignalStrongSell SignalType = "STRONG_SELL"
)

// Direction returns +1 for buys, -1 for sells and 0 for neutral.
func (s SignalType) Direction() int {
	switch s {
	case SignalStrongBuy, SignalBuy, SignalWeakBuy:
		return 1
	case SignalStrongSell, SignalSell, SignalWeakSell:
		return -1
	}
	return 0
}

// Strong reports whether s is a STRONG_* category.
func (s SignalType) Strong() bool {
	return s == SignalStrongBuy || s == SignalStrongSell
}

// Factor names one scoring component.
type Factor string

const (
	FactorTrend             Factor = "trend"
	FactorMomentum          Factor = "momentum"
	FactorVolume            Factor = "volume"
	FactorVolatility        Factor = "volatility"
	FactorPattern           Factor = "pattern"
	FactorSupportResistance Factor = "support_resistance"
)

// Factors lists the scoring components in reporting order.
var Factors = []Factor{
	FactorTrend, FactorMomentum, FactorVolume, FactorVolatility, FactorPattern, FactorSupportResistance,
}

func factorWeight(w config.SignalWeights, f Factor) float64 {
	switch f {
	case FactorTrend:
		return w.Trend
	case FactorMomentum:
		return w.Momentum
	case FactorVolume:
		return w.Volume
	case FactorVolatility:
		return w.Volatility
	case FactorPattern:
		return w.Pattern
	case FactorSupportResistance:
		return w.SupportResistance
	}
	return 0
}

// ComponentScores holds one score in [-1,1] per factor. A nil score means
// the factor had no usable data and is excluded from the composite.
type ComponentScores struct {
	Trend             *float64 `json:"trend_score"`
	Momentum          *float64 `json:"momentum_score"`
	Volume            *float64 `json:"volume_score"`
	Volatility        *float64 `json:"volatility_score"`
	Pattern           *float64 `json:"pattern_score"`
	SupportResistance *float64 `json:"support_resistance_score"`
}

// Get returns the score for f.
func (c ComponentScores) Get(f Factor) *float64 {
	switch f {
	case FactorTrend:
		return c.Trend
	case FactorMomentum:
		return c.Momentum
	case FactorVolume:
		return c.Volume
	case FactorVolatility:
		return c.Volatility
	case FactorPattern:
		return c.Pattern
	case FactorSupportResistance:
		return c.SupportResistance
	}
	return nil
}

// SignalResult is the raw output of the signal generator.
type SignalResult struct {
	Signal           SignalType         `json:"signal"`
	Confidence       float64            `json:"confidence"`
	Composite        float64            `json:"composite_score"`
	ComponentScores  ComponentScores    `json:"component_scores"`
	EffectiveWeights map[Factor]float64 `json:"effective_weights"`
	ExcludedFactors  []Factor           `json:"excluded_factors"`
	Reasons          []string           `json:"reasons"`
	EntryPrice       float64            `json:"entry_price"`
	StopLoss         *float64           `json:"stop_loss"`
	TakeProfit       *float64           `json:"take_profit"`
	ATR              *float64           `json:"atr"`
	Patterns         []Pattern          `json:"patterns"`
	Divergences      []Divergence       `json:"divergences"`
}

// SignalGenerator scores factors and maps the composite to a SignalType.
type SignalGenerator struct {
	config config.SignalConfig
	logger *logrus.Logger
}

// NewSignalGenerator validates the weights before accepting them.
func NewSignalGenerator(cfg config.SignalConfig, logger *logrus.Logger) (*SignalGenerator, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signal weights: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SignalGenerator{config: cfg, logger: logger}, nil
}

// Generate produces the SignalResult for the latest bar.
func (g *SignalGenerator) Generate(set *IndicatorSet, regime MarketRegime) SignalResult {
	scores := ComponentScores{
		Trend:             trendScore(set),
		Momentum:          momentumScore(set),
		Volume:            volumeScore(set),
		Volatility:        volatilityScore(set, regime),
		Pattern:           patternScore(set),
		SupportResistance: supportResistanceScore(set, g.config.SRProximity),
	}

	composite, effective, excluded := g.combine(scores)
	signal := g.classify(composite)

	result := SignalResult{
		Signal:           signal,
		Confidence:       clamp(abs(composite), 0, 1),
		Composite:        composite,
		ComponentScores:  scores,
		EffectiveWeights: effective,
		ExcludedFactors:  excluded,
		EntryPrice:       set.LastClose(),
		Patterns:         set.Patterns,
		Divergences:      set.Divergences,
	}
	g.setLevels(&result, set)
	result.Reasons = g.reasons(result)

	g.logger.WithFields(logrus.Fields{
		"signal":     result.Signal,
		"composite":  composite,
		"confidence": result.Confidence,
		"excluded":   len(excluded),
	}).Debug("Generated signal")

	return result
}

// combine is the weighted mean over present factors. Absent factors drop
// out and the remaining weights are renormalized to sum to 1.
func (g *SignalGenerator) combine(scores ComponentScores) (float64, map[Factor]float64, []Factor) {
	var total float64
	var excluded []Factor
	for _, f := range Factors {
		if scores.Get(f) == nil {
			excluded = append(excluded, f)
			continue
		}
		total += factorWeight(g.config.Weights, f)
	}

	effective := make(map[Factor]float64, len(Factors))
	if total <= 0 {
		return 0, effective, excluded
	}

	var composite float64
	for _, f := range Factors {
		s := scores.Get(f)
		if s == nil {
			continue
		}
		w := factorWeight(g.config.Weights, f) / total
		effective[f] = w
		composite += w * *s
	}
	return clamp(composite, -1, 1), effective, excluded
}

func (g *SignalGenerator) classify(composite float64) SignalType {
	c := g.config
	switch {
	case composite > c.StrongThreshold:
		return SignalStrongBuy
	case composite > c.NormalThreshold:
		return SignalBuy
	case composite > c.WeakThreshold:
		return SignalWeakBuy
	case composite >= -c.WeakThreshold:
		return SignalNeutral
	case composite >= -c.NormalThreshold:
		return SignalWeakSell
	case composite >= -c.StrongThreshold:
		return SignalSell
	}
	return SignalStrongSell
}

// setLevels places stop and target ATR multiples away from entry. Neutral
// signals carry no levels. When ATR is unavailable a fixed fraction of
// price stands in for it.
func (g *SignalGenerator) setLevels(r *SignalResult, set *IndicatorSet) {
	atr, ok := set.ATR.Last()
	if !ok || atr <= 0 {
		atr = r.EntryPrice * g.config.FallbackATRPercent
	}
	if atr > 0 {
		r.ATR = ptr(atr)
	}

	dir := float64(r.Signal.Direction())
	if dir == 0 || atr <= 0 || r.EntryPrice <= 0 {
		return
	}
	stop := r.EntryPrice - dir*g.config.StopATRMultiple*atr
	target := r.EntryPrice + dir*g.config.TargetATRMultiple*atr
	if stop == r.EntryPrice || target == r.EntryPrice {
		return
	}
	r.StopLoss = ptr(stop)
	r.TakeProfit = ptr(target)
}

var factorDescriptions = map[Factor][2]string{
	FactorTrend:             {"price holding above its moving averages", "price holding below its moving averages"},
	FactorMomentum:          {"momentum favours buyers", "momentum favours sellers"},
	FactorVolume:            {"volume confirms the advance", "volume confirms the decline"},
	FactorVolatility:        {"price stretched toward the lower band", "price stretched toward the upper band"},
	FactorPattern:           {"bullish formations detected", "bearish formations detected"},
	FactorSupportResistance: {"price sitting near support", "price pressing into resistance"},
}

func (g *SignalGenerator) reasons(r SignalResult) []string {
	// a Caser is stateful, so each call gets its own
	caser := cases.Title(language.English)
	label := func(name string) string {
		return caser.String(strings.ReplaceAll(name, "_", " "))
	}

	var out []string
	for _, f := range Factors {
		s := r.ComponentScores.Get(f)
		if s == nil || abs(*s) <= g.config.ReasonThreshold {
			continue
		}
		desc := factorDescriptions[f][0]
		if *s < 0 {
			desc = factorDescriptions[f][1]
		}
		out = append(out, fmt.Sprintf("%s score %+.2f: %s", label(string(f)), *s, desc))
	}
	for _, p := range r.Patterns {
		out = append(out, fmt.Sprintf("Detected %s pattern", label(string(p))))
	}
	for _, d := range r.Divergences {
		out = append(out, fmt.Sprintf("Detected %s", label(string(d))))
	}
	if len(out) == 0 {
		out = append(out, fmt.Sprintf("No factor is decisive (composite %+.2f)", r.Composite))
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
