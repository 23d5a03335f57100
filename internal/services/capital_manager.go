package services

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/utils"
)

const (
	standardLot     = 100000
	miniLot         = 10000
	defaultPipSize  = 0.0001
	jpyPipSize      = 0.01
	cryptoPrecision = 8
	sharePrecision  = 4
	divideEpsilon   = 1e-12
)

// DegenerateError reports a division whose denominator was zero or
// vanishingly small.
type DegenerateError struct {
	Quantity string
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("degenerate computation: %s is zero", e.Quantity)
}

// safeDivide is the only division used for money math.
func safeDivide(num, den float64, quantity string) (float64, error) {
	if math.IsNaN(den) || math.Abs(den) < divideEpsilon {
		return 0, &DegenerateError{Quantity: quantity}
	}
	out := num / den
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, &DegenerateError{Quantity: quantity}
	}
	return out, nil
}

// CapitalRequest is the input to the capital manager.
type CapitalRequest struct {
	TotalCapital           float64
	RiskPercent            float64
	MaxPositionSizePercent float64
	Instrument             models.InstrumentClass
	PipSize                float64
	EntryPrice             float64
	StopLoss               *float64
	TakeProfit             *float64
	Validation             ValidationResult
	Regime                 MarketRegime
}

// UnitBreakdown expresses a position in the instrument's native units.
type UnitBreakdown struct {
	Units      float64  `json:"units"`
	UnitLabel  string   `json:"unit_label"`
	WholeUnits *float64 `json:"whole_units,omitempty"`
	Lots       *float64 `json:"lots,omitempty"`
	MiniLots   *float64 `json:"mini_lots,omitempty"`
	PipValue   *float64 `json:"pip_value,omitempty"`
}

// CapitalEfficiency is an optional extension of the plan. When Error is
// set the numeric fields are not meaningful.
type CapitalEfficiency struct {
	ExpectedValue          *float64 `json:"expected_value,omitempty"`
	CapitalUsagePercent    *float64 `json:"capital_usage_percent,omitempty"`
	EstimatedWinRate       *float64 `json:"estimated_win_rate,omitempty"`
	KellyCriterion         *float64 `json:"kelly_criterion,omitempty"`
	OptimalPositionPercent *float64 `json:"optimal_position_percent,omitempty"`
	PositionVsOptimal      *float64 `json:"position_vs_optimal,omitempty"`
	Error                  *string  `json:"error,omitempty"`
}

// CapitalPlan is the position sizing recommendation.
type CapitalPlan struct {
	TotalCapital           float64                `json:"total_capital"`
	RiskPercent            float64                `json:"risk_percent"`
	MaxPositionSizePercent float64                `json:"max_position_size_percent"`
	Instrument             models.InstrumentClass `json:"instrument_class"`
	RiskAmountUSD          float64                `json:"risk_amount_usd"`
	PerUnitRisk            *float64               `json:"per_unit_risk"`
	PositionSizeUSD        *float64               `json:"position_size_usd"`
	PositionSizeUnits      *float64               `json:"position_size_units"`
	PositionSizePercent    *float64               `json:"position_size_percent"`
	Units                  *UnitBreakdown         `json:"units,omitempty"`
	StopLossUSD            *float64               `json:"stop_loss_usd"`
	PotentialProfitUSD     *float64               `json:"potential_profit_usd"`
	RiskRewardRatio        *float64               `json:"risk_reward_ratio"`
	KellyCriterion         float64                `json:"kelly_criterion"`
	VolatilityAdjustedSize *float64               `json:"volatility_adjusted_size"`
	PortfolioRisk          float64                `json:"portfolio_risk"`
	PortfolioRiskExceeded  bool                   `json:"portfolio_risk_exceeded"`
	Capped                 bool                   `json:"capped"`
	CapitalEfficiency      *CapitalEfficiency     `json:"capital_efficiency"`
}

// CapitalManager sizes positions.
type CapitalManager struct {
	config config.CapitalConfig
	logger *logrus.Logger
}

// NewCapitalManager creates a capital manager.
func NewCapitalManager(cfg config.CapitalConfig, logger *logrus.Logger) *CapitalManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &CapitalManager{config: cfg, logger: logger}
}

// ValidateRequest rejects parameters that make sizing meaningless.
func (cm *CapitalManager) ValidateRequest(req CapitalRequest) error {
	if !(req.TotalCapital > 0) || math.IsInf(req.TotalCapital, 0) {
		return utils.NewValidationErrorf("total capital must be positive, got %v", req.TotalCapital)
	}
	if !(req.RiskPercent > 0) || req.RiskPercent > cm.config.MaxRiskPercent {
		return utils.NewValidationErrorf("risk percent must be in (0, %g], got %v", cm.config.MaxRiskPercent, req.RiskPercent)
	}
	if !(req.MaxPositionSizePercent > 0) || req.MaxPositionSizePercent > 100 {
		return utils.NewValidationErrorf("max position size percent must be in (0, 100], got %v", req.MaxPositionSizePercent)
	}
	if !req.Instrument.Valid() {
		return utils.NewValidationErrorf("unknown instrument class %q", req.Instrument)
	}
	return nil
}

// Plan computes the capital plan. Degenerate arithmetic never fails the
// call; it is reported through CapitalEfficiency.Error with the position
// left at zero.
func (cm *CapitalManager) Plan(req CapitalRequest) CapitalPlan {
	plan := CapitalPlan{
		TotalCapital:           req.TotalCapital,
		RiskPercent:            req.RiskPercent,
		MaxPositionSizePercent: req.MaxPositionSizePercent,
		Instrument:             req.Instrument,
		RiskAmountUSD:          req.TotalCapital * req.RiskPercent / 100,
	}
	plan.PortfolioRisk = cm.portfolioRisk(plan)
	plan.PortfolioRiskExceeded = plan.PortfolioRisk > cm.config.MaxRiskPercent

	fail := func(err error) CapitalPlan {
		msg := err.Error()
		plan.PositionSizeUSD = ptr(0)
		plan.PositionSizeUnits = ptr(0)
		plan.PositionSizePercent = ptr(0)
		plan.CapitalEfficiency = &CapitalEfficiency{Error: &msg}
		cm.logger.WithFields(logrus.Fields{
			"entry": req.EntryPrice,
			"error": msg,
		}).Warn("Capital plan degenerate")
		return plan
	}

	if req.StopLoss == nil {
		return fail(&DegenerateError{Quantity: "stop distance (no stop loss)"})
	}
	perUnitRisk := math.Abs(req.EntryPrice - *req.StopLoss)
	rawUnits, err := safeDivide(plan.RiskAmountUSD, perUnitRisk, "stop distance")
	if err != nil {
		return fail(err)
	}
	plan.PerUnitRisk = ptr(perUnitRisk)

	units := rawUnits
	positionUSD := units * req.EntryPrice
	capUSD := math.Min(req.TotalCapital*req.MaxPositionSizePercent/100, req.TotalCapital)
	if positionUSD > capUSD {
		if units, err = safeDivide(capUSD, req.EntryPrice, "entry price"); err != nil {
			return fail(err)
		}
		positionUSD = capUSD
		plan.Capped = true
	}

	positionPct, err := safeDivide(positionUSD*100, req.TotalCapital, "total capital")
	if err != nil {
		return fail(err)
	}
	plan.PositionSizeUSD = ptr(positionUSD)
	plan.PositionSizeUnits = ptr(units)
	plan.PositionSizePercent = ptr(positionPct)
	plan.StopLossUSD = ptr(units * perUnitRisk)
	plan.Units = cm.convertUnits(units, req)

	if req.TakeProfit != nil {
		plan.PotentialProfitUSD = ptr(units * math.Abs(*req.TakeProfit-req.EntryPrice))
		if rr, err := safeDivide(*plan.PotentialProfitUSD, *plan.StopLossUSD, "stop loss amount"); err == nil {
			plan.RiskRewardRatio = ptr(rr)
		}
	}

	confidence := req.Validation.AdjustedConfidence
	plan.KellyCriterion = kelly(confidence, plan.RiskRewardRatio)
	plan.VolatilityAdjustedSize = ptr(cm.volatilityAdjusted(positionPct, req))
	plan.CapitalEfficiency = cm.efficiency(plan, confidence)

	cm.logger.WithFields(logrus.Fields{
		"instrument":    req.Instrument,
		"position_usd":  positionUSD,
		"units":         units,
		"capped":        plan.Capped,
		"kelly":         plan.KellyCriterion,
		"portfolio_pct": plan.PortfolioRisk,
	}).Debug("Computed capital plan")

	return plan
}

func (cm *CapitalManager) portfolioRisk(plan CapitalPlan) float64 {
	pct, err := safeDivide(plan.RiskAmountUSD*100, plan.TotalCapital, "total capital")
	if err != nil {
		return 0
	}
	return pct
}

// EstimatedWinRate maps validated confidence to a win probability.
func EstimatedWinRate(confidence float64) float64 {
	return clamp(0.5+confidence/2, 0, 1)
}

// kelly returns the Kelly fraction clamped to [0,1]. Without a payoff
// ratio there is nothing to size up on.
func kelly(confidence float64, rr *float64) float64 {
	if rr == nil {
		return 0
	}
	win := EstimatedWinRate(confidence)
	loss, err := safeDivide(1-win, *rr, "risk reward ratio")
	if err != nil {
		return 0
	}
	return clamp(win-loss, 0, 1)
}

// volatilityAdjusted scales the position percent down in high volatility
// and toward the cap when a compatible trend is in force.
func (cm *CapitalManager) volatilityAdjusted(positionPct float64, req CapitalRequest) float64 {
	size := positionPct
	if req.Regime.Volatility == VolatilityHigh {
		size *= cm.config.HighVolatilityFactor
	} else if req.Regime.Type == RegimeTrending && req.Validation.RegimeCompatibility > 0 {
		size = math.Min(size*cm.config.TrendingBoost, req.MaxPositionSizePercent)
	}
	return size
}

func (cm *CapitalManager) efficiency(plan CapitalPlan, confidence float64) *CapitalEfficiency {
	eff := &CapitalEfficiency{}
	if plan.PotentialProfitUSD == nil || plan.StopLossUSD == nil || plan.RiskRewardRatio == nil {
		msg := (&DegenerateError{Quantity: "risk reward ratio (no take profit)"}).Error()
		eff.Error = &msg
		return eff
	}

	win := EstimatedWinRate(confidence)
	eff.EstimatedWinRate = ptr(win)
	eff.ExpectedValue = ptr(win**plan.PotentialProfitUSD - (1-win)**plan.StopLossUSD)
	eff.CapitalUsagePercent = ptr(*plan.PositionSizePercent)
	eff.KellyCriterion = ptr(plan.KellyCriterion)

	optimal := math.Min(plan.KellyCriterion, cm.config.MaxOptimalPosition) * 100
	eff.OptimalPositionPercent = ptr(optimal)
	if optimal <= 0 {
		// a zero Kelly fraction means the edge does not justify any size
		eff.PositionVsOptimal = ptr(0)
		return eff
	}
	ratio, err := safeDivide(*plan.PositionSizePercent, optimal, "optimal position")
	if err != nil {
		msg := err.Error()
		eff.Error = &msg
		return eff
	}
	eff.PositionVsOptimal = ptr(ratio)
	return eff
}

func (cm *CapitalManager) convertUnits(units float64, req CapitalRequest) *UnitBreakdown {
	d := decimal.NewFromFloat(units)
	switch req.Instrument {
	case models.InstrumentForex:
		pip := req.PipSize
		if pip <= 0 {
			pip = defaultPipSize
		}
		lots, _ := d.Div(decimal.NewFromInt(standardLot)).Round(2).Float64()
		mini, _ := d.Div(decimal.NewFromInt(miniLot)).Round(2).Float64()
		pipValue, _ := d.Mul(decimal.NewFromFloat(pip)).Round(2).Float64()
		return &UnitBreakdown{
			Units:     units,
			UnitLabel: "units",
			Lots:      ptr(lots),
			MiniLots:  ptr(mini),
			PipValue:  ptr(pipValue),
		}
	case models.InstrumentCrypto:
		coins, _ := d.Truncate(cryptoPrecision).Float64()
		return &UnitBreakdown{Units: coins, UnitLabel: "coins"}
	default:
		shares, _ := d.Truncate(sharePrecision).Float64()
		whole, _ := d.Floor().Float64()
		return &UnitBreakdown{Units: shares, UnitLabel: "shares", WholeUnits: ptr(whole)}
	}
}
