package services

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/utils"
)

// AnalysisInput is everything Analyze needs. Symbol, Timeframe and Period
// are passed through to the result untouched.
type AnalysisInput struct {
	Symbol                 string                 `json:"symbol"`
	Timeframe              models.Timeframe       `json:"timeframe"`
	Period                 models.Period          `json:"period"`
	Bars                   []models.Bar           `json:"bars" validate:"required,min=1"`
	Capital                float64                `json:"capital" validate:"gt=0"`
	RiskPercent            float64                `json:"risk_percent" validate:"gt=0"`
	MaxPositionSizePercent float64                `json:"max_position_size_percent" validate:"gte=0,lte=100"`
	Instrument             models.InstrumentClass `json:"instrument_class" validate:"required,oneof=equity forex crypto index"`

	// Params overrides the analyzer configuration for this call only.
	// Zero fields keep their defaults.
	Params *config.AnalysisConfig `json:"params,omitempty"`
}

// IndicatorSummary is the latest value of each indicator.
type IndicatorSummary struct {
	BarCount         int                 `json:"bar_count"`
	SMA              map[string]*float64 `json:"sma"`
	EMA              map[string]*float64 `json:"ema"`
	RSI              *float64            `json:"rsi"`
	MACD             *float64            `json:"macd"`
	MACDSignal       *float64            `json:"macd_signal"`
	MACDHistogram    *float64            `json:"macd_histogram"`
	BollingerUpper   *float64            `json:"bollinger_upper"`
	BollingerMiddle  *float64            `json:"bollinger_middle"`
	BollingerLower   *float64            `json:"bollinger_lower"`
	ATR              *float64            `json:"atr"`
	VolumeMA         *float64            `json:"volume_ma"`
	OBV              *float64            `json:"obv"`
	StochasticK      *float64            `json:"stochastic_k"`
	StochasticD      *float64            `json:"stochastic_d"`
	SupportLevels    []float64           `json:"support_levels"`
	ResistanceLevels []float64           `json:"resistance_levels"`
	Patterns         []Pattern           `json:"patterns"`
	Divergences      []Divergence        `json:"divergences"`
}

// AnalysisResult is the output of Analyze. Signals is always populated;
// CapitalPlan may carry an error marker in CapitalEfficiency without
// invalidating the rest of the result.
type AnalysisResult struct {
	Symbol      string                 `json:"symbol"`
	Timeframe   models.Timeframe       `json:"timeframe"`
	Period      models.Period          `json:"period"`
	Instrument  models.InstrumentClass `json:"instrument_class"`
	LastPrice   float64                `json:"last_price"`
	LastUpdated time.Time              `json:"last_updated"`
	Indicators  IndicatorSummary       `json:"indicators"`
	Regime      MarketRegime           `json:"market_regime"`
	Signals     ValidationResult       `json:"signals"`
	CapitalPlan CapitalPlan            `json:"capital_plan"`
	Pyramiding  PyramidingPlan         `json:"pyramiding"`
}

// Analyzer runs the full pipeline: indicators, regime, signal, validation,
// capital plan. It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	config     config.AnalysisConfig
	aggregator *IndicatorAggregator
	classifier *RegimeClassifier
	generator  *SignalGenerator
	validator  *SignalValidator
	capital    *CapitalManager
	logger     *logrus.Logger
}

// NewAnalyzer builds the pipeline from configuration.
func NewAnalyzer(cfg config.AnalysisConfig, logger *logrus.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid analysis config: %w", err)
	}
	generator, err := NewSignalGenerator(cfg.Signal, logger)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		config:     cfg,
		aggregator: NewIndicatorAggregator(cfg.Indicators, logger),
		classifier: NewRegimeClassifier(cfg.Regime, logger),
		generator:  generator,
		validator:  NewSignalValidator(cfg.Validator, logger),
		capital:    NewCapitalManager(cfg.Capital, logger),
		logger:     logger,
	}, nil
}

// Config returns the analyzer's configuration.
func (a *Analyzer) Config() config.AnalysisConfig { return a.config }

// Analyze validates the input and runs the pipeline. Input errors are
// returned as *utils.ValidationError before any computation.
func (a *Analyzer) Analyze(in AnalysisInput) (*AnalysisResult, error) {
	pipeline := a
	if in.Params != nil {
		var err error
		if pipeline, err = a.withOverrides(*in.Params); err != nil {
			return nil, err
		}
	}

	if in.MaxPositionSizePercent == 0 {
		in.MaxPositionSizePercent = pipeline.config.Capital.MaxPositionSizePercent
	}
	if err := pipeline.validateInput(in); err != nil {
		return nil, err
	}

	set, err := pipeline.aggregator.Aggregate(in.Bars)
	if err != nil {
		return nil, err
	}
	regime := pipeline.classifier.Classify(set)
	signal := pipeline.generator.Generate(set, regime)
	validation := pipeline.validator.Validate(signal, regime, set)

	pipSize := defaultPipSize
	if in.Instrument == models.InstrumentForex && models.IsJPYPair(in.Symbol) {
		pipSize = jpyPipSize
	}
	plan := pipeline.capital.Plan(CapitalRequest{
		TotalCapital:           in.Capital,
		RiskPercent:            in.RiskPercent,
		MaxPositionSizePercent: in.MaxPositionSizePercent,
		Instrument:             in.Instrument,
		PipSize:                pipSize,
		EntryPrice:             validation.EntryPrice,
		StopLoss:               validation.StopLoss,
		TakeProfit:             validation.TakeProfit,
		Validation:             validation,
		Regime:                 regime,
	})

	last := in.Bars[len(in.Bars)-1]
	result := &AnalysisResult{
		Symbol:      in.Symbol,
		Timeframe:   in.Timeframe,
		Period:      in.Period,
		Instrument:  in.Instrument,
		LastPrice:   last.Close,
		LastUpdated: last.Timestamp,
		Indicators:  summarize(set),
		Regime:      regime,
		Signals:     validation,
		CapitalPlan: plan,
		Pyramiding:  pipeline.capital.Pyramid(validation, regime, plan),
	}

	a.logger.WithFields(logrus.Fields{
		"symbol":     in.Symbol,
		"bars":       len(in.Bars),
		"signal":     validation.ValidatedSignal,
		"confidence": validation.AdjustedConfidence,
		"regime":     regime.Type,
	}).Info("Analysis completed")

	return result, nil
}

func (a *Analyzer) validateInput(in AnalysisInput) error {
	if err := utils.ValidateStruct(in); err != nil {
		return err
	}
	if err := models.ValidateBars(in.Bars); err != nil {
		return utils.NewValidationErrorf("invalid bars: %v", err)
	}
	return a.capital.ValidateRequest(CapitalRequest{
		TotalCapital:           in.Capital,
		RiskPercent:            in.RiskPercent,
		MaxPositionSizePercent: in.MaxPositionSizePercent,
		Instrument:             in.Instrument,
	})
}

// withOverrides fills the zero fields of override from defaults and builds
// a one-off pipeline for it.
func (a *Analyzer) withOverrides(override config.AnalysisConfig) (*Analyzer, error) {
	if err := defaults.Set(&override); err != nil {
		return nil, utils.NewValidationErrorf("invalid analysis params: %v", err)
	}
	override.Signal.Weights = override.Signal.Weights.OrDefault()
	if err := override.Signal.Weights.Validate(); err != nil {
		return nil, utils.NewValidationErrorf("invalid signal weights: %v", err)
	}
	if err := utils.ValidateStruct(override); err != nil {
		return nil, err
	}
	return NewAnalyzer(override, a.logger)
}

func summarize(set *IndicatorSet) IndicatorSummary {
	cfg := set.Config
	summary := IndicatorSummary{
		BarCount:         set.Len(),
		SMA:              make(map[string]*float64, len(set.SMA)),
		EMA:              make(map[string]*float64, len(set.EMA)),
		RSI:              lastValue(set.RSI),
		MACD:             lastValue(set.MACD.Line),
		MACDSignal:       lastValue(set.MACD.Signal),
		MACDHistogram:    lastValue(set.MACD.Histogram),
		BollingerUpper:   lastValue(set.Bollinger.Upper),
		BollingerMiddle:  lastValue(set.Bollinger.Middle),
		BollingerLower:   lastValue(set.Bollinger.Lower),
		ATR:              lastValue(set.ATR),
		VolumeMA:         lastValue(set.VolumeMA),
		OBV:              lastValue(set.OBV),
		StochasticK:      lastValue(set.Stochastic.K),
		StochasticD:      lastValue(set.Stochastic.D),
		SupportLevels:    set.SupportLevels,
		ResistanceLevels: set.ResistanceLevels,
		Patterns:         set.Patterns,
		Divergences:      set.Divergences,
	}
	for _, p := range []int{cfg.SMAShort, cfg.SMAMedium, cfg.SMALong} {
		summary.SMA[fmt.Sprintf("sma_%d", p)] = lastValue(set.SMA[p])
	}
	for _, p := range []int{cfg.EMAFast, cfg.EMASlow} {
		summary.EMA[fmt.Sprintf("ema_%d", p)] = lastValue(set.EMA[p])
	}
	return summary
}

func lastValue(s Series) *float64 {
	if v, ok := s.Last(); ok {
		return &v
	}
	return nil
}
