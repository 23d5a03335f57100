package services

// PyramidLevel is one add-on entry of a scaled position.
type PyramidLevel struct {
	Level        int     `json:"level"`
	EntryPrice   float64 `json:"entry_price"`
	SizeUnits    float64 `json:"size_units"`
	SizeUSD      float64 `json:"size_usd"`
	StopLoss     float64 `json:"stop_loss"`
	SizeFraction float64 `json:"size_fraction"`
}

// PyramidingPlan proposes add-on entries for a strong trending signal. The
// totals include the base position.
type PyramidingPlan struct {
	Eligible             bool           `json:"eligible"`
	Reason               string         `json:"reason"`
	Levels               []PyramidLevel `json:"levels,omitempty"`
	TotalPositionUSD     *float64       `json:"total_position_usd,omitempty"`
	TotalPositionPercent *float64       `json:"total_position_percent,omitempty"`
}

// Pyramid builds add-on levels spaced ATR multiples beyond entry in the
// signal's direction. Each level is a fixed fraction of the one before it
// and moves its stop to the previous level's entry.
func (cm *CapitalManager) Pyramid(validation ValidationResult, regime MarketRegime, plan CapitalPlan) PyramidingPlan {
	signal := validation.ValidatedSignal
	switch {
	case !signal.Strong():
		return PyramidingPlan{Reason: "pyramiding requires a strong signal"}
	case regime.TrendStrength < cm.config.PyramidMinTrendStrength:
		return PyramidingPlan{Reason: "trend is not strong enough to add to the position"}
	case validation.ATR == nil || *validation.ATR <= 0:
		return PyramidingPlan{Reason: "ATR unavailable"}
	case plan.PositionSizeUnits == nil || *plan.PositionSizeUnits <= 0:
		return PyramidingPlan{Reason: "base position is empty"}
	}

	dir := float64(signal.Direction())
	atr := *validation.ATR
	spacing := cm.config.PyramidATRSpacing * atr
	entry := validation.EntryPrice
	units := *plan.PositionSizeUnits
	fraction := 1.0

	out := PyramidingPlan{Eligible: true, Reason: "strong trending signal"}
	total := units * entry
	if plan.PositionSizeUSD != nil {
		total = *plan.PositionSizeUSD
	}
	for i := 1; i <= cm.config.PyramidLevels; i++ {
		prevEntry := entry
		entry += dir * spacing
		units *= cm.config.PyramidScale
		fraction *= cm.config.PyramidScale
		if entry <= 0 {
			break
		}
		out.Levels = append(out.Levels, PyramidLevel{
			Level:        i,
			EntryPrice:   entry,
			SizeUnits:    units,
			SizeUSD:      units * entry,
			StopLoss:     prevEntry,
			SizeFraction: fraction,
		})
		total += units * entry
	}
	out.TotalPositionUSD = ptr(total)
	if pct, err := safeDivide(total*100, plan.TotalCapital, "total capital"); err == nil {
		out.TotalPositionPercent = ptr(pct)
	}
	return out
}
