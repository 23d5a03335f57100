package services

// Factor scores are in [-1,1]: positive favours buying, negative favours
// selling. A nil return means the inputs were not available.

const (
	obvSlopeBars  = 5
	patternMinBar = 3
)

func trendScore(set *IndicatorSet) *float64 {
	cfg := set.Config
	price := set.LastClose()
	averages := []struct {
		period int
		weight float64
	}{
		{cfg.SMAShort, 0.2},
		{cfg.SMAMedium, 0.3},
		{cfg.SMALong, 0.5},
	}

	var weighted, coverage float64
	for _, a := range averages {
		ma, ok := set.SMA[a.period].Last()
		if !ok || ma <= 0 {
			continue
		}
		weighted += a.weight * sign(price-ma)
		coverage += a.weight
	}
	if coverage == 0 {
		return nil
	}

	// full agreement across all windows reaches ±1, a lone short window
	// reaches at most ±0.6
	score := weighted / coverage * (0.5 + 0.5*coverage)

	fast, okFast := set.EMA[cfg.EMAFast].Last()
	slow, okSlow := set.EMA[cfg.EMASlow].Last()
	if okFast && okSlow {
		score += 0.1 * sign(fast-slow)
	}
	return ptr(clamp(score, -1, 1))
}

func momentumScore(set *IndicatorSet) *float64 {
	var parts []float64

	if rsi, ok := set.RSI.Last(); ok {
		parts = append(parts, rsiScore(rsi))
	}

	n := set.Len()
	if h, ok := set.MACD.Histogram.At(n - 1); ok {
		s := 0.6 * sign(h)
		if prev, ok := set.MACD.Histogram.At(n - 2); ok {
			s += 0.4 * sign(h-prev)
		}
		parts = append(parts, s)
	}

	if k, ok := set.Stochastic.K.Last(); ok {
		switch {
		case k < 20:
			parts = append(parts, 0.5)
		case k > 80:
			parts = append(parts, -0.5)
		}
	}

	if len(parts) == 0 {
		return nil
	}
	return ptr(clamp(mean(parts), -1, 1))
}

// rsiScore reads RSI as momentum inside the 30-70 band and as exhaustion
// outside it: overbought saturates toward -1, oversold toward +1.
func rsiScore(rsi float64) float64 {
	switch {
	case rsi > 70:
		return -0.8 - 0.2*clamp((rsi-70)/30, 0, 1)
	case rsi < 30:
		return 0.8 + 0.2*clamp((30-rsi)/30, 0, 1)
	}
	return (rsi - 50) / 20 * 0.4
}

func volumeScore(set *IndicatorSet) *float64 {
	n := set.Len()
	avg, ok := set.VolumeMA.Last()
	if !ok || avg <= 0 || n < 2 {
		return nil
	}
	bar := set.Bars[n-1]
	direction := sign(bar.Close - set.Bars[n-2].Close)
	spike := clamp(bar.Volume/avg-1, 0, 1)
	score := 0.6 * direction * spike

	if obv, ok := set.OBV.At(n - 1); ok {
		if prev, ok := set.OBV.At(n - 1 - obvSlopeBars); ok {
			score += 0.4 * sign(obv-prev)
		}
	}
	return ptr(clamp(score, -1, 1))
}

// volatilityScore reads %B as a stretch signal and shrinks it as the ATR
// percentile rises, so a volatile tape contributes little either way.
func volatilityScore(set *IndicatorSet, regime MarketRegime) *float64 {
	upper, okU := set.Bollinger.Upper.Last()
	lower, okL := set.Bollinger.Lower.Last()
	if !okU || !okL || upper <= lower {
		return nil
	}
	pb := (set.LastClose() - lower) / (upper - lower)

	var s float64
	switch {
	case pb < 0:
		s = 0.7
	case pb < 0.2:
		s = 0.3
	case pb > 1:
		s = -0.7
	case pb > 0.8:
		s = -0.3
	}

	damping := 1.0
	if regime.ATRPercentile != nil {
		damping = 1 - clamp(*regime.ATRPercentile, 0, 1)
	}
	return ptr(clamp(s*damping, -1, 1))
}

func patternScore(set *IndicatorSet) *float64 {
	if set.Len() < patternMinBar {
		return nil
	}
	var s float64
	for _, p := range set.Patterns {
		s += p.Bias()
	}
	for _, d := range set.Divergences {
		s += d.Bias()
	}
	return ptr(clamp(s, -1, 1))
}

// supportResistanceScore grows linearly from 0 at proximity to ±1 at the level.
func supportResistanceScore(set *IndicatorSet, proximity float64) *float64 {
	if !set.LevelsDetected || proximity <= 0 {
		return nil
	}
	price := set.LastClose()
	if price <= 0 {
		return nil
	}

	var s float64
	if n := len(set.SupportLevels); n > 0 {
		dist := (price - set.SupportLevels[n-1]) / price
		if dist <= proximity {
			s += 1 - dist/proximity
		}
	}
	if len(set.ResistanceLevels) > 0 {
		dist := (set.ResistanceLevels[0] - price) / price
		if dist <= proximity {
			s -= 1 - dist/proximity
		}
	}
	return ptr(clamp(s, -1, 1))
}
