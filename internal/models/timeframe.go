package models

import (
	"fmt"
	"time"
)

// Timeframe is the bar interval requested from a provider.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1wk Timeframe = "1wk"
	Timeframe1mo Timeframe = "1mo"
)

// Period is how much history to request.
type Period string

const (
	Period1d  Period = "1d"
	Period5d  Period = "5d"
	Period1mo Period = "1mo"
	Period3mo Period = "3mo"
	Period6mo Period = "6mo"
	Period1y  Period = "1y"
	Period2y  Period = "2y"
	Period5y  Period = "5y"
	PeriodMax Period = "max"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1wk: 7 * 24 * time.Hour,
	Timeframe1mo: 30 * 24 * time.Hour,
}

var validPeriods = map[Period]bool{
	Period1d: true, Period5d: true, Period1mo: true, Period3mo: true, Period6mo: true,
	Period1y: true, Period2y: true, Period5y: true, PeriodMax: true,
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// ParsePeriod validates a period string.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	if !validPeriods[p] {
		return "", fmt.Errorf("unsupported period %q", s)
	}
	return p, nil
}

// Duration returns the length of one bar.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Intraday reports whether bars are shorter than a day.
func (tf Timeframe) Intraday() bool {
	d, ok := timeframeDurations[tf]
	return ok && d < 24*time.Hour
}

// ClampPeriod limits the history window for intraday timeframes, which
// upstream providers only serve for short ranges.
func ClampPeriod(tf Timeframe, p Period) Period {
	if !tf.Intraday() {
		return p
	}
	switch p {
	case Period1d, Period5d, Period1mo:
		return p
	}
	return Period5d
}
