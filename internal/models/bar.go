package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV observation.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ErrEmptyBars is returned when a bar sequence has no observations.
var ErrEmptyBars = errors.New("bar sequence is empty")

// ValidateBars checks that bars are non-empty, strictly ascending in time
// and carry finite, positive prices with High >= Low and a finite,
// non-negative volume.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return ErrEmptyBars
	}
	for i, b := range bars {
		if err := b.validate(); err != nil {
			return fmt.Errorf("bar %d at %s: %w", i, b.Timestamp.Format(time.RFC3339), err)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d at %s is not after bar %d at %s",
				i, b.Timestamp.Format(time.RFC3339), i-1, bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func (b Bar) validate() error {
	prices := [...]struct {
		name  string
		value float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}}
	for _, p := range prices {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%s is not a finite number", p.name)
		}
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %g", p.name, p.value)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("high %g is below low %g", b.High, b.Low)
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return fmt.Errorf("volume must be a finite non-negative number, got %g", b.Volume)
	}
	return nil
}

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high column.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low column.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume column.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
