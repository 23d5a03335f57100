package services

import (
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
)

var fixtureStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// barsFromCloses opens each bar at the previous close and pads the range
// half a point beyond the body.
func barsFromCloses(closes []float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = models.Bar{
			Timestamp: fixtureStart.AddDate(0, 0, i),
			Open:      open,
			High:      math.Max(open, c) + 0.5,
			Low:       math.Min(open, c) - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func linearCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

func sineCloses(n int, base, amplitude float64, period int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return out
}

func randomWalkCloses(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price += rng.NormFloat64()
		if price < 10 {
			price = 10
		}
		out[i] = price
	}
	return out
}

func aggregate(bars []models.Bar) *IndicatorSet {
	set, err := NewIndicatorAggregator(config.DefaultAnalysisConfig().Indicators, quietLogger()).Aggregate(bars)
	if err != nil {
		panic(err)
	}
	return set
}
