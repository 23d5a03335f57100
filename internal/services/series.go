package services

import (
	"encoding/json"
	"math"
)

// Series is an indicator column aligned index-for-index with the bar sequence.
// Bars before Start have no value because the indicator window had not filled yet.
type Series struct {
	Values []float64
	Start  int
}

// absentSeries returns a series of length n with no values.
func absentSeries(n int) Series {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return Series{Values: values, Start: n}
}

// alignSeries right-aligns computed values against n bars. Indicator
// primitives drop their warm-up bars, so the first computed value belongs
// to bar n-len(computed).
func alignSeries(n int, computed []float64) Series {
	s := absentSeries(n)
	if len(computed) == 0 {
		return s
	}
	if len(computed) > n {
		computed = computed[len(computed)-n:]
	}
	offset := n - len(computed)
	copy(s.Values[offset:], computed)
	s.Start = offset
	for s.Start < n && !finite(s.Values[s.Start]) {
		s.Start++
	}
	return s
}

// Len returns the number of bars the series is aligned with.
func (s Series) Len() int { return len(s.Values) }

// Present reports whether at least one bar has a value.
func (s Series) Present() bool { return s.Start < len(s.Values) }

// At returns the value for bar i.
func (s Series) At(i int) (float64, bool) {
	if i < s.Start || i < 0 || i >= len(s.Values) {
		return 0, false
	}
	v := s.Values[i]
	if !finite(v) {
		return 0, false
	}
	return v, true
}

// Last returns the value for the most recent bar.
func (s Series) Last() (float64, bool) {
	return s.At(len(s.Values) - 1)
}

// Tail returns the defined values among the last n bars, oldest first.
func (s Series) Tail(n int) []float64 {
	from := len(s.Values) - n
	if from < s.Start {
		from = s.Start
	}
	if from < 0 {
		from = 0
	}
	out := make([]float64, 0, len(s.Values)-from)
	for i := from; i < len(s.Values); i++ {
		if v, ok := s.At(i); ok {
			out = append(out, v)
		}
	}
	return out
}

// MarshalJSON renders absent bars as null.
func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(s.Values))
	for i := range s.Values {
		if v, ok := s.At(i); ok {
			out[i] = &v
		}
	}
	return json.Marshal(out)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func ptr(v float64) *float64 { return &v }

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
