package model

import (
	"fmt"
	"math"
	"time"
)

// Series is an ordered sequence of samples for one metric.
type Series struct {
	Name   string
	Label  string
	Unit   string
	Values []float64
}

// Frame holds series that are all aligned to the same timestamps.
type Frame struct {
	Time   []time.Time
	Series []Series
}

// Len returns the number of samples per series.
func (f Frame) Len() int { return len(f.Time) }

// Get returns the series with the given name.
func (f Frame) Get(name string) (Series, bool) {
	for _, s := range f.Series {
		if s.Name == name {
			return s, true
		}
	}
	return Series{}, false
}

// Validate checks that every series has as many samples as there are timestamps.
func (f Frame) Validate() error {
	for _, s := range f.Series {
		if len(s.Values) != len(f.Time) {
			return fmt.Errorf("series %q has %d samples, time has %d", s.Name, len(s.Values), len(f.Time))
		}
	}
	return nil
}

// Stats is a per-series summary.
type Stats struct {
	Name  string
	Label string
	Unit  string
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Summary computes count/min/max/mean for every series, NaN samples excluded.
func (f Frame) Summary() []Stats {
	out := make([]Stats, 0, len(f.Series))
	for _, s := range f.Series {
		st := Stats{Name: s.Name, Label: s.Label, Unit: s.Unit, Min: math.MaxFloat64, Max: -math.MaxFloat64}
		var sum float64
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			st.Count++
			sum += v
			if v < st.Min {
				st.Min = v
			}
			if v > st.Max {
				st.Max = v
			}
		}
		if st.Count == 0 {
			st.Min, st.Max = 0, 0
		} else {
			st.Mean = sum / float64(st.Count)
		}
		out = append(out, st)
	}
	return out
}
