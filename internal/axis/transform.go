// Package axis maps chart data coordinates to display coordinates and back.
package axis

import (
	"errors"
	"fmt"
)

// ErrDegenerate is returned for a range whose endpoints coincide.
var ErrDegenerate = errors.New("axis: degenerate range")

// Range is a closed interval. Min may be greater than Max for flipped axes.
type Range struct {
	Min float64
	Max float64
}

func (r Range) Span() float64 { return r.Max - r.Min }

// Contains reports whether v lies inside the range, whichever way it is oriented.
func (r Range) Contains(v float64) bool {
	lo, hi := r.Min, r.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// Transform is the affine map from a data range onto a display range.
type Transform struct {
	Data    Range
	Display Range
}

// NewTransform checks that both ranges are invertible.
func NewTransform(data, display Range) (Transform, error) {
	if data.Span() == 0 {
		return Transform{}, fmt.Errorf("%w: data [%g, %g]", ErrDegenerate, data.Min, data.Max)
	}
	if display.Span() == 0 {
		return Transform{}, fmt.Errorf("%w: display [%g, %g]", ErrDegenerate, display.Min, display.Max)
	}
	return Transform{Data: data, Display: display}, nil
}

// Forward maps a data value to display space.
func (t Transform) Forward(v float64) float64 {
	return t.Display.Min + (v-t.Data.Min)*t.Display.Span()/t.Data.Span()
}

// Inverse maps a display value back to data space.
func (t Transform) Inverse(d float64) float64 {
	return t.Data.Min + (d-t.Display.Min)*t.Data.Span()/t.Display.Span()
}

// Point is a 2D coordinate, either in data or display space.
type Point struct {
	X float64
	Y float64
}

// Axes pairs the horizontal and vertical transforms of one chart axis set.
type Axes struct {
	X Transform
	Y Transform
}

func (a Axes) Forward(p Point) Point {
	return Point{X: a.X.Forward(p.X), Y: a.Y.Forward(p.Y)}
}

func (a Axes) Inverse(p Point) Point {
	return Point{X: a.X.Inverse(p.X), Y: a.Y.Inverse(p.Y)}
}

// Map sends a data point of a onto the data space of other through the shared display.
func (a Axes) Map(p Point, other Axes) Point {
	return other.Inverse(a.Forward(p))
}
