package axis

import (
	"fmt"
	"strconv"
)

// Twin formats a cursor position on the current axes together with the value
// the other axes show at the same display position.
type Twin struct {
	Current Axes
	Other   Axes

	CurrentName string
	OtherName   string

	// FormatX renders the horizontal coordinate, typically a time of day.
	FormatX func(x float64) string
	// FormatValue renders both vertical values. Defaults to "%1.0f".
	FormatValue func(v float64) string
}

// Value returns the other axes' vertical data value at the display position of (x, y).
func (t Twin) Value(x, y float64) float64 {
	return t.Current.Map(Point{X: x, Y: y}, t.Other).Y
}

// Format returns "<x> <other>=<value> <current>=<y>".
func (t Twin) Format(x, y float64) string {
	fx := t.FormatX
	if fx == nil {
		fx = func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	}
	fv := t.FormatValue
	if fv == nil {
		fv = func(v float64) string { return fmt.Sprintf("%1.0f", v) }
	}
	return fmt.Sprintf("%s %s=%s %s=%s", fx(x), t.OtherName, fv(t.Value(x, y)), t.CurrentName, fv(y))
}
