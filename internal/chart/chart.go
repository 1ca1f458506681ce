// Package chart renders job metric frames as time series line charts with an
// optional secondary vertical axis on the right.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"hpc-job-metrics/internal/axis"
	"hpc-job-metrics/internal/model"
)

var (
	ErrNoData      = errors.New("chart: no data")
	ErrNoSecondary = errors.New("chart: no secondary axis")
)

const (
	DefaultWidth  = 24 * vg.Centimeter
	DefaultHeight = 12 * vg.Centimeter
)

// Line is one plotted series, aligned to Chart.Time.
type Line struct {
	Label  string
	Values []float64
}

// Axis groups the lines sharing one vertical scale.
type Axis struct {
	Label string
	Lines []Line
}

// AxisFromFrame picks the named series of f onto one axis.
func AxisFromFrame(label string, f model.Frame, names ...string) (Axis, error) {
	a := Axis{Label: label}
	for _, n := range names {
		s, ok := f.Get(n)
		if !ok {
			return Axis{}, fmt.Errorf("chart: series %q not in frame", n)
		}
		a.Lines = append(a.Lines, Line{Label: s.Label, Values: s.Values})
	}
	return a, nil
}

// AxisFromSeries puts every series of f onto one axis.
func AxisFromSeries(label string, f model.Frame) Axis {
	a := Axis{Label: label}
	for _, s := range f.Series {
		a.Lines = append(a.Lines, Line{Label: s.Label, Values: s.Values})
	}
	return a
}

// Chart is a time series chart. Secondary is drawn dashed against a right hand axis.
type Chart struct {
	Title     string
	Time      []time.Time
	Primary   Axis
	Secondary *Axis

	// Location controls the time of day shown on the x axis. Defaults to time.Local.
	Location *time.Location
	Width    vg.Length
	Height   vg.Length
}

// layout is a chart resolved into a gonum plot plus the axis transforms used to
// place the secondary lines.
type layout struct {
	plot      *plot.Plot
	primary   axis.Axes
	secondary axis.Axes
	secRange  axis.Range
	secLabel  string
	hasSec    bool
}

// the shared display space of both axis sets, in normalized plot coordinates
var display = axis.Range{Min: 0, Max: 1}

func (c *Chart) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

func (c *Chart) size() (vg.Length, vg.Length) {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

func (c *Chart) check() error {
	if len(c.Time) == 0 || len(c.Primary.Lines) == 0 {
		return ErrNoData
	}
	axes := []Axis{c.Primary}
	if c.Secondary != nil {
		axes = append(axes, *c.Secondary)
	}
	for _, a := range axes {
		for _, l := range a.Lines {
			if len(l.Values) != len(c.Time) {
				return fmt.Errorf("chart: line %q has %d values for %d timestamps", l.Label, len(l.Values), len(c.Time))
			}
		}
	}
	return nil
}

func (c *Chart) layout() (*layout, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	xs := make([]float64, len(c.Time))
	for i, t := range c.Time {
		xs[i] = float64(t.Unix()) + float64(t.Nanosecond())/1e9
	}
	xr := valueRange(xs)
	pr := axisRange(c.Primary)

	xt, err := axis.NewTransform(xr, display)
	if err != nil {
		return nil, err
	}
	yt, err := axis.NewTransform(pr, display)
	if err != nil {
		return nil, err
	}
	l := &layout{primary: axis.Axes{X: xt, Y: yt}}

	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = "time"
	p.Y.Label.Text = c.Primary.Label
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04", Time: plot.UnixTimeIn(c.location())}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i, ln := range c.Primary.Lines {
		line, err := plotter.NewLine(xyPoints(xs, ln.Values, nil))
		if err != nil {
			return nil, fmt.Errorf("chart: line %q: %w", ln.Label, err)
		}
		line.LineStyle.Color = plotutil.Color(i)
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(ln.Label, line)
	}

	if c.Secondary != nil {
		l.hasSec = true
		l.secLabel = c.Secondary.Label
		l.secRange = axisRange(*c.Secondary)
		st, err := axis.NewTransform(l.secRange, display)
		if err != nil {
			return nil, err
		}
		l.secondary = axis.Axes{X: xt, Y: st}
		toPrimary := func(x, y float64) float64 {
			return l.secondary.Map(axis.Point{X: x, Y: y}, l.primary).Y
		}
		for i, ln := range c.Secondary.Lines {
			line, err := plotter.NewLine(xyPoints(xs, ln.Values, toPrimary))
			if err != nil {
				return nil, fmt.Errorf("chart: line %q: %w", ln.Label, err)
			}
			line.LineStyle.Color = plotutil.Color(len(c.Primary.Lines) + i)
			line.LineStyle.Width = vg.Points(1.5)
			line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
			p.Add(line)
			p.Legend.Add(ln.Label, line)
		}
	}

	// Pin the ranges so the plot and the transforms agree.
	p.X.Min, p.X.Max = xr.Min, xr.Max
	p.Y.Min, p.Y.Max = pr.Min, pr.Max
	l.plot = p
	return l, nil
}

// Render writes the chart to w in format (png, svg, pdf, ...).
func (c *Chart) Render(w io.Writer, format string) error {
	l, err := c.layout()
	if err != nil {
		return err
	}
	width, height := c.size()
	canvas, err := drawLayout(l, width, height, format)
	if err != nil {
		return err
	}
	_, err = canvas.WriteTo(w)
	return err
}

// Save renders the chart to path; the format is taken from the file extension.
func (c *Chart) Save(path string) (err error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if format == "" {
		return fmt.Errorf("chart: no file extension in %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return c.Render(f, format)
}

// Twin returns the cursor readout of the chart: a position on the secondary axis
// together with the primary value at the same place.
func (c *Chart) Twin() (axis.Twin, error) {
	if c.Secondary == nil {
		return axis.Twin{}, ErrNoSecondary
	}
	l, err := c.layout()
	if err != nil {
		return axis.Twin{}, err
	}
	loc := c.location()
	return axis.Twin{
		Current:     l.secondary,
		Other:       l.primary,
		CurrentName: c.Secondary.Label,
		OtherName:   c.Primary.Label,
		FormatX: func(x float64) string {
			return time.Unix(int64(math.Round(x)), 0).In(loc).Format("15:04:05")
		},
	}, nil
}

func xyPoints(xs, ys []float64, mapY func(x, y float64) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(xs))
	for i, x := range xs {
		y := ys[i]
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		if mapY != nil {
			y = mapY(x, y)
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}

func axisRange(a Axis) axis.Range {
	var all []float64
	for _, l := range a.Lines {
		all = append(all, l.Values...)
	}
	return valueRange(all)
}

// valueRange spans the finite values of vs, widened by one unit each way when
// it collapses to a point.
func valueRange(vs []float64) axis.Range {
	r := axis.Range{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	if math.IsInf(r.Min, 1) {
		return axis.Range{Min: 0, Max: 1}
	}
	if r.Min == r.Max {
		r.Min--
		r.Max++
	}
	return r
}
