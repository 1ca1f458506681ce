package chart

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	tickLength  = vg.Length(4)
	labelMargin = vg.Length(4)
)

// drawLayout draws the plot onto a new canvas, reserving room on the right for
// the secondary axis when there is one.
func drawLayout(l *layout, width, height vg.Length, format string) (vg.CanvasWriterTo, error) {
	canvas, err := draw.NewFormattedCanvas(width, height, format)
	if err != nil {
		return nil, err
	}
	dc := draw.New(canvas)

	if !l.hasSec {
		l.plot.Draw(dc)
		return canvas, nil
	}

	ticks := plot.DefaultTicks{}.Ticks(l.secRange.Min, l.secRange.Max)
	tickStyle := l.plot.Y.Tick.Label
	tickStyle.XAlign = text.XLeft
	tickStyle.YAlign = text.YCenter

	var widest vg.Length
	for _, t := range ticks {
		if w := tickStyle.Width(t.Label); w > widest {
			widest = w
		}
	}
	labelStyle := l.plot.Y.Label.TextStyle
	labelStyle.Rotation = -math.Pi / 2
	labelStyle.XAlign = text.XCenter
	labelStyle.YAlign = text.YCenter
	label := l.secLabel
	labelWidth := labelStyle.Height(label)

	pad := tickLength + labelMargin + widest + labelMargin + labelWidth + labelMargin
	plotArea := draw.Crop(dc, 0, -pad, 0, 0)
	l.plot.Draw(plotArea)

	da := l.plot.DataCanvas(plotArea)
	right := da.Max.X
	da.StrokeLine2(l.plot.Y.LineStyle, right, da.Min.Y, right, da.Max.Y)

	for _, t := range ticks {
		if !l.secRange.Contains(t.Value) {
			continue
		}
		y := da.Y(l.secondary.Y.Forward(t.Value))
		length := tickLength
		if t.IsMinor() {
			length /= 2
		}
		da.StrokeLine2(l.plot.Y.Tick.LineStyle, right, y, right+length, y)
		if t.Label != "" {
			dc.FillText(tickStyle, vg.Point{X: right + tickLength + labelMargin, Y: y}, t.Label)
		}
	}
	mid := da.Min.Y + (da.Max.Y-da.Min.Y)/2
	dc.FillText(labelStyle, vg.Point{X: dc.Max.X - labelMargin - labelWidth/2, Y: mid}, label)
	return canvas, nil
}
