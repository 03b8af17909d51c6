// Package chart renders the price history scatter and the dashed trend
// overlay as a PNG. No computation happens here beyond formatting.
package chart

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"aptcast/internal/dataset"
	"aptcast/internal/forecast"
)

var (
	historyColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	predictionColor = color.RGBA{R: 255, G: 127, B: 14, A: 255}
)

// Render draws the historical deals as a scatter, with floor numbers as
// point labels where known, and the prediction series (may be nil) as a
// dashed line. Returns the encoded PNG.
func Render(history []dataset.Deal, prediction []forecast.Point, title string) ([]byte, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no deals to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Contract date"
	p.Y.Label.Text = "Price (만원)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}

	points := make(plotter.XYs, len(history))
	var floorXYs plotter.XYs
	var floorLabels []string
	for i, d := range history {
		points[i].X = float64(d.Date.Unix())
		points[i].Y = float64(d.Price)
		if d.HasFloor {
			floorXYs = append(floorXYs, points[i])
			floorLabels = append(floorLabels, fmt.Sprintf("%dF", d.Floor))
		}
	}

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return nil, fmt.Errorf("failed to build scatter: %w", err)
	}
	scatter.GlyphStyle.Color = historyColor
	scatter.GlyphStyle.Radius = vg.Points(3)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(scatter)

	if len(floorLabels) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: floorXYs, Labels: floorLabels})
		if err != nil {
			return nil, fmt.Errorf("failed to build labels: %w", err)
		}
		p.Add(labels)
	}

	if len(prediction) > 0 {
		predicted := make(plotter.XYs, len(prediction))
		for i, pt := range prediction {
			predicted[i].X = float64(pt.Date.Unix())
			predicted[i].Y = float64(pt.Price)
		}
		line, err := plotter.NewLine(predicted)
		if err != nil {
			return nil, fmt.Errorf("failed to build trend line: %w", err)
		}
		line.Color = predictionColor
		line.Width = vg.Points(2)
		line.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		p.Add(line)
	}

	p.Add(plotter.NewGrid())

	writer, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}
