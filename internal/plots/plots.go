// Copyright 2023-2026 The Material Classification Authors. SPDX-License-Identifier: Apache-2.0

// Package plots renders dataset statistics charts with gonum/plot.
package plots

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Series is one group of bars in a ClassHistogram, typically one dataset split.
type Series struct {
	Name   string
	Counts []int
}

// ClassHistogram builds a bar chart of the number of examples per class, one group of bars per series.
func ClassHistogram(title string, classNames []string, series ...Series) (*plot.Plot, error) {
	if len(classNames) == 0 {
		return nil, errors.New("plots.ClassHistogram requires at least one class")
	}
	if len(series) == 0 {
		return nil, errors.New("plots.ClassHistogram requires at least one series")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "class"
	p.X.Tick.Label.Rotation = math.Pi / 3
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Label.Text = "examples"
	p.Y.Min = 0

	barWidth := vg.Points(6)
	for ii, s := range series {
		if len(s.Counts) != len(classNames) {
			return nil, errors.Errorf("plots.ClassHistogram series %q has %d counts, but there are %d classes",
				s.Name, len(s.Counts), len(classNames))
		}
		values := make(plotter.Values, len(s.Counts))
		for c, count := range s.Counts {
			values[c] = float64(count)
		}
		bars, err := plotter.NewBarChart(values, barWidth)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create bars for series %q", s.Name)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(ii)
		bars.Offset = barWidth * vg.Length(2*ii-len(series)+1) / 2
		p.Add(bars)
		p.Legend.Add(s.Name, bars)
	}
	p.Legend.Top = true
	p.NominalX(classNames...)
	return p, nil
}

// SaveClassHistogram builds the chart with ClassHistogram and saves it to path.
// The format is taken from the file extension (e.g. ".png", ".svg", ".pdf").
func SaveClassHistogram(path, title string, classNames []string, series ...Series) error {
	p, err := ClassHistogram(title, classNames, series...)
	if err != nil {
		return err
	}
	width := vg.Length(len(classNames)) * vg.Points(10) * vg.Length(len(series)+1)
	if width < 8*vg.Inch {
		width = 8 * vg.Inch
	}
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save class histogram to %q", path)
	}
	return nil
}
