package main

import (
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// latencySeries maps a line label to (selectivity, mean latency in µs) points.
type latencySeries map[string]plotter.XYs

func (s latencySeries) add(label string, selectivity float64, latencyNs int64) {
	s[label] = append(s[label], plotter.XY{X: selectivity * 100, Y: float64(latencyNs) / 1e3})
}

// savePlot renders one line per series, labels sorted, as a PNG.
func savePlot(series latencySeries, path string) error {
	p := plot.New()
	p.Title.Text = "Range query latency"
	p.X.Label.Text = "Selectivity (%)"
	p.Y.Label.Text = "Latency (µs)"
	p.Legend.Top = true

	labels := make([]string, 0, len(series))
	for l := range series {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var lines []interface{}
	for _, l := range labels {
		pts := series[l]
		sort.Slice(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
		lines = append(lines, l, pts)
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "plot: add lines")
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrap(err, "plot: save")
	}
	return nil
}
