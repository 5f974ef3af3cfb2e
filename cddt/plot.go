package cddt

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Chart sizes used for every saved plot
const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 3 * vg.Inch
)

// OccupancyPlot charts the number of entries projected into each bin of a
// slice.
func OccupancyPlot(s *Slice, index int) (*plot.Plot, error) {
	counts := s.OccupancyCounts()
	if len(counts) == 0 {
		return nil, fmt.Errorf("slice %d has no bins", index)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Number of entries projected into each bin (slice %d, theta %.4f)", index, s.Theta)
	p.X.Label.Text = "Bin"
	p.Y.Label.Text = "Entries"

	pts := make(plotter.XYs, len(counts))
	for i, c := range counts {
		pts[i] = plotter.XY{X: float64(i), Y: float64(c)}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{0, 0, 139, 255}
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

// MaxHistogramBins is the largest bucket count the histogram helpers accept.
const MaxHistogramBins = 1000

// ZerosHistogramPlot charts the distribution of bin sizes across every slice
// of the table.
func ZerosHistogramPlot(t *Table, bins int) (*plot.Plot, error) {
	values := t.OccupancyValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("table has no bins to histogram")
	}
	if bins < 1 {
		bins = 1
	}
	if bins > MaxHistogramBins {
		return nil, fmt.Errorf("%d histogram bins requested, at most %d allowed", bins, MaxHistogramBins)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Entries per bin across %d slices", t.Len())
	p.X.Label.Text = "Entries in bin"
	p.Y.Label.Text = "Bins"

	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return nil, err
	}
	h.FillColor = color.RGBA{100, 149, 237, 255}
	p.Add(h)
	return p, nil
}

// SavePlot writes p to path; the format follows the file extension.
func SavePlot(p *plot.Plot, path string) error {
	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// WritePlotPNG encodes p as PNG to w
func WritePlotPNG(p *plot.Plot, w io.Writer) error {
	c := vgimg.New(chartWidth, chartHeight)
	p.Draw(draw.New(c))
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}
