package cddt

import (
	"image/color"
	"image/png"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws the raw crossings of a slice as vector graphics, with
// the per-bin occupancy profile underneath.
type VectorRenderer struct {
	Slice         *Slice
	CellSize      float64 // Size of one grid cell in canvas units
	Padding       float64
	ProfileHeight float64
	Tolerance     float64 // Douglas-Peucker tolerance for the profile line; 0 keeps every point
	Resolution    canvas.Resolution
	MarkerColor   color.RGBA
	ProfileColor  color.RGBA
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer(s *Slice) *VectorRenderer {
	return &VectorRenderer{
		Slice:         s,
		CellSize:      1.0,
		Padding:       10.0,
		ProfileHeight: 40.0,
		Tolerance:     0.5,
		Resolution:    canvas.DPI(100),
		MarkerColor:   color.RGBA{0, 0, 0, 255},
		ProfileColor:  color.RGBA{0, 0, 139, 255},
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// layout holds the slice geometry needed for drawing
type layout struct {
	lo            float64
	rows, cols    int
	width, height float64
}

func (r *VectorRenderer) layout() (layout, error) {
	lo, _, err := r.Slice.Bounds()
	if err != nil {
		return layout{}, err
	}
	rows, cols, _ := r.Slice.Dims()
	return layout{
		lo:     lo,
		rows:   rows,
		cols:   cols,
		width:  float64(cols)*r.CellSize + 2*r.Padding,
		height: float64(rows)*r.CellSize + r.ProfileHeight + 3*r.Padding,
	}, nil
}

// RenderToSVG writes the slice as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	l, err := r.layout()
	if err != nil {
		return err
	}
	svgRenderer := svg.New(w, l.width, l.height, nil)
	r.renderToCanvas(svgRenderer, l)
	return svgRenderer.Close()
}

// RenderToPNG writes the slice as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	l, err := r.layout()
	if err != nil {
		return err
	}
	rast := rasterizer.New(l.width, l.height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, l)
	return png.Encode(w, rast)
}

// renderToCanvas holds the drawing shared by the SVG and PNG outputs.
// Canvas y grows upward; row 0 is drawn at the top of the grid area.
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, l layout) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(l.width, l.height), bgStyle, canvas.Identity)

	gridTop := l.height - r.Padding
	gridBottom := gridTop - float64(l.rows)*r.CellSize

	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	frameStyle.StrokeWidth = 0.2
	frame := canvas.Rectangle(float64(l.cols)*r.CellSize, float64(l.rows)*r.CellSize).Translate(r.Padding, gridBottom)
	renderer.RenderPath(frame, frameStyle, canvas.Identity)

	markerStyle := canvas.DefaultStyle
	markerStyle.Fill = canvas.Paint{Color: r.MarkerColor}
	markerStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	for x, bin := range r.Slice.Zeros {
		for _, zp := range bin {
			row := int(zp - l.lo)
			cx := r.Padding + float64(x)*r.CellSize
			cy := gridTop - float64(row+1)*r.CellSize
			renderer.RenderPath(canvas.Rectangle(r.CellSize, r.CellSize).Translate(cx, cy), markerStyle, canvas.Identity)
		}
	}

	profile := r.profileLine()
	if len(profile) < 2 {
		return
	}
	lineStyle := canvas.DefaultStyle
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	lineStyle.Stroke = canvas.Paint{Color: r.ProfileColor}
	lineStyle.StrokeWidth = 0.5

	p := &canvas.Path{}
	for i, pt := range profile {
		if i == 0 {
			p.MoveTo(pt[0], pt[1])
		} else {
			p.LineTo(pt[0], pt[1])
		}
	}
	renderer.RenderPath(p, lineStyle, canvas.Identity)
}

// profileLine returns the occupancy profile in canvas coordinates, simplified
// with Douglas-Peucker when a tolerance is set.
func (r *VectorRenderer) profileLine() orb.LineString {
	counts := r.Slice.OccupancyCounts()
	maxCount := 0
	for _, c := range counts {
		maxCount = max(maxCount, c)
	}
	if len(counts) == 0 || maxCount == 0 {
		return nil
	}

	ls := make(orb.LineString, len(counts))
	for i, c := range counts {
		ls[i] = orb.Point{
			r.Padding + (float64(i)+0.5)*r.CellSize,
			r.Padding + float64(c)/float64(maxCount)*r.ProfileHeight,
		}
	}
	if r.Tolerance <= 0 {
		return ls
	}
	if s, ok := simplify.DouglasPeucker(r.Tolerance).Simplify(ls.Clone()).(orb.LineString); ok {
		return s
	}
	return ls
}
