package cddt

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderOptions controls raster rendering of a DDT
type RenderOptions struct {
	Sqrt  bool // draw sqrt(value) instead of value
	Scale int  // integer zoom factor; values < 1 mean 1
}

const (
	titleBandHeight   = 20
	profileBandHeight = 48
)

var (
	textColor    = color.RGBA{0, 0, 0, 255}
	profileColor = color.RGBA{0, 0, 139, 255}
	bandColor    = color.RGBA{255, 255, 255, 255}
	unknownColor = color.RGBA{178, 34, 34, 255}
)

// RenderDDT draws a table in grays: 0 is black and the largest value is
// white. Negative and NaN cells, the "no crossing above" sentinels, are drawn
// in unknownColor so they cannot be mistaken for a crossing.
func RenderDDT(d *DDT, opts RenderOptions) *image.RGBA {
	src := d
	if opts.Sqrt {
		src = d.Sqrt()
	}
	scale := opts.Scale
	if scale < 1 {
		scale = 1
	}

	rows, cols := src.Dims()
	img := image.NewRGBA(image.Rect(0, 0, cols*scale, rows*scale))

	maxVal := src.Max()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c := cellColor(src.At(y, x), maxVal)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

func cellColor(v, maxVal float64) color.RGBA {
	if v < 0 || math.IsNaN(v) {
		return unknownColor
	}
	var g uint8
	switch {
	case maxVal <= 0 || v == 0:
		g = 0
	case v >= maxVal:
		g = 255
	default:
		g = uint8(math.Round(v / maxVal * 255))
	}
	return color.RGBA{g, g, g, 255}
}

// RenderSliceView draws the slice title, its DDT and a bar profile of the
// number of entries projected into each bin.
func RenderSliceView(v View, opts RenderOptions) (*image.RGBA, error) {
	if v.Empty || v.DDT == nil {
		return nil, fmt.Errorf("slice %d: %w", v.Index, ErrDegenerateSlice)
	}

	// View.Display already holds the sqrt table.
	src := v.DDT
	if opts.Sqrt {
		src = v.Display
	}
	ddtImg := RenderDDT(src, RenderOptions{Scale: opts.Scale})
	w := ddtImg.Bounds().Dx()
	h := ddtImg.Bounds().Dy()

	img := image.NewRGBA(image.Rect(0, 0, w, titleBandHeight+h+profileBandHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(bandColor), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, titleBandHeight, w, titleBandHeight+h), ddtImg, image.Point{}, draw.Src)

	title := fmt.Sprintf("slice %d  theta=%.4f  compression=%.1f", v.Index, v.Theta, v.CompressionFactor)
	drawText(img, 4, 14, title, textColor)

	drawProfile(img, v.Counts, image.Rect(0, titleBandHeight+h, w, titleBandHeight+h+profileBandHeight))
	return img, nil
}

// drawProfile draws one bar per bin, scaled to the band height
func drawProfile(img *image.RGBA, counts []int, band image.Rectangle) {
	if len(counts) == 0 {
		return
	}
	maxCount := 0
	for _, c := range counts {
		maxCount = max(maxCount, c)
	}
	if maxCount == 0 {
		return
	}

	colWidth := float64(band.Dx()) / float64(len(counts))
	usable := band.Dy() - 2
	for i, c := range counts {
		barHeight := int(math.Round(float64(c) / float64(maxCount) * float64(usable)))
		x0 := band.Min.X + int(float64(i)*colWidth)
		x1 := max(band.Min.X+int(float64(i+1)*colWidth), x0+1)
		for x := x0; x < x1 && x < band.Max.X; x++ {
			for y := band.Max.Y - 1; y >= band.Max.Y-barHeight; y-- {
				img.SetRGBA(x, y, profileColor)
			}
		}
	}
}

// RenderMap draws the occupancy grid inverted, so occupied cells are dark.
func RenderMap(m *Map) (*image.Gray, error) {
	if m == nil || m.Data == nil {
		return nil, fmt.Errorf("map has no cell data")
	}
	rows, cols := m.Data.Dims()

	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := m.Data.At(y, x)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	img := image.NewGray(image.Rect(0, 0, cols, rows))
	span := hi - lo
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			g := uint8(255)
			if span > 0 {
				g = uint8(math.Round((hi - m.Data.At(y, x)) / span * 255))
			}
			img.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return img, nil
}

// drawText renders text onto an image at the specified position
func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// SavePNG writes img to a PNG file
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}
