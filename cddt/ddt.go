package cddt

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"
)

// DDT is a dense directional distance table reconstructed from one slice.
// Row y corresponds to distance Offset+y along the slice's projection.
type DDT struct {
	grid *mat.Dense

	// Offset is the smallest crossing of the source slice, subtracted from
	// every crossing to find its row.
	Offset float64
}

// Dims returns the number of rows and columns in the table
func (d *DDT) Dims() (rows, cols int) {
	return d.grid.Dims()
}

// At returns the value at row y, column x
func (d *DDT) At(y, x int) float64 {
	return d.grid.At(y, x)
}

// Column returns a copy of column x
func (d *DDT) Column(x int) []float64 {
	return mat.Col(nil, x, d.grid)
}

// Rows returns the table as a row-major slice of rows
func (d *DDT) Rows() [][]float64 {
	rows, _ := d.grid.Dims()
	out := make([][]float64, rows)
	for y := range out {
		out[y] = mat.Row(nil, y, d.grid)
	}
	return out
}

// Max returns the largest finite value in the table, or 0 if there is none.
func (d *DDT) Max() float64 {
	best := 0.0
	raw := d.grid.RawMatrix()
	for y := 0; y < raw.Rows; y++ {
		for _, v := range raw.Data[y*raw.Stride : y*raw.Stride+raw.Cols] {
			if !math.IsNaN(v) && !math.IsInf(v, 0) && v > best {
				best = v
			}
		}
	}
	return best
}

// Sqrt returns a new table with the square root of every non-negative value.
// Negative and NaN sentinels are carried over unchanged.
func (d *DDT) Sqrt() *DDT {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if v < 0 || math.IsNaN(v) {
			return v
		}
		return math.Sqrt(v)
	}, d.grid)
	return &DDT{grid: &out, Offset: d.Offset}
}

// Equal reports whether two tables have the same shape and bit-identical values
func (d *DDT) Equal(other *DDT) bool {
	if other == nil {
		return false
	}
	rows, cols := d.grid.Dims()
	if r, c := other.grid.Dims(); r != rows || c != cols {
		return false
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if math.Float64bits(d.grid.At(y, x)) != math.Float64bits(other.grid.At(y, x)) {
				return false
			}
		}
	}
	return true
}

// Digest returns an xxhash of the table's shape and values. Identical inputs
// produce identical digests, which makes it usable as an HTTP ETag.
func (d *DDT) Digest() uint64 {
	h := xxhash.New()
	rows, cols := d.grid.Dims()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(rows))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(cols))
	_, _ = h.Write(buf[:])

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(d.grid.At(y, x)))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}
