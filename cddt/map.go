package cddt

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Map is the occupancy grid saved in a serialized CDDT.
// Data is stored row-major by y, the transpose of the on-disk data[x][y] order.
type Map struct {
	Path   string
	Width  int
	Height int
	Data   *mat.Dense // nil when the document carries no cells
}

// NewMap builds a Map from its on-disk form, transposing the cell data once.
func NewMap(raw RawMap) (*Map, error) {
	m := &Map{
		Path:   raw.Path,
		Width:  raw.Width,
		Height: raw.Height,
	}
	if len(raw.Data) == 0 || len(raw.Data[0]) == 0 {
		return m, nil
	}

	cols := len(raw.Data[0])
	flat := make([]float64, 0, len(raw.Data)*cols)
	for i, row := range raw.Data {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: map.data row %d has %d cells, want %d", ErrFormat, i, len(row), cols)
		}
		flat = append(flat, row...)
	}

	m.Data = mat.DenseCopyOf(mat.NewDense(len(raw.Data), cols, flat).T())
	return m, nil
}

// CellCount returns width*height as declared in the metadata
func (m *Map) CellCount() int {
	return m.Width * m.Height
}
