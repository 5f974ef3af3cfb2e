package cddt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// crossingMarker flags a cell holding a recorded zero crossing before the
// sawtooth pass rewrites it.
const crossingMarker = 1.0

// Slice contains the compressed data for a single theta value. Zeros holds one
// bin per projected column; each bin lists the distances at which a ray along
// that column crosses an obstacle boundary. Bins may be empty and are not
// sorted.
type Slice struct {
	Theta float64
	Zeros [][]float64
}

// NewSlice builds a Slice from its on-disk form
func NewSlice(raw RawSlice) *Slice {
	zeros := raw.Zeros
	if zeros == nil {
		zeros = [][]float64{}
	}
	return &Slice{Theta: raw.Theta, Zeros: zeros}
}

// ReconstructOptions selects the fill mode for Reconstruct.
type ReconstructOptions struct {
	// SawTooth replaces crossing markers with the distance, in rows, to the
	// nearest crossing above each cell.
	SawTooth bool

	// Unknown is written into sawtooth cells that have no crossing above
	// them in their column. The zero value keeps those cells at 0, which is
	// indistinguishable from a crossing; use NaN or a negative value to tell
	// them apart. Ignored when SawTooth is false.
	Unknown float64
}

// Width returns the number of bins (columns) in the slice
func (s *Slice) Width() int {
	return len(s.Zeros)
}

// OccupancyCounts returns the number of recorded crossings in each bin
func (s *Slice) OccupancyCounts() []int {
	counts := make([]int, len(s.Zeros))
	for i, bin := range s.Zeros {
		counts[i] = len(bin)
	}
	return counts
}

// TotalZeros returns the number of crossings recorded across all bins
func (s *Slice) TotalZeros() int {
	total := 0
	for _, bin := range s.Zeros {
		total += len(bin)
	}
	return total
}

// IsDegenerate reports whether every bin is empty
func (s *Slice) IsDegenerate() bool {
	return s.TotalZeros() == 0
}

// MaxGridCells caps the number of cells a reconstructed grid may hold. A
// slice whose crossings span more rows than this allows is rejected as
// malformed.
const MaxGridCells = 1 << 25

// Bounds returns the smallest and largest crossing across all non-empty bins.
// It returns ErrDegenerateSlice when no bin holds a value and ErrFormat when a
// crossing is NaN or infinite.
func (s *Slice) Bounds() (lo, hi float64, err error) {
	found := false
	for x, bin := range s.Zeros {
		for _, zp := range bin {
			if math.IsNaN(zp) || math.IsInf(zp, 0) {
				return 0, 0, fmt.Errorf("%w: bin %d holds non-finite crossing %v", ErrFormat, x, zp)
			}
		}
		if len(bin) == 0 {
			continue
		}
		binLo, binHi := floats.Min(bin), floats.Max(bin)
		if !found {
			lo, hi = binLo, binHi
			found = true
			continue
		}
		lo = math.Min(lo, binLo)
		hi = math.Max(hi, binHi)
	}
	if !found {
		return 0, 0, ErrDegenerateSlice
	}
	return lo, hi, nil
}

// Dims returns the shape of the reconstructed grid: one row per unit of
// distance between the smallest and largest crossing, one column per bin.
func (s *Slice) Dims() (height, width int, err error) {
	lo, hi, err := s.Bounds()
	if err != nil {
		return 0, 0, err
	}
	height, err = s.checkedRows(lo, hi)
	if err != nil {
		return 0, 0, err
	}
	return height, len(s.Zeros), nil
}

// Validate reports crossings that can never be reconstructed: non-finite
// values and spreads whose grid would exceed MaxGridCells. A degenerate
// slice is valid.
func (s *Slice) Validate() error {
	_, _, err := s.Dims()
	if errors.Is(err, ErrDegenerateSlice) {
		return nil
	}
	return err
}

func (s *Slice) checkedRows(lo, hi float64) (int, error) {
	cols := max(len(s.Zeros), 1)
	if hi-lo >= float64(MaxGridCells/cols) {
		return 0, fmt.Errorf("%w: crossings span %.0f rows over %d bins, more than %d cells",
			ErrFormat, hi-lo, len(s.Zeros), MaxGridCells)
	}
	return rowsFor(lo, hi), nil
}

// Reconstruct rebuilds the dense distance table for this slice. With sawTooth
// disabled the grid holds 1 at each recorded crossing and 0 elsewhere.
func (s *Slice) Reconstruct(sawTooth bool) (*DDT, error) {
	return s.ReconstructWith(ReconstructOptions{SawTooth: sawTooth})
}

// ReconstructWith rebuilds the dense distance table using the given options.
func (s *Slice) ReconstructWith(opts ReconstructOptions) (*DDT, error) {
	lo, hi, err := s.Bounds()
	if err != nil {
		return nil, err
	}

	height, err := s.checkedRows(lo, hi)
	if err != nil {
		return nil, err
	}
	grid := mat.NewDense(height, len(s.Zeros), nil)

	// Crossings that truncate to the same row overwrite each other.
	for x, bin := range s.Zeros {
		for _, zp := range bin {
			grid.Set(int(zp-lo), x, crossingMarker)
		}
	}

	if opts.SawTooth {
		fillSawTooth(grid, opts.Unknown)
	}

	return &DDT{grid: grid, Offset: lo}, nil
}

// fillSawTooth walks each column top to bottom replacing markers with 0 and
// every following cell with its row distance from the latest marker.
func fillSawTooth(grid *mat.Dense, unknown float64) {
	rows, cols := grid.Dims()
	for x := 0; x < cols; x++ {
		last := -1
		for y := 0; y < rows; y++ {
			switch {
			case grid.At(y, x) == crossingMarker:
				last = 0
				grid.Set(y, x, 0)
			case last >= 0:
				last++
				grid.Set(y, x, float64(last))
			case unknown != 0:
				grid.Set(y, x, unknown)
			}
		}
	}
}

// rowsFor returns ceil(hi-lo)+1
func rowsFor(lo, hi float64) int {
	return int(math.Ceil(hi-lo)) + 1
}
