package cddt

import (
	"fmt"
	"strings"
)

// TruncationPolicy decides how many of the stored slices are kept on load.
type TruncationPolicy int

const (
	// TruncateHalf keeps the first half of the stored slices. Producers
	// write 2*theta_discretization entries whose second half mirrors the
	// first, so it carries no extra information for visualization.
	TruncateHalf TruncationPolicy = iota

	// TruncateNone keeps every stored slice.
	TruncateNone
)

func (p TruncationPolicy) String() string {
	switch p {
	case TruncateHalf:
		return "half"
	case TruncateNone:
		return "none"
	}
	return fmt.Sprintf("TruncationPolicy(%d)", int(p))
}

// ParseTruncationPolicy parses "half" or "none". An empty string selects the
// default, TruncateHalf.
func ParseTruncationPolicy(s string) (TruncationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half":
		return TruncateHalf, nil
	case "none", "all":
		return TruncateNone, nil
	}
	return TruncateHalf, fmt.Errorf("unknown truncation policy %q (want half or none)", s)
}

// Apply returns the number of slices kept out of n stored ones
func (p TruncationPolicy) Apply(n int) int {
	if p == TruncateNone {
		return n
	}
	return n / 2
}

// LoadOptions controls how a Document becomes a Table
type LoadOptions struct {
	Truncation TruncationPolicy

	// StrictBins turns a slice whose bin count matches neither the map
	// width nor height into a format error instead of a logged warning.
	StrictBins bool

	// ValidateSchema checks the raw document against the embedded JSON
	// schema before decoding it. Only used by the byte and file loaders.
	ValidateSchema bool
}

// Table is a loaded CDDT: global parameters, the source map and the ordered
// per-theta slices. It is immutable after construction.
type Table struct {
	LUTTranslations     []float64
	MaxRange            float64
	ThetaDiscretization int
	Map                 *Map
	Slices              []*Slice
}

// NewTable builds a Table from a decoded document. A missing "cddt" key or an
// empty slice list is reported as ErrFormat and no Table is returned.
func NewTable(doc *Document, opts LoadOptions) (*Table, error) {
	if doc == nil || doc.CDDT == nil {
		return nil, fmt.Errorf("%w: missing top-level %q key", ErrFormat, "cddt")
	}
	raw := doc.CDDT

	Logf("..loading map")
	m, err := NewMap(raw.Map)
	if err != nil {
		return nil, err
	}

	kept := opts.Truncation.Apply(len(raw.CompressedLUT))
	if kept == 0 {
		return nil, fmt.Errorf("%w: no slices left from %d compressed_lut entries (truncation=%s)",
			ErrFormat, len(raw.CompressedLUT), opts.Truncation)
	}

	Logf("..loading slices (%d of %d, truncation=%s)", kept, len(raw.CompressedLUT), opts.Truncation)
	slices := make([]*Slice, kept)
	for i := range slices {
		s := NewSlice(raw.CompressedLUT[i])
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		if err := checkBinCount(i, s, m, opts.StrictBins); err != nil {
			return nil, err
		}
		slices[i] = s
	}

	return &Table{
		LUTTranslations:     raw.LUTTranslations,
		MaxRange:            raw.MaxRange,
		ThetaDiscretization: raw.ThetaDiscretization,
		Map:                 m,
		Slices:              slices,
	}, nil
}

// checkBinCount verifies a slice has one bin per map column or row.
func checkBinCount(index int, s *Slice, m *Map, strict bool) error {
	if m.Width == 0 && m.Height == 0 {
		return nil
	}
	if n := s.Width(); n == m.Width || n == m.Height {
		return nil
	}
	if strict {
		return fmt.Errorf("%w: slice %d has %d bins, want %d or %d",
			ErrFormat, index, s.Width(), m.Width, m.Height)
	}
	Logf("Warning: slice %d has %d bins, map is %dx%d", index, s.Width(), m.Width, m.Height)
	return nil
}

// Len returns the number of loaded slices
func (t *Table) Len() int {
	return len(t.Slices)
}

// WrapIndex maps any integer onto [0, Len()) cyclically
func (t *Table) WrapIndex(i int) int {
	n := len(t.Slices)
	return ((i % n) + n) % n
}

// Slice returns the slice at index i, wrapping cyclically so adjacent angles
// stay adjacent when scrolling past either end.
func (t *Table) Slice(i int) *Slice {
	return t.Slices[t.WrapIndex(i)]
}

// SliceAt returns the slice at index i or ErrIndexOutOfRange
func (t *Table) SliceAt(i int) (*Slice, error) {
	if i < 0 || i >= len(t.Slices) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(t.Slices))
	}
	return t.Slices[i], nil
}

// CompressionFactor compares the dense two-value-per-cell LUT size of the map
// against the number of crossings stored for slice i. It returns 0 when the
// slice has no crossings.
func (t *Table) CompressionFactor(i int) float64 {
	total := t.Slice(i).TotalZeros()
	if total == 0 {
		return 0
	}
	return float64(2*t.Map.CellCount()) / float64(total)
}
