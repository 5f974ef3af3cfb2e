package cddt

import (
	"errors"
	"sync"
)

// View is everything a display needs to show one slice
type View struct {
	Index             int     `json:"index"`
	Theta             float64 `json:"theta"`
	Rows              int     `json:"rows"`
	Cols              int     `json:"cols"`
	Offset            float64 `json:"offset"`
	Counts            []int   `json:"counts"`
	TotalZeros        int     `json:"totalZeros"`
	CompressionFactor float64 `json:"compressionFactor"`
	Empty             bool    `json:"empty"` // degenerate slice, nothing to display
	Digest            uint64  `json:"digest,omitempty"`

	// DDT is the reconstructed table; Display is its square root, which
	// spreads short distances over more of the gray ramp.
	DDT     *DDT `json:"-"`
	Display *DDT `json:"-"`
}

// Scroller steps cyclically through the slices of a Table, reconstructing
// each one on first use through a DDTCache.
type Scroller struct {
	mu    sync.Mutex
	table *Table
	cache *DDTCache
	index int
}

// NewScroller creates a scroller positioned at slice 0
func NewScroller(table *Table, cache *DDTCache) *Scroller {
	if cache == nil {
		cache = NewDDTCache(table, ReconstructOptions{SawTooth: true})
	}
	return &Scroller{table: table, cache: cache}
}

// Table returns the table being scrolled
func (s *Scroller) Table() *Table {
	return s.table
}

// Cache returns the scroller's reconstruction cache
func (s *Scroller) Cache() *DDTCache {
	return s.cache
}

// Index returns the current slice index
func (s *Scroller) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Scroll moves step slices forward (negative steps move back), wrapping at
// either end, and returns the new view.
func (s *Scroller) Scroll(step int) (View, error) {
	s.mu.Lock()
	s.index = s.table.WrapIndex(s.index + step)
	idx := s.index
	s.mu.Unlock()

	Logf("Slice: %d  Theta: %v", idx, s.table.Slices[idx].Theta)
	return s.ViewAt(idx)
}

// Jump moves to slice i (wrapped) and returns its view
func (s *Scroller) Jump(i int) (View, error) {
	s.mu.Lock()
	s.index = s.table.WrapIndex(i)
	idx := s.index
	s.mu.Unlock()
	return s.ViewAt(idx)
}

// Current returns the view at the current index
func (s *Scroller) Current() (View, error) {
	return s.ViewAt(s.Index())
}

// ViewAt builds the view for slice i without moving the scroller. A
// degenerate slice yields an Empty view rather than an error.
func (s *Scroller) ViewAt(i int) (View, error) {
	idx := s.table.WrapIndex(i)
	slice := s.table.Slices[idx]

	v := View{
		Index:             idx,
		Theta:             slice.Theta,
		Counts:            slice.OccupancyCounts(),
		TotalZeros:        slice.TotalZeros(),
		CompressionFactor: s.table.CompressionFactor(idx),
	}

	ddt, err := s.cache.Get(idx)
	if errors.Is(err, ErrDegenerateSlice) {
		v.Empty = true
		return v, nil
	}
	if err != nil {
		return v, err
	}

	v.DDT = ddt
	v.Display = ddt.Sqrt()
	v.Rows, v.Cols = ddt.Dims()
	v.Offset = ddt.Offset
	v.Digest = ddt.Digest()
	return v, nil
}
