package cddt

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SliceStats summarizes bin occupancy for one slice
type SliceStats struct {
	Bins      int     `json:"bins"`
	EmptyBins int     `json:"emptyBins"`
	Zeros     int     `json:"zeros"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stdDev"`
	Max       int     `json:"max"`
}

// Stats returns occupancy statistics for the slice
func (s *Slice) Stats() SliceStats {
	counts := s.OccupancyCounts()
	st := SliceStats{Bins: len(counts)}
	if len(counts) == 0 {
		return st
	}

	values := make([]float64, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
		st.Zeros += c
		if c == 0 {
			st.EmptyBins++
		}
	}
	st.Max = int(floats.Max(values))
	if len(values) == 1 {
		st.Mean = values[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(values, nil)
	return st
}

// Histogram is a binned count of per-bin occupancy values
type Histogram struct {
	Dividers []float64 `json:"dividers"` // len(Counts)+1 bin edges
	Counts   []float64 `json:"counts"`
}

// ZerosHistogram bins the occupancy of every bin of every slice into n
// equal-width buckets. n is clamped to [1, MaxHistogramBins].
func (t *Table) ZerosHistogram(n int) Histogram {
	n = min(max(n, 1), MaxHistogramBins)
	values := t.OccupancyValues()
	if len(values) == 0 {
		return Histogram{}
	}
	sort.Float64s(values)

	dividers := make([]float64, n+1)
	// Occupancy values are integers, so +1 keeps the largest one inside the
	// half-open last bucket.
	floats.Span(dividers, values[0], values[len(values)-1]+1)
	counts := stat.Histogram(nil, dividers, values, nil)
	return Histogram{Dividers: dividers, Counts: counts}
}

// OccupancyValues returns every bin size of every slice as floats
func (t *Table) OccupancyValues() []float64 {
	var values []float64
	for _, s := range t.Slices {
		for _, c := range s.OccupancyCounts() {
			values = append(values, float64(c))
		}
	}
	return values
}

// TableSummary provides a summary of table contents
type TableSummary struct {
	MapPath             string  `json:"mapPath"`
	MapWidth            int     `json:"mapWidth"`
	MapHeight           int     `json:"mapHeight"`
	MaxRange            float64 `json:"maxRange"`
	ThetaDiscretization int     `json:"thetaDiscretization"`
	Translations        int     `json:"translations"`
	Slices              int     `json:"slices"`
	DegenerateSlices    int     `json:"degenerateSlices"`
	TotalZeros          int     `json:"totalZeros"`
	CompressionFactor   float64 `json:"compressionFactor"` // across all loaded slices
}

// Summarize extracts key information from a table
func Summarize(t *Table) TableSummary {
	summary := TableSummary{
		MapPath:             t.Map.Path,
		MapWidth:            t.Map.Width,
		MapHeight:           t.Map.Height,
		MaxRange:            t.MaxRange,
		ThetaDiscretization: t.ThetaDiscretization,
		Translations:        len(t.LUTTranslations),
		Slices:              t.Len(),
	}

	for _, s := range t.Slices {
		n := s.TotalZeros()
		if n == 0 {
			summary.DegenerateSlices++
		}
		summary.TotalZeros += n
	}
	if summary.TotalZeros > 0 {
		summary.CompressionFactor = float64(2*t.Map.CellCount()*t.Len()) / float64(summary.TotalZeros)
	}
	return summary
}
