package cddt

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/paulmach/orb"
)

// GeometryType represents the GeoJSON geometry type
type GeometryType string

const (
	GeometryMultiPoint GeometryType = "MultiPoint"
)

// Geometry represents a GeoJSON geometry object
type Geometry struct {
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature represents a GeoJSON feature with geometry and properties
type Feature struct {
	Type       string                 `json:"type"`
	Geometry   *Geometry              `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
	ID         interface{}            `json:"id,omitempty"`
}

// FeatureCollection represents a GeoJSON FeatureCollection
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection creates a new empty FeatureCollection
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*Feature, 0),
	}
}

// AddFeature appends a feature to the collection
func (fc *FeatureCollection) AddFeature(f *Feature) {
	fc.Features = append(fc.Features, f)
}

// NewFeature creates a Feature with the given geometry and properties
func NewFeature(geom *Geometry, props map[string]interface{}) *Feature {
	if props == nil {
		props = make(map[string]interface{})
	}
	return &Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: props,
	}
}

// SliceCrossings returns every crossing of the slice as a (column, row
// offset) point, where the row offset is the crossing minus the slice's
// smallest crossing.
func SliceCrossings(s *Slice) (orb.MultiPoint, error) {
	lo, _, err := s.Bounds()
	if err != nil {
		return nil, err
	}
	mp := make(orb.MultiPoint, 0, s.TotalZeros())
	for x, bin := range s.Zeros {
		for _, zp := range bin {
			mp = append(mp, orb.Point{float64(x), zp - lo})
		}
	}
	return mp, nil
}

// MultiPointToGeometry converts an orb.MultiPoint to a GeoJSON geometry
func MultiPointToGeometry(mp orb.MultiPoint) *Geometry {
	coords := make([][2]float64, len(mp))
	for i, p := range mp {
		coords[i] = [2]float64{p[0], p[1]}
	}
	coordsJSON, _ := json.Marshal(coords)
	return &Geometry{
		Type:        GeometryMultiPoint,
		Coordinates: coordsJSON,
	}
}

// SliceCrossingsFeature builds the feature for slice index of a table
func SliceCrossingsFeature(index int, s *Slice) (*Feature, error) {
	mp, err := SliceCrossings(s)
	if err != nil {
		return nil, fmt.Errorf("slice %d: %w", index, err)
	}
	b := mp.Bound()
	f := NewFeature(MultiPointToGeometry(mp), map[string]interface{}{
		"index": index,
		"theta": s.Theta,
		"zeros": len(mp),
		"bins":  s.Width(),
		"bbox":  []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
	})
	f.ID = index
	return f, nil
}

// TableCrossings builds a FeatureCollection with one feature per slice.
// Degenerate slices are skipped.
func TableCrossings(t *Table) *FeatureCollection {
	fc := NewFeatureCollection()
	for i, s := range t.Slices {
		f, err := SliceCrossingsFeature(i, s)
		if err != nil {
			Logf("Skipping slice %d in GeoJSON export: %v", i, err)
			continue
		}
		fc.AddFeature(f)
	}
	return fc
}

// WriteGeoJSON encodes fc to w
func WriteGeoJSON(w io.Writer, fc *FeatureCollection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encoding GeoJSON: %w", err)
	}
	return nil
}
