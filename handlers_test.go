package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/cddtviz/cddt"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// testDocument returns a document with a 3x4 map and four stored slices;
// slice 1 has no crossings.
func testDocument() *cddt.Document {
	return &cddt.Document{CDDT: &cddt.RawCDDT{
		LUTTranslations:     []float64{0.5},
		MaxRange:            100,
		ThetaDiscretization: 2,
		Map: cddt.RawMap{
			Path:   "maps/test.png",
			Width:  3,
			Height: 4,
			Data: [][]float64{
				{0, 0, 1, 1},
				{0, 1, 1, 0},
				{1, 1, 0, 0},
			},
		},
		CompressedLUT: []cddt.RawSlice{
			{Theta: 0, Zeros: [][]float64{{2, 5}, {3}, {}}},
			{Theta: 0.785, Zeros: [][]float64{{}, {}, {}}},
			{Theta: 1.571, Zeros: [][]float64{{1}, {1, 4}, {2}}},
			{Theta: 2.356, Zeros: [][]float64{{7}, {}, {8.5}}},
		},
	}}
}

func testScroller(t *testing.T) *cddt.Scroller {
	t.Helper()
	prev := cddt.Logf
	cddt.SetLogger(nil)
	t.Cleanup(func() { cddt.SetLogger(prev) })

	table, err := cddt.NewTable(testDocument(), cddt.LoadOptions{Truncation: cddt.TruncateNone})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return cddt.NewScroller(table, cddt.NewDDTCache(table, cddt.ReconstructOptions{SawTooth: true}))
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodePNG(t *testing.T, w *httptest.ResponseRecorder) (width, height int) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("Content-Type = %q, want image/png", ct)
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("invalid PNG: %v", err)
	}
	return img.Bounds().Dx(), img.Bounds().Dy()
}

// ---------------------------------------------------------------------------
// endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	w := serve(t, h, http.MethodGet, "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Status string `json:"status"`
		Slices int    `json:"slices"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Slices != 4 {
		t.Errorf("health = %+v", body)
	}
}

func TestSlicesList(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	w := serve(t, h, http.MethodGet, "/slices")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Summary cddt.TableSummary `json:"summary"`
		Slices  []sliceInfo       `json:"slices"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Slices) != 4 {
		t.Fatalf("got %d slices, want 4", len(body.Slices))
	}
	if !body.Slices[1].Empty || body.Slices[0].Empty {
		t.Errorf("empty flags = %v/%v", body.Slices[0].Empty, body.Slices[1].Empty)
	}
	if body.Summary.DegenerateSlices != 1 {
		t.Errorf("DegenerateSlices = %d, want 1", body.Summary.DegenerateSlices)
	}
}

func TestSliceView_JSON(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)

	tests := []struct {
		path      string
		wantIndex int
	}{
		{"/slices/0", 0},
		{"/slices/2", 2},
		{"/slices/6", 2},  // wraps
		{"/slices/-1", 3}, // wraps
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(t, h, http.MethodGet, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			var body struct {
				Index int             `json:"index"`
				Rows  int             `json:"rows"`
				Stats cddt.SliceStats `json:"stats"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Index != tt.wantIndex {
				t.Errorf("index = %d, want %d", body.Index, tt.wantIndex)
			}
			if body.Stats.Bins != 3 {
				t.Errorf("stats.bins = %d, want 3", body.Stats.Bins)
			}
		})
	}
}

func TestSliceEndpoints_BadIndex(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	for _, ep := range []string{
		"/slices/x",
		"/slices/1.5/ddt.png",
		"/slices/abc/ddt.svg",
		"/slices/_/occupancy.png",
		"/slices/-/crossings.geojson",
		"/slices/z/view.png",
	} {
		t.Run(ep, func(t *testing.T) {
			w := serve(t, h, http.MethodGet, ep)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSliceEndpoints_EmptySlice(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	for _, ep := range []string{
		"/slices/1/ddt.png",
		"/slices/1/ddt.png?sawtooth=false",
		"/slices/1/view.png",
		"/slices/1/ddt.svg",
		"/slices/1/crossings.geojson",
	} {
		t.Run(ep, func(t *testing.T) {
			w := serve(t, h, http.MethodGet, ep)
			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
			if !strings.Contains(w.Body.String(), "empty slice, nothing to visualize") {
				t.Errorf("body = %q", w.Body.String())
			}
		})
	}
}

func TestDDTPNG(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)

	w := serve(t, h, http.MethodGet, "/slices/0/ddt.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if width, height := decodePNG(t, w); width != 3 || height != 4 {
		t.Errorf("size = %dx%d, want 3x4", width, height)
	}

	w = serve(t, h, http.MethodGet, "/slices/0/ddt.png?scale=5")
	if width, height := decodePNG(t, w); width != 15 || height != 20 {
		t.Errorf("scaled size = %dx%d, want 15x20", width, height)
	}

	w = serve(t, h, http.MethodGet, "/slices/0/ddt.png?scale=0")
	if w.Code != http.StatusBadRequest {
		t.Errorf("scale=0 status = %d, want 400", w.Code)
	}
}

func TestDDTPNG_SawToothToggleChangesETag(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)

	saw := serve(t, h, http.MethodGet, "/slices/0/ddt.png")
	markers := serve(t, h, http.MethodGet, "/slices/0/ddt.png?sawtooth=false")
	if saw.Code != http.StatusOK || markers.Code != http.StatusOK {
		t.Fatalf("status = %d/%d", saw.Code, markers.Code)
	}
	if saw.Header().Get("ETag") == "" {
		t.Fatal("missing ETag")
	}
	if saw.Header().Get("ETag") == markers.Header().Get("ETag") {
		t.Error("sawtooth and marker grids should have different ETags")
	}
}

func TestDDTPNG_NotModified(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)

	first := serve(t, h, http.MethodGet, "/slices/2/ddt.png")
	etag := first.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodGet, "/slices/2/ddt.png", nil)
	req.Header.Set("If-None-Match", etag)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Error("304 should have no body")
	}
}

func TestViewPNG(t *testing.T) {
	cfg := cddt.DefaultConfig()
	cfg.Render.Scale = 2
	h := newHTTPServer(testScroller(t), cfg, nil)

	w := serve(t, h, http.MethodGet, "/slices/0/view.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if width, _ := decodePNG(t, w); width != 6 {
		t.Errorf("width = %d, want 6", width)
	}
}

func TestDDTSVG(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	w := serve(t, h, http.MethodGet, "/slices/3/ddt.svg")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<svg") {
		t.Error("body is not SVG")
	}
}

func TestOccupancyPNG(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	w := serve(t, h, http.MethodGet, "/slices/1/occupancy.png")

	// An all-empty slice still has bins to plot.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	decodePNG(t, w)
}

func TestCrossingsGeoJSON(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	w := serve(t, h, http.MethodGet, "/slices/2/crossings.geojson")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates [][2]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(w.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("collection = %+v", fc)
	}
	if n := len(fc.Features[0].Geometry.Coordinates); n != 4 {
		t.Errorf("got %d crossings, want 4", n)
	}
}

func TestMapPNG(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)
	w := serve(t, h, http.MethodGet, "/map.png")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if width, height := decodePNG(t, w); width != 3 || height != 4 {
		t.Errorf("size = %dx%d, want 3x4", width, height)
	}
}

func TestHistogramPNG(t *testing.T) {
	h := newHTTPServer(testScroller(t), nil, nil)

	w := serve(t, h, http.MethodGet, "/histogram.png?bins=4")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	decodePNG(t, w)

	for _, bins := range []string{"-2", "1001", "2000000000", "x"} {
		w = serve(t, h, http.MethodGet, "/histogram.png?bins="+bins)
		if w.Code != http.StatusBadRequest {
			t.Errorf("bins=%s status = %d, want 400", bins, w.Code)
		}
	}

	w = serve(t, h, http.MethodGet, "/histogram.png?bins=1000")
	if w.Code != http.StatusOK {
		t.Errorf("bins=1000 status = %d, want 200", w.Code)
	}
}

func TestScrollAndCurrent(t *testing.T) {
	scroller := testScroller(t)
	h := newHTTPServer(scroller, nil, nil)

	w := serve(t, h, http.MethodPost, "/scroll?step=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var v cddt.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Index != 2 || scroller.Index() != 2 {
		t.Errorf("index = %d/%d, want 2", v.Index, scroller.Index())
	}

	w = serve(t, h, http.MethodGet, "/current.png")
	if w.Code != http.StatusOK {
		t.Fatalf("current status = %d", w.Code)
	}
	decodePNG(t, w)

	// Step back onto the empty slice.
	serve(t, h, http.MethodPost, "/scroll?step=-1")
	w = serve(t, h, http.MethodGet, "/current.png")
	if w.Code != http.StatusNotFound {
		t.Errorf("current on empty slice status = %d, want 404", w.Code)
	}

	// Default step is +1, wrapping past the end.
	serve(t, h, http.MethodPost, "/scroll")
	serve(t, h, http.MethodPost, "/scroll")
	serve(t, h, http.MethodPost, "/scroll")
	if scroller.Index() != 0 {
		t.Errorf("index = %d, want 0 after wrapping", scroller.Index())
	}

	w = serve(t, h, http.MethodPost, "/scroll?step=up")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad step status = %d, want 400", w.Code)
	}

	w = serve(t, h, http.MethodGet, "/scroll")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /scroll status = %d, want 405", w.Code)
	}
}
