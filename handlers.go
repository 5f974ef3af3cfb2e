package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kwv/cddtviz/cddt"
)

// sliceInfo is one row of the /slices listing
type sliceInfo struct {
	Index             int     `json:"index"`
	Theta             float64 `json:"theta"`
	Bins              int     `json:"bins"`
	Zeros             int     `json:"zeros"`
	CompressionFactor float64 `json:"compressionFactor"`
	Empty             bool    `json:"empty"`
}

// newHTTPServer creates an HTTP server with all endpoints. publisher may be
// nil; when set, POST /scroll also publishes the new view.
func newHTTPServer(scroller *cddt.Scroller, config *cddt.Config, publisher *cddt.SlicePublisher) http.Handler {
	if config == nil {
		config = cddt.DefaultConfig()
	}
	table := scroller.Table()
	renderOpts := config.Render.RenderOptions()
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Slices    int       `json:"slices"`
			Current   int       `json:"current"`
			Cached    int       `json:"cached"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Slices:    table.Len(),
			Current:   scroller.Index(),
			Cached:    scroller.Cache().Len(),
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("GET /slices", func(w http.ResponseWriter, r *http.Request) {
		slices := make([]sliceInfo, table.Len())
		for i, s := range table.Slices {
			slices[i] = sliceInfo{
				Index:             i,
				Theta:             s.Theta,
				Bins:              s.Width(),
				Zeros:             s.TotalZeros(),
				CompressionFactor: table.CompressionFactor(i),
				Empty:             s.IsDegenerate(),
			}
		}
		writeJSON(w, struct {
			Summary cddt.TableSummary `json:"summary"`
			Slices  []sliceInfo       `json:"slices"`
		}{cddt.Summarize(table), slices})
	})

	mux.HandleFunc("GET /slices/{index}", func(w http.ResponseWriter, r *http.Request) {
		v, ok := viewFromRequest(w, r, scroller)
		if !ok {
			return
		}
		writeJSON(w, struct {
			cddt.View
			Stats cddt.SliceStats `json:"stats"`
		}{v, table.Slices[v.Index].Stats()})
	})

	// Bare DDT image. ?sawtooth=false shows the crossing markers instead,
	// ?scale=n zooms.
	mux.HandleFunc("GET /slices/{index}/ddt.png", func(w http.ResponseWriter, r *http.Request) {
		idx, ok := indexFromRequest(w, r, table)
		if !ok {
			return
		}
		opts := renderOpts
		if s := r.URL.Query().Get("scale"); s != "" {
			scale, err := strconv.Atoi(s)
			if err != nil || scale < 1 || scale > 64 {
				http.Error(w, fmt.Sprintf("invalid scale %q", s), http.StatusBadRequest)
				return
			}
			opts.Scale = scale
		}

		var ddt *cddt.DDT
		var err error
		if r.URL.Query().Get("sawtooth") == "false" {
			ddt, err = table.Slices[idx].Reconstruct(false)
		} else {
			ddt, err = scroller.Cache().Get(idx)
		}
		if err != nil {
			writeSliceError(w, err)
			return
		}

		etag := fmt.Sprintf(`"%016x-%d-%t"`, ddt.Digest(), opts.Scale, opts.Sqrt)
		if notModified(w, r, etag) {
			return
		}
		writePNG(w, cddt.RenderDDT(ddt, opts))
	})

	mux.HandleFunc("GET /slices/{index}/view.png", func(w http.ResponseWriter, r *http.Request) {
		v, ok := viewFromRequest(w, r, scroller)
		if !ok {
			return
		}
		writeSliceView(w, r, v, renderOpts)
	})

	mux.HandleFunc("GET /slices/{index}/ddt.svg", func(w http.ResponseWriter, r *http.Request) {
		idx, ok := indexFromRequest(w, r, table)
		if !ok {
			return
		}
		// The status is fixed once the SVG starts streaming.
		if table.Slices[idx].IsDegenerate() {
			writeSliceError(w, cddt.ErrDegenerateSlice)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := cddt.NewVectorRenderer(table.Slices[idx]).RenderToSVG(w); err != nil {
			log.Printf("[HTTP] Error rendering SVG for slice %d: %v", idx, err)
		}
	})

	mux.HandleFunc("GET /slices/{index}/occupancy.png", func(w http.ResponseWriter, r *http.Request) {
		idx, ok := indexFromRequest(w, r, table)
		if !ok {
			return
		}
		p, err := cddt.OccupancyPlot(table.Slices[idx], idx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := cddt.WritePlotPNG(p, w); err != nil {
			log.Printf("[HTTP] Error encoding occupancy plot: %v", err)
		}
	})

	mux.HandleFunc("GET /slices/{index}/crossings.geojson", func(w http.ResponseWriter, r *http.Request) {
		idx, ok := indexFromRequest(w, r, table)
		if !ok {
			return
		}
		f, err := cddt.SliceCrossingsFeature(idx, table.Slices[idx])
		if err != nil {
			writeSliceError(w, err)
			return
		}
		fc := cddt.NewFeatureCollection()
		fc.AddFeature(f)
		w.Header().Set("Content-Type", "application/geo+json")
		if err := cddt.WriteGeoJSON(w, fc); err != nil {
			log.Printf("[HTTP] Error encoding GeoJSON: %v", err)
		}
	})

	mux.HandleFunc("GET /map.png", func(w http.ResponseWriter, r *http.Request) {
		img, err := cddt.RenderMap(table.Map)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writePNG(w, img)
	})

	mux.HandleFunc("GET /histogram.png", func(w http.ResponseWriter, r *http.Request) {
		bins := 20
		if s := r.URL.Query().Get("bins"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 || n > cddt.MaxHistogramBins {
				http.Error(w, fmt.Sprintf("invalid bins %q", s), http.StatusBadRequest)
				return
			}
			bins = n
		}
		p, err := cddt.ZerosHistogramPlot(table, bins)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := cddt.WritePlotPNG(p, w); err != nil {
			log.Printf("[HTTP] Error encoding histogram: %v", err)
		}
	})

	mux.HandleFunc("POST /scroll", func(w http.ResponseWriter, r *http.Request) {
		step, err := cddt.ParseScrollStep(r.URL.Query().Get("step"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		v, err := scroller.Scroll(step)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if publisher != nil {
			if err := publisher.PublishView(v); err != nil {
				log.Printf("[HTTP] Error publishing view after scroll: %v", err)
			}
		}
		writeJSON(w, v)
	})

	mux.HandleFunc("GET /current.png", func(w http.ResponseWriter, r *http.Request) {
		v, err := scroller.Current()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeSliceView(w, r, v, renderOpts)
	})

	return mux
}

// indexFromRequest parses {index} and wraps it onto the table
func indexFromRequest(w http.ResponseWriter, r *http.Request, table *cddt.Table) (int, bool) {
	raw := r.PathValue("index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid slice index %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return table.WrapIndex(i), true
}

func viewFromRequest(w http.ResponseWriter, r *http.Request, scroller *cddt.Scroller) (cddt.View, bool) {
	idx, ok := indexFromRequest(w, r, scroller.Table())
	if !ok {
		return cddt.View{}, false
	}
	v, err := scroller.ViewAt(idx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return cddt.View{}, false
	}
	return v, true
}

func writeSliceView(w http.ResponseWriter, r *http.Request, v cddt.View, opts cddt.RenderOptions) {
	if v.Empty {
		writeSliceError(w, cddt.ErrDegenerateSlice)
		return
	}
	etag := fmt.Sprintf(`"%016x-view-%d-%t"`, v.Digest, opts.Scale, opts.Sqrt)
	if notModified(w, r, etag) {
		return
	}
	img, err := cddt.RenderSliceView(v, opts)
	if err != nil {
		writeSliceError(w, err)
		return
	}
	writePNG(w, img)
}

// writeSliceError maps an empty slice to 404 and anything else to 500
func writeSliceError(w http.ResponseWriter, err error) {
	if errors.Is(err, cddt.ErrDegenerateSlice) {
		http.Error(w, cddt.ErrDegenerateSlice.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// notModified sets the ETag and answers 304 when the client already has it
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func writePNG(w http.ResponseWriter, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := cddt.EncodePNG(w, img); err != nil {
		log.Printf("[HTTP] Error encoding PNG: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding JSON: %v", err)
	}
}
