package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/cddtviz/cddt"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *cddt.Config
	Table      *cddt.Table
	Scroller   *cddt.Scroller
	MQTTClient mqtt.Client
	Publisher  *cddt.SlicePublisher

	// CLI Flags (effectively dependencies)
	Path           string
	ConfigFile     string
	Index          int
	Output         string
	OutputDir      string
	SawTooth       bool
	Bins           int
	HttpPort       int
	HttpMode       bool
	MqttMode       bool
	NoTruncate     bool
	StrictBins     bool
	ValidateSchema bool

	out io.Writer
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Config:   cddt.DefaultConfig(),
		SawTooth: true,
		Bins:     20,
		out:      os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.Path = opts.Path
	a.ConfigFile = opts.ConfigFile
	a.Index = opts.Index
	a.Output = opts.Output
	a.OutputDir = opts.OutputDir
	a.SawTooth = opts.SawTooth
	a.Bins = opts.Bins
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.MqttMode = opts.MqttMode
	a.NoTruncate = opts.NoTruncate
	a.StrictBins = opts.StrictBins
	a.ValidateSchema = opts.ValidateSchema
}

// loadConfig reads the optional config file and layers CLI flags on top
func (a *App) loadConfig() error {
	if a.ConfigFile != "" {
		cfg, err := cddt.LoadConfig(a.ConfigFile)
		if err != nil {
			return err
		}
		a.Config = cfg
		log.Printf("Loaded config from %s", a.ConfigFile)
	}
	if a.Config == nil {
		a.Config = cddt.DefaultConfig()
	}

	if a.NoTruncate {
		a.Config.Load.Truncation = cddt.TruncateNone.String()
	}
	if a.StrictBins {
		a.Config.Load.StrictBins = true
	}
	if a.ValidateSchema {
		a.Config.Load.ValidateSchema = true
	}
	if !a.SawTooth {
		a.Config.Render.SawTooth = false
	}
	if a.HttpPort > 0 {
		a.Config.HTTP.Port = a.HttpPort
	}
	return a.Config.Validate()
}

// loadTable loads config and the CDDT at a.Path, and builds the scroller
func (a *App) loadTable() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	table, err := cddt.LoadTable(a.Path, a.Config.Load.LoadOptions())
	if err != nil {
		return fmt.Errorf("loading %s: %w", a.Path, err)
	}
	a.Table = table
	cache := cddt.NewDDTCache(table, a.Config.Render.ReconstructOptions())
	a.Scroller = cddt.NewScroller(table, cache)
	return nil
}

func (a *App) outputOr(def string) string {
	if a.Output != "" {
		return a.Output
	}
	return def
}

// RunInfo prints a summary of the table and per-slice occupancy
func (a *App) RunInfo() {
	if err := a.info(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func (a *App) info() error {
	if err := a.loadTable(); err != nil {
		return err
	}
	s := cddt.Summarize(a.Table)

	_, _ = fmt.Fprintf(a.out, "=== %s ===\n", filepath.Base(a.Path))
	_, _ = fmt.Fprintf(a.out, "Map: %s (%dx%d)\n", s.MapPath, s.MapWidth, s.MapHeight)
	_, _ = fmt.Fprintf(a.out, "Max Range: %.1f  Theta Discretization: %d  Translations: %d\n",
		s.MaxRange, s.ThetaDiscretization, s.Translations)
	_, _ = fmt.Fprintf(a.out, "Slices: %d (%d empty)  Total Zeros: %d  Compression: %.1fx\n",
		s.Slices, s.DegenerateSlices, s.TotalZeros, s.CompressionFactor)
	_, _ = fmt.Fprintln(a.out)

	for i, slice := range a.Table.Slices {
		st := slice.Stats()
		line := fmt.Sprintf("[%3d] theta=%.4f bins=%d zeros=%d mean=%.2f std=%.2f max=%d",
			i, slice.Theta, st.Bins, st.Zeros, st.Mean, st.StdDev, st.Max)
		if slice.IsDegenerate() {
			line += "  (empty)"
		} else {
			line += fmt.Sprintf(" compression=%.1f", a.Table.CompressionFactor(i))
		}
		_, _ = fmt.Fprintln(a.out, line)
	}
	return nil
}

// RunRender renders one slice to a PNG. Outputs ending in .svg or .vector.png
// get the vector drawing of the crossings instead.
func (a *App) RunRender() {
	if err := a.render(); err != nil {
		log.Fatalf("Error rendering: %v", err)
	}
}

func (a *App) render() error {
	if err := a.loadTable(); err != nil {
		return err
	}
	output := a.outputOr("slice.png")

	v, err := a.Scroller.Jump(a.Index)
	if err != nil {
		return err
	}
	if v.Empty {
		return fmt.Errorf("slice %d: %w", v.Index, cddt.ErrDegenerateSlice)
	}

	lower := strings.ToLower(output)
	if vector := strings.HasSuffix(lower, ".svg"); vector || strings.HasSuffix(lower, ".vector.png") {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", output, err)
		}
		defer func() { _ = f.Close() }()
		r := cddt.NewVectorRenderer(a.Table.Slices[v.Index])
		if vector {
			err = r.RenderToSVG(f)
		} else {
			err = r.RenderToPNG(f)
		}
		if err != nil {
			return fmt.Errorf("rendering vector image: %w", err)
		}
	} else {
		img, err := cddt.RenderSliceView(v, a.Config.Render.RenderOptions())
		if err != nil {
			return err
		}
		if err := cddt.SavePNG(output, img); err != nil {
			return fmt.Errorf("saving %s: %w", output, err)
		}
	}

	_, _ = fmt.Fprintf(a.out, "Rendered slice %d (theta=%.4f, %dx%d) to %s\n", v.Index, v.Theta, v.Cols, v.Rows, output)
	return nil
}

// RunRenderAll renders every non-empty slice into the output directory
func (a *App) RunRenderAll() {
	if err := a.renderAll(); err != nil {
		log.Fatalf("Error rendering: %v", err)
	}
}

func (a *App) renderAll() error {
	if err := a.loadTable(); err != nil {
		return err
	}
	dir := a.OutputDir
	if dir == "" {
		dir = "slices"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	rendered, skipped := 0, 0
	for i := 0; i < a.Table.Len(); i++ {
		v, err := a.Scroller.ViewAt(i)
		if err != nil {
			return err
		}
		if v.Empty {
			log.Printf("Skipping slice %d: %v", i, cddt.ErrDegenerateSlice)
			skipped++
			continue
		}
		img, err := cddt.RenderSliceView(v, a.Config.Render.RenderOptions())
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("slice-%03d.png", i))
		if err := cddt.SavePNG(path, img); err != nil {
			return fmt.Errorf("saving %s: %w", path, err)
		}
		rendered++
	}

	_, _ = fmt.Fprintf(a.out, "Rendered %d slices to %s (%d empty skipped)\n", rendered, dir, skipped)
	return nil
}

// RunHistogram plots the per-bin occupancy histogram
func (a *App) RunHistogram() {
	if err := a.histogram(); err != nil {
		log.Fatalf("Error plotting histogram: %v", err)
	}
}

func (a *App) histogram() error {
	if err := a.loadTable(); err != nil {
		return err
	}
	output := a.outputOr("histogram.png")

	if bins := min(max(a.Bins, 1), cddt.MaxHistogramBins); bins != a.Bins {
		log.Printf("Clamping --bins %d to %d", a.Bins, bins)
		a.Bins = bins
	}
	h := a.Table.ZerosHistogram(a.Bins)
	for i, c := range h.Counts {
		_, _ = fmt.Fprintf(a.out, "[%6.1f, %6.1f) %.0f\n", h.Dividers[i], h.Dividers[i+1], c)
	}

	p, err := cddt.ZerosHistogramPlot(a.Table, a.Bins)
	if err != nil {
		return err
	}
	if err := cddt.SavePlot(p, output); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Saved histogram to %s\n", output)
	return nil
}

// RunExportGeoJSON writes every slice's crossings as a FeatureCollection
func (a *App) RunExportGeoJSON() {
	if err := a.exportGeoJSON(); err != nil {
		log.Fatalf("Error exporting GeoJSON: %v", err)
	}
}

func (a *App) exportGeoJSON() error {
	if err := a.loadTable(); err != nil {
		return err
	}
	output := a.outputOr("crossings.geojson")

	fc := cddt.TableCrossings(a.Table)
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file %s: %w", output, err)
	}
	if err := cddt.WriteGeoJSON(f, fc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.out, "Exported %d slice features to %s\n", len(fc.Features), output)
	return nil
}

// RunConvert re-encodes the whole document, picking compression from the
// output extension. Truncation does not apply; every stored slice is kept.
func (a *App) RunConvert() {
	if err := a.convert(); err != nil {
		log.Fatalf("Error converting: %v", err)
	}
}

func (a *App) convert() error {
	if a.Output == "" {
		return fmt.Errorf("--output is required for --convert")
	}
	if err := a.loadConfig(); err != nil {
		return err
	}

	if a.Config.Load.ValidateSchema {
		data, err := cddt.ReadSource(context.Background(), a.Path)
		if err != nil {
			return err
		}
		if err := cddt.ValidateDocument(data); err != nil {
			return err
		}
	}

	doc, err := cddt.ParseFile(a.Path)
	if err != nil {
		return err
	}
	if doc.CDDT == nil {
		return fmt.Errorf("%w: missing top-level %q key", cddt.ErrFormat, "cddt")
	}
	if err := cddt.SaveDocument(a.Output, doc); err != nil {
		return err
	}

	compression := cddt.CompressionForPath(a.Output)
	if compression == cddt.CompressionNone {
		compression = "none"
	}
	_, _ = fmt.Fprintf(a.out, "Wrote %s (%d slices, compression=%s)\n",
		a.Output, len(doc.CDDT.CompressedLUT), compression)
	return nil
}

// RunService runs the HTTP viewer and/or the MQTT publisher until interrupted
func (a *App) RunService() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.service(ctx); err != nil {
		log.Fatalf("Service error: %v", err)
	}
}

func (a *App) service(ctx context.Context) error {
	_, _ = fmt.Fprintln(a.out, "Starting cddtviz service...")
	if err := a.loadTable(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Loaded %d slices from %s\n", a.Table.Len(), a.Path)

	if a.MqttMode {
		if err := a.startMQTT(ctx); err != nil {
			return err
		}
	}

	var server *http.Server
	serverErr := make(chan error, 1)
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.Config.HTTP.Port),
			Handler:           newHTTPServer(a.Scroller, a.Config, a.Publisher),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			_, _ = fmt.Fprintf(a.out, "HTTP server starting on %s\n", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	a.printServiceInfo()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		err = fmt.Errorf("HTTP server error: %w", err)
	}

	_, _ = fmt.Fprintln(a.out, "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Printf("[HTTP] shutdown: %v", shutdownErr)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect(250)
	}
	_, _ = fmt.Fprintln(a.out, "Service stopped")
	return err
}

// startMQTT connects, subscribes to scroll commands and publishes the first view
func (a *App) startMQTT(ctx context.Context) error {
	mcfg := cddt.ResolveMQTTConfig(a.Config.MQTT)
	client := cddt.NewMQTTClient(mcfg)
	if client == nil {
		return fmt.Errorf("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
	}
	if err := cddt.ConnectMQTT(ctx, client); err != nil {
		return err
	}
	a.MQTTClient = client

	a.Publisher = cddt.NewSlicePublisher(client, mcfg.PublishPrefix, a.Config.Render.RenderOptions())
	if err := a.Publisher.SubscribeScroll(a.Scroller); err != nil {
		return err
	}

	v, err := a.Scroller.Current()
	if err != nil {
		return err
	}
	if err := a.Publisher.PublishView(v); err != nil {
		log.Printf("[MQTT] initial publish failed: %v", err)
	}
	return nil
}

func (a *App) printServiceInfo() {
	_, _ = fmt.Fprintln(a.out, "\nService Running")
	_, _ = fmt.Fprintln(a.out, "===============")

	if a.MqttMode && a.Publisher != nil {
		_, _ = fmt.Fprintln(a.out, "\nMQTT:")
		_, _ = fmt.Fprintf(a.out, "  Publishing to: %s and %s\n", a.Publisher.Topic("slice"), a.Publisher.Topic("slice/image"))
		_, _ = fmt.Fprintf(a.out, "  Scroll commands: %s (payload: integer step)\n", a.Publisher.Topic("scroll"))
	}

	if a.HttpMode {
		_, _ = fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		_, _ = fmt.Fprintln(a.out, "  GET  /health                          - Health check")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices                          - Table summary and slice list")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices/{i}                      - Slice view metadata")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices/{i}/ddt.png              - Reconstructed DDT (?sawtooth=false)")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices/{i}/view.png             - DDT with title and occupancy profile")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices/{i}/ddt.svg              - Vector crossings")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices/{i}/occupancy.png        - Entries per bin")
		_, _ = fmt.Fprintln(a.out, "  GET  /slices/{i}/crossings.geojson    - Crossings as GeoJSON")
		_, _ = fmt.Fprintln(a.out, "  GET  /map.png                         - Source occupancy map")
		_, _ = fmt.Fprintln(a.out, "  GET  /histogram.png                   - Bin occupancy histogram")
		_, _ = fmt.Fprintln(a.out, "  POST /scroll?step=n                   - Move the current slice")
		_, _ = fmt.Fprintln(a.out, "  GET  /current.png                     - Current slice view")
	}

	_, _ = fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}
