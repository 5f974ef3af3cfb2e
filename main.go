package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command-line flags
type AppOptions struct {
	Path       string
	ConfigFile string

	Info          bool
	Render        bool
	RenderAll     bool
	Histogram     bool
	ExportGeoJSON bool
	Convert       bool
	HttpMode      bool
	MqttMode      bool

	Index     int
	Output    string
	OutputDir string
	SawTooth  bool
	Bins      int
	HttpPort  int

	NoTruncate     bool
	StrictBins     bool
	ValidateSchema bool
}

// Runner executes the selected mode. App implements it; tests swap in a mock.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunInfo()
	RunRender()
	RunRenderAll()
	RunHistogram()
	RunExportGeoJSON()
	RunConvert()
	RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("cddtviz", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.Path, "path", "", "Path to a serialized CDDT (.json, .yaml, optionally .zst/.gz)")
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to YAML configuration file (optional)")

	fs.BoolVar(&opts.Info, "info", false, "Print a summary of the table and its slices")
	fs.BoolVar(&opts.Render, "render", false, "Render one slice to --output (.png raster, .svg or .vector.png vector)")
	fs.BoolVar(&opts.RenderAll, "render-all", false, "Render every slice into --output-dir")
	fs.BoolVar(&opts.Histogram, "histogram", false, "Plot the per-bin occupancy histogram to --output")
	fs.BoolVar(&opts.ExportGeoJSON, "export-geojson", false, "Export slice crossings as GeoJSON to --output")
	fs.BoolVar(&opts.Convert, "convert", false, "Re-encode the document to --output (compression from extension)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run the HTTP viewer")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish slice views to MQTT and accept scroll commands")

	fs.IntVar(&opts.Index, "index", 0, "Slice index for --render (wraps cyclically)")
	fs.StringVar(&opts.Output, "output", "", "Output file")
	fs.StringVar(&opts.OutputDir, "output-dir", "slices", "Output directory for --render-all")
	fs.BoolVar(&opts.SawTooth, "sawtooth", true, "Fill distances below each crossing (false draws raw crossings)")
	fs.IntVar(&opts.Bins, "bins", 20, "Number of histogram buckets")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config, 8080)")

	fs.BoolVar(&opts.NoTruncate, "no-truncate", false, "Keep every stored slice instead of the first half")
	fs.BoolVar(&opts.StrictBins, "strict-bins", false, "Reject slices whose bin count matches neither map dimension")
	fs.BoolVar(&opts.ValidateSchema, "validate-schema", false, "Validate the document against the embedded JSON schema")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "cddtviz version: %s\n", Version)

	modeSelected := opts.Info || opts.Render || opts.RenderAll || opts.Histogram ||
		opts.ExportGeoJSON || opts.Convert || opts.HttpMode || opts.MqttMode
	if modeSelected && opts.Path == "" {
		return fmt.Errorf("--path is required")
	}

	app.ApplyOptions(opts)

	switch {
	case opts.Info:
		app.RunInfo()
	case opts.Render:
		app.RunRender()
	case opts.RenderAll:
		app.RunRenderAll()
	case opts.Histogram:
		app.RunHistogram()
	case opts.ExportGeoJSON:
		app.RunExportGeoJSON()
	case opts.Convert:
		app.RunConvert()
	case opts.HttpMode || opts.MqttMode:
		app.RunService()
	default:
		_, _ = fmt.Fprintln(out, "Use --path=FILE with one of:")
		_, _ = fmt.Fprintln(out, "  --info                     summary of the table")
		_, _ = fmt.Fprintln(out, "  --render --index N         render one slice")
		_, _ = fmt.Fprintln(out, "  --render-all               render every slice")
		_, _ = fmt.Fprintln(out, "  --histogram                plot bin occupancy histogram")
		_, _ = fmt.Fprintln(out, "  --export-geojson           export crossings as GeoJSON")
		_, _ = fmt.Fprintln(out, "  --convert                  re-encode (.json, .json.zst, .json.gz)")
		_, _ = fmt.Fprintln(out, "  --http / --mqtt            run the interactive viewer service")
	}
	return nil
}
