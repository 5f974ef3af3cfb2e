package cddt

// Document is the root of a serialized CDDT file. The payload lives under the
// top-level "cddt" key; a nil CDDT means the key was absent.
type Document struct {
	CDDT *RawCDDT `json:"cddt" yaml:"cddt"`
}

// RawCDDT holds the global parameters and per-angle compressed bins exactly as
// they appear on disk.
type RawCDDT struct {
	LUTTranslations     []float64  `json:"lut_translations" yaml:"lut_translations"`
	MaxRange            float64    `json:"max_range" yaml:"max_range"`
	ThetaDiscretization int        `json:"theta_discretization" yaml:"theta_discretization"`
	Map                 RawMap     `json:"map" yaml:"map"`
	CompressedLUT       []RawSlice `json:"compressed_lut" yaml:"compressed_lut"`
}

// RawMap is the occupancy grid stored alongside the table. Data is indexed
// data[x][y] on disk and transposed when loaded.
type RawMap struct {
	Path   string      `json:"path" yaml:"path"`
	Width  int         `json:"width" yaml:"width"`
	Height int         `json:"height" yaml:"height"`
	Data   [][]float64 `json:"data" yaml:"data"`
}

// RawSlice is one theta entry of the compressed LUT.
type RawSlice struct {
	Theta float64     `json:"theta" yaml:"theta"`
	Zeros [][]float64 `json:"zeros" yaml:"zeros"`
}

// Config represents the viewer configuration file
type Config struct {
	HTTP   HTTPConfig   `yaml:"http" json:"http"`
	MQTT   MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	Render RenderConfig `yaml:"render" json:"render"`
	Load   LoaderConfig `yaml:"load" json:"load"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderConfig controls how reconstructed grids are drawn
type RenderConfig struct {
	SawTooth bool    `yaml:"sawTooth" json:"sawTooth"`
	Sqrt     bool    `yaml:"sqrt" json:"sqrt"`
	Scale    int     `yaml:"scale" json:"scale"`     // Integer pixel zoom (default 1)
	Unknown  float64 `yaml:"unknown" json:"unknown"` // Value written above the first crossing; 0 keeps the legacy fill
}

// LoaderConfig controls how CDDT documents are turned into a Table
type LoaderConfig struct {
	Truncation     string `yaml:"truncation" json:"truncation"` // "half" or "none"
	StrictBins     bool   `yaml:"strictBins" json:"strictBins"`
	ValidateSchema bool   `yaml:"validateSchema" json:"validateSchema"`
}

// ReconstructOptions returns the reconstruction options described by the config
func (rc RenderConfig) ReconstructOptions() ReconstructOptions {
	return ReconstructOptions{SawTooth: rc.SawTooth, Unknown: rc.Unknown}
}

// RenderOptions returns the raster options described by the config
func (rc RenderConfig) RenderOptions() RenderOptions {
	return RenderOptions{Sqrt: rc.Sqrt, Scale: rc.Scale}
}

// LoadOptions converts the loader section into LoadOptions. The truncation
// string must already have been validated.
func (lc LoaderConfig) LoadOptions() LoadOptions {
	policy, _ := ParseTruncationPolicy(lc.Truncation)
	return LoadOptions{
		Truncation:     policy,
		StrictBins:     lc.StrictBins,
		ValidateSchema: lc.ValidateSchema,
	}
}
