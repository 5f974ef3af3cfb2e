package cddt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: 8080},
		MQTT: MQTTConfig{
			PublishPrefix: "cddtviz",
			ClientID:      "cddtviz",
		},
		Render: RenderConfig{
			SawTooth: true,
			Sqrt:     true,
			Scale:    1,
		},
		Load: LoaderConfig{Truncation: TruncateHalf.String()},
	}
}

// LoadConfig loads the viewer configuration from a YAML file. Fields missing
// from the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks ranges and enum values
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.MQTT.Broker != "" && c.MQTT.PublishPrefix == "" {
		return fmt.Errorf("mqtt.publishPrefix is required when mqtt.broker is set")
	}
	if c.Render.Scale < 0 {
		return fmt.Errorf("render.scale must be >= 0, got %d", c.Render.Scale)
	}
	if _, err := ParseTruncationPolicy(c.Load.Truncation); err != nil {
		return fmt.Errorf("load.truncation: %w", err)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
