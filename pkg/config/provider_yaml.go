package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the configuration from the YAML file on top of the
// defaults, then applies environment overrides. A .env file next to the
// YAML file is loaded first if present.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	var yamlConfig ConfigYAML
	if err := yaml.Unmarshal(cfgFile, &yamlConfig); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", y.filename, err)
	}

	config, err := yamlConfig.toConfigData()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	envFile := filepath.Join(filepath.Dir(y.filename), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

func (y *YAMLProvider) load() (*ConfigData, error) {
	if y.config == nil {
		return y.LoadConfig()
	}
	return y.config, nil
}

// GetMeter returns the meter configuration
func (y *YAMLProvider) GetMeter() (*MeterData, error) {
	c, err := y.load()
	if err != nil {
		return nil, err
	}
	return &c.Meter, nil
}

// GetCamera returns the frame source configuration
func (y *YAMLProvider) GetCamera() (*CameraData, error) {
	c, err := y.load()
	if err != nil {
		return nil, err
	}
	return &c.Camera, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	c, err := y.load()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type ConfigYAML struct {
	Meter   *MeterYAML   `yaml:"meter,omitempty"`
	Camera  *CameraYAML  `yaml:"camera,omitempty"`
	Storage *StorageYAML `yaml:"storage,omitempty"`
	Control *ControlYAML `yaml:"control,omitempty"`
	Overlay *OverlayYAML `yaml:"overlay,omitempty"`
}

type MeterYAML struct {
	Name       string     `yaml:"name,omitempty"`
	StartValue float64    `yaml:"start-value,omitempty"`
	Zones      []ZoneYAML `yaml:"zones,omitempty"`
}

type ZoneYAML struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type CameraYAML struct {
	Type     string `yaml:"type,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Width    int    `yaml:"width,omitempty"`
	Height   int    `yaml:"height,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

type StorageYAML struct {
	TotalFile   *TotalFileYAML   `yaml:"total-file,omitempty"`
	RRDTool     *RRDToolYAML     `yaml:"rrdtool,omitempty"`
	SQLite      *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type TotalFileYAML struct {
	Path string `yaml:"path"`
}

type RRDToolYAML struct {
	Binary  string `yaml:"binary,omitempty"`
	File    string `yaml:"file"`
	Timeout string `yaml:"timeout,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type ControlYAML struct {
	Signal      string `yaml:"signal,omitempty"`
	TriggerFile string `yaml:"trigger-file,omitempty"`
}

type OverlayYAML struct {
	Path  string `yaml:"path,omitempty"`
	Every int    `yaml:"every,omitempty"`
}

// toConfigData converts to our internal format, starting from Default.
// A storage section in the file replaces the default engines entirely.
func (c ConfigYAML) toConfigData() (*ConfigData, error) {
	config := Default()

	if m := c.Meter; m != nil {
		if m.Name != "" {
			config.Meter.Name = m.Name
		}
		config.Meter.StartValue = m.StartValue
		if len(m.Zones) > 0 {
			config.Meter.Zones = make([]ZoneData, len(m.Zones))
			for i, z := range m.Zones {
				config.Meter.Zones[i] = ZoneData{X: z.X, Y: z.Y, Width: z.Width, Height: z.Height}
			}
		}
	}

	if cam := c.Camera; cam != nil {
		if cam.Type != "" {
			config.Camera.Type = cam.Type
		}
		if cam.Path != "" {
			config.Camera.Path = cam.Path
		}
		if cam.Width != 0 {
			config.Camera.Width = cam.Width
		}
		if cam.Height != 0 {
			config.Camera.Height = cam.Height
		}
		if cam.Interval != "" {
			d, err := time.ParseDuration(cam.Interval)
			if err != nil {
				return nil, fmt.Errorf("camera interval: %w", err)
			}
			config.Camera.Interval = d
		}
	}

	if s := c.Storage; s != nil {
		config.Storage = StorageData{}
		if s.TotalFile != nil {
			config.Storage.TotalFile = &TotalFileData{Path: s.TotalFile.Path}
		}
		if s.RRDTool != nil {
			r := &RRDToolData{
				Binary:  s.RRDTool.Binary,
				File:    s.RRDTool.File,
				Timeout: 10 * time.Second,
			}
			if r.Binary == "" {
				r.Binary = DefaultRRDTool
			}
			if s.RRDTool.Timeout != "" {
				d, err := time.ParseDuration(s.RRDTool.Timeout)
				if err != nil {
					return nil, fmt.Errorf("rrdtool timeout: %w", err)
				}
				r.Timeout = d
			}
			config.Storage.RRDTool = r
		}
		if s.SQLite != nil {
			config.Storage.SQLite = &SQLiteData{Path: s.SQLite.Path}
		}
		if s.TimescaleDB != nil {
			config.Storage.TimescaleDB = &TimescaleDBData{
				ConnectionString: s.TimescaleDB.ConnectionString,
			}
		}
	}

	if ctl := c.Control; ctl != nil {
		if ctl.Signal != "" {
			config.Control.Signal = ctl.Signal
		}
		config.Control.TriggerFile = ctl.TriggerFile
	}

	if o := c.Overlay; o != nil {
		config.Overlay = OverlayData{Path: o.Path, Every: o.Every}
	}

	return config, nil
}
