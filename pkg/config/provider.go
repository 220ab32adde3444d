package config

import "time"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetMeter() (*MeterData, error)
	GetCamera() (*CameraData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Meter   MeterData   `json:"meter"`
	Camera  CameraData  `json:"camera"`
	Storage StorageData `json:"storage,omitempty"`
	Control ControlData `json:"control,omitempty"`
	Overlay OverlayData `json:"overlay,omitempty"`
}

// MeterData describes the dial being read
type MeterData struct {
	Name string `json:"name"`
	// StartValue, when non-zero, is used as the base offset and the
	// total-value file is not read.
	StartValue float64    `json:"start_value,omitempty"`
	Zones      []ZoneData `json:"zones"`
}

// ZoneData is one sensing region, in frame pixel coordinates
type ZoneData struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CameraData describes where frames come from
type CameraData struct {
	// Type is "file" (a snapshot image kept up to date by a capture tool)
	// or "directory" (replay of stored frames).
	Type     string        `json:"type"`
	Path     string        `json:"path"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Interval time.Duration `json:"interval,omitempty"`
}

// StorageData holds the configuration for the snapshot storage engines
type StorageData struct {
	TotalFile   *TotalFileData   `json:"total_file,omitempty"`
	RRDTool     *RRDToolData     `json:"rrdtool,omitempty"`
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

type TotalFileData struct {
	Path string `json:"path"`
}

type RRDToolData struct {
	Binary  string        `json:"binary"`
	File    string        `json:"file"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

// ControlData configures the out-of-band force-snapshot request sources
type ControlData struct {
	Signal      string `json:"signal,omitempty"`
	TriggerFile string `json:"trigger_file,omitempty"`
}

// OverlayData configures the debugging overlay image
type OverlayData struct {
	Path  string `json:"path,omitempty"`
	Every int    `json:"every,omitempty"`
}

// Frame and zone layout of the reference installation.
const (
	DefaultFrameWidth  = 176
	DefaultFrameHeight = 144
	DefaultTotalFile   = "/home/pi/water/water-meter-total.log"
	DefaultRRDTool     = "/opt/rrdtool-1.5.4/bin/rrdtool"
	DefaultRRDFile     = "/home/pi/water/water.rrd"
	DefaultSignal      = "SIGUSR1"
)

// DefaultZones is the reference eight-zone layout, in angular order.
func DefaultZones() []ZoneData {
	return []ZoneData{
		{X: 19, Y: 107, Width: 10, Height: 10},
		{X: 11, Y: 81, Width: 10, Height: 10},
		{X: 20, Y: 58, Width: 10, Height: 10},
		{X: 44, Y: 51, Width: 10, Height: 10},
		{X: 67, Y: 58, Width: 10, Height: 10},
		{X: 73, Y: 82, Width: 10, Height: 10},
		{X: 67, Y: 105, Width: 10, Height: 10},
		{X: 43, Y: 112, Width: 10, Height: 10},
	}
}

// Default returns the configuration used when no file overrides a value.
func Default() *ConfigData {
	return &ConfigData{
		Meter: MeterData{
			Name:  "water-meter",
			Zones: DefaultZones(),
		},
		Camera: CameraData{
			Type:   "file",
			Path:   "/run/water-meter/frame.jpg",
			Width:  DefaultFrameWidth,
			Height: DefaultFrameHeight,
		},
		Storage: StorageData{
			TotalFile: &TotalFileData{Path: DefaultTotalFile},
			RRDTool: &RRDToolData{
				Binary:  DefaultRRDTool,
				File:    DefaultRRDFile,
				Timeout: 10 * time.Second,
			},
		},
		Control: ControlData{
			Signal: DefaultSignal,
		},
	}
}
