package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables that override file configuration.
const (
	EnvStartValue  = "WATERMETER_START_VALUE"
	EnvTotalFile   = "WATERMETER_TOTAL_FILE"
	EnvRRDFile     = "WATERMETER_RRD_FILE"
	EnvTimescaleDB = "WATERMETER_TIMESCALEDB"
	EnvFramePath   = "WATERMETER_FRAME_PATH"
)

// ApplyEnv overlays the WATERMETER_* environment variables onto cfg.
func ApplyEnv(cfg *ConfigData) error {
	if v := os.Getenv(EnvStartValue); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStartValue, err)
		}
		cfg.Meter.StartValue = f
	}

	if v := os.Getenv(EnvTotalFile); v != "" {
		cfg.Storage.TotalFile = &TotalFileData{Path: v}
	}

	if v := os.Getenv(EnvRRDFile); v != "" {
		if cfg.Storage.RRDTool == nil {
			cfg.Storage.RRDTool = &RRDToolData{Binary: DefaultRRDTool}
		}
		cfg.Storage.RRDTool.File = v
	}

	if v := os.Getenv(EnvTimescaleDB); v != "" {
		cfg.Storage.TimescaleDB = &TimescaleDBData{ConnectionString: v}
	}

	if v := os.Getenv(EnvFramePath); v != "" {
		cfg.Camera.Path = v
	}

	return nil
}
