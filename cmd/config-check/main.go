package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stoffej/water-rrd-m.nu/internal/app"
	"github.com/stoffej/water-rrd-m.nu/internal/detector"
	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

func main() {
	yamlFile := flag.String("config", "", "Path to YAML configuration file (built-in defaults when empty)")
	flag.Parse()

	cfg := config.Default()
	if *yamlFile != "" {
		fmt.Printf("Loading YAML configuration: %s\n", *yamlFile)
		var err error
		cfg, err = config.NewYAMLProvider(*yamlFile).LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading YAML config: %v\n", err)
			os.Exit(1)
		}
	} else if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying environment: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Meter:   %s\n", cfg.Meter.Name)
	if cfg.Meter.StartValue != 0 {
		fmt.Printf("Start:   %.2f l\n", cfg.Meter.StartValue)
	}
	fmt.Printf("Camera:  %s %s (%dx%d)\n", cfg.Camera.Type, cfg.Camera.Path, cfg.Camera.Width, cfg.Camera.Height)

	zones := app.Zones(cfg.Meter.Zones)
	for i, z := range zones {
		fmt.Printf("Zone %d:  %v\n", i, z)
	}
	if err := detector.ValidateZones(zones, cfg.Camera.Width, cfg.Camera.Height); err != nil {
		fmt.Printf("✗ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Zone layout fits the frame")

	s := cfg.Storage
	if s.TotalFile != nil {
		fmt.Printf("Storage: total-file %s\n", s.TotalFile.Path)
	}
	if s.RRDTool != nil {
		fmt.Printf("Storage: rrdtool %s update %s (timeout %v)\n", s.RRDTool.Binary, s.RRDTool.File, s.RRDTool.Timeout)
	}
	if s.SQLite != nil {
		fmt.Printf("Storage: sqlite %s\n", s.SQLite.Path)
	}
	if s.TimescaleDB != nil {
		fmt.Println("Storage: timescaledb")
	}

	if cfg.Control.Signal != "" {
		fmt.Printf("Control: signal %s\n", cfg.Control.Signal)
	}
	if cfg.Control.TriggerFile != "" {
		fmt.Printf("Control: trigger file %s\n", cfg.Control.TriggerFile)
	}
}
