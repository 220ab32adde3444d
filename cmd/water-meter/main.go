package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stoffej/water-rrd-m.nu/internal/app"
	"github.com/stoffej/water-rrd-m.nu/internal/constants"
	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "", "Path to YAML configuration file (built-in defaults when empty)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	logFile := flag.String("log-file", "", "Also write logs to this file, rotated by size")
	startValue := flag.Float64("start-value", 0, "Meter reading to continue from; 0 reads the total-value file")
	overlayPath := flag.String("overlay", "", "Write an annotated PNG of the zones to this path")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("water-meter %s\n", constants.Version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(log.Options{Debug: *debug, File: *logFile}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	cfgData, err := loadConfig(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if *startValue != 0 {
		cfgData.Meter.StartValue = *startValue
	}
	if *overlayPath != "" {
		cfgData.Overlay.Path = *overlayPath
	}

	// Create and run the application
	application := app.New(cfgData, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}

func loadConfig(cfgFile string) (*config.ConfigData, error) {
	if cfgFile == "" {
		cfgData := config.Default()
		if err := config.ApplyEnv(cfgData); err != nil {
			return nil, err
		}
		return cfgData, nil
	}

	filename, _ := filepath.Abs(cfgFile)
	provider := config.NewYAMLProvider(filename)
	defer provider.Close()

	cfgData, err := provider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}

	return cfgData, nil
}
