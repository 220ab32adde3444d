package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/stoffej/water-rrd-m.nu/internal/app"
	"github.com/stoffej/water-rrd-m.nu/internal/calibrate"
	"github.com/stoffej/water-rrd-m.nu/internal/detector"
	"github.com/stoffej/water-rrd-m.nu/internal/frames"
	"github.com/stoffej/water-rrd-m.nu/pkg/config"
)

func main() {
	var (
		cfgFile   = flag.String("config", "", "Path to YAML configuration file (built-in zones when empty)")
		frameDir  = flag.String("frames", "", "Directory of sample frames (required)")
		csvOutput = flag.String("csv", "", "Optional CSV output file path with per-frame ratios")
	)
	flag.Parse()

	if *frameDir == "" {
		fmt.Fprintf(os.Stderr, "Error: -frames flag is required\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Default()
	if *cfgFile != "" {
		var err error
		cfg, err = config.NewYAMLProvider(*cfgFile).LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	zones := app.Zones(cfg.Meter.Zones)
	if err := detector.ValidateZones(zones, cfg.Camera.Width, cfg.Camera.Height); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	src, err := frames.NewDirectorySource(*frameDir, cfg.Camera.Width, cfg.Camera.Height)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening frames: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	fmt.Printf("Zone Calibration\n")
	fmt.Printf("================\n\n")
	fmt.Printf("  Frames: %s (%d files)\n", *frameDir, src.Len())
	fmt.Printf("  Resolution: %dx%d\n", cfg.Camera.Width, cfg.Camera.Height)
	fmt.Printf("  Hit threshold: dark ratio > %.2f\n\n", calibrate.HitRatio)

	samples, err := calibrate.Collect(context.Background(), src, zones)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading frames: %v\n", err)
		os.Exit(1)
	}
	if samples.Frames() == 0 {
		fmt.Fprintf(os.Stderr, "Error: no frames found in %s\n", *frameDir)
		os.Exit(1)
	}

	stats := calibrate.Summarize(samples)
	fmt.Printf("%-5s %-22s %6s %6s %6s %6s %6s %6s %6s %6s\n",
		"Zone", "Geometry", "Mean", "StdDev", "Min", "Median", "Max", "Hits", "Above", "Margin")
	for _, st := range stats {
		fmt.Printf("%-5d %-22v %6.3f %6.3f %6.3f %6.3f %6.3f %6d %6d %6.3f\n",
			st.Zone, zones[st.Zone], st.Mean, st.StdDev, st.Min, st.Median, st.Max, st.Hits, st.Above, st.Margin)
	}

	fmt.Println()
	for _, st := range stats {
		switch {
		case st.Above == 0:
			fmt.Printf("! zone %d never crossed the threshold; the pointer may miss it\n", st.Zone)
		case st.Above > st.Hits:
			fmt.Printf("! zone %d was dark in %d frames but an earlier zone won %d of them; check for overlap\n",
				st.Zone, st.Above, st.Above-st.Hits)
		case st.Margin < 0.1:
			fmt.Printf("! zone %d separates poorly (margin %.3f); consider moving or shrinking it\n", st.Zone, st.Margin)
		}
	}

	if *csvOutput != "" {
		if err := writeCSV(*csvOutput, samples); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nPer-frame ratios written to %s\n", *csvOutput)
	}
}

func writeCSV(path string, samples *calibrate.Samples) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"frame", "hit"}
	for i := range samples.Ratios {
		header = append(header, fmt.Sprintf("zone%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for n := 0; n < samples.Frames(); n++ {
		row := []string{strconv.Itoa(n), strconv.Itoa(int(samples.Hits[n]))}
		for i := range samples.Ratios {
			row = append(row, strconv.FormatFloat(samples.Ratios[i][n], 'f', 4, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
