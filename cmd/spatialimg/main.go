package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"spatialimg/pkg/config"
	"spatialimg/pkg/export"
	"spatialimg/pkg/loader"
	"spatialimg/pkg/logging"
	"spatialimg/pkg/spatialimage"
	"spatialimg/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing labeled image planes")
	configPath := flag.String("config", "spatialimg.yaml", "Configuration file (.yaml or .toml)")
	labelsFlag := flag.String("labels", "", "Domain types as name=value pairs, e.g. cytosol=1,membrane=2")
	outputDir := flag.String("output-dir", "", "Directory for exported files (overrides config)")
	outputName := flag.String("name", "", "Base name of the exported TIFF (overrides config)")
	unit := flag.String("unit", "", "Unit of the voxel spacing read from the images (overrides config)")
	deflate := flag.Bool("deflate", false, "Deflate the SampledField samples")
	extractSlices := flag.Bool("extract-slices", false, "Extract and save slices along all axes")
	initConfig := flag.Bool("init-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to create config file: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *labelsFlag != "" {
		labels, err := parseLabels(*labelsFlag)
		if err != nil {
			log.Fatalf("Invalid -labels: %v", err)
		}
		cfg.Labels = labels
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *outputName != "" {
		cfg.Output.Name = *outputName
	}
	if *unit != "" {
		cfg.Image.Unit = *unit
	}
	cfg.Output.CompressSamples = cfg.Output.CompressSamples || *deflate
	cfg.Output.SaveSlices = cfg.Output.SaveSlices || *extractSlices
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(*inputDir, cfg, os.Stdout); err != nil {
		os.Exit(1)
	}
}

// run builds the spatial image of the planes in inputDir and writes the
// exports named by cfg. Errors are logged before the log file is closed.
func run(inputDir string, cfg *config.Config, stdout io.Writer) (err error) {
	closer := cfg.Log.SetLogger()
	defer func() {
		if err != nil {
			logging.Errorf("%v", err)
		}
		closer.Close()
	}()
	logging.SetVerbose(cfg.Output.Verbose)

	startTime := time.Now()
	vol, err := loader.LoadSlices(inputDir)
	if err != nil {
		return fmt.Errorf("failed to load slices: %w", err)
	}

	spacing := r3.Vec{X: cfg.Image.Spacing.X, Y: cfg.Image.Spacing.Y, Z: cfg.Image.Spacing.Z}
	img, err := spatialimage.NewSpatialImage(vol, cfg.LabelTable(), spacing, cfg.Image.Unit)
	if err != nil {
		return fmt.Errorf("failed to build spatial image: %w", err)
	}
	img.Title = filepath.Base(filepath.Clean(inputDir))
	g := img.Geometry()

	if err := export.WriteSummary(stdout, export.NewSummary(img)); err != nil {
		logging.Errorf("%v", err)
	}

	if _, err := export.SaveAsImage(g, cfg.Output.Dir, cfg.Output.Name); err != nil {
		return fmt.Errorf("TIFF export failed: %w", err)
	}

	if cfg.Output.Name != "" {
		if err := writeSamples(g, cfg); err != nil {
			return fmt.Errorf("sample export failed: %w", err)
		}
	}

	if cfg.Output.SaveSlices {
		viewer := visualization.NewViewer(g.Raw, g.Width, g.Height, g.Depth)
		slicesPath := filepath.Join(cfg.Output.Dir, "slices")
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(slicesPath, axis)
			logging.Infof("Saving %s-axis slices to: %s", axis, axisDir)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logging.Warningf("Failed to save %s-axis slices: %v", axis, err)
			}
		}
	}

	logging.Infof("Completed in %.2f seconds", time.Since(startTime).Seconds())
	return nil
}

func writeSamples(g *spatialimage.Geometry, cfg *config.Config) error {
	field, err := export.NewSampledField(g, cfg.Output.CompressSamples)
	if err != nil {
		return err
	}
	path := filepath.Join(cfg.Output.Dir, cfg.Output.Name+".samples")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := field.WriteTo(file); err != nil {
		return err
	}
	logging.Infof("Saved %d %s samples to %s", field.SamplesLength, field.Compression, path)
	return file.Close()
}

// parseLabels parses "name=value,name=value" into a label map
func parseLabels(s string) (map[string]int, error) {
	labels := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		v, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", name, err)
		}
		labels[name] = v
	}
	return labels, nil
}
