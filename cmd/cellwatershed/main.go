package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cellwatershed/internal/logger"
	"cellwatershed/pkg/config"
	"cellwatershed/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file (defaults are used if absent)")
	preset := flag.String("preset", "", "Named configuration preset; ignored when -config is set")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	edgePath := flag.String("edge", "", "Edge probability TIFF")
	interiorPath := flag.String("interior", "", "Interior probability TIFF")
	cellPath := flag.String("cell", "", "Cell/not-cell probability TIFF")
	classesPath := flag.String("classes", "", "Per-pixel class TIFF (argmax of the classification network)")
	classProbs := flag.String("class-probs", "", "Glob of per-class probability TIFFs, used instead of -classes")
	truthPath := flag.String("truth", "", "Ground-truth cell type TIFF")
	outputDir := flag.String("output", "results", "Directory for the instance segmentation and type rasters")
	strategy := flag.String("strategy", "", "Override the refinement strategy (old or new)")
	numCores := flag.Int("cores", 0, "Number of goroutines voting instance types (0 keeps the configured value)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save every stage's raster")
	intermediaryDir := flag.String("intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	if *edgePath == "" || *interiorPath == "" || *cellPath == "" || *truthPath == "" ||
		(*classesPath == "" && *classProbs == "") {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath, *preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *strategy != "" {
		cfg.Segmentation.Strategy = *strategy
	}
	if *numCores > 0 {
		cfg.Classification.NumCores = *numCores
	}
	if *logLevel != "" {
		cfg.Output.LogLevel = *logLevel
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewConsole(logger.ParseLevel(cfg.Output.LogLevel))

	inputs, err := loadInputs(inputPaths{
		edge:       *edgePath,
		interior:   *interiorPath,
		cell:       *cellPath,
		classes:    *classesPath,
		classProbs: *classProbs,
		truth:      *truthPath,
	})
	if err != nil {
		log.Error("input", err, nil)
		os.Exit(1)
	}

	p, err := pipeline.NewPipeline(&pipeline.Params{
		Config:                  cfg,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         filepath.Clean(*intermediaryDir),
	}, log)
	if err != nil {
		log.Error("pipeline", err, nil)
		os.Exit(1)
	}

	startTime := time.Now()
	if err := p.Process(inputs); err != nil {
		log.Error("pipeline", err, nil)
		os.Exit(1)
	}
	if err := p.WriteOutputs(*outputDir); err != nil {
		log.Error("output", err, nil)
		os.Exit(1)
	}

	metrics := p.GetMetrics()
	report := p.Outputs().Report

	fmt.Printf("\nPipeline completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Refinement strategy: %s (final erosions: %d)\n", cfg.Segmentation.Strategy, cfg.Segmentation.FinalErosions)
	fmt.Printf("Instances: %d labeled, %d after refinement, %d degenerate\n",
		metrics.InitialInstances, metrics.FinalInstances, metrics.DegenerateLabels)
	fmt.Printf("Classification accuracy: %.4f\n", metrics.Agreement)
	fmt.Printf("Balanced accuracy: %.4f\n", metrics.BalancedAccuracy)
	if report.Skipped > 0 {
		fmt.Printf("Instances outside the label set: %d\n", report.Skipped)
	}
	fmt.Printf("\nConfusion matrix (rows: truth, columns: predicted):\n%s", report.FormatConfusion())
	fmt.Printf("\nOutputs saved to: %s\n", *outputDir)
}

func loadConfig(path, preset string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	if preset != "" {
		return config.Preset(preset)
	}
	return config.DefaultConfig(), nil
}
