package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vesseldots/internal/logging"
	"vesseldots/internal/models"
	"vesseldots/pkg/config"
	"vesseldots/pkg/detection"
	"vesseldots/pkg/pipeline"
	"vesseldots/pkg/threshold"
)

// Exit codes
const (
	exitOK = iota
	exitConfiguration
	exitInput
	exitIO
	exitFailure
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("vesseldots", flag.ContinueOnError)
	inputDir := fs.String("input", "", "Directory containing one subdirectory per image")
	configPath := fs.String("config", "vesseldots.yaml", "Configuration file (.yaml or .toml)")
	vesselChannel := fs.String("vessel-channel", "", "Vessel channel directory name (overrides the config)")
	dotsChannel := fs.String("dots-channel", "", "Dots channel directory name (overrides the config)")
	outputDir := fs.String("output", "", "Results directory (default: <input>/Results)")
	workers := fs.Int("workers", 0, "Number of filter workers (default: config, then all cores)")
	debugMode := fs.Bool("debug", false, "Enable debug logging")
	listMethods := fs.Bool("list-methods", false, "List the threshold methods and dot models, then exit")
	writeConfig := fs.String("write-config", "", "Write the default configuration to this file, then exit")
	if err := fs.Parse(args); err != nil {
		return exitConfiguration
	}

	if *listMethods {
		fmt.Printf("Threshold methods: %s\n", strings.Join(threshold.Methods(), ", "))
		fmt.Printf("Dot models: %s\n", strings.Join(detection.NewRegistry().Models(), ", "))
		return exitOK
	}
	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			return exitIO
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return exitOK
	}

	if *inputDir == "" {
		fs.Usage()
		return exitConfiguration
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return exitConfiguration
	}
	if *vesselChannel != "" {
		cfg.Channels.Vessel = *vesselChannel
	}
	if *dotsChannel != "" {
		cfg.Channels.Dots = *dotsChannel
	}
	if *workers > 0 {
		cfg.Processing.Workers = *workers
	}

	logger, err := logging.New(logging.Options{
		Debug:   *debugMode,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		MaxSize: cfg.Log.MaxSize,
		MaxAge:  cfg.Log.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log configuration: %v\n", err)
		return exitConfiguration
	}

	logger.WithFields(logrus.Fields{
		"input":    *inputDir,
		"vessels":  cfg.Channels.Vessel,
		"dots":     cfg.Channels.Dots,
		"strategy": cfg.Dots.Strategy,
		"workers":  cfg.Processing.Workers,
	}).Info("Starting vessel/dot analysis")

	p, err := pipeline.New(pipeline.Params{
		InputDir:  *inputDir,
		OutputDir: *outputDir,
		Config:    cfg,
	}, logger)
	if err != nil {
		return report(logger, "Setup failed", err)
	}

	startTime := time.Now()
	if err := p.Process(); err != nil {
		return report(logger, "Processing failed", err)
	}

	logger.WithFields(logrus.Fields{
		"images":  len(p.Records()),
		"seconds": fmt.Sprintf("%.2f", time.Since(startTime).Seconds()),
		"output":  p.OutputDir(),
	}).Info("Analysis completed successfully")
	return exitOK
}

// report logs err with a message for its kind and returns the exit code
func report(logger *logrus.Logger, msg string, err error) int {
	entry := logger.WithError(err)
	switch {
	case errors.Is(err, models.ErrConfiguration):
		entry.Error(msg + ": check the configuration and channel names")
		return exitConfiguration
	case errors.Is(err, models.ErrInput):
		entry.Error(msg + ": unreadable or missing input")
		return exitInput
	case errors.Is(err, models.ErrIO):
		entry.Error(msg + ": could not write results")
		return exitIO
	default:
		entry.Error(msg)
		return exitFailure
	}
}
