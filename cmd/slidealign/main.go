package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"slidealign/internal/models"
	"slidealign/pkg/alignment"
	"slidealign/pkg/config"
	"slidealign/pkg/imageio"
	"slidealign/pkg/logger"
	"slidealign/pkg/telemetry"
)

const version = "5.0"

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitFatal  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse command line arguments
	dataDir := flag.String("data-dir", "", "Data root containing slides/, cosmx/ and cosmx_tiles/")
	all := flag.Bool("all", false, "Align every pair found under the data root")
	slideID := flag.String("slide-id", "", "Align a single pair by identifier")
	configPath := flag.String("config", "slidealign.yaml", "Configuration file (defaults are used when absent)")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this path and exit")
	refineFlag := flag.Bool("refine", false, "Enable local refinement of translation (and scale if configured)")
	debug := flag.Bool("debug", false, "Save debug images under cosmx_tiles/<id>/debug")
	workers := flag.Int("workers", 0, "Number of pairs aligned concurrently (default: from config)")
	workingSize := flag.Int("size", 0, "Longest side of the working images in pixels (default: from config)")
	overwrite := flag.String("overwrite", "", "Overwrite policy: keep, replace_auto or overwrite (default: from config)")
	mode := flag.String("mode", "", "Matching mode: auto, full or partial (default: from config)")
	timeout := flag.Duration("timeout", 0, "Per-pair time limit, e.g. 2m (default: from config)")
	verbose := flag.Bool("v", false, "Verbose (debug) logging")
	logLevel := flag.String("log-level", "", "Log level: debug, info or error (overrides -v)")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Printf("Failed to write config: %v", err)
			return exitFatal
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return exitOK
	}

	// Validate inputs
	if *dataDir == "" || (*all == (*slideID != "")) {
		fmt.Fprintln(os.Stderr, "usage: slidealign -data-dir DIR (-all | -slide-id ID) [options]")
		flag.PrintDefaults()
		return exitFatal
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return exitFatal
	}

	// Flags given explicitly win over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "refine":
			cfg.Processing.Refine = *refineFlag
		case "debug":
			cfg.Processing.Debug = *debug
		case "workers":
			cfg.Processing.Workers = *workers
		case "size":
			cfg.Processing.WorkingSize = *workingSize
		case "overwrite":
			cfg.Output.OverwritePolicy = *overwrite
		case "mode":
			cfg.Translation.Mode = *mode
		case "timeout":
			cfg.Processing.PairTimeout = *timeout
		case "v":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid settings: %v", err)
		return exitFatal
	}

	level := logger.LevelInfo
	if *verbose {
		level = logger.LevelDebug
	} else if !cfg.Output.Verbose {
		level = logger.LevelError
	}
	if *logLevel != "" {
		if level, err = logger.ParseLevel(*logLevel); err != nil {
			log.Printf("Invalid settings: %v", err)
			return exitFatal
		}
	}
	lg := logger.Stdout(level)
	lg.Debugf("Configuration:\n%s", cfg.AsYaml())

	fmt.Println("================================")
	fmt.Println("SLIDE / COMPOSITE ALIGNMENT")
	fmt.Printf("Data root: %s\n", *dataDir)
	fmt.Printf("Workers: %d, working size: %d, mode: %s, refine: %v, policy: %s\n",
		cfg.Processing.Workers, cfg.Processing.WorkingSize, cfg.Translation.Mode, cfg.Processing.Refine, cfg.Output.OverwritePolicy)
	fmt.Println("================================")

	// Resolve the pairs to process
	var pairs []models.Pair
	var missing []*models.InputMissingError
	if *all {
		disc, err := imageio.Discover(*dataDir)
		if err != nil {
			log.Printf("Discovery failed: %v", err)
			return exitFatal
		}
		pairs, missing = disc.Pairs, disc.Missing
		fmt.Printf("Found %d pairs (%d incomplete)\n", len(pairs), len(missing))
	} else {
		pair, err := imageio.FindPair(*dataDir, *slideID)
		if err != nil {
			if m, ok := err.(*models.InputMissingError); ok {
				missing = append(missing, m)
			} else {
				log.Printf("Discovery failed: %v", err)
				return exitFatal
			}
		} else {
			pairs = append(pairs, pair)
		}
	}

	reporter := telemetry.NewReporter(cfg.Output.SentryDSN, version, lg)
	defer reporter.Flush(5 * time.Second)

	aligner, err := alignment.NewAligner(&alignment.Params{
		DataDir:  *dataDir,
		Config:   cfg,
		Logger:   lg,
		Reporter: reporter,
	})
	if err != nil {
		log.Printf("Failed to initialise: %v", err)
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	summary := aligner.Process(ctx, pairs)
	summary.AddMissing(missing)
	processingTime := time.Since(startTime)

	summary.Print(os.Stdout)
	fmt.Printf("\nCompleted in %.2f seconds\n", processingTime.Seconds())

	if cfg.Output.MetricsFile != "" {
		if err := aligner.Metrics().WriteTextfile(cfg.Output.MetricsFile); err != nil {
			lg.Errorf("Failed to write metrics to %s: %v", cfg.Output.MetricsFile, err)
		} else {
			fmt.Printf("Metrics written to %s\n", cfg.Output.MetricsFile)
		}
	}

	if summary.ExitCode() != 0 {
		return exitFailed
	}
	return exitOK
}
