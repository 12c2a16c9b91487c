package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/marketsnap/marketsnap/internal/config"
	"github.com/marketsnap/marketsnap/internal/logger"
	"github.com/marketsnap/marketsnap/internal/models"
	"github.com/marketsnap/marketsnap/internal/parser"
	"github.com/marketsnap/marketsnap/internal/pipeline"
	"github.com/marketsnap/marketsnap/internal/reader"
	"github.com/marketsnap/marketsnap/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	stagesFlag = flag.String("stages", "", "Comma-separated subset of stages to run (default: 1,2,3)")
	apiKey     = flag.String("api-key", "", "Text-understanding service API key (overrides config and environment)")
	testSample = flag.Bool("test-sample", false, "Run offline against bundled sample fixtures")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *apiKey != "" {
		cfg.Parser.APIKey = *apiKey
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	stages, err := parseStages(*stagesFlag)
	if err != nil {
		logger.Fatal("Invalid -stages value: %v", err)
	}

	store, err := storage.New(storage.Config{
		DataDir:     cfg.Storage.DataDir,
		RawFile:     cfg.Storage.RawFile,
		CatalogFile: cfg.Storage.CatalogFile,
		HistoryDir:  cfg.Storage.HistoryDir,
		ReportFile:  cfg.Storage.ReportFile,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}

	var source pipeline.Source
	var service parser.TextService
	if *testSample {
		logger.Info("Running in offline sample mode")
		source = reader.NewSampleSource()
		service = parser.NewSampleService()
	} else {
		source = reader.NewClient(cfg.Reader.BaseURL, cfg.Reader.APIKey, cfg.Reader.Timeout, reader.ClientConfig{
			MaxRetries:     cfg.Reader.MaxRetries,
			RetryDelayBase: cfg.Reader.RetryDelayBase,
			TokenBudget:    cfg.Reader.TokenBudget,
		})
		service, err = parser.NewGeminiService(parser.GeminiConfig{
			APIBaseURL: cfg.Parser.APIBaseURL,
			APIKey:     cfg.Parser.APIKey,
			Model:      cfg.Parser.Model,
			Timeout:    cfg.Parser.Timeout,
		})
		if err != nil {
			logger.Fatal("Failed to initialize parser service: %v", err)
		}
	}

	engine := parser.NewEngine(service, parser.EngineConfig{
		MaxRetries:     cfg.Parser.MaxRetries,
		RetryDelayBase: cfg.Parser.RetryDelayBase,
	})

	// Cancel the run on SIGINT/SIGTERM; atomic artifact writes make an
	// interrupted stage safe to rerun from its start.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cancelling run...")
		cancel()
	}()

	p := pipeline.New(source, engine, store, cfg.Reader.TargetURL)
	report, runErr := p.Run(ctx, stages)

	printSummary(report)

	if runErr != nil {
		os.Exit(1)
	}
}

// parseStages converts "1,2,3" (or "1 3") into a stage subset. Empty input
// selects all stages.
func parseStages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	stages := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("not a stage number: %q", f)
		}
		stages = append(stages, n)
	}
	return stages, nil
}

// printSummary writes the human-readable run summary to stdout.
func printSummary(report models.RunReport) {
	fmt.Println("Pipeline run", report.RunID)
	for _, stage := range report.Stages {
		line := fmt.Sprintf("  stage %d (%s): %s", stage.Stage, stage.Name, stage.Status)
		if stage.Status == models.StageSucceeded || stage.Status == models.StageFailed {
			line += fmt.Sprintf(" in %v", stage.Duration().Round(time.Millisecond))
		}
		if stage.Error != "" {
			line += ": " + stage.Error
		}
		fmt.Println(line)
	}
	result := "FAILED"
	if report.Success {
		result = "OK"
	}
	fmt.Printf("Result: %s (%v total)\n", result, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
}
