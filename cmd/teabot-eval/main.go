package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"teabot/internal/app"
	"teabot/internal/config"
	"teabot/internal/evaluation"
	"teabot/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath, casesPath, mode, out string
		topN                          int
		asJSON                        bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	flag.StringVar(&casesPath, "cases", "", "Evaluation cases JSON (overrides evaluation.cases_path)")
	flag.StringVar(&mode, "mode", "", "retrieval or generation (overrides evaluation.mode)")
	flag.IntVar(&topN, "n", 0, "N for Precision@N (overrides evaluation.top_n)")
	flag.BoolVar(&asJSON, "json", false, "Write the report as JSON")
	flag.StringVar(&out, "o", "", "Write the report to this file instead of stdout")
	flag.Parse()

	if err := run(cfgPath, casesPath, mode, out, topN, asJSON); err != nil {
		log.Fatalf("teabot-eval: %v", err)
	}
}

func run(cfgPath, casesPath, mode, out string, topN int, asJSON bool) error {
	cfg, _, err := config.Resolve(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if casesPath != "" {
		cfg.Evaluation.CasesPath = casesPath
	}
	if mode != "" {
		cfg.Evaluation.Mode = mode
	}
	if topN > 0 {
		cfg.Evaluation.TopN = topN
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	evalMode, err := evaluation.ParseMode(cfg.Evaluation.Mode)
	if err != nil {
		return fmt.Errorf("invalid evaluation mode: %w", err)
	}
	system, err := cfg.EvaluationSystemContext()
	if err != nil {
		return fmt.Errorf("failed to load system context: %w", err)
	}
	cases, err := evaluation.LoadCases(cfg.Evaluation.CasesPath)
	if err != nil {
		return fmt.Errorf("failed to load cases: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialise pipeline: %w", err)
	}
	defer a.Close()

	h, err := evaluation.NewHarness(a.Recommender, evaluation.Options{
		Mode:          evalMode,
		TopN:          cfg.Evaluation.TopN,
		SystemContext: system,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build harness: %w", err)
	}
	report, err := h.Run(ctx, cases)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if asJSON {
		err = report.WriteJSON(w)
	} else {
		err = report.WriteText(w)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
