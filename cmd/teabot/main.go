package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teabot/internal/app"
	"teabot/internal/config"
	"teabot/internal/logging"
	"teabot/internal/service"
	"teabot/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		search  bool
		plain   bool
		topN    int
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./teabot.yaml or ~/.config/teabot/config.yaml if not provided)")
	flag.BoolVar(&search, "search", false, "Show retrieved blends with scores instead of chatting")
	flag.BoolVar(&plain, "plain", false, "Line based prompt instead of the full screen UI")
	flag.IntVar(&topN, "n", 0, "Number of search results (defaults to pipeline.top_n)")
	flag.Parse()

	if err := run(cfgPath, search, plain, topN); err != nil {
		log.Fatalf("teabot: %v", err)
	}
}

func run(cfgPath string, search, plain bool, topN int) error {
	cfg, path, err := config.Resolve(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	if path != "" {
		logger.Debug("config loaded", zap.String("path", path))
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialise pipeline: %w", err)
	}
	defer a.Close()

	if topN <= 0 {
		topN = cfg.Pipeline.TopN
	}
	if search && a.Recommender.Mode() != service.ModeRetrieval {
		return errors.New("search needs pipeline.mode retrieval")
	}
	mode := tui.ModeChat
	if search {
		mode = tui.ModeSearch
	}
	opts := tui.Options{Mode: mode, TopN: topN, Timeout: cfg.GenerationTimeout()}

	if plain {
		return tui.RunPlain(os.Stdin, os.Stdout, a.Recommender, opts)
	}
	summary := fmt.Sprintf("%d blends · %s mode · %s", a.Catalog.Len(), a.Recommender.Mode(), a.Generator.ModelID())
	if _, err := tea.NewProgram(tui.New(a.Recommender, summary, opts), tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("ui failed: %w", err)
	}
	return nil
}
