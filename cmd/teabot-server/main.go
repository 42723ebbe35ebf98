package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teabot/internal/app"
	"teabot/internal/config"
	"teabot/internal/generation"
	"teabot/internal/logging"
	"teabot/internal/server"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.Parse()

	if err := run(cfgPath, addr); err != nil {
		log.Fatalf("teabot-server: %v", err)
	}
}

func run(cfgPath, addr string) error {
	cfg, _, err := config.Resolve(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	system, err := cfg.ServerSystemContext()
	if err != nil {
		return fmt.Errorf("failed to load system context: %w", err)
	}
	srvCfg := server.Config{
		Addr:           cfg.Server.Addr,
		TopN:           cfg.Server.TopN,
		SystemContext:  system,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
	}

	// a failed start keeps the server up so /health can report why
	var pipeline server.Pipeline
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("pipeline initialisation failed", zap.Error(err))
		srvCfg.InitErr = err
	} else {
		defer a.Close()
		pipeline = a.Recommender
	}

	srv := server.New(pipeline, srvCfg, logger)
	if a != nil {
		gen := a.Generator
		srv.AddCheck("generator", func(ctx context.Context) error { return generation.Ping(ctx, gen) })
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}
