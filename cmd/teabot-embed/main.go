package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teabot/internal/app"
	"teabot/internal/catalog"
	"teabot/internal/config"
	"teabot/internal/domain"
	"teabot/internal/embedding"
	"teabot/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, in, out string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	flag.StringVar(&in, "in", "", "Raw catalog JSON (overrides catalog.raw_path)")
	flag.StringVar(&out, "out", "", "Output catalog with embeddings (overrides catalog.path)")
	flag.Parse()

	cfg, _, err := config.Resolve(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if in == "" {
		in = cfg.Catalog.RawPath
	}
	if out == "" {
		out = cfg.Catalog.Path
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	style, err := embedding.ParseDocumentStyle(cfg.Embedder.DocumentStyle)
	if err != nil {
		logger.Fatal("invalid document style", zap.Error(err))
	}
	if cfg.Embedder.Type == "tfidf" {
		logger.Fatal("tfidf vectors depend on the loaded catalog and are computed at startup; nothing to precompute")
	}
	enc, err := app.NewEncoder(cfg.Embedder)
	if err != nil {
		logger.Fatal("failed to build embedder", zap.Error(err))
	}

	data, err := os.ReadFile(in)
	if err != nil {
		logger.Fatal("failed to read raw catalog", zap.String("path", in), zap.Error(err))
	}
	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Fatal("failed to parse raw catalog", zap.String("path", in), zap.Error(err))
	}

	ctx := context.Background()
	embedded := make([]domain.Item, 0, len(items))
	for i, it := range items {
		if it.ID == "" {
			// keep ids stable when earlier items are skipped
			it.ID = domain.ItemID(strconv.Itoa(i + 1))
		}
		v, err := enc.EmbedDocument(ctx, embedding.DocumentText(it, style))
		if err != nil {
			logger.Warn("skipping item", zap.Int("index", i), zap.String("name", it.Name), zap.Error(err))
			continue
		}
		it.Embedding = v
		it.EmbeddingModel = enc.ModelID()
		embedded = append(embedded, it)
		logger.Debug("embedded item", zap.String("name", it.Name), zap.Int("dimension", len(v)))
	}
	if len(embedded) == 0 {
		logger.Fatal("no items could be embedded", zap.Int("items", len(items)))
	}
	if err := catalog.Save(out, embedded); err != nil {
		logger.Fatal("failed to write catalog", zap.String("path", out), zap.Error(err))
	}
	logger.Info("catalog written",
		zap.String("path", out),
		zap.Int("embedded", len(embedded)),
		zap.Int("skipped", len(items)-len(embedded)),
		zap.String("model", enc.ModelID()),
	)
}
