// Package app wires the configured providers into a recommendation pipeline.
// Every binary builds its components through here so they all agree on the
// type switches in the configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"teabot/internal/catalog"
	"teabot/internal/config"
	"teabot/internal/domain"
	"teabot/internal/embedding"
	embollama "teabot/internal/embedding/ollama"
	embopenai "teabot/internal/embedding/openai"
	"teabot/internal/embedding/tfidf"
	genollama "teabot/internal/generation/ollama"
	genopenai "teabot/internal/generation/openai"
	"teabot/internal/ranking"
	"teabot/internal/service"
	"teabot/internal/vectorstore"
	"teabot/internal/vectorstore/memory"
	"teabot/internal/vectorstore/pgvector"
	"teabot/internal/vectorstore/qdrant"
)

// App holds the components built from one AppConfig.
type App struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Catalog     *catalog.Catalog
	Encoder     *embedding.Encoder
	Retriever   domain.Retriever
	Generator   domain.Generator
	Recommender *service.Recommender

	index vectorstore.Index
}

// New loads the catalog and builds the pipeline described by cfg. In
// inventory mode no encoder or retriever is built.
func New(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: log}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	a.Catalog = cat
	log.Info("catalog loaded", zap.String("path", cfg.Catalog.Path), zap.Int("items", cat.Len()))

	mode, err := service.ParseMode(cfg.Pipeline.Mode)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "pipeline.mode", Err: err}
	}

	if mode == service.ModeRetrieval {
		if err := a.initRetrieval(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	gen, err := NewGenerator(cfg.Generator)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Generator = gen

	system, err := cfg.PipelineSystemContext()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	rec, err := service.NewRecommender(service.Deps{
		Catalog:   a.Catalog,
		Encoder:   a.Encoder,
		Retriever: a.Retriever,
		Generator: a.Generator,
		Logger:    log,
	}, service.Options{
		Mode:          mode,
		TopN:          cfg.Pipeline.TopN,
		SystemContext: system,
		Temperature:   cfg.Generator.Temperature,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build recommender: %w", err)
	}
	a.Recommender = rec
	log.Info("pipeline ready",
		zap.String("mode", string(mode)),
		zap.String("embedder", cfg.Embedder.Type),
		zap.String("retriever", cfg.Retriever.Type),
		zap.String("generator", gen.ModelID()),
	)
	return a, nil
}

// Close releases the vector index, if one was opened.
func (a *App) Close() error {
	if a.index == nil {
		return nil
	}
	err := a.index.Close()
	a.index = nil
	return err
}

func (a *App) initRetrieval(ctx context.Context) error {
	cfg := a.Config
	style, err := embedding.ParseDocumentStyle(cfg.Embedder.DocumentStyle)
	if err != nil {
		return &domain.ConfigurationError{Setting: "embedder.document_style", Err: err}
	}
	enc, err := NewEncoder(cfg.Embedder)
	if err != nil {
		return err
	}
	if p, ok := enc.Embedder().(embedding.Preparer); ok {
		if err := p.Prepare(embedding.Corpus(a.Catalog.Items(), style)); err != nil {
			return fmt.Errorf("prepare embedder: %w", err)
		}
	}
	a.Encoder = enc

	switch cfg.Retriever.Type {
	case "ranker", "":
		// precomputed vectors from another model are not comparable with a
		// locally prepared vocabulary
		_, local := enc.Embedder().(embedding.Preparer)
		cat, err := EmbedCatalog(ctx, a.Catalog, enc, style, local, a.Logger)
		if err != nil {
			return err
		}
		a.Catalog = cat
		r, err := ranking.NewCatalogRetriever(cat)
		if err != nil {
			return fmt.Errorf("build ranker: %w", err)
		}
		a.Retriever = r
	case "index":
		idx, err := NewIndex(ctx, cfg.VectorStore)
		if err != nil {
			return err
		}
		a.index = idx
		if err := vectorstore.Build(ctx, idx, a.Catalog, enc, style); err != nil {
			return err
		}
		a.Retriever = vectorstore.NewRetriever(idx, a.Catalog)
		a.Logger.Info("vector index built", zap.String("store", cfg.VectorStore.Type), zap.Int("items", a.Catalog.Len()))
	default:
		return &domain.ConfigurationError{Setting: "retriever.type", Err: fmt.Errorf("unknown retriever %q", cfg.Retriever.Type)}
	}
	return nil
}

// EmbedCatalog embeds the items that lack a vector from the encoder's model,
// or all of them when force is set, and returns the resulting catalog.
// Vectors recorded under another model, or under none, are replaced.
func EmbedCatalog(ctx context.Context, c *catalog.Catalog, enc *embedding.Encoder, style embedding.DocumentStyle, force bool, log *zap.Logger) (*catalog.Catalog, error) {
	items := c.Items()
	model := enc.ModelID()
	todo := c.MissingEmbeddings(model)
	if force {
		todo = make([]int, len(items))
		for i := range todo {
			todo[i] = i
		}
	}
	vectors := make([]domain.Vector, len(items))
	embedded := 0
	for _, i := range todo {
		it := items[i]
		if log != nil && !force && len(it.Embedding) > 0 {
			log.Warn("replacing embedding from another model",
				zap.String("item", it.Name), zap.String("recorded", it.EmbeddingModel), zap.String("model", model))
		}
		v, err := enc.EmbedDocument(ctx, embedding.DocumentText(it, style))
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", it.Name, err)
		}
		vectors[i] = v
		embedded++
	}
	if embedded == 0 {
		return c, nil
	}
	if log != nil {
		log.Info("catalog embedded at startup", zap.Int("items", embedded), zap.String("model", model))
	}
	return c.WithEmbeddings(vectors, model)
}

// NewEncoder builds the configured embedding provider behind an Encoder.
func NewEncoder(cfg config.EmbedderConfig) (*embedding.Encoder, error) {
	var emb domain.Embedder
	switch cfg.Type {
	case "ollama":
		if cfg.Ollama == nil {
			return nil, &domain.ConfigurationError{Setting: "embedder.ollama", Err: errors.New("missing")}
		}
		emb = embollama.NewClient(embollama.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: cfg.Ollama.Timeout(),
		})
	case "openai":
		if cfg.OpenAI == nil {
			return nil, &domain.ConfigurationError{Setting: "embedder.openai", Err: errors.New("missing")}
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey(),
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		emb = client
	case "tfidf":
		emb = tfidf.NewEmbedder()
	default:
		return nil, &domain.ConfigurationError{Setting: "embedder.type", Err: fmt.Errorf("unknown embedder %q", cfg.Type)}
	}
	return embedding.NewEncoder(emb, cfg.QueryPrefix, cfg.DocumentPrefix), nil
}

// NewGenerator builds the configured generation provider.
func NewGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "ollama":
		if cfg.Ollama == nil {
			return nil, &domain.ConfigurationError{Setting: "generator.ollama", Err: errors.New("missing")}
		}
		return genollama.NewClient(genollama.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: cfg.Ollama.Timeout(),
		}), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, &domain.ConfigurationError{Setting: "generator.openai", Err: errors.New("missing")}
		}
		client, err := genopenai.NewClient(genopenai.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey(),
			Model:   cfg.OpenAI.Model,
			Timeout: cfg.OpenAI.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, &domain.ConfigurationError{Setting: "generator.type", Err: fmt.Errorf("unknown generator %q", cfg.Type)}
}

// NewIndex opens the configured vector store.
func NewIndex(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Index, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewIndex(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, &domain.ConfigurationError{Setting: "vector_store.qdrant", Err: errors.New("missing")}
		}
		return qdrant.NewIndex(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    cfg.Qdrant.Timeout(),
		}), nil
	case "pgvector":
		if cfg.Pgvector == nil {
			return nil, &domain.ConfigurationError{Setting: "vector_store.pgvector", Err: errors.New("missing")}
		}
		idx, err := pgvector.NewIndex(ctx, pgvector.Config{
			DSN:   cfg.Pgvector.ResolveDSN(),
			Table: cfg.Pgvector.Table,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	return nil, &domain.ConfigurationError{Setting: "vector_store.type", Err: fmt.Errorf("unknown vector store %q", cfg.Type)}
}
