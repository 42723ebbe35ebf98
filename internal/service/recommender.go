// Package service wires retrieval, prompt assembly and generation into the
// recommendation pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"teabot/internal/catalog"
	"teabot/internal/domain"
	"teabot/internal/embedding"
	"teabot/internal/prompt"
)

// Mode selects how candidates reach the prompt.
type Mode string

const (
	// ModeRetrieval embeds the query and puts the top-N retrieved items in
	// the prompt.
	ModeRetrieval Mode = "retrieval"
	// ModeInventory puts the whole catalog in the prompt and makes no
	// embedding call.
	ModeInventory Mode = "inventory"
)

const (
	// DefaultTopN is the number of recommendations when none is configured.
	DefaultTopN = 3
	// DefaultTemperature is the sampling temperature for non-deterministic
	// calls.
	DefaultTemperature = 0.7
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("empty query")

// ParseMode validates a configured mode. Empty means retrieval.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRetrieval:
		return ModeRetrieval, nil
	case ModeInventory:
		return ModeInventory, nil
	}
	return "", fmt.Errorf("unknown pipeline mode %q", s)
}

// Options are the construction-time defaults of a Recommender. Zero values
// select the package defaults.
type Options struct {
	Mode          Mode
	TopN          int
	SystemContext string
	// Temperature is the sampling temperature; nil means DefaultTemperature
	// and an explicit 0 is kept.
	Temperature *float64
}

// Request is one recommendation call. Zero fields fall back to Options.
type Request struct {
	Query         string
	TopN          int
	SystemContext string
	// Deterministic forces temperature 0, as used by evaluation.
	Deterministic bool
}

// Result is the generated reply, returned verbatim, with the items and
// prompt that produced it. Retrieved is nil in inventory mode.
type Result struct {
	Text      string
	Retrieved []domain.ScoredItem
	Prompt    prompt.Prompt
}

// Recommender is the recommendation pipeline. It holds no per-call state and
// is safe to share.
type Recommender struct {
	catalog   *catalog.Catalog
	encoder   *embedding.Encoder
	retriever domain.Retriever
	generator domain.Generator
	opts      Options
	temp      float64
	log       *zap.Logger
}

// Deps are the collaborators of a Recommender. Encoder and Retriever may be
// nil in inventory mode.
type Deps struct {
	Catalog   *catalog.Catalog
	Encoder   *embedding.Encoder
	Retriever domain.Retriever
	Generator domain.Generator
	Logger    *zap.Logger
}

// NewRecommender validates deps against opts.Mode and applies defaults.
func NewRecommender(deps Deps, opts Options) (*Recommender, error) {
	if deps.Catalog == nil || deps.Catalog.Len() == 0 {
		return nil, errors.New("recommender needs a non-empty catalog")
	}
	if deps.Generator == nil {
		return nil, errors.New("recommender needs a generator")
	}
	if opts.Mode == "" {
		opts.Mode = ModeRetrieval
	}
	switch opts.Mode {
	case ModeRetrieval:
		if deps.Encoder == nil || deps.Retriever == nil {
			return nil, errors.New("retrieval mode needs an encoder and a retriever")
		}
	case ModeInventory:
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", opts.Mode)
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	temp := DefaultTemperature
	if opts.Temperature != nil {
		if *opts.Temperature < 0 {
			return nil, fmt.Errorf("negative temperature %v", *opts.Temperature)
		}
		temp = *opts.Temperature
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Recommender{
		catalog:   deps.Catalog,
		encoder:   deps.Encoder,
		retriever: deps.Retriever,
		generator: deps.Generator,
		opts:      opts,
		temp:      temp,
		log:       log,
	}, nil
}

// Mode returns the configured pipeline mode.
func (r *Recommender) Mode() Mode { return r.opts.Mode }

// TopN returns the default number of recommendations.
func (r *Recommender) TopN() int { return r.opts.TopN }

// Generator returns the generation backend.
func (r *Recommender) Generator() domain.Generator { return r.generator }

// Recommend runs the pipeline for one query.
func (r *Recommender) Recommend(ctx context.Context, req Request) (*Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	topN := req.TopN
	if topN <= 0 {
		topN = r.opts.TopN
	}
	system := req.SystemContext
	if system == "" {
		system = r.opts.SystemContext
	}
	start := time.Now()

	in := prompt.Input{SystemContext: system, Query: query, TopN: topN}
	var retrieved []domain.ScoredItem
	switch r.opts.Mode {
	case ModeInventory:
		in.Template = prompt.Inventory
		in.Catalog = r.catalog.Items()
	default:
		var err error
		retrieved, err = r.Retrieve(ctx, query, topN)
		if err != nil {
			return nil, err
		}
		in.Template = prompt.Retrieval
		in.Items = retrieved
	}
	p, err := prompt.Assemble(in)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	temperature := r.temp
	if req.Deterministic {
		temperature = 0
	}
	text, err := r.generator.Generate(ctx, p.User, p.System, domain.GenerateOptions{Temperature: temperature})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	r.log.Debug("recommendation generated",
		zap.String("mode", string(r.opts.Mode)),
		zap.Int("top_n", topN),
		zap.Int("retrieved", len(retrieved)),
		zap.String("model", r.generator.ModelID()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Result{Text: text, Retrieved: retrieved, Prompt: p}, nil
}

// Retrieve embeds query and returns at most k items by descending
// similarity. It makes no generation call.
func (r *Recommender) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredItem, error) {
	if r.retriever == nil || r.encoder == nil {
		return nil, errors.New("retrieval is not configured in inventory mode")
	}
	if k <= 0 {
		return []domain.ScoredItem{}, nil
	}
	vec, err := r.encoder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	items, err := r.retriever.Retrieve(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}
