// Package vectorstore defines the nearest-neighbour index abstraction used
// for retrieval, together with the startup build that fills an index from a
// catalog.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teabot/internal/catalog"
	"teabot/internal/domain"
	"teabot/internal/embedding"
)

// Record is one vector to index. ID is the catalog item id and Position its
// index in the catalog, which breaks ties between equal distances.
type Record struct {
	ID       string
	Position int
	Vector   domain.Vector
	Metadata map[string]string
}

// Match is a query hit. Distance is cosine distance, so lower is closer.
type Match struct {
	ID       string
	Metadata map[string]string
	Distance float64
}

// Similarity converts the cosine distance back to a similarity score.
func (m Match) Similarity() float64 { return 1 - m.Distance }

// Index persists vectors and supports similarity search. Init discards any
// previous contents; indexes are rebuilt on every start.
type Index interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records ...Record) error
	Query(ctx context.Context, vector domain.Vector, topK int) ([]Match, error)
	Close() error
}

// Metadata returns the payload stored alongside an item's vector.
func Metadata(it domain.Item) map[string]string {
	return map[string]string{
		"name":        it.Name,
		"type":        it.Type,
		"flavors":     strings.Join(it.Flavors, ", "),
		"description": it.Description,
	}
}

// Build embeds every catalog item as a document and loads the vectors into
// idx. The first vector fixes the index dimension.
func Build(ctx context.Context, idx Index, c *catalog.Catalog, enc *embedding.Encoder, style embedding.DocumentStyle) error {
	items := c.Items()
	if len(items) == 0 {
		return errors.New("build index: empty catalog")
	}
	records := make([]Record, 0, len(items))
	for i, it := range items {
		vec, err := enc.EmbedDocument(ctx, embedding.DocumentText(it, style))
		if err != nil {
			return fmt.Errorf("build index: embed %q: %w", it.Name, err)
		}
		if len(records) > 0 && len(vec) != len(records[0].Vector) {
			return fmt.Errorf("build index: %q: %w", it.Name, domain.ErrDimensionMismatch)
		}
		records = append(records, Record{ID: string(it.ID), Position: i, Vector: vec, Metadata: Metadata(it)})
	}
	if err := idx.Init(ctx, len(records[0].Vector)); err != nil {
		return fmt.Errorf("build index: init: %w", err)
	}
	if err := idx.Upsert(ctx, records...); err != nil {
		return fmt.Errorf("build index: upsert: %w", err)
	}
	return nil
}

// Retriever adapts an Index to domain.Retriever, resolving matches back to
// catalog items.
type Retriever struct {
	index   Index
	catalog *catalog.Catalog
}

var _ domain.Retriever = (*Retriever)(nil)

// NewRetriever creates a Retriever over an index built from c.
func NewRetriever(idx Index, c *catalog.Catalog) *Retriever {
	return &Retriever{index: idx, catalog: c}
}

// Retrieve returns up to k items ordered by descending similarity.
func (r *Retriever) Retrieve(ctx context.Context, query domain.Vector, k int) ([]domain.ScoredItem, error) {
	if k <= 0 {
		return []domain.ScoredItem{}, nil
	}
	matches, err := r.index.Query(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScoredItem, 0, len(matches))
	for _, m := range matches {
		it, ok := r.catalog.Get(domain.ItemID(m.ID))
		if !ok {
			return nil, fmt.Errorf("index returned unknown item id %q", m.ID)
		}
		out = append(out, domain.ScoredItem{Item: it, Score: m.Similarity()})
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
