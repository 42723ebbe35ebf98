// Package ranking scores catalog items against a query vector by cosine
// similarity.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"teabot/internal/catalog"
	"teabot/internal/domain"
)

// Cosine returns dot(a,b) / (|a|*|b|).
func Cosine(a, b domain.Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, domain.ErrDegenerateVector
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// clamp rounding noise so identical vectors score exactly within [-1, 1]
	return math.Max(-1, math.Min(1, sim)), nil
}

// Candidate pairs an item with the vector it is ranked by.
type Candidate struct {
	Item   domain.Item
	Vector domain.Vector
}

// Rank scores every candidate against query and returns the k best in
// descending order. Items with equal scores keep their input order. A zero
// norm on either side scores 0; a dimension mismatch is an error.
func Rank(query domain.Vector, candidates []Candidate, k int) ([]domain.ScoredItem, error) {
	if k <= 0 || len(candidates) == 0 {
		return []domain.ScoredItem{}, nil
	}
	scored := make([]domain.ScoredItem, len(candidates))
	for i, c := range candidates {
		sim, err := Cosine(query, c.Vector)
		if err != nil && !errors.Is(err, domain.ErrDegenerateVector) {
			return nil, fmt.Errorf("rank %q: %w", c.Item.Name, err)
		}
		scored[i] = domain.ScoredItem{Item: c.Item, Score: sim}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// CatalogRetriever ranks by brute force over the precomputed embeddings of a
// catalog.
type CatalogRetriever struct {
	candidates []Candidate
}

// NewCatalogRetriever builds a retriever over c. Every item must carry an
// embedding.
func NewCatalogRetriever(c *catalog.Catalog) (*CatalogRetriever, error) {
	items := c.Items()
	candidates := make([]Candidate, len(items))
	for i, it := range items {
		if len(it.Embedding) == 0 {
			return nil, fmt.Errorf("item %q has no embedding", it.Name)
		}
		candidates[i] = Candidate{Item: it, Vector: it.Embedding}
	}
	return &CatalogRetriever{candidates: candidates}, nil
}

// Retrieve implements domain.Retriever.
func (r *CatalogRetriever) Retrieve(_ context.Context, query domain.Vector, k int) ([]domain.ScoredItem, error) {
	return Rank(query, r.candidates, k)
}
