// Package memory is an exact, in-process vector index.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"teabot/internal/domain"
	"teabot/internal/ranking"
	"teabot/internal/vectorstore"
)

// Index is a brute-force cosine index. Records keep insertion order, which
// is also the tie-break order of Query.
type Index struct {
	mu        sync.RWMutex
	dimension int
	records   []vectorstore.Record
	position  map[string]int
}

var _ vectorstore.Index = (*Index)(nil)

// NewIndex creates an empty index. Init must be called before Upsert.
func NewIndex() *Index { return &Index{position: make(map[string]int)} }

// Init resets the index to hold vectors of the given dimension.
func (s *Index) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.records = nil
	s.position = make(map[string]int)
	return nil
}

// Upsert adds records, replacing any with the same ID in place.
func (s *Index) Upsert(_ context.Context, records ...vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("index not initialised")
	}
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("record %q: %w", r.ID, domain.ErrDimensionMismatch)
		}
	}
	for _, r := range records {
		if i, ok := s.position[r.ID]; ok {
			s.records[i] = r
			continue
		}
		s.position[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	return nil
}

// Query returns the topK records closest to vector. Zero-norm vectors on
// either side have similarity 0.
func (s *Index) Query(_ context.Context, vector domain.Vector, topK int) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 || len(s.records) == 0 {
		return []vectorstore.Match{}, nil
	}
	if len(vector) != s.dimension {
		return nil, domain.ErrDimensionMismatch
	}
	matches := make([]vectorstore.Match, len(s.records))
	for i, r := range s.records {
		sim, err := ranking.Cosine(vector, r.Vector)
		if err != nil && !errors.Is(err, domain.ErrDegenerateVector) {
			return nil, err
		}
		matches[i] = vectorstore.Match{ID: r.ID, Metadata: r.Metadata, Distance: 1 - sim}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len reports the number of indexed records.
func (s *Index) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases the stored vectors.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.position = make(map[string]int)
	return nil
}
