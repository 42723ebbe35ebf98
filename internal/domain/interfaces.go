package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Vector is a fixed-length embedding. Its dimension is owned by the model
// that produced it.
type Vector []float64

// ItemID identifies a catalog item. JSON catalogs may carry ids either as
// strings or as numbers; both decode to the same textual form.
type ItemID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// Item is a single tea blend from the catalog. EmbeddingModel names the model
// that produced Embedding; the vector is only compared with query vectors
// from that model.
type Item struct {
	ID             ItemID   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Flavors        []string `json:"flavors"`
	Description    string   `json:"description"`
	Caffeine       string   `json:"caffeine,omitempty"`
	Embedding      Vector   `json:"embedding,omitempty"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
}

// ScoredItem is a retrieved item together with its similarity to the query.
type ScoredItem struct {
	Item  Item
	Score float64
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	ModelID() string
	Embed(ctx context.Context, text string) (Vector, error)
}

// Generator sends a prompt to a language model and returns its reply.
type Generator interface {
	ModelID() string
	Generate(ctx context.Context, prompt, system string, opts GenerateOptions) (string, error)
}

// Retriever returns the k catalog items closest to an already embedded query,
// ordered by descending similarity.
type Retriever interface {
	Retrieve(ctx context.Context, query Vector, k int) ([]ScoredItem, error)
}
