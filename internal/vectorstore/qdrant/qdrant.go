// Package qdrant is a vector index backed by a Qdrant server, spoken to over
// its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"teabot/internal/domain"
	"teabot/internal/vectorstore"
)

// DefaultCollection is used when Config.Collection is empty.
const DefaultCollection = "teabot_items"

// pointNamespace seeds the UUIDv5 point ids derived from item ids.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a10-2b3c4d5e6f70")

// Index is a minimal REST client to Qdrant using cosine distance.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// Config configures the Qdrant client.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var _ vectorstore.Index = (*Index)(nil)

// NewIndex creates a client. A zero timeout defaults to 15s.
func NewIndex(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &Index{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps an item id onto the UUID Qdrant stores it under.
func PointID(itemID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(itemID)).String()
}

// Init drops the collection if present and recreates it empty.
func (s *Index) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	_, err = s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	return err
}

// Upsert writes records and waits for them to be indexed.
func (s *Index) Upsert(ctx context.Context, records ...vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		payload := map[string]any{"item_id": r.ID}
		for k, v := range r.Metadata {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      PointID(r.ID),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Query searches the collection. Qdrant reports cosine similarity, which is
// converted to distance.
func (s *Index) Query(ctx context.Context, vector domain.Vector, topK int) ([]vectorstore.Match, error) {
	if topK <= 0 {
		return []vectorstore.Match{}, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp searchResponse
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	matches := make([]vectorstore.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := vectorstore.Match{Metadata: make(map[string]string), Distance: 1 - r.Score}
		for k, v := range r.Payload {
			str, ok := v.(string)
			if !ok {
				continue
			}
			if k == "item_id" {
				m.ID = str
				continue
			}
			m.Metadata[k] = str
		}
		if m.ID == "" {
			return nil, domain.NewProviderError("qdrant", "query", 0, errors.New("point without item_id payload"))
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Close is a no-op; the collection is kept for inspection until the next
// Init.
func (s *Index) Close() error { return nil }

func (s *Index) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The returned status is zero when the server could not be reached.
func (s *Index) do(ctx context.Context, method, url string, body, out any) (int, error) {
	op := strings.ToLower(method)
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal qdrant request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, fmt.Errorf("build qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, domain.NewProviderError("qdrant", op, 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, domain.NewProviderError("qdrant", op, resp.StatusCode,
			fmt.Errorf("%s %s: %s", method, url, strings.TrimSpace(string(msg))))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, domain.NewProviderError("qdrant", op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}
