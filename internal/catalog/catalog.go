// Package catalog loads the read-only tea catalog from a JSON file.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"teabot/internal/domain"
)

// Catalog is an immutable, ordered list of items with unique names.
type Catalog struct {
	path  string
	items []domain.Item
	byID  map[domain.ItemID]int
}

// Load reads a JSON array of items from path. A missing file is a
// configuration error naming the path; the catalog is never silently empty
// because of it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ConfigurationError{
				Setting: "catalog.path",
				Path:    path,
				Err:     errors.New("data file not found; run the embedding preparation step first"),
			}
		}
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &domain.ConfigurationError{Setting: "catalog.path", Path: path, Err: err}
	}
	c, err := New(items)
	if err != nil {
		return nil, &domain.ConfigurationError{Setting: "catalog.path", Path: path, Err: err}
	}
	c.path = path
	return c, nil
}

// New builds a catalog from items. Names and ids must be unique since
// evaluation matches predictions by name. Items without an id get their
// 1-based position.
func New(items []domain.Item) (*Catalog, error) {
	cp := make([]domain.Item, len(items))
	copy(cp, items)
	for i := range cp {
		if cp[i].ID == "" {
			cp[i].ID = domain.ItemID(strconv.Itoa(i + 1))
		}
	}
	names := make(map[string]struct{}, len(cp))
	byID := make(map[domain.ItemID]int, len(cp))
	for i, it := range cp {
		if it.Name == "" {
			return nil, fmt.Errorf("item %d has no name", i)
		}
		if _, dup := names[it.Name]; dup {
			return nil, fmt.Errorf("duplicate item name %q", it.Name)
		}
		names[it.Name] = struct{}{}
		if _, dup := byID[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %q", it.ID)
		}
		byID[it.ID] = i
	}
	return &Catalog{items: cp, byID: byID}, nil
}

// Path returns the file the catalog was loaded from, if any.
func (c *Catalog) Path() string { return c.path }

// Len returns the number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Items returns a copy of the items in catalog order.
func (c *Catalog) Items() []domain.Item {
	out := make([]domain.Item, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the item with the given id.
func (c *Catalog) Get(id domain.ItemID) (domain.Item, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Item{}, false
	}
	return c.items[i], true
}

// MissingEmbeddings returns the indexes of items without a precomputed
// embedding from model.
func (c *Catalog) MissingEmbeddings(model string) []int {
	var out []int
	for i, it := range c.items {
		if len(it.Embedding) == 0 || it.EmbeddingModel != model {
			out = append(out, i)
		}
	}
	return out
}

// WithEmbeddings returns a new catalog in which item i carries vectors[i],
// recorded as produced by model. A nil entry keeps the existing embedding.
func (c *Catalog) WithEmbeddings(vectors []domain.Vector, model string) (*Catalog, error) {
	if len(vectors) != len(c.items) {
		return nil, errors.New("items and vectors length mismatch")
	}
	items := c.Items()
	for i, v := range vectors {
		if v != nil {
			items[i].Embedding = v
			items[i].EmbeddingModel = model
		}
	}
	out, err := New(items)
	if err != nil {
		return nil, err
	}
	out.path = c.path
	return out, nil
}

// Save writes items as indented JSON, creating parent directories as needed.
func Save(path string, items []domain.Item) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
