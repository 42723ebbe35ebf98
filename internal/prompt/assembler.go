// Package prompt builds the LLM prompt from retrieved items or the whole
// catalog.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"teabot/internal/domain"
)

// Template selects the prompt family.
type Template string

const (
	// Retrieval grounds the answer in the retrieved items only.
	Retrieval Template = "retrieval"
	// Inventory hands the model the entire catalog and lets it choose.
	Inventory Template = "inventory"
)

// ParseTemplate validates a configured template or pipeline mode name.
func ParseTemplate(s string) (Template, error) {
	switch Template(s) {
	case "", Retrieval:
		return Retrieval, nil
	case Inventory:
		return Inventory, nil
	}
	return "", fmt.Errorf("unknown prompt template %q", s)
}

// Input carries everything a template may draw on. Items is used by
// Retrieval, Catalog by Inventory.
type Input struct {
	Template      Template
	Items         []domain.ScoredItem
	Catalog       []domain.Item
	SystemContext string
	Query         string
	TopN          int
}

// Prompt is an assembled prompt. System is sent as the system message where
// the backend supports one.
type Prompt struct {
	System string
	User   string
}

// String renders the prompt as a single text, for backends and logs that
// have no separate system slot.
func (p Prompt) String() string {
	if p.System == "" {
		return p.User
	}
	return "System: " + p.System + "\n\n" + p.User
}

// Assemble renders in. It never truncates Items or Catalog; callers choose
// the template according to catalog size.
func Assemble(in Input) (Prompt, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return Prompt{}, errors.New("empty query")
	}
	if in.TopN <= 0 {
		return Prompt{}, fmt.Errorf("invalid top_n %d", in.TopN)
	}
	var user string
	switch in.Template {
	case "", Retrieval:
		user = retrievalPrompt(in.Items, query, in.TopN)
	case Inventory:
		if len(in.Catalog) == 0 {
			return Prompt{}, errors.New("inventory prompt needs a non-empty catalog")
		}
		inv, err := InventoryBlock(in.Catalog)
		if err != nil {
			return Prompt{}, err
		}
		user = inventoryPrompt(inv, query, in.TopN)
	default:
		return Prompt{}, fmt.Errorf("unknown prompt template %q", in.Template)
	}
	return Prompt{System: strings.TrimSpace(in.SystemContext), User: user}, nil
}

// ContextBlock lists retrieved items, one per line, in retrieval order.
func ContextBlock(items []domain.ScoredItem) string {
	var b strings.Builder
	b.WriteString("Relevant Tea Blends:\n")
	for _, it := range items {
		fmt.Fprintf(&b, "- %s (%s): %s (Flavors: %s)\n",
			it.Item.Name, it.Item.Type, it.Item.Description, strings.Join(it.Item.Flavors, ", "))
	}
	return b.String()
}

// InventoryBlock renders the catalog as indented JSON without embeddings.
func InventoryBlock(items []domain.Item) (string, error) {
	stripped := make([]domain.Item, len(items))
	for i, it := range items {
		it.Embedding = nil
		it.EmbeddingModel = ""
		stripped[i] = it
	}
	data, err := json.MarshalIndent(stripped, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal inventory: %w", err)
	}
	return string(data), nil
}

func retrievalPrompt(items []domain.ScoredItem, query string, n int) string {
	return fmt.Sprintf(`Use the following context to recommend exactly %d %s to the user.

Context:
%s
User: %s
TeaBot:`, n, plural(n), ContextBlock(items), query)
}

func inventoryPrompt(inventory, query string, n int) string {
	return fmt.Sprintf(`Below is our current inventory of tea blends:

%s

User Preference: %q

Task:
1. Identify the best %d matching %s from the list above.
2. Explain why each is a good fit for the user's specific request.
3. Mention the top choice first.

Response:`, inventory, query, n, plural(n))
}

func plural(n int) string {
	if n == 1 {
		return "tea"
	}
	return "teas"
}
