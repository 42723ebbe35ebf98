// Package embedding holds the shared pieces of the embedding providers: the
// query/document encoder and the text rendered for each catalog item.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"teabot/internal/domain"
)

// Preparer is implemented by embedders that must see the document corpus
// before they can embed anything (e.g. TF-IDF).
type Preparer interface {
	Prepare(corpus []string) error
}

// Encoder applies asymmetric instruction prefixes on top of an Embedder.
// Models like nomic-embed-text expect "search_query: " for queries and
// "search_document: " for documents; empty prefixes embed text verbatim.
type Encoder struct {
	embedder       domain.Embedder
	queryPrefix    string
	documentPrefix string
}

// NewEncoder wraps e with the given prefixes.
func NewEncoder(e domain.Embedder, queryPrefix, documentPrefix string) *Encoder {
	return &Encoder{embedder: e, queryPrefix: queryPrefix, documentPrefix: documentPrefix}
}

// ModelID returns the underlying embedding model.
func (e *Encoder) ModelID() string { return e.embedder.ModelID() }

// Embedder returns the wrapped provider.
func (e *Encoder) Embedder() domain.Embedder { return e.embedder }

// EmbedQuery embeds user query text.
func (e *Encoder) EmbedQuery(ctx context.Context, text string) (domain.Vector, error) {
	return e.embed(ctx, e.queryPrefix+text)
}

// EmbedDocument embeds catalog document text.
func (e *Encoder) EmbedDocument(ctx context.Context, text string) (domain.Vector, error) {
	return e.embed(ctx, e.documentPrefix+text)
}

func (e *Encoder) embed(ctx context.Context, text string) (domain.Vector, error) {
	v, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, domain.NewProviderError(e.embedder.ModelID(), "embed", 0, fmt.Errorf("empty embedding"))
	}
	return v, nil
}

// DocumentStyle selects how an item is rendered before embedding.
type DocumentStyle string

const (
	// StyleLabeled renders "Name: X. Type: Y. Flavors: a, b. Description: Z".
	StyleLabeled DocumentStyle = "labeled"
	// StyleNarrative renders natural language sentences.
	StyleNarrative DocumentStyle = "narrative"
	// StyleDetailed is StyleNarrative plus the caffeine level when known.
	StyleDetailed DocumentStyle = "detailed"
)

// ParseDocumentStyle validates a configured style name. Empty means labeled.
func ParseDocumentStyle(s string) (DocumentStyle, error) {
	switch DocumentStyle(s) {
	case "", StyleLabeled:
		return StyleLabeled, nil
	case StyleNarrative, StyleDetailed:
		return DocumentStyle(s), nil
	}
	return "", fmt.Errorf("unknown document style %q", s)
}

// DocumentText renders the text embedded for an item.
func DocumentText(it domain.Item, style DocumentStyle) string {
	flavors := strings.Join(it.Flavors, ", ")
	switch style {
	case StyleNarrative:
		return fmt.Sprintf("%s is a %s tea. It features flavors like %s. %s", it.Name, it.Type, flavors, it.Description)
	case StyleDetailed:
		s := fmt.Sprintf("The %s is a %s variety. It has a flavor profile featuring %s. %s", it.Name, it.Type, flavors, it.Description)
		if it.Caffeine != "" {
			s += fmt.Sprintf(" This tea has a %s caffeine level.", it.Caffeine)
		}
		return s
	default:
		return fmt.Sprintf("Name: %s. Type: %s. Flavors: %s. Description: %s", it.Name, it.Type, flavors, it.Description)
	}
}

// Corpus renders every item with the given style, in order.
func Corpus(items []domain.Item, style DocumentStyle) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = DocumentText(it, style)
	}
	return out
}
