package retrieval

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/textnorm"
)

var _ ports.RetrievalIndex = (*Catalog)(nil)

// CatalogEntry is one document in a catalog file.
type CatalogEntry struct {
	ID       string            `yaml:"id"`
	Title    string            `yaml:"title"`
	Content  string            `yaml:"content"`
	Tags     []string          `yaml:"tags"`
	Metadata map[string]string `yaml:"metadata"`
}

type catalogFile struct {
	Documents []CatalogEntry `yaml:"documents"`
}

type indexedEntry struct {
	entry CatalogEntry
	terms map[string]int
	size  int
}

// Catalog is a read-only in-process index scored by term overlap. It is
// built once and safe for concurrent use.
type Catalog struct {
	entries []indexedEntry
}

// NewCatalog indexes entries. Ids must be unique and non-empty.
func NewCatalog(entries []CatalogEntry) (*Catalog, error) {
	c := &Catalog{entries: make([]indexedEntry, 0, len(entries))}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, domain.ErrConfiguration(fmt.Sprintf("catalog entry %d has no id", i))
		}
		if seen[e.ID] {
			return nil, domain.ErrConfiguration(fmt.Sprintf("duplicate catalog id %q", e.ID))
		}
		seen[e.ID] = true

		ie := indexedEntry{entry: e, terms: make(map[string]int)}
		for _, field := range append([]string{e.Title, e.Content}, e.Tags...) {
			for _, term := range textnorm.Terms(field) {
				ie.terms[term]++
				ie.size++
			}
		}
		c.entries = append(c.entries, ie)
	}
	return c, nil
}

// LoadCatalog reads a YAML catalog with a top-level documents list.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ErrConfiguration(fmt.Sprintf("read catalog %s", path)).Wrap(err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.ErrConfiguration("malformed catalog").Wrap(err)
	}
	return NewCatalog(f.Documents)
}

// Len returns the number of indexed documents.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Search scores every entry by the fraction of distinct query terms it
// contains, weighted by how often they occur. Entries with no overlap are
// omitted.
func (c *Catalog) Search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.ErrRetrieval(err)
	}
	if k <= 0 {
		return nil, nil
	}

	queryTerms := uniqueTerms(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	var docs []domain.RetrievedDocument
	for _, ie := range c.entries {
		matched, hits := 0, 0
		for _, t := range queryTerms {
			if n := ie.terms[t]; n > 0 {
				matched++
				hits += n
			}
		}
		if matched == 0 {
			continue
		}
		coverage := float64(matched) / float64(len(queryTerms))
		density := float64(hits) / float64(ie.size)
		docs = append(docs, domain.RetrievedDocument{
			Content:        documentText(ie.entry),
			SourceID:       ie.entry.ID,
			RelevanceScore: coverage + density/10,
			Metadata:       copyMetadata(ie.entry.Metadata),
		})
	}

	rank(docs)
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

func uniqueTerms(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range textnorm.Terms(s) {
		if len([]rune(t)) < 3 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func documentText(e CatalogEntry) string {
	if e.Title == "" {
		return e.Content
	}
	if e.Content == "" {
		return e.Title
	}
	return e.Title + ": " + e.Content
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
