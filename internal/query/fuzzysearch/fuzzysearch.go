// Package fuzzysearch backs workspace-symbol search and completion's
// fallback ranking pass with a bleve full-text index over symbol names.
// Exact-prefix enumeration stays in the symbol index; this engine only
// answers "the user typed something close to a name" queries.
package fuzzysearch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// symbolDoc is the indexed document per symbol.
type symbolDoc struct {
	// Name is the final path component, the field users type.
	Name string `json:"name"`

	// FQN is the full rendered name, also searchable so qualified
	// fragments match.
	FQN string `json:"fqn"`

	// Kind is the entry kind string, for result filtering.
	Kind string `json:"kind"`
}

// Engine is an in-memory bleve index over symbol names.
type Engine struct {
	mu    sync.RWMutex
	index bleve.Index
}

// New creates an empty engine.
func New() (*Engine, error) {
	mapping := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create symbol index: %w", err)
	}
	return &Engine{index: index}, nil
}

// Index adds or replaces one symbol. The FQN string is the document id,
// so re-indexing a file simply overwrites its symbols.
func (e *Engine) Index(fqn, kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.index.Index(fqn, symbolDoc{
		Name: lastComponent(fqn),
		FQN:  fqn,
		Kind: kind,
	})
}

// Remove deletes one symbol.
func (e *Engine) Remove(fqn string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Delete(fqn)
}

// Result is one fuzzy hit.
type Result struct {
	FQN   string
	Score float64
}

// Search returns up to limit symbols matching term, best first. The
// query unions a prefix match (strongest signal), a fuzzy match
// (tolerates a typo), and a plain match on the full FQN text.
func (e *Engine) Search(term string, limit int) ([]Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if term == "" || limit <= 0 {
		return nil, nil
	}

	lowered := strings.ToLower(term)

	prefix := bleve.NewPrefixQuery(lowered)
	prefix.SetField("name")

	fuzzy := bleve.NewFuzzyQuery(lowered)
	fuzzy.SetField("name")
	fuzzy.SetFuzziness(1)

	full := bleve.NewMatchQuery(lowered)
	full.SetField("fqn")

	query := bleve.NewDisjunctionQuery(prefix, fuzzy, full)
	req := bleve.NewSearchRequest(query)
	req.Size = limit

	res, err := e.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("symbol search: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{FQN: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Count returns the number of indexed symbols.
func (e *Engine) Count() (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.DocCount()
}

// Close releases the index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Close()
}

// lastComponent extracts the final name from a rendered FQN, whichever
// separator introduced it.
func lastComponent(fqn string) string {
	for _, sep := range []string{"#", ".", "::"} {
		if i := strings.LastIndex(fqn, sep); i >= 0 {
			fqn = fqn[i+len(sep):]
		}
	}
	return fqn
}
