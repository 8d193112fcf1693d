// Package ristretto caches parsed predicate expressions in-process.
//
// The same predicate text is evaluated once per bound agent whenever agents
// or queues change, so parsing it every time would dominate the reconcile
// cost on routers with many queues.
package ristretto

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/routegrid/routegrid/internal/eval"
)

// PredicateCache wraps a ristretto cache keyed by predicate text.
type PredicateCache struct {
	c *ristretto.Cache[string, *eval.Node]
}

// New creates a predicate cache holding up to maxEntries parsed expressions.
func New(maxEntries int64) (*PredicateCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *eval.Node]{
		NumCounters: maxEntries * 10, // ~10x expected items
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &PredicateCache{c: c}, nil
}

// Get retrieves a parsed expression from the cache.
func (pc *PredicateCache) Get(predicate string) (*eval.Node, bool) {
	return pc.c.Get(predicate)
}

// Set stores a parsed expression. Each entry costs 1 regardless of size.
func (pc *PredicateCache) Set(predicate string, node *eval.Node) {
	pc.c.Set(predicate, node, 1)
}

// Close shuts down the cache and releases resources.
func (pc *PredicateCache) Close() {
	pc.c.Close()
}
