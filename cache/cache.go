// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package cache implements the compute cache (C9, §4.8): a per-tree
// mapping from a subtree's canonical leaf-set identity to its current
// inside likelihood vectors, so that an NNI move only forces
// recomputation of the edges above the change.
package cache

import (
	"strings"

	"github.com/js-arias/laml/tree"
)

// Entry is the cached per-site inside-likelihood pair for a subtree.
type Entry struct {
	L0, L1 []float64
}

// Cache maps a subtree's canonical leaf-set key to its cached Entry.
// It is owned by the EM driver across a single NNI iteration (§5
// "Resource policy") and discarded wholesale when a topology change
// invalidates it beyond repair.
type Cache struct {
	entries map[string]Entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// Key returns the canonical subtree-identity key for the node id in t
// (§4.8 "canonical label-sorted string of leaves under the subtree").
func Key(t *tree.Tree, id int) string {
	return strings.Join(t.LeafSet(id), "\x00")
}

// Get returns the cached entry for a subtree key, if present. A nil
// Cache always misses, so a caller can pass a nil *Cache to mean "no
// caching" without a separate code path.
func (c *Cache) Get(key string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[key]
	return e, ok
}

// Put stores the inside vectors for a subtree key, copying the slices
// so the cache is independent of later in-place mutation. A nil Cache
// silently discards the entry.
func (c *Cache) Put(key string, l0, l1 []float64) {
	if c == nil {
		return
	}
	e := Entry{L0: append([]float64(nil), l0...), L1: append([]float64(nil), l1...)}
	c.entries[key] = e
}

// Invalidate removes cached entries for every subtree whose leaf set
// changed, i.e. every proper ancestor of the two edges the NNI
// swapped. Since an NNI changes the leaf composition of every node on
// the path from the swap point to the root, the caller passes that
// path's node ids.
func (c *Cache) Invalidate(t *tree.Tree, changed []int) {
	if c == nil {
		return
	}
	for _, id := range changed {
		delete(c.entries, Key(t, id))
	}
}

// PathToRoot returns the ids from id up to (and including) the tree's
// root, the set of subtrees whose leaf-set key is invalidated when the
// subtree rooted at id changes.
func PathToRoot(t *tree.Tree, id int) []int {
	var path []int
	for id != tree.None {
		path = append(path, id)
		if t.IsRoot(id) {
			break
		}
		id = t.Parent(id)
	}
	return path
}

// Len reports the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }
