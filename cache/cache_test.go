// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package cache_test

import (
	"strings"
	"testing"

	"github.com/js-arias/laml/cache"
	"github.com/js-arias/laml/tree"
)

func TestKeyIsOrderIndependent(t *testing.T) {
	a, err := tree.ReadNewick("a", strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := tree.ReadNewick("b", strings.NewReader("((B:1,A:1):1,(D:1,C:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cache.Key(a, a.Root()), cache.Key(b, b.Root()); got != want {
		t.Errorf("root keys differ under sibling-order permutation: %q vs %q", got, want)
	}
}

func TestPutGet(t *testing.T) {
	c := cache.New()
	key := "A\x00B"
	c.Put(key, []float64{-1, -2}, []float64{-3, -4})

	e, ok := c.Get(key)
	if !ok {
		t.Fatalf("expected a cache hit")
	}
	if e.L0[0] != -1 || e.L1[1] != -4 {
		t.Errorf("cached entry: got %+v", e)
	}
	if c.Len() != 1 {
		t.Errorf("Len: got %d, want 1", c.Len())
	}
}

func TestInvalidatePathToRoot(t *testing.T) {
	tr, err := tree.ReadNewick("nni", strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := cache.New()
	for _, id := range tr.Preorder() {
		c.Put(cache.Key(tr, id), []float64{0}, []float64{0})
	}
	before := c.Len()

	leaf := tr.Leaves()[0]
	path := cache.PathToRoot(tr, tr.Parent(leaf))
	c.Invalidate(tr, path)

	if c.Len() >= before {
		t.Errorf("expected some entries to be invalidated: before %d, after %d", before, c.Len())
	}
	if _, ok := c.Get(cache.Key(tr, tr.Root())); ok {
		t.Errorf("the root entry must be invalidated by any path to root")
	}
}
