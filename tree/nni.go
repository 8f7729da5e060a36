// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package tree

// NNIEdges returns the indices of every non-root internal node, i.e.
// every edge eligible for a nearest-neighbor interchange (§4.7
// "Proposal"). If marksOnly is true, only edges with Mark set are
// returned (the resolve-only search mode).
func (t *Tree) NNIEdges(marksOnly bool) []int {
	var edges []int
	for _, id := range t.post {
		if id == t.root {
			continue
		}
		n := t.nodes[id]
		if n.IsLeaf() {
			continue
		}
		if marksOnly && !n.mark {
			continue
		}
		edges = append(edges, id)
	}
	return edges
}

// NNI performs a nearest-neighbor interchange around the edge above u:
// let v be u's parent and w be u's sibling; swap w with u's child in
// slot childSlot (0 or 1), so the two possible neighbor topologies of
// an edge correspond to childSlot == 0 and childSlot == 1. It returns
// false (and changes nothing) if u is the root or a leaf.
func (t *Tree) NNI(u, childSlot int) bool {
	un := t.nodes[u]
	if un.parent == None || un.IsLeaf() {
		return false
	}
	v := t.nodes[un.parent]
	var wSlot int
	if v.children[0] == u {
		wSlot = 1
	} else {
		wSlot = 0
	}
	w := v.children[wSlot]

	a := un.children[childSlot]

	v.children[wSlot] = a
	t.nodes[a].parent = v.id
	un.children[childSlot] = w
	t.nodes[w].parent = u

	t.reindex()
	return true
}

// Snapshot captures enough of the tree's mutable state (topology and
// branch lengths) to restore it after a rejected or failed proposal,
// without a full annotation-carrying Clone.
type Snapshot struct {
	parent   []int
	children [][2]int
	length   []float64
	mark     []bool
	root     int
}

// Snapshot records the tree's current topology and branch lengths.
func (t *Tree) Snapshot() Snapshot {
	s := Snapshot{
		parent:   make([]int, len(t.nodes)),
		children: make([][2]int, len(t.nodes)),
		length:   make([]float64, len(t.nodes)),
		mark:     make([]bool, len(t.nodes)),
		root:     t.root,
	}
	for i, n := range t.nodes {
		s.parent[i] = n.parent
		s.children[i] = n.children
		s.length[i] = n.length
		s.mark[i] = n.mark
	}
	return s
}

// Restore resets the tree to a previously captured Snapshot. The
// snapshot must have been taken from this same tree (same node
// arena); it is invalidated by any change in the number of nodes.
func (t *Tree) Restore(s Snapshot) {
	for i, n := range t.nodes {
		n.parent = s.parent[i]
		n.children = s.children[i]
		n.length = s.length[i]
		n.mark = s.mark[i]
	}
	t.root = s.root
	t.reindex()
}
