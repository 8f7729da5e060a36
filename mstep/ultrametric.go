// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package mstep

import "github.com/js-arias/laml/tree"

// Ultrametric encodes the linear equality constraint Md = 0 of §4.5
// that forces equal root-to-leaf distances, implemented as a quadratic
// penalty since gonum/optimize has no native linear-equality support
// (an Open Question decision recorded in DESIGN.md). Each leaf's
// root-to-tip distance is compared against the mean distance.
type Ultrametric struct {
	t         *tree.Tree
	tolerance float64
	weight    float64
}

// NewUltrametric builds the constraint helper for a tree; weight
// scales the quadratic penalty and tolerance is the weighted penalty
// per optimized edge still considered feasible: OptimizeBranchLengths
// reports NonOptimal when the penalty exceeds tolerance times the
// number of edges.
func NewUltrametric(t *tree.Tree, weight, tolerance float64) *Ultrametric {
	return &Ultrametric{t: t, weight: weight, tolerance: tolerance}
}

// penalty computes weight * Σ_leaf (depth(leaf) - mean depth)^2 for
// the candidate branch lengths d (in the order of edges), using the
// static topology of u.t.
func (u *Ultrametric) penalty(edges []int, d []float64) float64 {
	length := make(map[int]float64, len(u.t.Postorder()))
	idx := make(map[int]int, len(edges))
	for i, e := range edges {
		idx[e] = i
	}
	edgeLen := func(id int) float64 {
		if i, ok := idx[id]; ok {
			return d[i]
		}
		return u.t.Node(id).Length()
	}

	var depth func(id int) float64
	depth = func(id int) float64 {
		if v, ok := length[id]; ok {
			return v
		}
		var v float64
		if !u.t.IsRoot(id) {
			v = depth(u.t.Parent(id)) + edgeLen(id)
		}
		length[id] = v
		return v
	}

	leaves := u.t.Leaves()
	depths := make([]float64, len(leaves))
	var mean float64
	for i, id := range leaves {
		depths[i] = depth(id)
		mean += depths[i]
	}
	if len(leaves) == 0 {
		return 0
	}
	mean /= float64(len(leaves))

	var pen float64
	for _, dv := range depths {
		diff := dv - mean
		pen += diff * diff
	}
	return u.weight * pen
}
