// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package mstep_test

import (
	"strings"
	"testing"

	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/mstep"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

func closeEnough(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func quartet(t *testing.T) (*tree.Tree, *matrix.Matrix, *prior.Prior) {
	t.Helper()
	tr, err := tree.ReadNewick("quartet", strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := matrix.New(1)
	m.Add("A", []int{1})
	m.Add("B", []int{1})
	m.Add("C", []int{1})
	m.Add("D", []int{0})
	for _, id := range tr.Preorder() {
		if !tr.IsRoot(id) {
			tr.SetLength(id, 0.3)
		}
	}
	pr := prior.Uniform(m)
	tr.InitSites(1)
	tr.Partition(0, m.Column(0))
	return tr, m, pr
}

func TestCollectRenormalizesToK(t *testing.T) {
	tr, m, pr := quartet(t)
	params := likelihood.Params{Nu: 0.2, Phi: 0.05}

	likelihood.Inside(tr, pr, params, nil)
	likelihood.Outside(tr, pr, params)
	likelihood.Posteriors(tr, m, params)

	stats := mstep.Collect(tr)
	if len(stats.Edges) == 0 {
		t.Fatalf("expected at least one optimizable edge")
	}
	k := float64(tr.NumSites())
	for i := range stats.Edges {
		sum := stats.S0[i] + stats.S1[i] + stats.S2[i] + stats.S3[i] + stats.S4[i]
		if !closeEnough(sum, k, 1e-6) {
			t.Errorf("edge %d: row sum %g, want %g", stats.Edges[i], sum, k)
		}
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	stats := mstep.Stats{
		Edges: []int{3, 1, 4, 2},
		S0:    []float64{0, 1, 2, 3},
		S1:    []float64{0, 1, 2, 3},
		S2:    []float64{0, 1, 2, 3},
		S3:    []float64{0, 1, 2, 3},
		S4:    []float64{0, 1, 2, 3},
	}
	allow := map[int]bool{1: true, 2: true}
	f := mstep.Filter(stats, allow)
	if len(f.Edges) != 2 || f.Edges[0] != 1 || f.Edges[1] != 2 {
		t.Errorf("filtered edges: got %v, want [1 2]", f.Edges)
	}
	if f.S0[0] != 1 || f.S0[1] != 3 {
		t.Errorf("filtered S0: got %v, want [1 3]", f.S0)
	}
}

func TestUpdatePhiNoMissingIsZero(t *testing.T) {
	tr, m, pr := quartet(t)
	params := likelihood.Params{Nu: 0.2, Phi: 0.05}
	likelihood.Inside(tr, pr, params, nil)
	likelihood.Outside(tr, pr, params)
	likelihood.Posteriors(tr, m, params)

	phi := mstep.UpdatePhi(tr, m)
	if phi != 0 {
		t.Errorf("with no missing observations, phi should snap to 0: got %g", phi)
	}
}

func TestOptimizeBranchLengthsStaysInBounds(t *testing.T) {
	stats := mstep.Stats{
		Edges: []int{0, 1},
		S0:    []float64{0.5, 0.5},
		S1:    []float64{0.3, 0.3},
		S2:    []float64{0.1, 0.1},
		S3:    []float64{0.05, 0.05},
		S4:    []float64{0.05, 0.05},
	}
	d, status := mstep.OptimizeBranchLengths(stats, 0.2, tree.MinLength, tree.MaxLength, nil)
	if status != mstep.Optimal {
		t.Fatalf("expected an optimal branch-length solve")
	}
	for i, v := range d {
		if v < tree.MinLength || v > tree.MaxLength {
			t.Errorf("edge %d: length %g out of bounds [%g, %g]", i, v, tree.MinLength, tree.MaxLength)
		}
	}
}

func TestOptimizeBranchLengthsWithUltrametric(t *testing.T) {
	tr, m, pr := quartet(t)
	params := likelihood.Params{Nu: 0.2, Phi: 0.05}
	likelihood.Inside(tr, pr, params, nil)
	likelihood.Outside(tr, pr, params)
	likelihood.Posteriors(tr, m, params)

	stats := mstep.Collect(tr)
	ultra := mstep.NewUltrametric(tr, 1e4, 1e-3)
	d, status := mstep.OptimizeBranchLengths(stats, params.Nu, tree.MinLength, tree.MaxLength, ultra)
	if status != mstep.Optimal {
		t.Skip("ultrametric-constrained solve did not converge to feasibility on this input")
	}
	for i, v := range d {
		if v < tree.MinLength || v > tree.MaxLength {
			t.Errorf("edge %d: length %g out of bounds", i, v)
		}
	}
}

func TestOptimizeNuStaysInBounds(t *testing.T) {
	stats := mstep.Stats{
		Edges: []int{0, 1},
		S0:    []float64{0.5, 0.5},
		S1:    []float64{0.3, 0.3},
		S2:    []float64{0.1, 0.1},
		S3:    []float64{0.05, 0.05},
		S4:    []float64{0.05, 0.05},
	}
	d := []float64{0.3, 0.3}
	nu, status := mstep.OptimizeNu(stats, d, 1e-5, 10)
	if status != mstep.Optimal {
		t.Fatalf("expected an optimal nu solve")
	}
	if nu < 1e-5 || nu > 10 {
		t.Errorf("nu out of bounds: got %g", nu)
	}
}
