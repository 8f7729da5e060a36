// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package search

import (
	"math"

	"github.com/js-arias/laml/cache"
	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/mstep"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

// scoreFull re-partitions t, then scores it with a full multi-start EM
// run (§4.7 "score_tree"), returning the log-likelihood and the
// winning parameters.
func scoreFull(t *tree.Tree, data *matrix.Matrix, pr *prior.Prior, opts em.Options, initials, maxTrials int, seed int64) (float64, likelihood.Params, bool) {
	partitionAll(t, data)
	res := em.MultiStart(t, data, pr, opts, initials, maxTrials, seed, nil, nil)
	if res == nil {
		return 0, likelihood.Params{}, false
	}
	return res.LogLike, res.Params, true
}

// scoreJoint re-partitions every tree in trees, then scores the whole
// ensemble with a full multi-start joint EM run sharing ν, φ across
// topologies (§4.7 "State"), returning the summed log-likelihood and
// the winning shared parameters.
func scoreJoint(trees []*tree.Tree, datas []*matrix.Matrix, pr *prior.Prior, opts em.Options, initials, maxTrials int, seed int64) (float64, likelihood.Params, bool) {
	for i, t := range trees {
		partitionAll(t, datas[i])
	}
	res := em.MultiStartJoint(trees, datas, pr, opts, initials, maxTrials, seed, nil, nil)
	if res == nil {
		return 0, likelihood.Params{}, false
	}
	return res.LogLike, res.Params, true
}

// scoreLocal re-scores t with ν and φ frozen to params, optimizing
// only the edges in free (by id); every other edge's length is held
// fixed (§4.7 "Local re-optimization"). It runs a short alternating
// E-step/restricted-M-step loop until convergence or maxIter.
//
// Topology and α-partition are fixed for the whole call, so the inside
// recursion is backed by a compute cache (C9, §4.8): only the subtrees
// on the path from a changed edge up to the root are invalidated after
// each M-step, and every other subtree's L0/L1 is reused as-is.
func scoreLocal(t *tree.Tree, data *matrix.Matrix, pr *prior.Prior, params likelihood.Params, free map[int]bool, opts em.Options, maxIter int) (float64, bool) {
	partitionAll(t, data)
	c := cache.New()
	preLLH := likelihood.Inside(t, pr, params, c)
	for iter := 0; iter < maxIter; iter++ {
		likelihood.Inside(t, pr, params, c)
		likelihood.Outside(t, pr, params)
		likelihood.Posteriors(t, data, params)

		stats := mstep.Filter(mstep.Collect(t), free)
		d, status := mstep.OptimizeBranchLengths(stats, params.Nu, opts.Dmin, opts.Dmax, nil)
		if status != mstep.Optimal {
			return 0, false
		}
		for i, id := range stats.Edges {
			t.SetLength(id, d[i])
		}
		for _, id := range stats.Edges {
			c.Invalidate(t, cache.PathToRoot(t, id))
		}

		currLLH := likelihood.Inside(t, pr, params, c)
		if preLLH != 0 && math.Abs((currLLH-preLLH)/preLLH) < opts.ConvEps {
			preLLH = currLLH
			break
		}
		preLLH = currLLH
	}
	return preLLH, true
}

// partitionAll recomputes the α-partition for every site (§4.1, must
// be re-run after every topology change and before every E-step).
func partitionAll(t *tree.Tree, data *matrix.Matrix) {
	for site := 0; site < t.NumSites(); site++ {
		t.Partition(site, data.Column(site))
	}
}

// localFreeEdges returns the ids of the edges left free during a
// local_brlen_opt re-optimization around the NNI edge u: u, u's two
// children, v (u's parent), and v's other child w (§4.7 "apply_nni").
func localFreeEdges(t *tree.Tree, u int) map[int]bool {
	v := t.Parent(u)
	free := map[int]bool{u: true}
	if v != tree.None {
		free[v] = true
		w := t.Sibling(u)
		if w != tree.None {
			free[w] = true
		}
	}
	c0, c1 := t.Children(u)
	if c0 != tree.None {
		free[c0] = true
	}
	if c1 != tree.None {
		free[c1] = true
	}
	return free
}
