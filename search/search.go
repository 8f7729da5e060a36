// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package search implements the NNI topology-search driver (C8, §4.7):
// it proposes nearest-neighbor-interchange neighbors of the current
// tree, accepts or rejects them under a simulated-annealing-style
// Metropolis schedule, and supports a "resolve polytomies only" mode
// and an optional local re-optimization with frozen distant branches.
package search

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

// Strategy configures a single search run (§4.7).
type Strategy struct {
	ResolveSearchOnly bool
	LocalBrlenOpt     bool
	Ultrametric       bool
	MaxIter           int
	TCooldown         int
	Alpha             float64
	Initials          int
	MaxTrials         int
}

// DefaultStrategy returns the §4.7 defaults.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxIter:   100,
		TCooldown: DefaultTCooldown,
		Alpha:     DefaultAlpha,
		Initials:  20,
		MaxTrials: 1,
	}
}

// Checkpoint, when non-nil, receives an append-mode log line after
// every accepted NNI move (§6 "NNI checkpoints").
type Checkpoint struct {
	W     io.Writer
	Every int // log every N iterations; 0 means every iteration
}

// Result is the outcome of a single-replicate search (§4.7).
type Result struct {
	Score  float64 // log-likelihood; NLL = -Score
	Params likelihood.Params
	Iters  int
}

// Run performs one replicate of the NNI search over t (§4.7
// "Per-iteration loop"): shuffle candidate edges, evaluate both
// neighbors of each in turn, commit the first accepted move, repeat
// until no edge yields acceptance or MaxIter is reached. t is mutated
// in place to the best topology found.
func Run(t *tree.Tree, data *matrix.Matrix, pr *prior.Prior, strat Strategy, opts em.Options, rng *rand.Rand, cp *Checkpoint) Result {
	opts.Ultrametric = strat.Ultrametric

	currScore, currParams, ok := scoreFull(t, data, pr, opts, strat.Initials, strat.MaxTrials, rng.Int63())
	if !ok {
		return Result{Score: tree.MinLLH}
	}
	bestScore := currScore
	bestParams := currParams
	bestSnap := t.Snapshot()

	for it := 0; it < strat.MaxIter; it++ {
		start := time.Now()
		edges := t.NNIEdges(strat.ResolveSearchOnly)
		rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })

		accepted := false
		for _, u := range edges {
			slots := []int{0, 1}
			rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

			for _, slot := range slots {
				snap := t.Snapshot()
				if !t.NNI(u, slot) {
					t.Restore(snap)
					continue
				}

				var newScore float64
				var newParams likelihood.Params
				var valid bool
				if strat.LocalBrlenOpt {
					free := localFreeEdges(t, u)
					s, ok := scoreLocal(t, data, pr, currParams, free, opts, 50)
					if !ok {
						// §7: release constraints and retry fully.
						s, newParams, ok = scoreFull(t, data, pr, opts, strat.Initials, strat.MaxTrials, rng.Int63())
						newScore, valid = s, ok
					} else {
						newScore, newParams, valid = s, currParams, true
					}
				} else {
					newScore, newParams, valid = scoreFull(t, data, pr, opts, strat.Initials, strat.MaxTrials, rng.Int63())
				}

				if !valid {
					t.Restore(snap)
					continue
				}

				if Accept(rng, currScore, newScore, it, strat.TCooldown, strat.Alpha) {
					currScore = newScore
					currParams = newParams
					accepted = true
					if currScore > bestScore {
						bestScore = currScore
						bestParams = currParams
						bestSnap = t.Snapshot()
					}
					break
				}
				t.Restore(snap)
			}
			if accepted {
				break
			}
		}

		if cp != nil && accepted && (cp.Every <= 0 || it%cp.Every == 0) {
			fmt.Fprintf(cp.W, "NNI Iteration: %d\nCurrent newick tree: %s\nCurrent negative-llh: %g\nCurrent silencing rate: %g\nCurrent dropout rate: %g\nRuntime (s): %g\n",
				it, t.Newick(), -currScore, currParams.Nu, currParams.Phi, time.Since(start).Seconds())
		}
		if !accepted {
			break
		}
	}

	t.Restore(bestSnap)
	return Result{Score: bestScore, Params: bestParams, Iters: strat.MaxIter}
}

// MultiReplicate runs Run nreps independent times from t's original
// topology snapshot and keeps the best-scoring final tree (§4.7
// "Multi-replicate").
func MultiReplicate(t *tree.Tree, data *matrix.Matrix, pr *prior.Prior, strat Strategy, opts em.Options, rng *rand.Rand, nreps int, cp *Checkpoint) Result {
	orig := t.Snapshot()
	var best Result
	var bestSnap tree.Snapshot
	for r := 0; r < nreps; r++ {
		t.Restore(orig)
		res := Run(t, data, pr, strat, opts, rng, cp)
		if r == 0 || res.Score > best.Score {
			best = res
			bestSnap = t.Snapshot()
		}
	}
	t.Restore(bestSnap)
	return best
}

// JointResult is the outcome of a joint search replicate over several
// independent topologies sharing ν, φ (§4.7 "State").
type JointResult struct {
	Score  float64 // summed log-likelihood across every topology
	Params likelihood.Params
	Iters  int
}

// RunJoint is Run generalized to a list of candidate topologies that
// share one ν and φ (§4.7 "State": "List of candidate topologies
// (supports joint inference over several independent samples sharing
// ν, φ, Q)"). Each iteration proposes one NNI on a single,
// randomly-chosen tree from trees and rescores the whole ensemble with
// em.MultiStartJoint/em.RunJoint; local_brlen_opt is not supported in
// joint mode (frozen-branch scoring only ever touched one topology at
// a time) and strat.LocalBrlenOpt is ignored here. Every tree in trees
// is mutated in place to the best topology found for it.
func RunJoint(trees []*tree.Tree, datas []*matrix.Matrix, pr *prior.Prior, strat Strategy, opts em.Options, rng *rand.Rand, cp *Checkpoint) JointResult {
	opts.Ultrametric = strat.Ultrametric

	currScore, currParams, ok := scoreJoint(trees, datas, pr, opts, strat.Initials, strat.MaxTrials, rng.Int63())
	if !ok {
		return JointResult{Score: tree.MinLLH}
	}
	bestScore := currScore
	bestParams := currParams
	bestSnaps := snapshotAll(trees)

	for it := 0; it < strat.MaxIter; it++ {
		start := time.Now()
		which := rng.Intn(len(trees))
		t := trees[which]
		edges := t.NNIEdges(strat.ResolveSearchOnly)
		rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })

		accepted := false
		for _, u := range edges {
			slots := []int{0, 1}
			rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })

			for _, slot := range slots {
				snap := t.Snapshot()
				if !t.NNI(u, slot) {
					t.Restore(snap)
					continue
				}

				newScore, newParams, valid := scoreJoint(trees, datas, pr, opts, strat.Initials, strat.MaxTrials, rng.Int63())
				if !valid {
					t.Restore(snap)
					continue
				}

				if Accept(rng, currScore, newScore, it, strat.TCooldown, strat.Alpha) {
					currScore = newScore
					currParams = newParams
					accepted = true
					if currScore > bestScore {
						bestScore = currScore
						bestParams = currParams
						bestSnaps = snapshotAll(trees)
					}
					break
				}
				t.Restore(snap)
			}
			if accepted {
				break
			}
		}

		if cp != nil && accepted && (cp.Every <= 0 || it%cp.Every == 0) {
			fmt.Fprintf(cp.W, "NNI Iteration: %d\nTopology: %d\nCurrent negative-llh: %g\nCurrent silencing rate: %g\nCurrent dropout rate: %g\nRuntime (s): %g\n",
				it, which, -currScore, currParams.Nu, currParams.Phi, time.Since(start).Seconds())
		}
		if !accepted {
			break
		}
	}

	restoreAll(trees, bestSnaps)
	return JointResult{Score: bestScore, Params: bestParams, Iters: strat.MaxIter}
}

// MultiReplicateJoint is RunJoint's multi-replicate controller,
// mirroring MultiReplicate for the joint case.
func MultiReplicateJoint(trees []*tree.Tree, datas []*matrix.Matrix, pr *prior.Prior, strat Strategy, opts em.Options, rng *rand.Rand, nreps int, cp *Checkpoint) JointResult {
	origs := snapshotAll(trees)
	var best JointResult
	var bestSnaps []tree.Snapshot
	for r := 0; r < nreps; r++ {
		restoreAll(trees, origs)
		res := RunJoint(trees, datas, pr, strat, opts, rng, cp)
		if r == 0 || res.Score > best.Score {
			best = res
			bestSnaps = snapshotAll(trees)
		}
	}
	restoreAll(trees, bestSnaps)
	return best
}

func snapshotAll(trees []*tree.Tree) []tree.Snapshot {
	snaps := make([]tree.Snapshot, len(trees))
	for i, t := range trees {
		snaps[i] = t.Snapshot()
	}
	return snaps
}

func restoreAll(trees []*tree.Tree, snaps []tree.Snapshot) {
	for i, t := range trees {
		t.Restore(snaps[i])
	}
}
