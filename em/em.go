// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package em implements the EM driver (§4.6): it alternates the E-step
// (likelihood package) and the M-step (mstep package) until
// convergence, with multi-start over random initial points.
package em

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/mstep"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

// ConvEps is the default relative log-likelihood convergence
// tolerance (§4.6).
const ConvEps = 1e-3

// MaxIter is the default cap on EM iterations (§4.6).
const MaxIter = 1000

// Options configures a single EM run.
type Options struct {
	MaxIter      int
	ConvEps      float64
	OptimizePhi  bool
	OptimizeNu   bool
	Ultrametric  bool
	UltraWeight  float64
	UltraTol     float64
	Dmin, Dmax   float64
	NuMax        float64
	NuEps        float64
}

// DefaultOptions returns the §4.6 defaults.
func DefaultOptions() Options {
	return Options{
		MaxIter:     MaxIter,
		ConvEps:     ConvEps,
		OptimizePhi: true,
		OptimizeNu:  true,
		Dmin:        tree.MinLength,
		Dmax:        tree.MaxLength,
		NuMax:       10,
		NuEps:       1e-5,
		UltraWeight: 1e4,
		UltraTol:    1e-4,
	}
}

// Result is the outcome of a single EM run (§4.6).
type Result struct {
	LogLike  float64
	Params   likelihood.Params
	Iters    int
	Converged bool
}

// Run alternates E-step and M-step on t (whose topology and α-partition
// are assumed fixed and already computed) starting from params, until
// convergence or opts.MaxIter is reached. It returns nil if any M-step
// reports mstep.NonOptimal (§7 "the EM driver treats the enclosing EM
// run as failed").
func Run(t *tree.Tree, data *matrix.Matrix, pr *prior.Prior, params likelihood.Params, opts Options) *Result {
	preLLH := likelihood.Inside(t, pr, params, nil)
	iter := 1
	converged := false
	for ; iter <= opts.MaxIter; iter++ {
		likelihood.Inside(t, pr, params, nil)
		likelihood.Outside(t, pr, params)
		likelihood.Posteriors(t, data, params)

		if opts.OptimizePhi {
			params.Phi = mstep.UpdatePhi(t, data)
		}

		stats := mstep.Collect(t)
		var ultra *mstep.Ultrametric
		if opts.Ultrametric {
			ultra = mstep.NewUltrametric(t, opts.UltraWeight, opts.UltraTol)
		}
		d, status := mstep.OptimizeBranchLengths(stats, params.Nu, opts.Dmin, opts.Dmax, ultra)
		if status != mstep.Optimal {
			return nil
		}
		for i, id := range stats.Edges {
			t.SetLength(id, d[i])
		}

		if opts.OptimizeNu {
			nu, status := mstep.OptimizeNu(stats, d, opts.NuEps, opts.NuMax)
			if status != mstep.Optimal {
				return nil
			}
			params.Nu = nu
		}

		currLLH := likelihood.Inside(t, pr, params, nil)
		if preLLH != 0 && math.Abs((currLLH-preLLH)/preLLH) < opts.ConvEps {
			converged = true
			preLLH = currLLH
			break
		}
		preLLH = currLLH
	}
	return &Result{LogLike: preLLH, Params: params, Iters: iter, Converged: converged}
}

// JointResult is the outcome of a joint EM run over several
// topologies sharing ν and φ (§4.7 "State": "supports joint inference
// over several independent samples sharing ν, φ, Q").
type JointResult struct {
	LogLike   float64 // summed log-likelihood across every topology
	Params    likelihood.Params
	Iters     int
	Converged bool
}

// RunJoint alternates the E-step and M-step across every tree in
// trees, pooling sufficient statistics for the shared φ and ν updates
// while each tree's own branch lengths are still maximized
// independently from its own Stats (§4.5's per-edge row is a property
// of one topology; only the scalar ν and φ are shared). trees and
// datas are parallel slices, one character matrix per topology; every
// tree must already carry the matching α-partition.
func RunJoint(trees []*tree.Tree, datas []*matrix.Matrix, pr *prior.Prior, params likelihood.Params, opts Options) *JointResult {
	preLLH := 0.0
	for _, t := range trees {
		preLLH += likelihood.Inside(t, pr, params, nil)
	}
	iter := 1
	converged := false
	for ; iter <= opts.MaxIter; iter++ {
		for i, t := range trees {
			likelihood.Inside(t, pr, params, nil)
			likelihood.Outside(t, pr, params)
			likelihood.Posteriors(t, datas[i], params)
		}

		if opts.OptimizePhi {
			params.Phi = mstep.UpdatePhiJoint(trees, datas)
		}

		stats := make([]mstep.Stats, len(trees))
		for i, t := range trees {
			stats[i] = mstep.Collect(t)
			var ultra *mstep.Ultrametric
			if opts.Ultrametric {
				ultra = mstep.NewUltrametric(t, opts.UltraWeight, opts.UltraTol)
			}
			d, status := mstep.OptimizeBranchLengths(stats[i], params.Nu, opts.Dmin, opts.Dmax, ultra)
			if status != mstep.Optimal {
				return nil
			}
			for j, id := range stats[i].Edges {
				t.SetLength(id, d[j])
			}
		}

		if opts.OptimizeNu {
			var pooled mstep.Stats
			var d []float64
			for i, t := range trees {
				for _, id := range stats[i].Edges {
					d = append(d, t.Node(id).Length())
				}
				pooled.Edges = append(pooled.Edges, stats[i].Edges...)
				pooled.S0 = append(pooled.S0, stats[i].S0...)
				pooled.S1 = append(pooled.S1, stats[i].S1...)
				pooled.S2 = append(pooled.S2, stats[i].S2...)
				pooled.S3 = append(pooled.S3, stats[i].S3...)
				pooled.S4 = append(pooled.S4, stats[i].S4...)
			}
			nu, status := mstep.OptimizeNu(pooled, d, opts.NuEps, opts.NuMax)
			if status != mstep.Optimal {
				return nil
			}
			params.Nu = nu
		}

		currLLH := 0.0
		for _, t := range trees {
			currLLH += likelihood.Inside(t, pr, params, nil)
		}
		if preLLH != 0 && math.Abs((currLLH-preLLH)/preLLH) < opts.ConvEps {
			converged = true
			preLLH = currLLH
			break
		}
		preLLH = currLLH
	}
	return &JointResult{LogLike: preLLH, Params: params, Iters: iter, Converged: converged}
}

// MultiStartJoint is RunJoint's multi-start controller (§4.6
// "Multi-start"), drawing one shared ν/φ initial point per trial (each
// tree keeps its own random initial branch lengths) and retrying up to
// maxTrials times if every start fails.
func MultiStartJoint(trees []*tree.Tree, datas []*matrix.Matrix, pr *prior.Prior, opts Options, initials, maxTrials int, seed int64, fixedNu, fixedPhi *float64) *JointResult {
	rng := rand.New(rand.NewSource(seed))
	for trial := 0; trial < maxTrials; trial++ {
		var best *JointResult
		for i := 0; i < initials; i++ {
			snaps := make([]tree.Snapshot, len(trees))
			for j, t := range trees {
				snaps[j] = t.Snapshot()
			}
			var params likelihood.Params
			for j, t := range trees {
				p := RandomInit(t, rng, opts, fixedNu, fixedPhi)
				if j == 0 {
					params = p
				}
			}
			res := RunJoint(trees, datas, pr, params, opts)
			if res == nil {
				for j, t := range trees {
					t.Restore(snaps[j])
				}
				continue
			}
			if best == nil || res.LogLike > best.LogLike {
				best = res
			} else {
				for j, t := range trees {
					t.Restore(snaps[j])
				}
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}

// RandomInit draws a random initial point for branch lengths, ν, and
// φ (§4.6 "multi-start over random initial points"), grounded on
// ini_brlens/ini_nu/ini_phi: branch lengths of unmarked edges uniform
// in [2·dmin, dmax/2 − 2·dmin] (mark-ed edges keep their length), ν and
// φ uniform in [0, 0.99] unless fixed.
func RandomInit(t *tree.Tree, rng *rand.Rand, opts Options, fixedNu, fixedPhi *float64) likelihood.Params {
	u := distuv.Uniform{Min: 0, Max: 1, Src: rng}
	brlen := distuv.Uniform{Min: 2 * opts.Dmin, Max: opts.Dmax/2 - 2*opts.Dmin, Src: rng}
	for _, id := range t.Postorder() {
		if t.Node(id).Mark() {
			continue
		}
		t.SetLength(id, brlen.Rand())
	}
	p := likelihood.Params{}
	if fixedNu != nil {
		p.Nu = *fixedNu
	} else {
		p.Nu = u.Rand() * 0.99
	}
	if fixedPhi != nil {
		p.Phi = *fixedPhi
	} else {
		p.Phi = u.Rand() * 0.99
	}
	return p
}

// MultiStart runs Run from `initials` random seeds (§4.6 "Multi-start")
// and returns the best-scoring result, retrying the whole batch up to
// maxTrials times if every start fails (§7 "the multi-start controller
// moves on ... retry up to max_trials").
func MultiStart(t *tree.Tree, data *matrix.Matrix, pr *prior.Prior, opts Options, initials, maxTrials int, seed int64, fixedNu, fixedPhi *float64) *Result {
	rng := rand.New(rand.NewSource(seed))
	for trial := 0; trial < maxTrials; trial++ {
		var best *Result
		for i := 0; i < initials; i++ {
			snap := t.Snapshot()
			params := RandomInit(t, rng, opts, fixedNu, fixedPhi)
			res := Run(t, data, pr, params, opts)
			if res == nil {
				t.Restore(snap)
				continue
			}
			if best == nil || res.LogLike > best.LogLike {
				best = res
			} else {
				t.Restore(snap)
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
