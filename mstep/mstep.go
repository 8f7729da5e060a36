// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package mstep implements the M-step (§4.5): the closed-form dropout
// update, and the concave maximizations of branch lengths (given ν)
// and of ν (given branch lengths) over the sufficient statistics
// produced by the likelihood package.
package mstep

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/tree"
)

// EpsNu is the threshold below which ν is treated as exactly zero when
// gating the S2/S4 terms of the branch-length objective (§4.5).
const EpsNu = 1e-5

// EpsS is the floor applied to a per-edge sufficient-statistic row
// before renormalization (§4.5 "eps-floored").
const EpsS = 1e-6

// Status reports the outcome of an M-step sub-problem (§7 "Infeasible
// convex sub-problem").
type Status int

const (
	Optimal Status = iota
	NonOptimal
)

// Stats holds the renormalized per-edge sufficient statistics (one
// entry per edge, including mark-ed polytomy-resolution edges)
// together with the ids of the corresponding nodes.
type Stats struct {
	Edges          []int
	S0, S1, S2, S3 []float64
	S4             []float64
}

// Collect sums each optimizable edge's per-site S0..S4 over sites,
// floors the row at EpsS, and renormalizes it so that it sums to K
// (§4.5 "Per-row sufficient statistics ... must be renormalized so
// that ∑ᵢ Sᵢ = K").
func Collect(t *tree.Tree) Stats {
	k := t.NumSites()
	var st Stats
	for _, id := range t.Postorder() {
		n := t.Node(id)
		var s [5]float64
		for site := 0; site < k; site++ {
			ss := n.Site(site)
			s[0] += ss.S0
			s[1] += ss.S1
			s[2] += ss.S2
			s[3] += ss.S3
			s[4] += ss.S4
		}
		for i := range s {
			if s[i] < EpsS {
				s[i] = EpsS
			}
		}
		total := floats.Sum(s[:])
		for i := range s {
			s[i] = s[i] / total * float64(k)
		}
		st.Edges = append(st.Edges, id)
		st.S0 = append(st.S0, s[0])
		st.S1 = append(st.S1, s[1])
		st.S2 = append(st.S2, s[2])
		st.S3 = append(st.S3, s[3])
		st.S4 = append(st.S4, s[4])
	}
	return st
}

// Filter returns the subset of a Stats restricted to the given edge
// ids, preserving order. It is used by the topology-search driver's
// local_brlen_opt mode (§4.7 "Local re-optimization") to restrict the
// branch-length sub-problem to the edges surrounding an NNI move while
// every other edge's length stays frozen.
func Filter(s Stats, allow map[int]bool) Stats {
	var f Stats
	for i, id := range s.Edges {
		if !allow[id] {
			continue
		}
		f.Edges = append(f.Edges, id)
		f.S0 = append(f.S0, s.S0[i])
		f.S1 = append(f.S1, s.S1[i])
		f.S2 = append(f.S2, s.S2[i])
		f.S3 = append(f.S3, s.S3[i])
		f.S4 = append(f.S4, s.S4[i])
	}
	return f
}

// PhiTerms returns the missing/non-missing event counts that feed the
// φ closed-form update (§4.5), factored out of UpdatePhi so that
// several independent topologies sharing one φ (§4.7 "State") can pool
// their counts before applying the same snap-to-zero rule.
func PhiTerms(t *tree.Tree, data *matrix.Matrix) (r, rTilde float64) {
	k := t.NumSites()
	for _, id := range t.Leaves() {
		n := t.Node(id)
		for site := 0; site < k; site++ {
			if data.Obs(n.Label(), site) != matrix.Missing {
				r++
				continue
			}
			rTilde += -math.Expm1(n.Site(site).Post1)
		}
	}
	return r, rTilde
}

// phiFromTerms applies the §4.5 closed-form and the snap-to-zero rule
// (threshold 1/resolution) to pooled r/rTilde counts.
func phiFromTerms(r, rTilde float64, resolution int) float64 {
	if r+rTilde == 0 {
		return 0
	}
	phi := rTilde / (r + rTilde)
	if math.Abs(phi) < 1/float64(resolution) {
		return 0
	}
	return phi
}

// UpdatePhi computes the closed-form dropout update (§4.5 "φ
// closed-form"), snapping to 0 when the estimate is smaller than the
// resolution 1/(K·|leaves|).
func UpdatePhi(t *tree.Tree, data *matrix.Matrix) float64 {
	r, rTilde := PhiTerms(t, data)
	return phiFromTerms(r, rTilde, t.NumSites()*len(t.Leaves()))
}

// UpdatePhiJoint computes the pooled closed-form dropout update over
// several independent topologies that share one φ (§4.7 "State":
// "supports joint inference over several independent samples sharing
// ν, φ, Q"). trees and datas are parallel slices, one matrix per
// topology.
func UpdatePhiJoint(trees []*tree.Tree, datas []*matrix.Matrix) float64 {
	var sumR, sumRTilde float64
	var resolution int
	for i, t := range trees {
		r, rTilde := PhiTerms(t, datas[i])
		sumR += r
		sumRTilde += rTilde
		resolution += t.NumSites() * len(t.Leaves())
	}
	return phiFromTerms(sumR, sumRTilde, resolution)
}

// objectiveTerm evaluates a single edge's contribution to F(d) (§4.5),
// gating the S2/S4 terms on ν > EpsNu as the branch-length
// sub-problem does.
func objectiveTerm(nu, d, s0, s1, s2, s3, s4 float64) float64 {
	v := -(nu+1)*s0*d + s1*(log1mExpNeg(d)-nu*d) - nu*s3*d
	if nu > EpsNu {
		if s2 > 0 {
			v += s2 * log1mExpNeg(nu*d)
		}
		if s4 > 0 {
			v += s4 * log1mExpNeg(nu*d)
		}
	}
	return v
}

func log1mExpNeg(x float64) float64 {
	if x <= 0 {
		return -1e10
	}
	v := -math.Expm1(-x)
	if v <= 0 {
		return -1e10
	}
	return math.Log(v)
}

// sigmoid maps R onto (lo, hi), the reparameterization used to turn
// the box-constrained branch-length/ν maximizations into unconstrained
// problems solvable by gonum/optimize (Design Notes §9 "Convex
// solver").
func sigmoid(x, lo, hi float64) float64 {
	return lo + (hi-lo)/(1+math.Exp(-x))
}

func invSigmoid(y, lo, hi float64) float64 {
	t := (y - lo) / (hi - lo)
	t = math.Max(1e-9, math.Min(1-1e-9, t))
	return math.Log(t / (1 - t))
}

// OptimizeBranchLengths maximizes F(d) over the renormalized per-edge
// statistics, given a fixed ν, subject to d ∈ [dmin, dmax] and, when
// ultra is non-nil, the linear ultrametric constraint enforced as a
// quadratic penalty (SPEC_FULL.md "ultrametric constraint"). It
// returns the optimized lengths (same order as stats.Edges) and a
// Status.
func OptimizeBranchLengths(stats Stats, nu float64, dmin, dmax float64, ultra *Ultrametric) ([]float64, Status) {
	n := len(stats.Edges)
	if n == 0 {
		return nil, Optimal
	}
	x0 := make([]float64, n)
	for i := range x0 {
		x0[i] = invSigmoid(0.1, dmin, dmax)
	}

	neg := func(x []float64) float64 {
		d := make([]float64, n)
		for i, xi := range x {
			d[i] = sigmoid(xi, dmin, dmax)
		}
		var f float64
		for i := range d {
			f += objectiveTerm(nu, d[i], stats.S0[i], stats.S1[i], stats.S2[i], stats.S3[i], stats.S4[i])
		}
		if ultra != nil {
			pen := ultra.penalty(stats.Edges, d)
			f -= pen
		}
		return -f
	}

	p := optimize.Problem{Func: neg}
	res, err := optimize.Minimize(p, x0, &optimize.Settings{MajorIterations: 500}, &optimize.NelderMead{})
	if err != nil || res == nil {
		return nil, NonOptimal
	}
	d := make([]float64, n)
	for i, xi := range res.X {
		d[i] = math.Max(dmin, math.Min(dmax, sigmoid(xi, dmin, dmax)))
	}
	if ultra != nil && ultra.penalty(stats.Edges, d) > ultra.tolerance*float64(n) {
		return d, NonOptimal
	}
	return d, Optimal
}

// OptimizeNu maximizes F(ν) over the renormalized statistics, given
// fixed branch lengths d (indexed the same way as stats.Edges),
// subject to ν ∈ [eps, nuMax].
func OptimizeNu(stats Stats, d []float64, eps, nuMax float64) (float64, Status) {
	n := len(stats.Edges)
	if n == 0 {
		return eps, Optimal
	}
	neg := func(x []float64) float64 {
		nu := sigmoid(x[0], eps, nuMax)
		var f float64
		for i := range d {
			f += objectiveNuTerm(nu, d[i], stats.S0[i], stats.S1[i], stats.S2[i], stats.S3[i], stats.S4[i])
		}
		return -f
	}
	p := optimize.Problem{Func: neg}
	x0 := []float64{invSigmoid(0.1, eps, nuMax)}
	res, err := optimize.Minimize(p, x0, &optimize.Settings{MajorIterations: 300}, &optimize.NelderMead{})
	if err != nil || res == nil {
		return 0, NonOptimal
	}
	nu := math.Max(eps, math.Min(nuMax, sigmoid(res.X[0], eps, nuMax)))
	return nu, Optimal
}

// objectiveNuTerm mirrors objectiveTerm but gates the S2/S4 terms only
// on the statistic being positive (no EpsNu gate), matching the
// source's __optimize_nu__ sub-problem.
func objectiveNuTerm(nu, d, s0, s1, s2, s3, s4 float64) float64 {
	v := -(nu+1)*s0*d + s1*(log1mExpNeg(d)-nu*d) - nu*s3*d
	if s2 > 0 {
		v += s2 * log1mExpNeg(nu*d)
	}
	if s4 > 0 {
		v += s4 * log1mExpNeg(nu*d)
	}
	return v
}
