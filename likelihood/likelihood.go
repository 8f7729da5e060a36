// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package likelihood implements the inside/outside dynamic-programming
// engine (§4.2-§4.4) that scores a tree's per-site log-likelihood and
// produces the posteriors and sufficient statistics consumed by the
// M-step.
package likelihood

import (
	"math"

	"github.com/js-arias/laml/tree"
)

// Params holds the two global model parameters shared across all
// sites and the whole tree (§3 "Global parameters").
type Params struct {
	Nu  float64 // silencing rate ν ∈ [ε, 10]
	Phi float64 // dropout rate φ ∈ [ε, 0.99]
}

// epsNu is the threshold below which ν is treated as exactly zero in
// the S2/S4 indicator terms of §4.5.
const epsNu = 1e-9

// lse is the log-sum-exp reduction of §4.2 "Numerical policy":
// lse(x1..xn) = m + log(sum(exp(xi - m))), m = max(xi). Any
// tree.MinLLH operand is treated as -Inf.
func lse(xs ...float64) float64 {
	m := tree.MinLLH
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	if m <= tree.MinLLH {
		return tree.MinLLH
	}
	var sum float64
	for _, x := range xs {
		if x <= tree.MinLLH {
			continue
		}
		sum += math.Exp(x - m)
	}
	if sum <= 0 {
		return tree.MinLLH
	}
	return m + math.Log(sum)
}

// log0 is log(v) with v <= 0 substituted by tree.MinLLH, per the
// numerical policy.
func log0(v float64) float64 {
	if v <= 0 {
		return tree.MinLLH
	}
	return math.Log(v)
}

// log1mExpNeg returns log(1 - exp(-x)) for x >= 0, the recurring
// "not-yet-silenced/not-yet-dropped" term, substituting tree.MinLLH
// when x is (numerically) zero.
func log1mExpNeg(x float64) float64 {
	if x <= 0 {
		return tree.MinLLH
	}
	// 1 - exp(-x) is numerically safer through math.Expm1 for small x.
	return log0(-math.Expm1(-x))
}
