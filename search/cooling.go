// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package search

import (
	"math"
	"math/rand"
)

// Cooldown default constants (§4.7 "Acceptance").
const (
	DefaultTCooldown = 20
	DefaultAlpha     = 0.9
)

// coolingConstants solves for a, b such that T(0) ≈ 1 and
// T(T_cooldown) ≈ 0 (§4.7).
func coolingConstants(tCooldown int, alpha float64) (a, b float64) {
	b = 1 / (1 - 1/math.Pow(alpha, float64(tCooldown)))
	a = -b / math.Pow(alpha, float64(tCooldown))
	return a, b
}

// Temperature computes T(t) = max(1e-12, a·α^t + b) for the Metropolis
// acceptance rule.
func Temperature(t int, tCooldown int, alpha float64) float64 {
	a, b := coolingConstants(tCooldown, alpha)
	v := a*math.Pow(alpha, float64(t)) + b
	if v < 1e-12 {
		v = 1e-12
	}
	return v
}

// Accept applies the §4.7 Metropolis rule: accept if newScore >=
// currScore; otherwise accept with probability
// min(1, exp((newScore-currScore)/T(t))). Scores are log-likelihoods
// (higher is better).
func Accept(rng *rand.Rand, currScore, newScore float64, t, tCooldown int, alpha float64) bool {
	if newScore >= currScore {
		return true
	}
	T := Temperature(t, tCooldown, alpha)
	p := math.Exp((newScore - currScore) / T)
	if p > 1 {
		p = 1
	}
	return rng.Float64() < p
}
