// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package tree

// An AlphaKind is one of the three cases the inside/outside DP
// distinguishes for a node's character state at a given site (Design
// Notes §9: "α as a tagged variant"). It replaces the prose spec's
// string sentinels ('z', '?') to rule out a class of comparison bugs.
type AlphaKind uint8

const (
	// Silent marks a node whose site has already been forced into a
	// mixture incompatible with a single mutated target (the prose
	// spec's 'z').
	Silent AlphaKind = iota
	// Masked marks a node whose site is unobserved below it (the
	// prose spec's '?').
	Masked
	// Edited marks a node whose site has, along every path below it,
	// mutated to the same concrete state.
	Edited
)

// AlphaTag is the per-site, per-node α annotation of §3/§4.1.
type AlphaTag struct {
	Kind  AlphaKind
	State int // valid only when Kind == Edited
}

// Z is the Silent tag.
func Z() AlphaTag { return AlphaTag{Kind: Silent} }

// Question is the Masked tag.
func Question() AlphaTag { return AlphaTag{Kind: Masked} }

// EditedTo is the Edited(state) tag.
func EditedTo(state int) AlphaTag { return AlphaTag{Kind: Edited, State: state} }

// Equal reports whether two tags represent the same α value.
func (a AlphaTag) Equal(b AlphaTag) bool {
	if a.Kind != b.Kind {
		return false
	}
	return a.Kind != Edited || a.State == b.State
}

// String renders the tag using the prose spec's sentinels, useful for
// debugging and checkpoint logs.
func (a AlphaTag) String() string {
	switch a.Kind {
	case Silent:
		return "z"
	case Masked:
		return "?"
	default:
		return itoa(a.State)
	}
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// A SiteState is the fixed per-node, per-site annotation block
// (Design Notes §9), overwritten each E-step/M-step.
type SiteState struct {
	Alpha AlphaTag

	// L0, L1 are the inside log-likelihoods (§4.2).
	L0, L1 float64

	// Out0, Out1 are the outside log-likelihoods (§4.3).
	Out0, Out1 float64

	// A, X are the auxiliary outside quantities (§4.3).
	A, X float64

	// OutAlpha is the sparse out_α map, keyed by concrete mutated
	// state, populated lazily by the upward-then-downward fill
	// (§4.3).
	OutAlpha map[int]float64

	// Post0, Post1 are the posterior log-probabilities (§4.4).
	Post0, Post1 float64

	// S0..S4 are the sufficient statistics for the M-step (§4.4),
	// stored in linear space.
	S0, S1, S2, S3, S4 float64
}

// MinLLH is the sentinel substituted for log(0) (§4.2 "Numerical
// policy"). It is a large, finite negative number rather than
// -Inf so that log-sum-exp arithmetic downstream never produces NaN
// from Inf - Inf.
const MinLLH = -1e10
