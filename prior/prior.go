// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package prior implements the site-specific mutated-state prior Q
// used by the likelihood engine: an ordered sequence of per-site
// mappings from mutated state to probability (§3 "Prior Q").
package prior

import (
	"sort"

	"github.com/js-arias/laml/matrix"
)

// A Q is a per-site mapping from mutated state to probability. Q[0]
// is always 0; the remaining entries sum to 1.
type Q map[int]float64

// Prior holds one Q per site.
type Prior struct {
	q []Q
}

// New creates a Prior with k empty sites.
func New(k int) *Prior {
	return &Prior{q: make([]Q, k)}
}

// NumSites returns the number of sites (K).
func (p *Prior) NumSites() int { return len(p.q) }

// Set installs the prior mapping of a single site, normalizing it so
// that the mutated-state probabilities sum to 1 and forcing Q[k][0] to
// 0, per §3 "Implementation must normalize on load".
func (p *Prior) Set(site int, q Q) {
	nq := make(Q, len(q))
	var sum float64
	for s, v := range q {
		if s == 0 {
			continue
		}
		nq[s] = v
		sum += v
	}
	if sum > 0 {
		for s := range nq {
			nq[s] /= sum
		}
	}
	nq[0] = 0
	p.q[site] = nq
}

// Prob returns Q[site][state], or 0 if the state has no entry.
func (p *Prior) Prob(site, state int) float64 {
	if state == 0 {
		return 0
	}
	return p.q[site][state]
}

// States returns the sorted mutated states with a non-zero entry at a
// site.
func (p *Prior) States(site int) []int {
	q := p.q[site]
	states := make([]int, 0, len(q))
	for s := range q {
		if s != 0 {
			states = append(states, s)
		}
	}
	sort.Ints(states)
	return states
}

// Uniform builds a Prior from a character matrix by assigning uniform
// probability over the mutated states observed at each site (§6
// "Missing entries are filled from the character matrix by assigning
// uniform probability over observed mutated states").
func Uniform(m *matrix.Matrix) *Prior {
	p := New(m.NumSites())
	for k := 0; k < m.NumSites(); k++ {
		states := m.Alphabet(k)
		q := make(Q, len(states))
		if len(states) == 0 {
			// no mutated state observed at this site: fall back to a
			// single pseudo-state, mirroring generate_q's fallback.
			q[1] = 1
		} else {
			u := 1 / float64(len(states))
			for _, s := range states {
				q[s] = u
			}
		}
		p.Set(k, q)
	}
	return p
}

// Fill replaces any site with an empty Q (no mutated-state entry) by a
// uniform prior built from the observed alphabet of the character
// matrix at that site (§6 "Missing entries are filled from the
// character matrix").
func (p *Prior) Fill(m *matrix.Matrix) {
	for k := 0; k < p.NumSites(); k++ {
		if len(p.States(k)) > 0 {
			continue
		}
		states := m.Alphabet(k)
		q := make(Q, len(states))
		if len(states) == 0 {
			q[1] = 1
		} else {
			u := 1 / float64(len(states))
			for _, s := range states {
				q[s] = u
			}
		}
		p.Set(k, q)
	}
}
