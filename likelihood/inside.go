// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"math"

	"github.com/js-arias/laml/cache"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

// Inside runs the postorder inside recursion (§4.2 "E-step-in") over
// every site of t, filling each node's L0/L1. t must already carry an
// up-to-date α-partition (tree.Tree.Partition) for every site. It
// returns the total log-likelihood, the sum over sites of the root's
// L0.
//
// c is the compute cache (C9, §4.8): for every internal node whose
// leaf-set key is already present in c, the cached L0/L1 are copied in
// place of recomputing that node (its descendants are still visited by
// the postorder loop), on the assumption that nothing
// inside that subtree (branch lengths, α-partition) changed since it
// was cached — the caller is responsible for invalidating the right
// entries (cache.Invalidate) whenever that assumption breaks. c may be
// nil, meaning no caching; Inside then always recomputes, identically
// to a cache miss on every node.
func Inside(t *tree.Tree, pr *prior.Prior, params Params, c *cache.Cache) float64 {
	k := t.NumSites()
	for _, id := range t.Postorder() {
		n := t.Node(id)
		if !n.IsLeaf() {
			if e, ok := c.Get(cache.Key(t, id)); ok && len(e.L0) == k {
				for site := 0; site < k; site++ {
					st := n.Site(site)
					st.L0, st.L1 = e.L0[site], e.L1[site]
				}
				continue
			}
		}

		p := math.Exp(-n.Length())
		for site := 0; site < k; site++ {
			insideSite(t, n, site, p, pr, params)
		}

		if !n.IsLeaf() {
			l0 := make([]float64, k)
			l1 := make([]float64, k)
			for site := 0; site < k; site++ {
				st := n.Site(site)
				l0[site], l1[site] = st.L0, st.L1
			}
			c.Put(cache.Key(t, id), l0, l1)
		}
	}
	root := t.Node(t.Root())
	var total float64
	for site := 0; site < k; site++ {
		total += root.Site(site).L0
	}
	return total
}

func insideSite(t *tree.Tree, n *tree.Node, site int, p float64, pr *prior.Prior, params Params) {
	st := n.Site(site)
	alpha := st.Alpha
	nu, phi := params.Nu, params.Phi

	var q float64
	if alpha.Kind == tree.Edited {
		q = pr.Prob(site, alpha.State)
	}

	if n.IsLeaf() {
		switch alpha.Kind {
		case tree.Masked:
			v := 1 - (1-phi)*math.Pow(p, nu)
			st.L0 = log0(v)
			st.L1 = st.L0
		case tree.Silent:
			v := 1 - phi
			st.L0 = (nu+1)*(-n.Length()) + log0(v)
			st.L1 = tree.MinLLH
		default: // Edited
			l0v := (1 - p) * q * (1 - phi)
			if l0v > 0 {
				st.L0 = nu*(-n.Length()) + math.Log(1-p) + math.Log(q) + math.Log(1-phi)
			} else {
				st.L0 = tree.MinLLH
			}
			if 1-phi > 0 {
				st.L1 = nu*(-n.Length()) + math.Log(1-phi)
			} else {
				st.L1 = tree.MinLLH
			}
		}
		return
	}

	c0, c1 := t.Children(n.ID())
	s0 := t.Node(c0).Site(site)
	s1 := t.Node(c1).Site(site)
	sum0 := s0.L0 + s1.L0
	sum1 := s0.L1 + s1.L1

	terms := []float64{sum0 + (nu+1)*(-n.Length())}
	if alpha.Kind != tree.Silent && q*(1-p) > 0 {
		terms = append(terms, sum1+math.Log(1-p)+math.Log(q)+nu*(-n.Length()))
	}
	maskedTerm := 1 - math.Pow(p, nu)
	if alpha.Kind == tree.Masked && maskedTerm > 0 {
		terms = append(terms, math.Log(maskedTerm))
	}
	st.L0 = lse(terms...)

	switch {
	case alpha.Kind == tree.Silent:
		st.L1 = tree.MinLLH
	case alpha.Kind != tree.Masked || nu == 0 || p == 1:
		st.L1 = sum1 + nu*(-n.Length())
	default:
		st.L1 = lse(sum1+nu*(-n.Length()), log0(maskedTerm))
	}
}
