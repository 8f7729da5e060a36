// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"math"

	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

// Outside runs the preorder outside recursion (§4.3 "E-step-out") over
// every site of t, filling each node's Out0/Out1/A/X/OutAlpha. Inside
// must already have been run on t.
func Outside(t *tree.Tree, pr *prior.Prior, params Params) {
	k := t.NumSites()
	for _, id := range t.Preorder() {
		n := t.Node(id)
		for site := 0; site < k; site++ {
			outsideSite(t, n, site, pr, params)
		}
	}
}

func outsideSite(t *tree.Tree, v *tree.Node, site int, pr *prior.Prior, params Params) {
	nu := params.Nu
	st := v.Site(site)
	st.OutAlpha = nil

	if t.IsRoot(v.ID()) {
		l := v.Length()
		st.A = 0
		if nu*l > 0 {
			st.X = -nu*l + log1mExpNeg(l)
		} else {
			st.X = tree.MinLLH
		}
		st.Out0 = -(1 + nu) * l
		if nu*l > 0 {
			st.Out1 = log1mExpNeg(nu * l)
		} else {
			st.Out1 = tree.MinLLH
		}
		return
	}

	u := t.Node(t.Parent(v.ID()))
	w := t.Node(t.Sibling(v.ID()))
	us := u.Site(site)
	ws := w.Site(site)
	l := v.Length()

	st.Out0 = us.Out0 + ws.L0 - (1+nu)*l
	st.A = us.Out0 + ws.L0
	if l > 0 {
		st.X = -nu*l + log1mExpNeg(l) + st.A
	} else {
		st.X = tree.MinLLH
	}

	switch ws.Alpha.Kind {
	case tree.Silent:
		if nu*l > 0 {
			st.Out1 = log1mExpNeg(nu*l) + st.A
		} else {
			st.Out1 = tree.MinLLH
		}
	case tree.Masked:
		st.X = lse(st.X, us.X+ws.L1-nu*l)
		p := -math.Expm1(-nu * l)
		pl := log0(p)
		if nu == 0 {
			st.Out1 = us.Out1
		} else {
			st.Out1 = lse(pl+st.A, pl+us.X+ws.L1, us.Out1)
		}
	default: // Edited
		alpha0 := ws.Alpha.State
		if us.OutAlpha == nil || !hasOutAlpha(us, alpha0) {
			outAlphaUp(t, u, site, alpha0, pr, params)
		}
		b := outAlphaVal(us, alpha0) + nu*(-l) + ws.L1
		var c float64
		if l > 0 && pr.Prob(site, alpha0) > 0 {
			c = st.A - nu*l + log1mExpNeg(l) + math.Log(pr.Prob(site, alpha0))
		} else {
			c = tree.MinLLH
		}
		setOutAlpha(st, alpha0, lse(b, c))
		st.X = lse(st.X, b)
		if nu*l > 0 {
			st.Out1 = log1mExpNeg(nu*l) + lse(st.A, ws.L1+outAlphaVal(us, alpha0))
		} else {
			st.Out1 = tree.MinLLH
		}
	}
}

func hasOutAlpha(st *tree.SiteState, alpha0 int) bool {
	_, ok := st.OutAlpha[alpha0]
	return ok
}

func outAlphaVal(st *tree.SiteState, alpha0 int) float64 {
	return st.OutAlpha[alpha0]
}

func setOutAlpha(st *tree.SiteState, alpha0 int, v float64) {
	if st.OutAlpha == nil {
		st.OutAlpha = make(map[int]float64)
	}
	st.OutAlpha[alpha0] = v
}

// outAlphaUp fills node.OutAlpha[alpha0] for node itself and every
// ancestor up to the nearest z-boundary or the root (inclusive), by
// first walking up to find the boundary value then walking back down
// (§4.3 "Upward-then-downward out_alpha fill").
func outAlphaUp(t *tree.Tree, node *tree.Node, site int, alpha0 int, pr *prior.Prior, params Params) {
	nu := params.Nu
	v := node
	var path []*tree.Node
	for !t.IsRoot(v.ID()) {
		u := t.Node(t.Parent(v.ID()))
		w := t.Node(t.Sibling(v.ID()))
		ws := w.Site(site)
		if ws.Alpha.Kind != tree.Masked && !(ws.Alpha.Kind == tree.Edited && ws.Alpha.State == alpha0) {
			vs := v.Site(site)
			l := v.Length()
			if l > 0 && pr.Prob(site, alpha0) > 0 {
				setOutAlpha(vs, alpha0, vs.A-nu*l+log1mExpNeg(l)+math.Log(pr.Prob(site, alpha0)))
			} else {
				setOutAlpha(vs, alpha0, tree.MinLLH)
			}
			break
		}
		path = append(path, v)
		v = u
	}
	if t.IsRoot(v.ID()) {
		vs := v.Site(site)
		l := v.Length()
		if _, ok := vs.OutAlpha[alpha0]; !ok {
			if l > 0 && pr.Prob(site, alpha0) > 0 {
				setOutAlpha(vs, alpha0, -nu*l+log1mExpNeg(l)+math.Log(pr.Prob(site, alpha0)))
			} else {
				setOutAlpha(vs, alpha0, tree.MinLLH)
			}
		}
	}
	for i := len(path) - 1; i >= 0; i-- {
		v := path[i]
		u := t.Node(t.Parent(v.ID()))
		w := t.Node(t.Sibling(v.ID()))
		vs := v.Site(site)
		us := u.Site(site)
		ws := w.Site(site)
		l := v.Length()
		b := outAlphaVal(us, alpha0) + nu*(-l) + ws.L1
		var c float64
		if l > 0 && pr.Prob(site, alpha0) > 0 {
			c = vs.A - nu*l + log1mExpNeg(l) + math.Log(pr.Prob(site, alpha0))
		} else {
			c = tree.MinLLH
		}
		setOutAlpha(vs, alpha0, lse(b, c))
	}
}
