// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package likelihood

import (
	"math"

	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/tree"
)

// epsS floors a sufficient-statistic row before the M-step renormalizes
// it, avoiding an all-zero row (§4.5 "eps-floored").
const epsS = 1e-6

// Posteriors runs the postorder-independent posterior and
// sufficient-statistic pass (§4.4 "Posteriors and sufficient
// statistics") over every site of t. Inside and Outside must already
// have been run. data supplies each leaf's raw observation (needed
// only to distinguish an unedited 0 from a masked '?' at a leaf).
func Posteriors(t *tree.Tree, data *matrix.Matrix, params Params) {
	k := t.NumSites()
	full := make([]float64, k)
	root := t.Node(t.Root())
	for site := 0; site < k; site++ {
		full[site] = root.Site(site).L0
	}
	for _, id := range t.Preorder() {
		n := t.Node(id)
		for site := 0; site < k; site++ {
			posteriorSite(t, n, site, data, full[site], params)
		}
	}
}

func posteriorSite(t *tree.Tree, v *tree.Node, site int, data *matrix.Matrix, full float64, params Params) {
	nu := params.Nu
	st := v.Site(site)

	var vIn1 float64
	hasIn1 := st.Alpha.Kind == tree.Masked
	if hasIn1 {
		vIn1 = 0
	}

	var vIn0 float64
	if v.IsLeaf() {
		c := data.Obs(v.Label(), site)
		switch {
		case c == 0:
			vIn0 = math.Log(1 - params.Phi)
		case c == matrix.Missing && params.Phi > 0:
			vIn0 = math.Log(params.Phi)
		default:
			vIn0 = tree.MinLLH
		}
	} else {
		c0, c1 := t.Children(v.ID())
		vIn0 = t.Node(c0).Site(site).L0 + t.Node(c1).Site(site).L0
	}

	st.Post0 = vIn0 + st.Out0 - full
	if hasIn1 {
		st.Post1 = vIn1 + st.Out1 - full
	} else {
		st.Post1 = tree.MinLLH
	}

	l := v.Length()
	switch {
	case st.Alpha.Kind == tree.Silent:
		st.S0, st.S1, st.S2, st.S3, st.S4 = 1, 0, 0, 0, 0
	case t.IsRoot(v.ID()):
		st.S0 = math.Exp(vIn0 + (1+nu)*(-l) - st.L0)
		if st.Alpha.Kind != tree.Masked {
			st.S2 = 0
		} else {
			st.S2 = -math.Expm1(-nu*l) / math.Exp(st.L0)
		}
		st.S1 = 1 - st.S0 - st.S2
		st.S3, st.S4 = 0, 0
	default:
		u := t.Node(t.Parent(v.ID()))
		us := u.Site(site)
		st.S0 = math.Exp(us.Post0 + vIn0 + (1+nu)*(-l) - st.L0)
		if st.Alpha.Kind != tree.Masked {
			st.S2, st.S4 = 0, 0
		} else {
			st.S2 = math.Exp(us.Post0-st.L0) * (-math.Expm1(-nu * l))
			st.S4 = (-math.Expm1(us.Post0) - math.Exp(us.Post1)) * (-math.Expm1(-nu*l)) / math.Exp(st.L1)
		}
		st.S1 = math.Exp(us.Post0) - st.S0 - st.S2
		st.S3 = 1 - st.S0 - st.S1 - math.Exp(st.Post1)
	}
}
