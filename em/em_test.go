// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package em_test

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

func quartet(t *testing.T) (*tree.Tree, *matrix.Matrix, *prior.Prior) {
	t.Helper()
	tr, err := tree.ReadNewick("quartet", strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := matrix.New(1)
	m.Add("A", []int{1})
	m.Add("B", []int{1})
	m.Add("C", []int{1})
	m.Add("D", []int{0})
	tr.InitSites(1)
	tr.Partition(0, m.Column(0))
	pr := prior.Uniform(m)
	return tr, m, pr
}

func TestRandomInitWithinBounds(t *testing.T) {
	tr, _, _ := quartet(t)
	opts := em.DefaultOptions()
	rng := rand.New(rand.NewSource(1))

	em.RandomInit(tr, rng, opts, nil, nil)
	for _, id := range tr.Preorder() {
		if tr.IsRoot(id) {
			continue
		}
		l := tr.Node(id).Length()
		if l < tree.MinLength || l > tree.MaxLength {
			t.Errorf("node %d: length %g out of bounds", id, l)
		}
	}
}

func TestRandomInitRespectsFixedParams(t *testing.T) {
	tr, _, _ := quartet(t)
	opts := em.DefaultOptions()
	rng := rand.New(rand.NewSource(1))

	nu, phi := 0.0, 0.0
	p := em.RandomInit(tr, rng, opts, &nu, &phi)
	if p.Nu != 0 || p.Phi != 0 {
		t.Errorf("fixed nu/phi not respected: got nu=%g phi=%g", p.Nu, p.Phi)
	}
}

func TestRunConverges(t *testing.T) {
	tr, data, pr := quartet(t)
	for _, id := range tr.Preorder() {
		if !tr.IsRoot(id) {
			tr.SetLength(id, 0.3)
		}
	}
	opts := em.DefaultOptions()
	opts.MaxIter = 25

	pre := likelihood.Inside(tr, pr, likelihood.Params{Nu: 0.1, Phi: 0.05}, nil)

	res := em.Run(tr, data, pr, likelihood.Params{Nu: 0.1, Phi: 0.05}, opts)
	if res == nil {
		t.Fatalf("EM run failed")
	}
	if res.LogLike < pre-1e-6 {
		t.Errorf("EM should not decrease the log-likelihood: got %g, started at %g", res.LogLike, pre)
	}
}

func TestMultiStartReturnsAResult(t *testing.T) {
	tr, data, pr := quartet(t)
	opts := em.DefaultOptions()
	opts.MaxIter = 10

	res := em.MultiStart(tr, data, pr, opts, 3, 1, 7, nil, nil)
	if res == nil {
		t.Fatalf("MultiStart failed to converge from every initial point")
	}
	if res.LogLike > 0 {
		t.Errorf("log-likelihood should never be positive: got %g", res.LogLike)
	}
}

// TestRunJointSharesParameters exercises the §4.7 "State" joint driver:
// two independent quartets sharing one ν/φ.
func TestRunJointSharesParameters(t *testing.T) {
	tr1, data1, pr := quartet(t)
	tr2, data2, _ := quartet(t)
	for _, id := range tr1.Preorder() {
		if !tr1.IsRoot(id) {
			tr1.SetLength(id, 0.3)
		}
	}
	for _, id := range tr2.Preorder() {
		if !tr2.IsRoot(id) {
			tr2.SetLength(id, 0.3)
		}
	}
	trees := []*tree.Tree{tr1, tr2}
	datas := []*matrix.Matrix{data1, data2}

	opts := em.DefaultOptions()
	opts.MaxIter = 25

	res := em.RunJoint(trees, datas, pr, likelihood.Params{Nu: 0.1, Phi: 0.05}, opts)
	if res == nil {
		t.Fatalf("joint EM run failed")
	}
	if res.LogLike > 0 {
		t.Errorf("summed log-likelihood should never be positive: got %g", res.LogLike)
	}
}

func TestMultiStartJointReturnsAResult(t *testing.T) {
	tr1, data1, pr := quartet(t)
	tr2, data2, _ := quartet(t)
	trees := []*tree.Tree{tr1, tr2}
	datas := []*matrix.Matrix{data1, data2}

	opts := em.DefaultOptions()
	opts.MaxIter = 10

	res := em.MultiStartJoint(trees, datas, pr, opts, 3, 1, 11, nil, nil)
	if res == nil {
		t.Fatalf("MultiStartJoint failed to converge from every initial point")
	}
	if res.LogLike > 0 {
		t.Errorf("summed log-likelihood should never be positive: got %g", res.LogLike)
	}
}
