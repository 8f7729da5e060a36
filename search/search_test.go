// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package search

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

func closeEnough(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestTemperatureCoolsToZero(t *testing.T) {
	t0 := Temperature(0, DefaultTCooldown, DefaultAlpha)
	if !closeEnough(t0, 1, 1e-6) {
		t.Errorf("T(0): got %g, want ~1", t0)
	}
	tEnd := Temperature(DefaultTCooldown, DefaultTCooldown, DefaultAlpha)
	if tEnd > t0 {
		t.Errorf("temperature should decrease over the cooldown window: T(0)=%g, T(cooldown)=%g", t0, tEnd)
	}
}

func TestAcceptAlwaysAcceptsImprovement(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if !Accept(rng, -10, -5, 0, DefaultTCooldown, DefaultAlpha) {
		t.Errorf("a strictly better score must always be accepted")
	}
	if !Accept(rng, -10, -10, 0, DefaultTCooldown, DefaultAlpha) {
		t.Errorf("an equal score must be accepted (>= rule)")
	}
}

func TestAcceptRejectsWorseAtZeroTemperature(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	// far past the cooldown window the temperature floors near 0, so a
	// worse score should essentially never be accepted.
	if Accept(rng, -5, -10, 10*DefaultTCooldown, DefaultTCooldown, DefaultAlpha) {
		t.Errorf("a worse score at near-zero temperature should not be accepted")
	}
}

func TestLocalFreeEdges(t *testing.T) {
	tr, err := tree.ReadNewick("local", strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	root := tr.Root()
	u, _ := tr.Children(root)

	free := localFreeEdges(tr, u)
	if !free[u] {
		t.Errorf("u itself must be free")
	}
	w := tr.Sibling(u)
	if !free[w] {
		t.Errorf("u's sibling must be free")
	}
	c0, c1 := tr.Children(u)
	if !free[c0] || !free[c1] {
		t.Errorf("u's children must be free")
	}
}

func TestRunJointOnTwoQuartets(t *testing.T) {
	nwk := "((A:1,B:1):1,(C:1,D:1):1);"
	tr1, err := tree.ReadNewick("quartet1", strings.NewReader(nwk))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr2, err := tree.ReadNewick("quartet2", strings.NewReader(nwk))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	build := func() *matrix.Matrix {
		m := matrix.New(2)
		m.Add("A", []int{1, 2})
		m.Add("B", []int{1, 0})
		m.Add("C", []int{0, 2})
		m.Add("D", []int{0, 0})
		return m
	}
	m1, m2 := build(), build()
	tr1.InitSites(2)
	tr2.InitSites(2)
	pr := prior.Uniform(m1)

	trees := []*tree.Tree{tr1, tr2}
	datas := []*matrix.Matrix{m1, m2}

	strat := DefaultStrategy()
	strat.MaxIter = 3
	strat.Initials = 2
	strat.MaxTrials = 1

	opts := em.DefaultOptions()
	opts.MaxIter = 15

	rng := rand.New(rand.NewSource(5))
	res := RunJoint(trees, datas, pr, strat, opts, rng, nil)
	if math.IsNaN(res.Score) {
		t.Fatalf("joint search result score is NaN")
	}
	if res.Score > 0 {
		t.Errorf("summed log-likelihood should never be positive: got %g", res.Score)
	}
}

func TestRunOnQuartet(t *testing.T) {
	tr, err := tree.ReadNewick("quartet", strings.NewReader("((A:1,B:1):1,(C:1,D:1):1);"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := matrix.New(2)
	m.Add("A", []int{1, 2})
	m.Add("B", []int{1, 0})
	m.Add("C", []int{0, 2})
	m.Add("D", []int{0, 0})
	tr.InitSites(2)
	pr := prior.Uniform(m)

	strat := DefaultStrategy()
	strat.MaxIter = 3
	strat.Initials = 2
	strat.MaxTrials = 1

	opts := em.DefaultOptions()
	opts.MaxIter = 15

	rng := rand.New(rand.NewSource(3))
	res := Run(tr, m, pr, strat, opts, rng, nil)
	if math.IsNaN(res.Score) {
		t.Fatalf("search result score is NaN")
	}
	if res.Score > 0 {
		t.Errorf("log-likelihood should never be positive: got %g", res.Score)
	}
}
