// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package prior_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
)

func closeEnough(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestSetNormalizes(t *testing.T) {
	p := prior.New(1)
	p.Set(0, prior.Q{0: 5, 1: 2, 2: 2})

	if got := p.Prob(0, 0); got != 0 {
		t.Errorf("Q[0]: got %g, want 0", got)
	}
	if got := p.Prob(0, 1); !closeEnough(got, 0.5, 1e-9) {
		t.Errorf("Q[1]: got %g, want 0.5", got)
	}
	if got := p.Prob(0, 2); !closeEnough(got, 0.5, 1e-9) {
		t.Errorf("Q[2]: got %g, want 0.5", got)
	}

	states := p.States(0)
	if len(states) != 2 || states[0] != 1 || states[1] != 2 {
		t.Errorf("states: got %v, want [1 2]", states)
	}
}

func TestUniformFallback(t *testing.T) {
	m := matrix.New(1)
	m.Add("A", []int{0})
	m.Add("B", []int{0})

	p := prior.Uniform(m)
	if got := p.Prob(0, 1); got != 1 {
		t.Errorf("fallback pseudo-state: got %g, want 1", got)
	}
}

func TestUniformOverAlphabet(t *testing.T) {
	m := matrix.New(1)
	m.Add("A", []int{1})
	m.Add("B", []int{2})
	m.Add("C", []int{0})

	p := prior.Uniform(m)
	if got := p.Prob(0, 1); !closeEnough(got, 0.5, 1e-9) {
		t.Errorf("Q[1]: got %g, want 0.5", got)
	}
	if got := p.Prob(0, 2); !closeEnough(got, 0.5, 1e-9) {
		t.Errorf("Q[2]: got %g, want 0.5", got)
	}
}

func TestFillOnlyFillsEmptySites(t *testing.T) {
	m := matrix.New(2)
	m.Add("A", []int{1, 3})
	m.Add("B", []int{2, 3})

	p := prior.New(2)
	p.Set(0, prior.Q{1: 1})
	p.Fill(m)

	if got := p.Prob(0, 1); got != 1 {
		t.Errorf("site 0 must be left untouched: got %g, want 1", got)
	}
	if got := p.Prob(1, 3); got != 1 {
		t.Errorf("site 1 must be filled from the matrix alphabet: got %g, want 1", got)
	}
}

func TestReadCSV(t *testing.T) {
	content := "site,state,prob\n" +
		"0,1,0.25\n" +
		"0,2,0.75\n" +
		"1,1,1\n"

	dir := t.TempDir()
	name := filepath.Join(dir, "prior.csv")
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test fixture: %v", err)
	}

	p, err := prior.ReadCSV(name, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Prob(0, 1); !closeEnough(got, 0.25, 1e-9) {
		t.Errorf("Q[0][1]: got %g, want 0.25", got)
	}
	if got := p.Prob(0, 2); !closeEnough(got, 0.75, 1e-9) {
		t.Errorf("Q[0][2]: got %g, want 0.75", got)
	}
	if got := p.Prob(1, 1); got != 1 {
		t.Errorf("Q[1][1]: got %g, want 1", got)
	}
}

func TestReadKeywordUniform(t *testing.T) {
	m := matrix.New(1)
	m.Add("A", []int{1})
	m.Add("B", []int{0})

	p, err := prior.ReadKeyword("Uniform", m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := p.Prob(0, 1); got != 1 {
		t.Errorf("Q[0][1]: got %g, want 1", got)
	}

	if _, err := prior.ReadKeyword("bogus", m); err == nil {
		t.Errorf("expected an error for an unknown keyword")
	}
}
