// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package matrix_test

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/js-arias/laml/matrix"
)

func TestReadTSV(t *testing.T) {
	content := "cell_name\tsite0\tsite1\tsite2\n" +
		"A\t0\t1\t?\n" +
		"B\t1\t-\t2\n"

	dir := t.TempDir()
	name := filepath.Join(dir, "chars.txt")
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test fixture: %v", err)
	}

	m, err := matrix.Read(name, "\t", "?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.NumSites(); got != 3 {
		t.Errorf("sites: got %d, want 3", got)
	}
	if got := m.Cells(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("cells: got %v, want [A B]", got)
	}
	if got := m.Row("A"); !reflect.DeepEqual(got, []int{0, 1, matrix.Missing}) {
		t.Errorf("row A: got %v, want [0 1 missing]", got)
	}
	if got := m.Row("B"); !reflect.DeepEqual(got, []int{1, matrix.Missing, 2}) {
		t.Errorf("row B: got %v, want [1 missing 2]", got)
	}
}

func TestReadTSVCustomMasked(t *testing.T) {
	content := "cell_name\tsite0\tsite1\n" +
		"A\t0\tX\n" +
		"B\t1\t0\n"

	dir := t.TempDir()
	name := filepath.Join(dir, "chars.txt")
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test fixture: %v", err)
	}

	m, err := matrix.Read(name, "\t", "X")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Row("A"); !reflect.DeepEqual(got, []int{0, matrix.Missing}) {
		t.Errorf("row A: got %v, want [0 missing]", got)
	}
}

func TestColumn(t *testing.T) {
	m := matrix.New(2)
	m.Add("A", []int{1, 0})
	m.Add("B", []int{0, matrix.Missing})

	col := m.Column(1)
	want := map[string]int{"A": 0, "B": matrix.Missing}
	if !reflect.DeepEqual(col, want) {
		t.Errorf("column 1: got %v, want %v", col, want)
	}
}

func TestAlphabet(t *testing.T) {
	m := matrix.New(1)
	m.Add("A", []int{3})
	m.Add("B", []int{1})
	m.Add("C", []int{0})
	m.Add("D", []int{matrix.Missing})

	got := m.Alphabet(0)
	want := []int{1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("alphabet: got %v, want %v", got, want)
	}
}

func TestAddPanicsOnLengthMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected a panic on mismatched observation length")
		}
	}()
	m := matrix.New(2)
	m.Add("A", []int{1})
}

func TestJSONRoundTrip(t *testing.T) {
	m := matrix.New(2)
	m.Add("A", []int{1, matrix.Missing})
	m.Add("B", []int{0, 2})

	var buf bytes.Buffer
	if err := m.WriteJSON(&buf); err != nil {
		t.Fatalf("writing json: %v", err)
	}

	dir := t.TempDir()
	name := filepath.Join(dir, "chars.json")
	if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing test fixture: %v", err)
	}

	got, err := matrix.ReadJSON(name)
	if err != nil {
		t.Fatalf("reading json: %v", err)
	}
	if got.NumSites() != m.NumSites() {
		t.Errorf("sites: got %d, want %d", got.NumSites(), m.NumSites())
	}
	if !reflect.DeepEqual(got.Row("A"), m.Row("A")) {
		t.Errorf("row A: got %v, want %v", got.Row("A"), m.Row("A"))
	}
	if !reflect.DeepEqual(got.Row("B"), m.Row("B")) {
		t.Errorf("row B: got %v, want %v", got.Row("B"), m.Row("B"))
	}
}
