// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package matrix implements reading and writing of lineage-tracing
// character matrices: one row per cell, one column per site, with
// integer mutated states, 0 for unedited, and a missing-data sentinel
// for dropped-out or silenced sites.
package matrix

import (
	"github.com/js-arias/laml/tree"
)

// Missing is the value used internally for an unobserved site.
const Missing = tree.Missing

// A Matrix is an ordered mapping from cell name to a fixed-length
// vector of per-site observations (§3 "Character matrix").
type Matrix struct {
	cells []string
	obs   map[string][]int
	sites int
}

// New creates an empty matrix with the given number of sites.
func New(sites int) *Matrix {
	return &Matrix{
		obs:   make(map[string][]int),
		sites: sites,
	}
}

// NumSites returns the number of sites (K).
func (m *Matrix) NumSites() int { return m.sites }

// Cells returns the cell names, in the order they were added.
func (m *Matrix) Cells() []string {
	cs := make([]string, len(m.cells))
	copy(cs, m.cells)
	return cs
}

// Add adds a cell with its per-site observations. obs must have length
// NumSites; it panics otherwise, mirroring the invariant that K is
// uniform across cells (§3).
func (m *Matrix) Add(cell string, obs []int) {
	if len(obs) != m.sites {
		panic("matrix: observation length does not match number of sites")
	}
	if _, ok := m.obs[cell]; !ok {
		m.cells = append(m.cells, cell)
	}
	cp := make([]int, len(obs))
	copy(cp, obs)
	m.obs[cell] = cp
}

// Obs returns the observation of a cell at a site.
func (m *Matrix) Obs(cell string, site int) int {
	return m.obs[cell][site]
}

// Row returns the full observation vector of a cell.
func (m *Matrix) Row(cell string) []int {
	row := m.obs[cell]
	cp := make([]int, len(row))
	copy(cp, row)
	return cp
}

// Column returns a map from cell name to observation at a single site,
// the shape consumed by tree.Tree.Partition (§4.1).
func (m *Matrix) Column(site int) map[string]int {
	col := make(map[string]int, len(m.cells))
	for _, c := range m.cells {
		col[c] = m.obs[c][site]
	}
	return col
}

// Alphabet returns the sorted distinct mutated (non-zero, non-missing)
// states observed at a site, used to build a uniform prior when no
// explicit one is supplied (§6 "Missing entries are filled from the
// character matrix").
func (m *Matrix) Alphabet(site int) []int {
	seen := make(map[int]bool)
	for _, c := range m.cells {
		v := m.obs[c][site]
		if v > 0 {
			seen[v] = true
		}
	}
	var states []int
	for v := range seen {
		states = append(states, v)
	}
	sortInts(states)
	return states
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
