// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package matrix

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Read reads a character matrix from a delimited text file: a header
// row starting with "cell_name" followed by one column per site, then
// one row per cell (§6 "Character matrix"). Tokens equal to "-", "?",
// "-1", any other negative integer, masked, or any non-numeric token
// are interpreted as missing.
func Read(name, delim, masked string) (*Matrix, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return read(f, delim, name, masked)
}

func splitter(delim string) func(string) []string {
	switch delim {
	case ",":
		return func(l string) []string { return strings.Split(l, ",") }
	case "\t", "":
		return func(l string) []string { return strings.Split(l, "\t") }
	default:
		return strings.Fields
	}
}

func read(r io.Reader, delim, name, masked string) (*Matrix, error) {
	split := splitter(delim)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, errors.Errorf("matrix: %q: empty file", name)
	}
	head := split(strings.TrimRight(sc.Text(), "\r\n"))
	if len(head) < 2 {
		return nil, errors.Errorf("matrix: %q: header: expecting at least one site column", name)
	}
	if strings.TrimSpace(head[0]) == "" {
		return nil, errors.Errorf("matrix: %q: header: expecting a cell name column", name)
	}
	sites := len(head) - 1

	m := New(sites)
	ln := 1
	for sc.Scan() {
		ln++
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		row := split(line)
		if len(row) != len(head) {
			return nil, errors.Errorf("matrix: %q: line %d: expecting %d fields, found %d", name, ln, len(head), len(row))
		}
		cell := row[0]
		obs := make([]int, sites)
		for i, tok := range row[1:] {
			obs[i] = parseObs(tok, masked)
		}
		m.Add(cell, obs)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "matrix: %q", name)
	}
	return m, nil
}

// parseObs interprets a single token of the character matrix: "-",
// "?", "-1", any other negative integer, the caller's configured
// masked token, or a non-numeric token are all missing; everything
// else is the parsed integer state.
func parseObs(tok, masked string) int {
	tok = strings.TrimSpace(tok)
	switch tok {
	case "-", "?", "":
		return Missing
	}
	if masked != "" && tok == masked {
		return Missing
	}
	v, err := strconv.Atoi(tok)
	if err != nil || v < 0 {
		return Missing
	}
	return v
}

// jsonMatrix is the §6 JSON character-matrix shape: an array of
// per-cell records, each holding one or more cassettes (only
// single-character cassettes are supported — one character per
// cassette is a declared Non-goal of a richer multi-character model).
type jsonMatrix []jsonCell

type jsonCell struct {
	CellName string        `json:"cell_name"`
	Cassettes []jsonCassette `json:"cassettes"`
}

type jsonCassette struct {
	CassetteIdx   int   `json:"cassette_idx"`
	CassetteState []int `json:"cassette_state"`
}

// ReadJSON reads a character matrix from the §6 JSON array-of-cells
// format.
func ReadJSON(name string) (*Matrix, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var jm jsonMatrix
	dec := json.NewDecoder(f)
	if err := dec.Decode(&jm); err != nil {
		return nil, errors.Wrapf(err, "matrix: %q: invalid json", name)
	}
	if len(jm) == 0 {
		return nil, errors.Errorf("matrix: %q: empty matrix", name)
	}

	sites := 0
	for _, c := range jm[0].Cassettes {
		sites = max(sites, c.CassetteIdx+1)
	}
	m := New(sites)
	for _, c := range jm {
		obs := make([]int, sites)
		for i := range obs {
			obs[i] = Missing
		}
		for _, cs := range c.Cassettes {
			if len(cs.CassetteState) == 0 {
				continue
			}
			v := cs.CassetteState[0]
			if v < 0 {
				v = Missing
			}
			obs[cs.CassetteIdx] = v
		}
		m.Add(c.CellName, obs)
	}
	return m, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// WriteJSON writes the matrix using the §6 JSON array-of-cells shape.
func (m *Matrix) WriteJSON(w io.Writer) error {
	jm := make(jsonMatrix, 0, len(m.cells))
	for _, c := range m.cells {
		row := m.obs[c]
		cassettes := make([]jsonCassette, len(row))
		for i, v := range row {
			cassettes[i] = jsonCassette{CassetteIdx: i, CassetteState: []int{v}}
		}
		jm = append(jm, jsonCell{CellName: c, Cassettes: cassettes})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(jm)
}
