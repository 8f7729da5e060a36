// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package prior

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/js-arias/laml/matrix"
	"github.com/pkg/errors"
)

// siteIndex maps a prior file's site name (e.g. "site3", "3", or a
// bare column position) to its zero-based position in the character
// matrix. siteNames may be nil, in which case names are parsed as
// plain integers.
func siteIndex(name string, siteNames []string) (int, bool) {
	if siteNames == nil {
		v, err := strconv.Atoi(strings.TrimSpace(name))
		if err != nil {
			return 0, false
		}
		return v, true
	}
	for i, n := range siteNames {
		if n == name {
			return i, true
		}
	}
	// fall back to the digits inside the name, read as a zero-based
	// position (e.g. "r5" is position 5), mirroring read_priors'
	// digit-based inference.
	digits := strings.TrimFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if digits != name {
		if v, err := strconv.Atoi(digits); err == nil {
			return v, true
		}
	}
	return 0, false
}

// ReadCSV reads a prior from the §6 CSV format: rows of
// "siteName,state,prob", optionally preceded by a header row. K is
// the number of sites in the character matrix the prior is paired
// with; siteNames, if non-nil, names each of the K sites in the
// character matrix, used to match the prior file's site column.
func ReadCSV(name string, k int, siteNames []string) (*Prior, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f, k, siteNames, name)
}

func readCSV(r io.Reader, k int, siteNames []string, name string) (*Prior, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	recs, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "prior: %q", name)
	}

	p := New(k)
	cols := make([]Q, k)
	for i := range cols {
		cols[i] = make(Q)
	}

	for i, row := range recs {
		if len(row) < 3 {
			continue
		}
		site, prob, ok := row[0], row[2], true
		state, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			ok = false
		}
		v, perr := strconv.ParseFloat(strings.TrimSpace(prob), 64)
		if perr != nil {
			ok = false
		}
		idx, fine := siteIndex(site, siteNames)
		if !ok || !fine {
			if i == 0 {
				// likely a header row
				continue
			}
			return nil, errors.Errorf("prior: %q: line %d: malformed row %v", name, i+1, row)
		}
		if idx < 0 || idx >= k {
			continue
		}
		cols[idx][state] = v
	}
	for i, q := range cols {
		p.Set(i, q)
	}
	return p, nil
}

// ReadKeyword builds a Prior from the keyword "uniform", using the
// observed alphabet of the paired character matrix.
func ReadKeyword(keyword string, m *matrix.Matrix) (*Prior, error) {
	if strings.ToLower(strings.TrimSpace(keyword)) != "uniform" {
		return nil, errors.Errorf("prior: unknown keyword %q", keyword)
	}
	return Uniform(m), nil
}
