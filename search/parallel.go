// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

package search

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/tree"
)

// neighborJob identifies one (edge, slot) neighbor for a worker (§5
// "optional parallel NNI mode"); the topology, strategy, data, and
// prior are shared read-only by every worker. Each worker clones the
// topology so it never mutates the shared tree.
type neighborJob struct {
	order int
	edge  int
	slot  int
}

type neighborResult struct {
	order  int
	score  float64
	params likelihood.Params
	valid  bool
	tree   *tree.Tree
}

// runParallelBatch is the parallel-NNI variant of a single search
// iteration's neighbor evaluation: it scores a batch of candidate
// (edge, slot) neighbors concurrently on a worker pool sized cpu (0
// means runtime.NumCPU()), then the caller commits the first accepted
// move in the deterministic iteration order of the shuffled edge list,
// exactly as the serial driver would (§5 "Ordering guarantee").
func runParallelBatch(base *tree.Tree, data *matrix.Matrix, pr *prior.Prior, opts em.Options, strat Strategy, edges []int, slotsFor func(int) []int, cpu int) []neighborResult {
	if cpu == 0 {
		cpu = runtime.NumCPU()
	}

	var jobs []neighborJob
	order := 0
	for _, u := range edges {
		for _, slot := range slotsFor(u) {
			jobs = append(jobs, neighborJob{order: order, edge: u, slot: slot})
			order++
		}
	}

	results := make([]neighborResult, len(jobs))
	jobCh := make(chan neighborJob, len(jobs))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for j := range jobCh {
			// each worker clones the base topology so no mutation is
			// shared across goroutines (§5 "Data and prior are
			// read-only shared; no worker mutates shared state").
			candidate := base.Clone()
			if !candidate.NNI(j.edge, j.slot) {
				results[j.order] = neighborResult{order: j.order}
				continue
			}
			score, params, ok := scoreFull(candidate, data, pr, opts, strat.Initials, strat.MaxTrials, rand.Int63())
			results[j.order] = neighborResult{order: j.order, score: score, params: params, valid: ok, tree: candidate}
		}
	}

	for i := 0; i < cpu; i++ {
		wg.Add(1)
		go worker()
	}
	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)
	wg.Wait()

	return results
}
