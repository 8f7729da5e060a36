// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package infer implements a command to search for the
// maximum-likelihood lineage-tracing tree of a character matrix.
package infer

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strings"

	"github.com/js-arias/command"
	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/likelihood"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/project"
	"github.com/js-arias/laml/search"
	"github.com/js-arias/laml/tree"
)

var Command = &command.Command{
	Usage: `infer [--delimiter <char>] [--masked <symbol>]
	[--topology_search] [--resolve_search_only] [--local_brlen_opt]
	[--ultrametric] [--noSilence] [--noDropout]
	[--nInitials <number>] [--nReps <number>] [--maxIter <number>]
	[--randseed <seed>] [--cpu <number>]
	[--checkpoint <file>] [-o|--output <file>] <project-file>`,
	Short: "search the maximum-likelihood lineage-tracing tree",
	Long: `
Command infer reads a laml project (a TSV file recording a character matrix,
a prior, and a starting topology) and estimates the maximum-likelihood tree,
branch lengths, silencing rate, and dropout rate.

By default it only re-estimates branch lengths and parameters on the project's
starting topology. With --topology_search, it also performs an NNI search,
optionally restricted to edges introduced by polytomy resolution with
--resolve_search_only, and optionally freezing distant branches during
neighbor re-scoring with --local_brlen_opt.

By default, both the silencing rate (nu) and the dropout rate (phi) are
estimated; use --noSilence or --noDropout to fix either at zero.

Use --nInitials to set the number of random multi-start initial points
(default 20), --nReps to set the number of independent search replicates
(default 1), and --maxIter to set the maximum number of EM/NNI iterations
(default 1000/100). Use --randseed to make the run reproducible.

The final tree, in newick format, and the estimated parameters are written to
standard output, or to the file set with --output.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var (
	delimiter         string
	masked            string
	topologySearch    bool
	resolveSearchOnly bool
	localBrlenOpt     bool
	ultrametric       bool
	noSilence         bool
	noDropout         bool
	nInitials         int
	nReps             int
	maxIter           int
	randSeed          int64
	numCPU            int
	checkpointFile    string
	output            string
)

func setFlags(c *command.Command) {
	c.Flags().StringVar(&delimiter, "delimiter", "\t", "")
	c.Flags().StringVar(&masked, "masked", "?", "")
	c.Flags().BoolVar(&topologySearch, "topology_search", false, "")
	c.Flags().BoolVar(&resolveSearchOnly, "resolve_search_only", false, "")
	c.Flags().BoolVar(&localBrlenOpt, "local_brlen_opt", false, "")
	c.Flags().BoolVar(&ultrametric, "ultrametric", false, "")
	c.Flags().BoolVar(&noSilence, "noSilence", false, "")
	c.Flags().BoolVar(&noDropout, "noDropout", false, "")
	c.Flags().IntVar(&nInitials, "nInitials", 20, "")
	c.Flags().IntVar(&nReps, "nReps", 1, "")
	c.Flags().IntVar(&maxIter, "maxIter", 0, "")
	c.Flags().Int64Var(&randSeed, "randseed", 1, "")
	c.Flags().IntVar(&numCPU, "cpu", runtime.NumCPU(), "")
	c.Flags().StringVar(&checkpointFile, "checkpoint", "", "")
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting project file")
	}

	p, err := project.Read(args[0])
	if err != nil {
		return err
	}

	charsFile := p.Path(project.Chars)
	if charsFile == "" {
		return c.UsageError(fmt.Sprintf("character matrix not defined in project %q", args[0]))
	}
	data, err := readMatrix(charsFile)
	if err != nil {
		return err
	}

	topoFile := p.Path(project.Topology)
	if topoFile == "" {
		return c.UsageError(fmt.Sprintf("starting topology not defined in project %q", args[0]))
	}
	t, err := readTopology(topoFile)
	if err != nil {
		return err
	}
	t.InitSites(data.NumSites())

	pr, err := readPrior(p.Path(project.Prior), data)
	if err != nil {
		return err
	}
	pr.Fill(data)

	opts := em.DefaultOptions()
	opts.OptimizeNu = !noSilence
	opts.OptimizePhi = !noDropout
	opts.Ultrametric = ultrametric

	strat := search.DefaultStrategy()
	strat.ResolveSearchOnly = resolveSearchOnly
	strat.LocalBrlenOpt = localBrlenOpt
	strat.Ultrametric = ultrametric
	strat.Initials = nInitials
	if maxIter > 0 {
		opts.MaxIter = maxIter
		strat.MaxIter = maxIter
	}

	rng := rand.New(rand.NewSource(randSeed))

	var score float64
	var params likelihood.Params
	if topologySearch {
		var cp *search.Checkpoint
		if checkpointFile != "" {
			f, err := os.OpenFile(checkpointFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			cp = &search.Checkpoint{W: f}
		}
		res := search.MultiReplicate(t, data, pr, strat, opts, rng, nReps, cp)
		score, params = res.Score, res.Params
	} else {
		for site := 0; site < data.NumSites(); site++ {
			t.Partition(site, data.Column(site))
		}
		res := em.MultiStart(t, data, pr, opts, nInitials, 3, randSeed, nil, nil)
		if res == nil {
			return fmt.Errorf("optimizer failed to converge from every initial point")
		}
		score, params = res.LogLike, res.Params
	}

	w := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	fmt.Fprintf(w, "Newick tree: %s\n", t.Newick())
	fmt.Fprintf(w, "Optimal negative-llh: %g\n", -score)
	fmt.Fprintf(w, "Optimal dropout rate: %g\n", params.Phi)
	fmt.Fprintf(w, "Optimal silencing rate: %g\n", params.Nu)
	return nil
}

func readMatrix(name string) (*matrix.Matrix, error) {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return matrix.ReadJSON(name)
	}
	return matrix.Read(name, delimiter, masked)
}

func readTopology(name string) (*tree.Tree, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tree.ReadNewick(name, f)
}

func readPrior(name string, data *matrix.Matrix) (*prior.Prior, error) {
	if name == "" || strings.EqualFold(name, "uniform") {
		return prior.Uniform(data), nil
	}
	return prior.ReadCSV(name, data.NumSites(), nil)
}
