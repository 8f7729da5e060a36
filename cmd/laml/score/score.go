// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package score implements a command to score a fixed lineage-tracing
// topology under the maximum-likelihood model, without NNI search.
package score

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/js-arias/command"
	"github.com/js-arias/laml/em"
	"github.com/js-arias/laml/matrix"
	"github.com/js-arias/laml/prior"
	"github.com/js-arias/laml/project"
	"github.com/js-arias/laml/tree"
	"gonum.org/v1/gonum/stat"
)

var Command = &command.Command{
	Usage: `score [--delimiter <char>] [--masked <symbol>] [--ultrametric]
	[--noSilence] [--noDropout] [--nInitials <number>]
	[--randseed <seed>] [-o|--output <file>] <project-file>`,
	Short: "score a fixed topology",
	Long: `
Command score reads a laml project and re-estimates branch lengths, the
silencing rate, and the dropout rate on its starting topology, without
performing any NNI topology search.

It is the fixed-topology counterpart of the infer command, useful to compare
the likelihood of a small set of candidate topologies built externally.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var (
	delimiter string
	masked    string
	ultra     bool
	noSilence bool
	noDropout bool
	nInitials int
	randSeed  int64
	output    string
)

func setFlags(c *command.Command) {
	c.Flags().StringVar(&delimiter, "delimiter", "\t", "")
	c.Flags().StringVar(&masked, "masked", "?", "")
	c.Flags().BoolVar(&ultra, "ultrametric", false, "")
	c.Flags().BoolVar(&noSilence, "noSilence", false, "")
	c.Flags().BoolVar(&noDropout, "noDropout", false, "")
	c.Flags().IntVar(&nInitials, "nInitials", 20, "")
	c.Flags().Int64Var(&randSeed, "randseed", 1, "")
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
	f, err := os.Open(topoFile)
	if err != nil {
		return err
	}
	t, err := tree.ReadNewick(topoFile, f)
	f.Close()
	if err != nil {
		return err
	}
	t.InitSites(data.NumSites())

	pr, err := readPrior(p.Path(project.Prior), data)
	if err != nil {
		return err
	}
	pr.Fill(data)

	for site := 0; site < data.NumSites(); site++ {
		t.Partition(site, data.Column(site))
	}

	opts := em.DefaultOptions()
	opts.OptimizeNu = !noSilence
	opts.OptimizePhi = !noDropout
	opts.Ultrametric = ultra

	// run each initial point by hand, rather than through
	// em.MultiStart, so the spread across starts can be reported
	// (gonum.org/v1/gonum/stat), not just the best one.
	rng := rand.New(rand.NewSource(randSeed))
	orig := t.Snapshot()
	var nll []float64
	var best *em.Result
	var bestSnap tree.Snapshot
	for i := 0; i < nInitials; i++ {
		t.Restore(orig)
		params := em.RandomInit(t, rng, opts, nil, nil)
		res := em.Run(t, data, pr, params, opts)
		if res == nil {
			continue
		}
		nll = append(nll, -res.LogLike)
		if best == nil || res.LogLike > best.LogLike {
			best = res
			bestSnap = t.Snapshot()
		}
	}
	if best == nil {
		return fmt.Errorf("optimizer failed to converge from every initial point")
	}
	t.Restore(bestSnap)

	w := os.Stdout
	if output != "" {
		of, err := os.Create(output)
		if err != nil {
			return err
		}
		defer of.Close()
		w = of
	}
	fmt.Fprintf(w, "Newick tree: %s\n", t.Newick())
	fmt.Fprintf(w, "Optimal negative-llh: %g\n", -best.LogLike)
	fmt.Fprintf(w, "Optimal dropout rate: %g\n", best.Params.Phi)
	fmt.Fprintf(w, "Optimal silencing rate: %g\n", best.Params.Nu)
	if len(nll) > 1 {
		mean, std := stat.MeanStdDev(nll, nil)
		fmt.Fprintf(w, "Negative-llh across %d converged starts: mean %g, stdev %g\n", len(nll), mean, std)
	}
	return nil
}

func readMatrix(name string) (*matrix.Matrix, error) {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return matrix.ReadJSON(name)
	}
	return matrix.Read(name, delimiter, masked)
}

func readPrior(name string, data *matrix.Matrix) (*prior.Prior, error) {
	if name == "" || strings.EqualFold(name, "uniform") {
		return prior.Uniform(data), nil
	}
	return prior.ReadCSV(name, data.NumSites(), nil)
}
