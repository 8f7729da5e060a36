// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Package plot implements a command to draw the convergence trace of an
// NNI search checkpoint log.
package plot

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/js-arias/command"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var Command = &command.Command{
	Usage: `plot [-o|--output <file>] <checkpoint-file>`,
	Short: "plot the convergence trace of an NNI search",
	Long: `
Command plot reads an NNI checkpoint log, as written by the --checkpoint flag
of the infer command, and draws the negative log-likelihood at each accepted
iteration as a line chart.

By default the plot is saved as "checkpoint-trace.png"; use -o, or --output,
to set a different file name.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var output string

func setFlags(c *command.Command) {
	c.Flags().StringVar(&output, "output", "", "")
	c.Flags().StringVar(&output, "o", "", "")
}

func run(c *command.Command, args []string) error {
	if len(args) < 1 {
		return c.UsageError("expecting checkpoint file")
	}

	iters, nll, err := readCheckpoint(args[0])
	if err != nil {
		return err
	}
	if len(iters) == 0 {
		return fmt.Errorf("no iterations found in %q", args[0])
	}

	pts := make(plotter.XYs, len(iters))
	for i := range iters {
		pts[i].X = float64(iters[i])
		pts[i].Y = nll[i]
	}

	p := plot.New()
	p.Title.Text = "NNI search convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "negative log-likelihood"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	p.Add(plotter.NewGrid())

	name := output
	if name == "" {
		name = "checkpoint-trace.png"
	}
	if err := p.Save(6*vg.Inch, 4*vg.Inch, name); err != nil {
		return err
	}
	return nil
}

// readCheckpoint parses the "NNI Iteration: %d" / "Current negative-llh: %g"
// lines written by search.Checkpoint (§6 "NNI checkpoints").
func readCheckpoint(name string) ([]int, []float64, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var iters []int
	var nll []float64

	sc := bufio.NewScanner(f)
	var curIter int
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(ln, "NNI Iteration:"):
			v := strings.TrimSpace(strings.TrimPrefix(ln, "NNI Iteration:"))
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, nil, fmt.Errorf("on file %q: invalid iteration %q: %v", name, v, err)
			}
			curIter = n
		case strings.HasPrefix(ln, "Current negative-llh:"):
			v := strings.TrimSpace(strings.TrimPrefix(ln, "Current negative-llh:"))
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("on file %q: invalid negative-llh %q: %v", name, v, err)
			}
			iters = append(iters, curIter)
			nll = append(nll, f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return iters, nll, nil
}
