// Copyright © 2023 J. Salvador Arias <jsalarias@gmail.com>
// All rights reserved.
// Distributed under BSD2 license that can be found in the LICENSE file.

// Laml infers maximum-likelihood lineage-tracing phylogenies.
package main

import (
	"github.com/js-arias/command"
	"github.com/js-arias/laml/cmd/laml/infer"
	"github.com/js-arias/laml/cmd/laml/plot"
	"github.com/js-arias/laml/cmd/laml/score"
)

var app = &command.Command{
	Usage: "laml <command> [<argument>...]",
	Short: "maximum-likelihood lineage-tracing phylogenetic inference",
}

func init() {
	app.Add(infer.Command)
	app.Add(score.Command)
	app.Add(plot.Command)
}

func main() {
	app.Main()
}
