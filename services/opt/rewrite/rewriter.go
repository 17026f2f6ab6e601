// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

var (
	tracer = otel.Tracer("aleutianopt.rewrite")
	meter  = otel.Meter("aleutianopt.rewrite")
)

// Local is a pure per-node rewrite rule.
//
// Transform inspects one apply node and either rejects (ok == false,
// the designed no-change signal, not an error) or returns exactly one
// replacement variable per node output: entry i replaces output i
// everywhere it is consumed.
//
// Transform may create new variables and apply nodes, but must not
// rewire existing consumers; the driving navigator performs all
// replacement through the graph's validated replace.
type Local interface {
	// Name identifies the rule in logs and registries.
	Name() string

	// Transform proposes replacements for the node's outputs.
	Transform(g *graph.Graph, node graph.NodeID) ([]graph.VarID, bool)
}

// Rewriter is a global rewrite rule: a pass over the whole graph.
//
// Execution is two-phase: Prepare registers the pass's requirements
// (typically attaching graph features) before any pass in a pipeline
// runs Apply. Apply then mutates the graph through validated replace.
type Rewriter interface {
	// Name identifies the pass in logs, traces, and registries.
	Name() string

	// Prepare registers requirements against the graph. Called once
	// before Apply.
	Prepare(g *graph.Graph) error

	// Apply runs the pass, mutating the graph in place.
	Apply(ctx context.Context, g *graph.Graph) error
}

// Replacing is implemented by passes that count the replacements they
// performed, so pipelines can report per-pass rewrite activity.
type Replacing interface {
	// Replacements returns the cumulative number of successful
	// replacements performed by the pass.
	Replacements() int64
}

// Optimize runs a rewriter over the graph: Prepare, then Apply.
func Optimize(ctx context.Context, r Rewriter, g *graph.Graph) error {
	if ctx == nil {
		return ErrNilContext
	}
	if err := r.Prepare(g); err != nil {
		return err
	}
	return r.Apply(ctx, g)
}

// applyLocal runs one local rule on one node: arity-checks the result
// and funnels each output replacement through validated replace.
//
// Returns the number of outputs actually replaced and the number of
// replacements rejected by validation features. A rejection is treated
// as no change for that output; any other failure aborts.
func applyLocal(g *graph.Graph, rule Local, node graph.NodeID) (replaced, rejected int, err error) {
	n := g.Node(node)
	if n == nil {
		return 0, 0, nil
	}

	repl, ok := rule.Transform(g, node)
	if !ok {
		return 0, 0, nil
	}
	if len(repl) != len(n.Outputs) {
		return 0, 0, arityError(rule, n, len(repl))
	}

	for i, out := range n.Outputs {
		replErr := g.ReplaceValidate(out, repl[i])
		switch {
		case replErr == nil:
			if out != repl[i] {
				replaced++
			}
		case isRejection(replErr):
			rejected++
		default:
			return replaced, rejected, replErr
		}
	}
	return replaced, rejected, nil
}
