// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
	"github.com/AleutianAI/AleutianOpt/services/opt/pattern"
)

// buildNestedCancel builds div(mul(y, div(mul(z, x), z)), y): two nested
// cancellations where simplifying the inner one exposes the outer one.
func buildNestedCancel(t *testing.T) (g *graph.Graph, x graph.VarID) {
	t.Helper()
	g = graph.New()
	x = g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	z := g.AddInput("z", "tensor")

	mulZX, err := g.AddApply(graph.OpMul, z, x)
	require.NoError(t, err)
	inner, err := g.AddApply(graph.OpDiv, mulZX[0], z)
	require.NoError(t, err)
	mulY, err := g.AddApply(graph.OpMul, y, inner[0])
	require.NoError(t, err)
	outer, err := g.AddApply(graph.OpDiv, mulY[0], y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(outer[0]))
	return g, x
}

func TestEquilibrium_ChasesToFixpoint(t *testing.T) {
	g, x := buildNestedCancel(t)

	eq := NewEquilibrium("canonicalize", []Local{divMulCancel()})
	require.NoError(t, Optimize(context.Background(), eq, g))

	// Both cancellations fire; the graph reduces to x itself.
	assert.Equal(t, x, g.Outputs()[0])
	assert.Equal(t, int64(2), eq.Replacements())
}

func TestEquilibrium_SecondRunIsNoop(t *testing.T) {
	g, _ := buildNestedCancel(t)

	eq := NewEquilibrium("canonicalize", []Local{divMulCancel()})
	require.NoError(t, Optimize(context.Background(), eq, g))
	afterFirst := eq.Replacements()

	require.NoError(t, Optimize(context.Background(), eq, g))
	assert.Equal(t, afterFirst, eq.Replacements(),
		"a converged graph must pass through unchanged")
}

func TestEquilibrium_NonConvergenceReported(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	sum, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(sum[0]))

	// Two rules that undo each other oscillate forever: an authoring
	// error the sweep bound converts into a recoverable failure.
	eq := NewEquilibrium("oscillating", []Local{
		MustOpSub(graph.OpAdd, graph.OpSub),
		MustOpSub(graph.OpSub, graph.OpAdd),
	}, WithMaxSweeps(6))

	err = Optimize(context.Background(), eq, g)
	require.ErrorIs(t, err, ErrNonConvergence)

	// Best-effort graph: still well-formed and usable.
	_, topoErr := g.Toposort()
	assert.NoError(t, topoErr)
	root := g.Owner(g.Outputs()[0])
	require.NotNil(t, root)
	assert.Contains(t, []graph.Op{graph.OpAdd, graph.OpSub}, root.Op)
}

func TestEquilibrium_DeterministicResult(t *testing.T) {
	shape := func() (*graph.Graph, graph.VarID) {
		g := graph.New()
		x := g.AddInput("x", "tensor")
		y := g.AddInput("y", "tensor")
		mul, _ := g.AddApply(graph.OpMul, y, x)
		div, _ := g.AddApply(graph.OpDiv, mul[0], y)
		neg, _ := g.AddApply(graph.OpNeg, div[0])
		negneg, _ := g.AddApply(graph.OpNeg, neg[0])
		_ = g.SetOutputs(negneg[0])
		return g, x
	}

	negNegCancel := NewPatternSub("neg_neg_cancel",
		pattern.Node(graph.OpNeg, pattern.Node(graph.OpNeg, pattern.Wild("a"))),
		pattern.Wild("a"),
	)

	g1, x1 := shape()
	g2, x2 := shape()
	rules := []Local{divMulCancel(), negNegCancel}

	require.NoError(t, Optimize(context.Background(), NewEquilibrium("det", rules), g1))
	require.NoError(t, Optimize(context.Background(), NewEquilibrium("det", rules), g2))

	// Same input graph + same rule set => same output graph.
	assert.Equal(t, x1, g1.Outputs()[0])
	assert.Equal(t, x2, g2.Outputs()[0])
}

func TestDefaultMaxSweeps(t *testing.T) {
	assert.Equal(t, 18, DefaultMaxSweeps(1))
	assert.Equal(t, 10, DefaultMaxSweeps(0))
}
