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
)

// badArityRule always proposes the wrong number of replacements.
type badArityRule struct{}

func (badArityRule) Name() string { return "bad_arity" }

func (badArityRule) Transform(g *graph.Graph, node graph.NodeID) ([]graph.VarID, bool) {
	return []graph.VarID{0, 0}, true
}

// buildScenario1 builds add(z, mul(div(mul(y, x), y), div(z, x))).
func buildScenario1(t *testing.T) (g *graph.Graph, x, y, z graph.VarID) {
	t.Helper()
	g = graph.New()
	x = g.AddInput("x", "tensor")
	y = g.AddInput("y", "tensor")
	z = g.AddInput("z", "tensor")

	mulYX, err := g.AddApply(graph.OpMul, y, x)
	require.NoError(t, err)
	divByY, err := g.AddApply(graph.OpDiv, mulYX[0], y)
	require.NoError(t, err)
	divZX, err := g.AddApply(graph.OpDiv, z, x)
	require.NoError(t, err)
	mul, err := g.AddApply(graph.OpMul, divByY[0], divZX[0])
	require.NoError(t, err)
	add, err := g.AddApply(graph.OpAdd, z, mul[0])
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(add[0]))
	return g, x, y, z
}

func TestNavigator_DivMulSimplification(t *testing.T) {
	g, x, _, z := buildScenario1(t)

	nav := NewNavigator("canonicalize", []Local{divMulCancel()})
	require.NoError(t, Optimize(context.Background(), nav, g))

	// Expect add(z, mul(x, div(z, x))).
	root := g.Owner(g.Outputs()[0])
	require.NotNil(t, root)
	require.Equal(t, graph.OpAdd, root.Op)
	assert.Equal(t, z, root.Inputs[0])

	mul := g.Owner(root.Inputs[1])
	require.NotNil(t, mul)
	require.Equal(t, graph.OpMul, mul.Op)
	assert.Equal(t, x, mul.Inputs[0], "div(mul(y,x), y) must simplify to x")

	div := g.Owner(mul.Inputs[1])
	require.NotNil(t, div)
	require.Equal(t, graph.OpDiv, div.Op)
	assert.Equal(t, []graph.VarID{z, x}, div.Inputs)

	assert.Equal(t, int64(1), nav.Replacements())
}

func TestNavigator_FirstNonRejectWins(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	sum, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(sum[0]))

	// Both rules match add nodes; the first registered must win.
	nav := NewNavigator("order", []Local{
		MustOpSub(graph.OpAdd, graph.OpSub),
		MustOpSub(graph.OpAdd, graph.OpMul),
	})
	require.NoError(t, Optimize(context.Background(), nav, g))

	root := g.Owner(g.Outputs()[0])
	assert.Equal(t, graph.OpSub, root.Op)
}

func TestNavigator_ArityMismatchFlagged(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	sum, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(sum[0]))

	nav := NewNavigator("broken", []Local{badArityRule{}})
	err = Optimize(context.Background(), nav, g)
	require.ErrorIs(t, err, ErrArityMismatch)
}

func TestNavigator_RejectionIsNoChange(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	g.AttachFeature(rejectAll{})

	sum, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(sum[0]))

	nav := NewNavigator("rejected", []Local{MustOpSub(graph.OpAdd, graph.OpSub)})
	require.NoError(t, Optimize(context.Background(), nav, g))

	// The validator vetoed every replacement; the original structure
	// survives and the pass reports success.
	root := g.Owner(g.Outputs()[0])
	assert.Equal(t, graph.OpAdd, root.Op)
	assert.Equal(t, int64(0), nav.Replacements())
}

func TestNavigator_NilContext(t *testing.T) {
	g := graph.New()
	nav := NewNavigator("nilctx", nil)
	//nolint:staticcheck // deliberate nil context
	require.ErrorIs(t, nav.Apply(nil, g), ErrNilContext)
}

func TestNavigator_CancelledContext(t *testing.T) {
	g, _, _, _ := buildScenario1(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	nav := NewNavigator("cancelled", []Local{divMulCancel()})
	require.ErrorIs(t, nav.Apply(ctx, g), context.Canceled)
}

// rejectAll is a validation feature that vetoes every replacement.
type rejectAll struct{}

func (rejectAll) Kind() string            { return "reject-all" }
func (rejectAll) OnAttach(g *graph.Graph) {}
func (rejectAll) Validate(g *graph.Graph, old, new graph.VarID) error {
	return graph.ErrTypeMismatch
}
