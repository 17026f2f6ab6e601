// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
	"github.com/AleutianAI/AleutianOpt/services/opt/pattern"
)

// divMulCancel is the canonical cancellation rule used across these
// tests: div(mul(b, a), b) -> a.
func divMulCancel() Local {
	return NewPatternSub("div_mul_cancel",
		pattern.Node(graph.OpDiv,
			pattern.Node(graph.OpMul, pattern.Wild("b"), pattern.Wild("a")),
			pattern.Wild("b")),
		pattern.Wild("a"),
	)
}

func TestNewOpSub_ArityMismatch(t *testing.T) {
	_, err := NewOpSub(graph.OpAdd, graph.OpNeg)
	require.ErrorIs(t, err, ErrIncompatibleOps)

	_, err = NewOpSub(graph.Op(99), graph.OpAdd)
	require.ErrorIs(t, err, graph.ErrInvalidOp)
}

func TestNewOpSub_Transform(t *testing.T) {
	rule, err := NewOpSub(graph.OpAdd, graph.OpSub)
	require.NoError(t, err)
	assert.Equal(t, "op_sub(add->sub)", rule.Name())

	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	sum, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(sum[0]))

	repl, ok := rule.Transform(g, g.Var(sum[0]).Owner)
	require.True(t, ok)
	require.Len(t, repl, 1)

	owner := g.Owner(repl[0])
	require.NotNil(t, owner)
	assert.Equal(t, graph.OpSub, owner.Op)
	assert.Equal(t, []graph.VarID{x, y}, owner.Inputs)
}

func TestNewOpSub_RejectsOtherOps(t *testing.T) {
	rule := MustOpSub(graph.OpAdd, graph.OpSub)

	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	prod, err := g.AddApply(graph.OpMul, x, y)
	require.NoError(t, err)

	_, ok := rule.Transform(g, g.Var(prod[0]).Owner)
	assert.False(t, ok, "op_sub must reject nodes with a different operator")
}

func TestNewOpRemove_NotIdentityShaped(t *testing.T) {
	_, err := NewOpRemove(graph.OpAdd)
	require.ErrorIs(t, err, ErrNotIdentityShaped)
}

func TestNewOpRemove_Transform(t *testing.T) {
	rule, err := NewOpRemove(graph.OpIdentity)
	require.NoError(t, err)

	g := graph.New()
	x := g.AddInput("x", "tensor")
	id, err := g.AddApply(graph.OpIdentity, x)
	require.NoError(t, err)

	repl, ok := rule.Transform(g, g.Var(id[0]).Owner)
	require.True(t, ok)
	assert.Equal(t, []graph.VarID{x}, repl, "output i must map to input i")
}

func TestPatternSub_RejectsOnNoMatch(t *testing.T) {
	rule := divMulCancel()

	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	sum, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)

	_, ok := rule.Transform(g, g.Var(sum[0]).Owner)
	assert.False(t, ok)
}

func TestPatternSub_Transform(t *testing.T) {
	rule := divMulCancel()

	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	mul, err := g.AddApply(graph.OpMul, y, x)
	require.NoError(t, err)
	div, err := g.AddApply(graph.OpDiv, mul[0], y)
	require.NoError(t, err)

	repl, ok := rule.Transform(g, g.Var(div[0]).Owner)
	require.True(t, ok)
	assert.Equal(t, []graph.VarID{x}, repl)
}
