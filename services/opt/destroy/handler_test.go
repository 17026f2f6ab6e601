// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package destroy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

func TestHandler_AcceptsSingleConsumerIntermediate(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	a, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	m, err := g.AddApply(graph.OpMul, a[0], y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(m[0]))

	g.AttachFeature(NewHandler())

	// mul_inplace overwrites a's storage; a's only other reader is the
	// mul node this replacement orphans, so the rewrite is safe.
	ip, err := g.AddApply(graph.OpMulInplace, a[0], y)
	require.NoError(t, err)
	require.NoError(t, g.ReplaceValidate(m[0], ip[0]))

	assert.Equal(t, ip[0], g.Outputs()[0])
}

func TestHandler_RejectsSecondLiveConsumer(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	a, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	m, err := g.AddApply(graph.OpMul, a[0], y)
	require.NoError(t, err)
	s, err := g.AddApply(graph.OpSub, a[0], x)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(m[0], s[0]))

	g.AttachFeature(NewHandler())

	// The sub node still reads a after the replacement, so destroying
	// a's storage must be vetoed and the graph left untouched.
	ip, err := g.AddApply(graph.OpMulInplace, a[0], y)
	require.NoError(t, err)
	err = g.ReplaceValidate(m[0], ip[0])
	require.ErrorIs(t, err, graph.ErrInvalidRewrite)
	assert.ErrorIs(t, err, ErrUnsafeInplace)

	assert.Equal(t, m[0], g.Outputs()[0])
}

func TestHandler_RejectsDestroyingGraphInput(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	m, err := g.AddApply(graph.OpMul, x, y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(m[0]))

	g.AttachFeature(NewHandler())

	ip, err := g.AddApply(graph.OpMulInplace, x, y)
	require.NoError(t, err)
	err = g.ReplaceValidate(m[0], ip[0])
	require.ErrorIs(t, err, ErrUnsafeInplace)
}

func TestHandler_RejectsDestroyingGraphOutput(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	a, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	m, err := g.AddApply(graph.OpMul, a[0], y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(a[0], m[0]))

	g.AttachFeature(NewHandler())

	ip, err := g.AddApply(graph.OpMulInplace, a[0], y)
	require.NoError(t, err)
	err = g.ReplaceValidate(m[0], ip[0])
	require.ErrorIs(t, err, ErrUnsafeInplace)
}

func TestHandler_TracksDestroyersAcrossReplace(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	a, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	m, err := g.AddApply(graph.OpMul, a[0], y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(m[0]))

	h := NewHandler()
	g.AttachFeature(h)

	ip, err := g.AddApply(graph.OpMulInplace, a[0], y)
	require.NoError(t, err)

	d, ok := h.Destroyer(a[0])
	require.True(t, ok, "destroyer tracked on node creation")
	assert.Equal(t, g.Owner(ip[0]).ID, d)

	// Rebinding the destroyed variable migrates the tracking entry.
	a2, err := g.AddApply(graph.OpAdd, y, x)
	require.NoError(t, err)
	require.NoError(t, g.ReplaceValidate(a[0], a2[0]))

	_, ok = h.Destroyer(a[0])
	assert.False(t, ok)
	d, ok = h.Destroyer(a2[0])
	require.True(t, ok)
	assert.Equal(t, g.Owner(ip[0]).ID, d)
}

func TestHandler_OnAttachScansExistingGraph(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	a, err := g.AddApply(graph.OpAdd, x, y)
	require.NoError(t, err)
	ip, err := g.AddApply(graph.OpAddInplace, a[0], y)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(ip[0]))

	h := NewHandler()
	g.AttachFeature(h)

	d, ok := h.Destroyer(a[0])
	require.True(t, ok, "attach scans pre-existing in-place nodes")
	assert.Equal(t, g.Owner(ip[0]).ID, d)
}

func TestMarker_PrepareAttachesOnce(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	id, err := g.AddApply(graph.OpIdentity, x)
	require.NoError(t, err)
	require.NoError(t, g.SetOutputs(id[0]))

	m := NewMarker()
	require.NoError(t, m.Prepare(g))
	first := g.FeatureByKind(HandlerKind)
	require.NotNil(t, first)

	require.NoError(t, m.Prepare(g))
	assert.Same(t, first, g.FeatureByKind(HandlerKind))

	require.NoError(t, m.Apply(context.Background(), g))
}
