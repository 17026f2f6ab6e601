// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
	"github.com/AleutianAI/AleutianOpt/services/opt/pattern"
)

func arityError(rule Local, n *graph.Apply, got int) error {
	return fmt.Errorf("%w: rule %s on %s node: %d replacements for %d outputs",
		ErrArityMismatch, rule.Name(), n.Op, got, len(n.Outputs))
}

func isRejection(err error) bool {
	return errors.Is(err, graph.ErrInvalidRewrite)
}

// opSub rewrites any node invoking one operator into an equivalent node
// invoking another over the same inputs.
type opSub struct {
	from, to graph.Op
}

// NewOpSub creates a local rule substituting operator `from` with `to`,
// applied to the same inputs.
//
// The operators must have identical input and output arity; a mismatch
// is a configuration error raised here, not at runtime.
func NewOpSub(from, to graph.Op) (Local, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: %s -> %s", graph.ErrInvalidOp, from, to)
	}
	if from.NumInputs() != to.NumInputs() || from.NumOutputs() != to.NumOutputs() {
		return nil, fmt.Errorf("%w: %s (%d->%d) vs %s (%d->%d)",
			ErrIncompatibleOps,
			from, from.NumInputs(), from.NumOutputs(),
			to, to.NumInputs(), to.NumOutputs())
	}
	return &opSub{from: from, to: to}, nil
}

// MustOpSub is NewOpSub that panics on configuration error. For use in
// package-level rule tables where the arity is known correct.
func MustOpSub(from, to graph.Op) Local {
	rule, err := NewOpSub(from, to)
	if err != nil {
		panic(err)
	}
	return rule
}

func (r *opSub) Name() string {
	return fmt.Sprintf("op_sub(%s->%s)", r.from, r.to)
}

func (r *opSub) Transform(g *graph.Graph, node graph.NodeID) ([]graph.VarID, bool) {
	n := g.Node(node)
	if n == nil || n.Op != r.from {
		return nil, false
	}
	outs, err := g.AddApply(r.to, n.Inputs...)
	if err != nil {
		return nil, false
	}
	return outs, true
}

// opRemove elides identity-shaped operators: output i is replaced by
// input i everywhere.
type opRemove struct {
	op graph.Op
}

// NewOpRemove creates a local rule removing an identity-shaped operator
// (same input and output count), rewiring each output to the
// corresponding input.
//
// Fails fast with a configuration error if the counts differ.
func NewOpRemove(op graph.Op) (Local, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %s", graph.ErrInvalidOp, op)
	}
	if op.NumInputs() != op.NumOutputs() {
		return nil, fmt.Errorf("%w: %s has %d inputs, %d outputs",
			ErrNotIdentityShaped, op, op.NumInputs(), op.NumOutputs())
	}
	return &opRemove{op: op}, nil
}

// MustOpRemove is NewOpRemove that panics on configuration error.
func MustOpRemove(op graph.Op) Local {
	rule, err := NewOpRemove(op)
	if err != nil {
		panic(err)
	}
	return rule
}

func (r *opRemove) Name() string {
	return fmt.Sprintf("op_remove(%s)", r.op)
}

func (r *opRemove) Transform(g *graph.Graph, node graph.NodeID) ([]graph.VarID, bool) {
	n := g.Node(node)
	if n == nil || n.Op != r.op {
		return nil, false
	}
	return append([]graph.VarID(nil), n.Inputs...), true
}

// patternSub rewrites subgraphs matching an input pattern into the
// structure described by an output pattern.
type patternSub struct {
	name string
	in   *pattern.Pattern
	out  *pattern.Pattern
}

// NewPatternSub creates a local rule that matches `in` against each of
// a node's outputs and, on success, substitutes the wildcard bindings
// into `out` to construct (or reuse) the replacement.
//
// Matching is order-sensitive; covering a commutative operator requires
// registering one PatternSub per operand permutation.
func NewPatternSub(name string, in, out *pattern.Pattern) Local {
	return &patternSub{name: name, in: in, out: out}
}

func (r *patternSub) Name() string { return r.name }

func (r *patternSub) Transform(g *graph.Graph, node graph.NodeID) ([]graph.VarID, bool) {
	n := g.Node(node)
	if n == nil {
		return nil, false
	}

	repl := make([]graph.VarID, len(n.Outputs))
	matchedAny := false
	for i, out := range n.Outputs {
		b, ok := pattern.Match(g, r.in, out)
		if !ok {
			repl[i] = out // untouched output replaces itself
			continue
		}
		built, err := pattern.Build(g, r.out, b)
		if err != nil {
			// Unbound wildcard or arena exhaustion: authoring error;
			// reject rather than corrupt the result.
			return nil, false
		}
		repl[i] = built
		matchedAny = true
	}
	if !matchedAny {
		return nil, false
	}
	return repl, true
}
