// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pattern implements tree-pattern matching over computation
// graph variables.
//
// A pattern is a tree of operator nodes, constants, and named wildcards.
// Matching a pattern against a variable either fails (silently — failed
// matches are the common case during traversal, never an error) or
// produces a set of wildcard bindings.
//
// # Operand Order
//
// Matching is order-sensitive: a compound pattern's subpatterns are
// matched pairwise against the apply node's inputs. The matcher does not
// try operand permutations, so covering commutative operators requires
// registering one pattern per permutation.
package pattern

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// Constraint is a predicate evaluated against a wildcard's candidate
// binding. All constraints on a wildcard must accept for the match to
// succeed.
type Constraint func(g *graph.Graph, v graph.VarID) bool

// Pattern is one node of a pattern tree. Exactly one of the three
// variants is set; use the Wild, Const, and Node constructors.
type Pattern struct {
	// name is the wildcard name, for wildcard patterns.
	name        string
	constraints []Constraint

	// constant is the literal value, for constant patterns.
	constant *float64

	// op and subs form a compound pattern matching an apply node.
	op   graph.Op
	subs []*Pattern
}

// Wild creates a named wildcard pattern, optionally constrained.
//
// A wildcard binds to any variable. If the same name recurs in a
// pattern, later occurrences must bind the identical variable (arena
// identity) — this is how a rule says "same operand in both places".
func Wild(name string, constraints ...Constraint) *Pattern {
	return &Pattern{name: name, constraints: constraints}
}

// Const creates a literal pattern matching a constant variable with
// exactly the given value.
func Const(value float64) *Pattern {
	return &Pattern{constant: &value}
}

// Node creates a compound pattern matching a variable produced by op
// with inputs matching subs pairwise, in order.
func Node(op graph.Op, subs ...*Pattern) *Pattern {
	return &Pattern{op: op, subs: subs}
}

// IsWild reports whether the pattern is a wildcard.
func (p *Pattern) IsWild() bool { return p.name != "" }

// String renders the pattern in s-expression form, for logs and tests.
func (p *Pattern) String() string {
	switch {
	case p.IsWild():
		return "?" + p.name
	case p.constant != nil:
		return fmt.Sprintf("%g", *p.constant)
	default:
		parts := make([]string, 0, len(p.subs)+1)
		parts = append(parts, p.op.String())
		for _, s := range p.subs {
			parts = append(parts, s.String())
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
}

// Bindings maps wildcard names to the variables they matched.
type Bindings map[string]graph.VarID

// Match attempts to match the pattern against the subgraph rooted at v.
//
// Returns (bindings, true) on success. Failure returns (nil, false) and
// is silent: it is the designed common case, never an error.
func Match(g *graph.Graph, p *Pattern, v graph.VarID) (Bindings, bool) {
	b := make(Bindings)
	if !match(g, p, v, b) {
		return nil, false
	}
	return b, true
}

func match(g *graph.Graph, p *Pattern, v graph.VarID, b Bindings) bool {
	switch {
	case p.IsWild():
		if prev, ok := b[p.name]; ok {
			// Repeat wildcard: must be the identical variable.
			return prev == v
		}
		for _, c := range p.constraints {
			if !c(g, v) {
				return false
			}
		}
		b[p.name] = v
		return true

	case p.constant != nil:
		vv := g.Var(v)
		return vv != nil && vv.IsConst() && *vv.Const == *p.constant

	default:
		owner := g.Owner(v)
		if owner == nil || owner.Op != p.op {
			return false
		}
		if len(p.subs) != len(owner.Inputs) {
			return false
		}
		for i, sub := range p.subs {
			if !match(g, sub, owner.Inputs[i], b) {
				return false
			}
		}
		return true
	}
}

// Build constructs (or reuses) the variable described by the pattern,
// substituting wildcard bindings.
//
// Wildcards resolve to their bound variable; unbound wildcards are a
// rule-authoring error. Compound patterns reuse an existing apply node
// with the same operator and inputs when one is already in the graph,
// so substitution does not duplicate shared structure. Constant
// patterns create constants typed like the replaced value's graph.
func Build(g *graph.Graph, p *Pattern, b Bindings) (graph.VarID, error) {
	switch {
	case p.IsWild():
		v, ok := b[p.name]
		if !ok {
			return graph.InvalidVar, fmt.Errorf("%w: ?%s", ErrUnboundWildcard, p.name)
		}
		return v, nil

	case p.constant != nil:
		return g.AddConstant(*p.constant, ""), nil

	default:
		inputs := make([]graph.VarID, len(p.subs))
		for i, sub := range p.subs {
			v, err := Build(g, sub, b)
			if err != nil {
				return graph.InvalidVar, err
			}
			inputs[i] = v
		}
		if existing := g.FindApply(p.op, inputs); existing != graph.InvalidNode {
			return g.Node(existing).Outputs[0], nil
		}
		outs, err := g.AddApply(p.op, inputs...)
		if err != nil {
			return graph.InvalidVar, err
		}
		return outs[0], nil
	}
}
