// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package simplify ships the canned algebraic rewrite rules and the
// default optimization registry built from them.
//
// The rules are structural: they match operator trees, not mathematical
// equality. Pattern matching is operand-order-sensitive, so commutative
// cancellations are registered once per operand permutation.
package simplify

import (
	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
	"github.com/AleutianAI/AleutianOpt/services/opt/pattern"
	"github.com/AleutianAI/AleutianOpt/services/opt/rewrite"
)

// DivMulCancel rewrites div(mul(b, a), b) to a.
func DivMulCancel() rewrite.Local {
	return rewrite.NewPatternSub("div_mul_cancel",
		pattern.Node(graph.OpDiv,
			pattern.Node(graph.OpMul, pattern.Wild("b"), pattern.Wild("a")),
			pattern.Wild("b")),
		pattern.Wild("a"))
}

// DivMulCancelSwapped rewrites div(mul(a, b), b) to a.
func DivMulCancelSwapped() rewrite.Local {
	return rewrite.NewPatternSub("div_mul_cancel_swapped",
		pattern.Node(graph.OpDiv,
			pattern.Node(graph.OpMul, pattern.Wild("a"), pattern.Wild("b")),
			pattern.Wild("b")),
		pattern.Wild("a"))
}

// MulDivCancel rewrites mul(div(a, b), b) to a.
func MulDivCancel() rewrite.Local {
	return rewrite.NewPatternSub("mul_div_cancel",
		pattern.Node(graph.OpMul,
			pattern.Node(graph.OpDiv, pattern.Wild("a"), pattern.Wild("b")),
			pattern.Wild("b")),
		pattern.Wild("a"))
}

// MulDivCancelSwapped rewrites mul(b, div(a, b)) to a.
func MulDivCancelSwapped() rewrite.Local {
	return rewrite.NewPatternSub("mul_div_cancel_swapped",
		pattern.Node(graph.OpMul,
			pattern.Wild("b"),
			pattern.Node(graph.OpDiv, pattern.Wild("a"), pattern.Wild("b"))),
		pattern.Wild("a"))
}

// DivSelf rewrites div(a, a) to the constant 1. The repeat wildcard
// means the same variable, not a structurally equal subgraph; run the
// merge pass first to canonicalize duplicates.
func DivSelf() rewrite.Local {
	return rewrite.NewPatternSub("div_self_one",
		pattern.Node(graph.OpDiv, pattern.Wild("a"), pattern.Wild("a")),
		pattern.Const(1))
}

// NegNeg rewrites neg(neg(a)) to a.
func NegNeg() rewrite.Local {
	return rewrite.NewPatternSub("neg_neg_cancel",
		pattern.Node(graph.OpNeg, pattern.Node(graph.OpNeg, pattern.Wild("a"))),
		pattern.Wild("a"))
}

// RemoveIdentity forwards identity nodes to their input.
func RemoveIdentity() rewrite.Local {
	return rewrite.MustOpRemove(graph.OpIdentity)
}

// InplaceAdd substitutes add with its storage-destroying in-place form.
// Only safe under the destroy handler; register it in the in-place
// group.
func InplaceAdd() rewrite.Local {
	return rewrite.MustOpSub(graph.OpAdd, graph.OpAddInplace)
}

// Rules returns the canonicalization rule set: every pure cancellation
// rule, in registration order. The set is confluent, so it is safe to
// run as one equilibrium group.
func Rules() []rewrite.Local {
	return []rewrite.Local{
		DivMulCancel(),
		DivMulCancelSwapped(),
		MulDivCancel(),
		MulDivCancelSwapped(),
		DivSelf(),
		NegNeg(),
		RemoveIdentity(),
	}
}
