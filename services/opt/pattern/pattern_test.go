// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pattern

import (
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// buildDivMul builds div(mul(y, x), y) and returns its root.
func buildDivMul(t *testing.T) (g *graph.Graph, x, y, root graph.VarID) {
	t.Helper()
	g = graph.New()
	x = g.AddInput("x", "tensor")
	y = g.AddInput("y", "tensor")

	mul, err := g.AddApply(graph.OpMul, y, x)
	if err != nil {
		t.Fatalf("AddApply(mul): %v", err)
	}
	div, err := g.AddApply(graph.OpDiv, mul[0], y)
	if err != nil {
		t.Fatalf("AddApply(div): %v", err)
	}
	if err := g.SetOutputs(div[0]); err != nil {
		t.Fatalf("SetOutputs: %v", err)
	}
	return g, x, y, div[0]
}

func TestMatch_Wildcard(t *testing.T) {
	g, x, _, _ := buildDivMul(t)

	b, ok := Match(g, Wild("a"), x)
	if !ok {
		t.Fatal("wildcard failed to match")
	}
	if b["a"] != x {
		t.Errorf("binding a = %d, want %d", b["a"], x)
	}
}

func TestMatch_Compound(t *testing.T) {
	g, x, y, root := buildDivMul(t)

	// (div (mul ?b ?a) ?b) with repeat wildcard ?b.
	p := Node(graph.OpDiv, Node(graph.OpMul, Wild("b"), Wild("a")), Wild("b"))
	b, ok := Match(g, p, root)
	if !ok {
		t.Fatal("compound pattern failed to match")
	}
	if b["a"] != x || b["b"] != y {
		t.Errorf("bindings = %v, want a=%d b=%d", b, x, y)
	}
}

func TestMatch_RepeatWildcardMustBeIdentical(t *testing.T) {
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	z := g.AddInput("z", "tensor")

	mul, _ := g.AddApply(graph.OpMul, y, x)
	div, _ := g.AddApply(graph.OpDiv, mul[0], z) // divisor differs from mul operand

	p := Node(graph.OpDiv, Node(graph.OpMul, Wild("b"), Wild("a")), Wild("b"))
	if _, ok := Match(g, p, div[0]); ok {
		t.Error("repeat wildcard matched two distinct variables")
	}
}

func TestMatch_OperandOrderSensitive(t *testing.T) {
	// div(mul(y, x), x): the divisor pairs with mul's SECOND operand.
	g := graph.New()
	x := g.AddInput("x", "tensor")
	y := g.AddInput("y", "tensor")
	mul, err := g.AddApply(graph.OpMul, y, x)
	if err != nil {
		t.Fatalf("AddApply(mul): %v", err)
	}
	div, err := g.AddApply(graph.OpDiv, mul[0], x)
	if err != nil {
		t.Fatalf("AddApply(div): %v", err)
	}

	// ?b names mul's first operand (y), which differs from the divisor
	// (x); the repeat wildcard must refuse the pairing.
	p := Node(graph.OpDiv, Node(graph.OpMul, Wild("b"), Wild("a")), Wild("b"))
	if _, ok := Match(g, p, div[0]); ok {
		t.Error("pattern matched across mismatched operand positions")
	}

	// Swapping the mul operands in the pattern aligns ?b with the
	// divisor, so the same graph now matches.
	p = Node(graph.OpDiv, Node(graph.OpMul, Wild("a"), Wild("b")), Wild("b"))
	b, ok := Match(g, p, div[0])
	if !ok {
		t.Fatal("position-aligned pattern failed to match")
	}
	if b["a"] != y || b["b"] != x {
		t.Errorf("bindings = %v, want a=%d b=%d", b, y, x)
	}
}

func TestMatch_WrongOpFails(t *testing.T) {
	g, x, y, _ := buildDivMul(t)

	sub, _ := g.AddApply(graph.OpSub, x, y)
	if _, ok := Match(g, Node(graph.OpAdd, Wild("a"), Wild("b")), sub[0]); ok {
		t.Error("add pattern matched a sub node")
	}
}

func TestMatch_InputVariableFailsCompound(t *testing.T) {
	g, x, _, _ := buildDivMul(t)

	// x has no owner; compound patterns cannot match it.
	if _, ok := Match(g, Node(graph.OpMul, Wild("a"), Wild("b")), x); ok {
		t.Error("compound pattern matched an ownerless input")
	}
}

func TestMatch_Constraint(t *testing.T) {
	g, x, y, _ := buildDivMul(t)

	onlyX := func(g *graph.Graph, v graph.VarID) bool {
		return g.Var(v).Name == "x"
	}

	if _, ok := Match(g, Wild("a", onlyX), x); !ok {
		t.Error("constraint rejected x")
	}
	if _, ok := Match(g, Wild("a", onlyX), y); ok {
		t.Error("constraint accepted y")
	}
}

func TestMatch_Constant(t *testing.T) {
	g := graph.New()
	one := g.AddConstant(1.0, "tensor")
	two := g.AddConstant(2.0, "tensor")
	x := g.AddInput("x", "tensor")

	if _, ok := Match(g, Const(1.0), one); !ok {
		t.Error("Const(1) failed to match constant 1")
	}
	if _, ok := Match(g, Const(1.0), two); ok {
		t.Error("Const(1) matched constant 2")
	}
	if _, ok := Match(g, Const(1.0), x); ok {
		t.Error("Const(1) matched a non-constant")
	}
}

func TestBuild_Substitution(t *testing.T) {
	g, x, y, root := buildDivMul(t)

	p := Node(graph.OpDiv, Node(graph.OpMul, Wild("b"), Wild("a")), Wild("b"))
	b, ok := Match(g, p, root)
	if !ok {
		t.Fatal("match failed")
	}

	// Build (add ?a ?b) from the bindings.
	out, err := Build(g, Node(graph.OpAdd, Wild("a"), Wild("b")), b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	owner := g.Owner(out)
	if owner == nil || owner.Op != graph.OpAdd {
		t.Fatalf("built variable owner = %+v, want add node", owner)
	}
	if owner.Inputs[0] != x || owner.Inputs[1] != y {
		t.Errorf("built inputs = %v, want [%d %d]", owner.Inputs, x, y)
	}
}

func TestBuild_ReusesExistingApply(t *testing.T) {
	g, x, y, _ := buildDivMul(t)

	b := Bindings{"a": x, "b": y}
	first, err := Build(g, Node(graph.OpAdd, Wild("a"), Wild("b")), b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(g, Node(graph.OpAdd, Wild("a"), Wild("b")), b)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first != second {
		t.Errorf("Build created a duplicate node: %d vs %d", first, second)
	}
}

func TestBuild_UnboundWildcard(t *testing.T) {
	g, _, _, _ := buildDivMul(t)

	_, err := Build(g, Wild("missing"), Bindings{})
	if !errors.Is(err, ErrUnboundWildcard) {
		t.Errorf("Build error = %v, want ErrUnboundWildcard", err)
	}
}

func TestPattern_String(t *testing.T) {
	p := Node(graph.OpDiv, Node(graph.OpMul, Wild("b"), Wild("a")), Wild("b"))
	want := "(div (mul ?b ?a) ?b)"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Const(1.0).String(); got != "1" {
		t.Errorf("Const String() = %q, want 1", got)
	}
}
