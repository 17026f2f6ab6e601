// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// Op identifies an operator in the computation graph.
//
// The operator set is a closed enum so that rule matching is a structural
// switch on stable identifiers rather than identity comparison on mutable
// objects. Each operator has a fixed input and output arity recorded in
// the opInfo table.
type Op int

const (
	// OpInvalid is the zero value and never appears in a valid graph.
	OpInvalid Op = iota

	// OpAdd is elementwise addition: add(a, b).
	OpAdd

	// OpSub is elementwise subtraction: sub(a, b).
	OpSub

	// OpMul is elementwise multiplication: mul(a, b).
	OpMul

	// OpDiv is elementwise division: div(a, b).
	OpDiv

	// OpNeg is elementwise negation: neg(a).
	OpNeg

	// OpIdentity passes its input through unchanged: identity(a).
	// Identity-shaped by construction (one input, one output).
	OpIdentity

	// OpAddInplace is addition that overwrites its first input's storage.
	// Destroys input 0. Only safe when no other consumer needs the
	// pre-mutation value; guarded by the destroy handler.
	OpAddInplace

	// OpMulInplace is multiplication that overwrites its first input's
	// storage. Destroys input 0.
	OpMulInplace

	// NumOps is the total number of operators (for array sizing).
	NumOps
)

// opInfo describes an operator's fixed shape.
type opInfo struct {
	name    string
	inputs  int
	outputs int

	// destroys maps input index -> true for inputs the operator
	// overwrites in place. Nil for pure operators.
	destroys map[int]bool
}

// opTable is the closed operator registry, indexed by Op.
var opTable = [NumOps]opInfo{
	OpInvalid:    {name: "invalid"},
	OpAdd:        {name: "add", inputs: 2, outputs: 1},
	OpSub:        {name: "sub", inputs: 2, outputs: 1},
	OpMul:        {name: "mul", inputs: 2, outputs: 1},
	OpDiv:        {name: "div", inputs: 2, outputs: 1},
	OpNeg:        {name: "neg", inputs: 1, outputs: 1},
	OpIdentity:   {name: "identity", inputs: 1, outputs: 1},
	OpAddInplace: {name: "add_inplace", inputs: 2, outputs: 1, destroys: map[int]bool{0: true}},
	OpMulInplace: {name: "mul_inplace", inputs: 2, outputs: 1, destroys: map[int]bool{0: true}},
}

// opsByName maps operator names back to Op values, for config loading.
var opsByName = func() map[string]Op {
	m := make(map[string]Op, NumOps)
	for op := OpInvalid + 1; op < NumOps; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

// String returns the operator's stable name.
func (op Op) String() string {
	if op <= OpInvalid || op >= NumOps {
		return "invalid"
	}
	return opTable[op].name
}

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	return op > OpInvalid && op < NumOps
}

// NumInputs returns the operator's fixed input count.
func (op Op) NumInputs() int {
	if !op.Valid() {
		return 0
	}
	return opTable[op].inputs
}

// NumOutputs returns the operator's fixed output count.
// Output count is invariant per operator.
func (op Op) NumOutputs() int {
	if !op.Valid() {
		return 0
	}
	return opTable[op].outputs
}

// Destroys reports whether the operator overwrites the input at the
// given index in place.
func (op Op) Destroys(inputIndex int) bool {
	if !op.Valid() {
		return false
	}
	return opTable[op].destroys[inputIndex]
}

// Inplace reports whether the operator destroys any of its inputs.
func (op Op) Inplace() bool {
	if !op.Valid() {
		return false
	}
	return len(opTable[op].destroys) > 0
}

// OpByName resolves an operator name to its Op value.
// Returns OpInvalid and false for unknown names.
func OpByName(name string) (Op, bool) {
	op, ok := opsByName[name]
	return op, ok
}
