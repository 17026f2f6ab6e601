// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph provides the arena-indexed computation graph that the
// rewrite engine operates on.
//
// Variables are value nodes; Apply nodes are operator invocations with
// ordered inputs and outputs. Both live in dense arenas and are addressed
// by stable integer IDs, so consumer edges are index lists rather than
// cyclic ownership pointers.
//
// # Identity Model
//
// Variable identity is arena identity (the VarID), not structural
// identity: two independently built, structurally identical subgraphs are
// distinct until a merge pass canonicalizes them.
//
// # Mutation Discipline
//
// All rewiring is funneled through Replace / ReplaceValidate. Attached
// features that implement Validator can atomically accept or reject a
// single replacement; a rejected replacement leaves the graph unchanged.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent use. The rewrite engine is
// single-threaded by design: one rewrite mutates the graph at a time.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrInvalidOp is returned when an apply is constructed with an
	// unknown operator.
	ErrInvalidOp = errors.New("invalid operator")

	// ErrArity is returned when an apply is constructed with an input
	// count that does not match the operator's fixed arity.
	ErrArity = errors.New("operator arity mismatch")

	// ErrVarNotFound is returned when a VarID does not address a
	// variable in the arena.
	ErrVarNotFound = errors.New("variable not found")

	// ErrNodeNotFound is returned when a NodeID does not address an
	// apply node in the arena.
	ErrNodeNotFound = errors.New("apply node not found")

	// ErrMaxNodesExceeded is returned when the graph has reached its
	// configured maximum apply-node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrMaxVarsExceeded is returned when the graph has reached its
	// configured maximum variable capacity.
	ErrMaxVarsExceeded = errors.New("maximum variable count exceeded")

	// ErrCycle is returned by Toposort when the graph contains a cycle.
	// A well-formed computation graph is acyclic; a cycle indicates a
	// broken rewrite.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrNodeInUse is returned by Remove when an apply node's outputs
	// are still consumed or declared as graph outputs.
	ErrNodeInUse = errors.New("apply node still referenced")

	// ErrInvalidRewrite is returned by ReplaceValidate when an attached
	// validation feature rejects the replacement. The graph is left
	// unchanged for that call. Recoverable: callers treat it like the
	// rule returning no change.
	ErrInvalidRewrite = errors.New("invalid rewrite")

	// ErrTypeMismatch is the cause reported by the type guard feature
	// when a replacement would change a variable's type.
	ErrTypeMismatch = errors.New("replacement type mismatch")
)
