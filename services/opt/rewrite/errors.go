// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rewrite implements the graph-rewrite rules and the drivers
// that run them: local per-node rules, the topological navigator, the
// equilibrium (fixpoint) runner, the structural merge pass, and the
// sequence pipeline.
//
// # Rule Taxonomy
//
// A Local rule is a pure function over one apply node: it either
// rejects (no change) or proposes replacement variables for the node's
// outputs. Local rules never mutate the graph themselves; all mutation
// goes through the graph's validated replace, driven by a navigator.
//
// A Rewriter (global rule) runs over the whole graph in two phases:
// Prepare registers requirements (typically graph features), then Apply
// mutates. Navigators, the equilibrium runner, the merge pass, and
// pipelines are all Rewriters.
//
// # Error Taxonomy
//
// Configuration errors (arity mismatches in rule constructors) surface
// at construction and are fatal to that registration. Rewrite
// rejections by validation features are recoverable and treated as "no
// change". Non-convergence of an equilibrium group is recoverable at
// the pipeline level: the run halts and the best-effort graph is kept.
package rewrite

import "errors"

var (
	// ErrIncompatibleOps is returned by NewOpSub when the two operators
	// do not have matching input/output arity. Configuration error,
	// raised at construction, never at runtime.
	ErrIncompatibleOps = errors.New("operators have incompatible arity")

	// ErrNotIdentityShaped is returned by NewOpRemove for operators
	// whose input and output counts differ; removal rewires output i to
	// input i, which needs the counts to line up. Configuration error.
	ErrNotIdentityShaped = errors.New("operator is not identity-shaped")

	// ErrArityMismatch is returned when a local rule's non-reject
	// result does not have exactly one replacement per node output.
	// The result is flagged, never silently truncated or padded.
	ErrArityMismatch = errors.New("replacement arity mismatch")

	// ErrNonConvergence is returned when an equilibrium group exceeds
	// its sweep bound without reaching a fixpoint. Recoverable: the
	// graph is kept in its best-effort state.
	ErrNonConvergence = errors.New("equilibrium did not converge")

	// ErrNilContext is returned when a pipeline is run with a nil
	// context.
	ErrNilContext = errors.New("context must not be nil")
)
