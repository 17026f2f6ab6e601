// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package optdb is the rewrite registry: named, ordered, tagged rewrite
// entries resolved by tag queries into runnable pipelines.
//
// A registry is append-only. Every entry carries a real-valued order
// (fractional orders slot new passes between existing priorities
// without renumbering), a tag set for query selection, and one of three
// payloads: a global rewriter, a local rule, or a sub-registry resolved
// recursively.
//
// All errors in this package are configuration errors: they indicate a
// mistake by the rule author, surface at registration or resolution
// time, and stop pipeline construction outright. They are never
// produced mid-optimization.
package optdb

import "errors"

var (
	// ErrDuplicateEntry indicates a Register call reusing a name already
	// present in the registry.
	ErrDuplicateEntry = errors.New("duplicate registry entry")

	// ErrInvalidEntry indicates a Register call whose item is none of
	// the supported payload types.
	ErrInvalidEntry = errors.New("invalid registry entry")

	// ErrNotLocal indicates an equilibrium registry being handed a
	// payload other than a local rule. Equilibrium groups run their
	// members to a joint fixpoint, which is only defined for local
	// rules.
	ErrNotLocal = errors.New("equilibrium registry accepts only local rules")

	// ErrInplaceBeforeDestroy indicates an in-place rewrite scheduled
	// before the destroy handler's phase boundary. Running such a
	// rewrite would produce silently wrong results, so the registry
	// refuses the registration instead.
	ErrInplaceBeforeDestroy = errors.New("in-place rewrite scheduled before destroy handler")

	// ErrDuplicateDestroyHandler indicates a second destroy handler
	// registration on the same registry.
	ErrDuplicateDestroyHandler = errors.New("destroy handler already registered")

	// ErrEmptyQuery indicates a query with an empty include set, which
	// can never select anything.
	ErrEmptyQuery = errors.New("query include set is empty")
)
