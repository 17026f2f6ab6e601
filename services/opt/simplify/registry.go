// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simplify

import (
	"github.com/AleutianAI/AleutianOpt/services/opt/optdb"
	"github.com/AleutianAI/AleutianOpt/services/opt/rewrite"
)

// Registry tags.
const (
	// TagBasic marks the passes every optimization run wants.
	TagBasic = "basic"

	// TagCanonicalize marks the algebraic canonicalization rules.
	TagCanonicalize = "canonicalize"

	// TagMerge marks the structural deduplication passes.
	TagMerge = "merge"

	// TagStabilize marks the final cleanup passes.
	TagStabilize = "stabilize"
)

// NewDefaultRegistry builds the standard optimization database.
//
// # Layout
//
//	  0    merge_initial   fold duplicates built by the user
//	  1    canonicalize    equilibrium group over the algebraic rules
//	 48.5  merge_mid       fold duplicates the rules introduced
//	 49.5  destroy_handler arm in-place safety tracking
//	 75    inplace         in-place substitutions (opt-in via the
//	                       "inplace" tag; ordered after the handler)
//	100    merge_final     stabilizing cleanup
//
// Fractional orders leave room to slot passes between phases without
// renumbering. Options apply to the root and both sub-registries.
func NewDefaultRegistry(opts ...optdb.RegistryOption) *optdb.Registry {
	root := optdb.NewRegistry("default", optdb.KindSequence, opts...)

	canon := optdb.NewRegistry("canonicalize", optdb.KindEquilibrium, opts...)
	for i, rule := range Rules() {
		canon.MustRegister(rule.Name(), rule, float64(i+1), TagBasic, TagCanonicalize)
	}

	inplace := optdb.NewRegistry("inplace", optdb.KindSequence, opts...)
	inplace.MustRegister("add_to_add_inplace", InplaceAdd(), 1, optdb.InplaceTag)

	root.MustRegister("merge_initial", rewrite.NewMerge(), 0, TagBasic, TagMerge)
	root.MustRegister("canonicalize", canon, 1, TagBasic, TagCanonicalize)
	root.MustRegister("merge_mid", rewrite.NewMerge(), 48.5, TagBasic, TagMerge)
	if err := root.RegisterDestroyHandler("destroy_handler", 49.5, TagBasic, optdb.InplaceTag); err != nil {
		panic(err)
	}
	root.MustRegister("inplace", inplace, 75, optdb.InplaceTag)
	root.MustRegister("merge_final", rewrite.NewMerge(), 100, TagBasic, TagMerge, TagStabilize)

	return root
}

// DefaultQuery selects the standard pipeline: everything tagged basic,
// without the opt-in in-place substitutions.
func DefaultQuery() optdb.Query {
	return optdb.MustQuery(TagBasic)
}

// InplaceQuery selects the standard pipeline plus the in-place
// substitution group.
func InplaceQuery() optdb.Query {
	return DefaultQuery().Including(optdb.InplaceTag)
}
