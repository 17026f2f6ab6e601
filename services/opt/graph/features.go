// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// Feature is a pluggable graph extension attached via AttachFeature.
//
// Features observe and constrain graph mutation. A feature kind is
// attached at most once; re-attaching the same kind is a no-op, so
// rewriters can declare their requirements without coordinating.
type Feature interface {
	// Kind is the feature's unique identifier.
	Kind() string

	// OnAttach is called once when the feature is attached, with the
	// graph in its current state. Features that track graph structure
	// initialize from a full scan here.
	OnAttach(g *Graph)
}

// Validator is implemented by features that can veto a replacement.
//
// ReplaceValidate asks every attached Validator before mutating; the
// first rejection aborts the replacement with the graph unchanged.
type Validator interface {
	Feature

	// Validate inspects a proposed replacement of old by new.
	// Returning a non-nil error rejects it.
	Validate(g *Graph, old, new VarID) error
}

// ReplaceObserver is implemented by features that track rewiring.
// OnReplace is called after a replacement has been applied.
type ReplaceObserver interface {
	Feature

	OnReplace(g *Graph, old, new VarID)
}

// ApplyObserver is implemented by features that track node creation.
// OnAddApply is called after a new apply node has been added.
type ApplyObserver interface {
	Feature

	OnAddApply(g *Graph, id NodeID)
}

// AttachFeature attaches a feature to the graph.
//
// Idempotent per feature kind: if a feature with the same Kind() is
// already attached, the call is a no-op and the existing feature stays
// in place (no duplicate side effects).
func (g *Graph) AttachFeature(f Feature) {
	for _, existing := range g.features {
		if existing.Kind() == f.Kind() {
			return
		}
	}
	g.features = append(g.features, f)
	f.OnAttach(g)
	g.logger.Debug("feature attached", "kind", f.Kind())
}

// FeatureByKind returns the attached feature with the given kind,
// or nil if none is attached.
func (g *Graph) FeatureByKind(kind string) Feature {
	for _, f := range g.features {
		if f.Kind() == kind {
			return f
		}
	}
	return nil
}

// TypeGuard is a validation feature that rejects replacements changing
// a variable's type tag. It is the default correctness guard: a rewrite
// must produce a value of the same type as the one it replaces.
type TypeGuard struct{}

// TypeGuardKind is the feature kind of TypeGuard.
const TypeGuardKind = "type-guard"

// Kind implements Feature.
func (TypeGuard) Kind() string { return TypeGuardKind }

// OnAttach implements Feature. TypeGuard is stateless.
func (TypeGuard) OnAttach(*Graph) {}

// Validate implements Validator.
func (TypeGuard) Validate(g *Graph, old, new VarID) error {
	ov, nv := g.Var(old), g.Var(new)
	if ov == nil || nv == nil {
		return ErrVarNotFound
	}
	if ov.Type != "" && nv.Type != "" && ov.Type != nv.Type {
		return ErrTypeMismatch
	}
	return nil
}
