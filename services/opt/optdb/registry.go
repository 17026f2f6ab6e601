// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package optdb

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/AleutianAI/AleutianOpt/services/opt/destroy"
	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
	"github.com/AleutianAI/AleutianOpt/services/opt/rewrite"
)

// Kind selects how a registry resolves: into a strict sequence of
// passes, or into one equilibrium group running its local rules to a
// joint fixpoint. The kind is fixed at construction, not decided by the
// query.
type Kind int

const (
	// KindSequence resolves into a sequence pipeline: selected entries
	// run once each, in ascending order.
	KindSequence Kind = iota

	// KindEquilibrium resolves into a single equilibrium pass over the
	// selected local rules.
	KindEquilibrium
)

// entry is one registered item: exactly one of rewriter, local, or sub
// is set.
type entry struct {
	name     string
	rewriter rewrite.Rewriter
	local    rewrite.Local
	sub      *Registry
	order    float64
	tags     map[string]bool
	seq      int
}

// Registry is an append-only database of named, ordered, tagged rewrite
// entries.
//
// # Thread Safety
//
// Registries are built once during setup and read-only afterwards; no
// internal locking. Do not Register concurrently with Resolve.
type Registry struct {
	name    string
	kind    Kind
	entries []*entry
	byName  map[string]*entry
	logger  *slog.Logger

	// inplaceBoundary is the first order at which in-place rewrites are
	// accepted, once a destroy handler is registered: the next
	// whole-numbered phase after the handler.
	hasHandler      bool
	inplaceBoundary float64

	maxSweeps int
}

// InplaceTag marks entries that introduce in-place operators. The
// registry refuses such entries ahead of the destroy handler's phase
// boundary.
const InplaceTag = "inplace"

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger. Default: slog.Default().
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMaxSweeps caps the sweeps of equilibrium groups this registry
// resolves. Zero (the default) leaves each group's graph-size-derived
// bound in place.
func WithMaxSweeps(n int) RegistryOption {
	return func(r *Registry) {
		r.maxSweeps = n
	}
}

// NewRegistry creates an empty registry of the given kind.
func NewRegistry(name string, kind Kind, opts ...RegistryOption) *Registry {
	r := &Registry{
		name:   name,
		kind:   kind,
		byName: make(map[string]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the registry name; resolved pipelines carry it.
func (r *Registry) Name() string { return r.name }

// Kind returns the resolution kind fixed at construction.
func (r *Registry) Kind() Kind { return r.kind }

// Len returns the number of registered entries.
func (r *Registry) Len() int { return len(r.entries) }

// Register adds an entry.
//
// # Description
//
// item must be a rewrite.Rewriter, a rewrite.Local, or a *Registry
// (sub-registry, resolved recursively). Equilibrium registries accept
// only rewrite.Local items. Names are unique per registry; ties in
// order resolve by registration sequence.
//
// Outputs:
//   - error: ErrDuplicateEntry, ErrInvalidEntry, ErrNotLocal, or
//     ErrInplaceBeforeDestroy. All are configuration errors; the
//     registry is unchanged when one is returned.
func (r *Registry) Register(name string, item any, order float64, tags ...string) error {
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}

	e := &entry{
		name:  name,
		order: order,
		tags:  tagSet(tags),
		seq:   len(r.entries),
	}

	switch it := item.(type) {
	case *Registry:
		if r.kind == KindEquilibrium {
			return fmt.Errorf("%w: %q is a sub-registry", ErrNotLocal, name)
		}
		e.sub = it
	case rewrite.Local:
		e.local = it
	case rewrite.Rewriter:
		if r.kind == KindEquilibrium {
			return fmt.Errorf("%w: %q is a global rewriter", ErrNotLocal, name)
		}
		e.rewriter = it
	default:
		return fmt.Errorf("%w: %q has unsupported type %T", ErrInvalidEntry, name, item)
	}

	if e.tags[InplaceTag] && r.hasHandler && order < r.inplaceBoundary {
		return fmt.Errorf("%w: %q at order %v, boundary %v",
			ErrInplaceBeforeDestroy, name, order, r.inplaceBoundary)
	}

	r.entries = append(r.entries, e)
	r.byName[name] = e
	r.logger.Debug("registry entry added",
		slog.String("registry", r.name),
		slog.String("entry", name),
		slog.Float64("order", order),
	)
	return nil
}

// MustRegister is Register for statically-known entries; panics on a
// configuration error.
func (r *Registry) MustRegister(name string, item any, order float64, tags ...string) {
	if err := r.Register(name, item, order, tags...); err != nil {
		panic(err)
	}
}

// RegisterDestroyHandler registers the destroy handler marker pass and
// arms the in-place scheduling check.
//
// After this call, entries tagged "inplace" must be ordered at or after
// the next whole-numbered phase boundary (a handler at 49.5 puts the
// boundary at 50). Already-registered in-place entries ahead of the
// boundary fail the call.
func (r *Registry) RegisterDestroyHandler(name string, order float64, tags ...string) error {
	if r.hasHandler {
		return fmt.Errorf("%w: %q", ErrDuplicateDestroyHandler, name)
	}
	boundary := math.Floor(order) + 1
	for _, e := range r.entries {
		if e.tags[InplaceTag] && e.order < boundary {
			return fmt.Errorf("%w: %q at order %v, boundary %v",
				ErrInplaceBeforeDestroy, e.name, e.order, boundary)
		}
	}
	if err := r.Register(name, destroy.NewMarker(), order, tags...); err != nil {
		return err
	}
	r.hasHandler = true
	r.inplaceBoundary = boundary
	return nil
}

// Select returns the names of the entries the query selects, in
// resolution order. Used by planning tools; Resolve is the runnable
// counterpart.
func (r *Registry) Select(q Query) ([]string, error) {
	selected, err := r.selectEntries(q)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range selected {
		names = append(names, e.name)
	}
	return names, nil
}

// Resolve builds the runnable pipeline the query selects.
//
// # Description
//
// Selected entries are ordered by ascending order, registration
// sequence on ties. A sequence registry yields a rewrite.Sequence whose
// members are the selected rewriters (carrying their registry entry
// names), local rules wrapped in single-rule navigators, and
// recursively resolved sub-registries
// (under the query's override for the entry name, defaulting to the
// query itself; sub-registries resolving to nothing are dropped). An
// equilibrium registry yields one rewrite.Equilibrium over the selected
// local rules.
//
// Outputs:
//   - rewrite.Rewriter: the pipeline. Resolving twice with the same
//     query yields the same pass order.
//   - error: ErrEmptyQuery for an unusable query; configuration errors
//     from sub-registry resolution.
func (r *Registry) Resolve(q Query) (rewrite.Rewriter, error) {
	selected, err := r.selectEntries(q)
	if err != nil {
		return nil, err
	}

	if r.kind == KindEquilibrium {
		rules := make([]rewrite.Local, len(selected))
		for i, e := range selected {
			rules[i] = e.local
		}
		opts := []rewrite.EquilibriumOption{rewrite.WithEquilibriumLogger(r.logger)}
		if r.maxSweeps > 0 {
			opts = append(opts, rewrite.WithMaxSweeps(r.maxSweeps))
		}
		return rewrite.NewEquilibrium(r.name, rules, opts...), nil
	}

	var passes []rewrite.Rewriter
	for _, e := range selected {
		switch {
		case e.sub != nil:
			sub, err := e.sub.Resolve(q.Subquery(e.name))
			if err != nil {
				return nil, fmt.Errorf("resolving sub-registry %q: %w", e.name, err)
			}
			if empty(sub) {
				continue
			}
			passes = append(passes, sub)
		case e.local != nil:
			passes = append(passes, rewrite.NewNavigator(e.name,
				[]rewrite.Local{e.local},
				rewrite.WithNavigatorLogger(r.logger)))
		default:
			passes = append(passes, named{name: e.name, inner: e.rewriter})
		}
	}
	return rewrite.NewSequence(r.name, passes,
		rewrite.WithSequenceLogger(r.logger)), nil
}

// named presents a registered rewriter under its registry entry name.
// The same pass is often registered several times at different orders
// (merge before, between, and after other groups); the entry name keeps
// those occurrences distinguishable in plans and run reports.
type named struct {
	name  string
	inner rewrite.Rewriter
}

func (n named) Name() string { return n.name }

func (n named) Prepare(g *graph.Graph) error { return n.inner.Prepare(g) }

func (n named) Apply(ctx context.Context, g *graph.Graph) error {
	return n.inner.Apply(ctx, g)
}

// Replacements implements rewrite.Replacing by delegation.
func (n named) Replacements() int64 {
	if rep, ok := n.inner.(rewrite.Replacing); ok {
		return rep.Replacements()
	}
	return 0
}

// selectEntries applies the query filter and the (order, seq) sort.
func (r *Registry) selectEntries(q Query) ([]*entry, error) {
	if !q.valid() {
		return nil, ErrEmptyQuery
	}
	var selected []*entry
	for _, e := range r.entries {
		if q.Selects(e.tags) {
			selected = append(selected, e)
		}
	}
	// Entries arrive in registration sequence; the stable sort keeps
	// that sequence on order ties.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].order < selected[j].order
	})
	return selected, nil
}

// empty reports whether a resolved pipeline has nothing to run.
func empty(rw rewrite.Rewriter) bool {
	switch p := rw.(type) {
	case *rewrite.Sequence:
		return len(p.Passes()) == 0
	case *rewrite.Equilibrium:
		return p.NumRules() == 0
	}
	return false
}
