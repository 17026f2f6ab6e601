// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// Equilibrium drives local rewrite rules to a fixpoint.
//
// # Traversal
//
// The graph is swept repeatedly: each sweep visits every node in the
// stable topological order (recomputed at the start of the sweep, with
// the arena's NodeID ascending tie-break, so the same input graph and
// rule set always produce the same output graph) and tries every rule
// on every node. A sweep that changes nothing terminates the run.
//
// # Convergence
//
// Every rule in an equilibrium group must be confluent toward a
// fixpoint; two rules that undo each other oscillate forever, which the
// engine cannot detect generically. The sweep bound converts such
// authoring errors into a recoverable ErrNonConvergence instead of a
// hang: the run aborts and the partially-optimized graph is kept.
type Equilibrium struct {
	name      string
	rules     []Local
	maxSweeps int
	logger    *slog.Logger

	replacements atomic.Int64
}

// EquilibriumOption configures an Equilibrium.
type EquilibriumOption func(*Equilibrium)

// WithMaxSweeps overrides the sweep safety bound.
func WithMaxSweeps(n int) EquilibriumOption {
	return func(e *Equilibrium) {
		if n > 0 {
			e.maxSweeps = n
		}
	}
}

// WithEquilibriumLogger sets the logger. Default: slog.Default().
func WithEquilibriumLogger(l *slog.Logger) EquilibriumOption {
	return func(e *Equilibrium) {
		e.logger = l
	}
}

// DefaultMaxSweeps returns the default sweep bound for a group of the
// given size. Scales with the rule count: more rules legitimately need
// more sweeps to settle.
func DefaultMaxSweeps(numRules int) int {
	return 8*numRules + 10
}

// NewEquilibrium creates a fixpoint runner over the given local rules.
func NewEquilibrium(name string, rules []Local, opts ...EquilibriumOption) *Equilibrium {
	e := &Equilibrium{
		name:      name,
		rules:     rules,
		maxSweeps: DefaultMaxSweeps(len(rules)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements Rewriter.
func (e *Equilibrium) Name() string { return e.name }

// NumRules returns the number of rules in the group.
func (e *Equilibrium) NumRules() int { return len(e.rules) }

// Prepare implements Rewriter.
func (e *Equilibrium) Prepare(*graph.Graph) error { return nil }

// Replacements implements Replacing.
func (e *Equilibrium) Replacements() int64 { return e.replacements.Load() }

// Apply implements Rewriter: sweep until a clean sweep or the bound.
func (e *Equilibrium) Apply(ctx context.Context, g *graph.Graph) error {
	if ctx == nil {
		return ErrNilContext
	}

	ctx, span := tracer.Start(ctx, "rewrite.Equilibrium",
		trace.WithAttributes(
			attribute.String("pass", e.name),
			attribute.Int("rules", len(e.rules)),
			attribute.Int("max_sweeps", e.maxSweeps),
		),
	)
	defer span.End()

	for sweep := 1; ; sweep++ {
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context canceled")
			return ctx.Err()
		default:
		}

		if sweep > e.maxSweeps {
			err := fmt.Errorf("%w: group %s after %d sweeps",
				ErrNonConvergence, e.name, e.maxSweeps)
			e.logger.Warn("equilibrium sweep bound exceeded",
				slog.String("pass", e.name),
				slog.Int("max_sweeps", e.maxSweeps),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		changed, err := e.sweep(g)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		e.replacements.Add(int64(changed))

		if changed == 0 {
			span.SetAttributes(attribute.Int("sweeps", sweep))
			span.SetStatus(codes.Ok, "")
			e.logger.Debug("equilibrium reached",
				slog.String("pass", e.name),
				slog.Int("sweeps", sweep),
			)
			return nil
		}

		e.logger.Debug("equilibrium sweep",
			slog.String("pass", e.name),
			slog.Int("sweep", sweep),
			slog.Int("changed", changed),
		)
	}
}

// sweep runs every rule over every node once, in stable topological
// order, and returns the number of replacements performed.
func (e *Equilibrium) sweep(g *graph.Graph) (int, error) {
	order, err := g.Toposort()
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range order {
		for _, rule := range e.rules {
			replaced, _, err := applyLocal(g, rule, id)
			if err != nil {
				return changed, err
			}
			if replaced > 0 {
				changed += replaced
				break // node rewritten; next node this sweep
			}
		}
	}
	return changed, nil
}
