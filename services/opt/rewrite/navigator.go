// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// Navigator drives local rewrite rules over the graph in one
// topological pass.
//
// # Traversal
//
// Nodes are visited in the graph's deterministic topological order
// (inputs before consumers), or the reverse of it when configured. For
// each node, registered rules are tried in registration order; the
// first non-reject result wins, its replacements are applied through
// validated replace, and traversal moves to the next node. A node is
// not revisited within the pass; wrap the navigator in an Equilibrium
// group when changes should be chased to a fixpoint.
//
// # Thread Safety
//
// A Navigator holds only counters between runs and may be reused, but
// the graph itself is single-threaded: one rewrite at a time.
type Navigator struct {
	name    string
	rules   []Local
	reverse bool
	logger  *slog.Logger

	replacements atomic.Int64
	rejections   atomic.Int64

	metricsOnce  sync.Once
	replacedCtr  metric.Int64Counter
	rejectedCtr  metric.Int64Counter
	nodesVisited metric.Int64Counter
}

// NavigatorOption configures a Navigator.
type NavigatorOption func(*Navigator)

// WithReverse makes the navigator traverse in reverse topological
// order (consumers before inputs).
func WithReverse() NavigatorOption {
	return func(n *Navigator) {
		n.reverse = true
	}
}

// WithNavigatorLogger sets the logger. Default: slog.Default().
func WithNavigatorLogger(l *slog.Logger) NavigatorOption {
	return func(n *Navigator) {
		n.logger = l
	}
}

// NewNavigator creates a navigator driving the given local rules, tried
// in the given order on every node.
func NewNavigator(name string, rules []Local, opts ...NavigatorOption) *Navigator {
	nav := &Navigator{
		name:   name,
		rules:  rules,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(nav)
	}
	return nav
}

// Name implements Rewriter.
func (nav *Navigator) Name() string { return nav.name }

// Prepare implements Rewriter. Navigators have no requirements of their
// own; rules needing features are registered behind marker passes.
func (nav *Navigator) Prepare(*graph.Graph) error { return nil }

// Replacements implements Replacing.
func (nav *Navigator) Replacements() int64 { return nav.replacements.Load() }

// initMetrics lazily initializes metrics. Logs failures but continues;
// observability degrades gracefully.
func (nav *Navigator) initMetrics() {
	nav.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		nav.replacedCtr, err = meter.Int64Counter("rewrite_replacements_total",
			metric.WithDescription("Number of successful output replacements"),
		)
		if err != nil {
			initErrors = append(initErrors, "replacements: "+err.Error())
		}

		nav.rejectedCtr, err = meter.Int64Counter("rewrite_rejections_total",
			metric.WithDescription("Number of replacements rejected by validation features"),
		)
		if err != nil {
			initErrors = append(initErrors, "rejections: "+err.Error())
		}

		nav.nodesVisited, err = meter.Int64Counter("rewrite_nodes_visited_total",
			metric.WithDescription("Number of apply nodes visited by navigators"),
		)
		if err != nil {
			initErrors = append(initErrors, "nodes_visited: "+err.Error())
		}

		if len(initErrors) > 0 {
			nav.logger.Error("failed to initialize some rewrite metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Apply implements Rewriter: one topological pass of every rule over
// every node.
func (nav *Navigator) Apply(ctx context.Context, g *graph.Graph) error {
	if ctx == nil {
		return ErrNilContext
	}
	nav.initMetrics()

	ctx, span := tracer.Start(ctx, "rewrite.Navigator",
		trace.WithAttributes(
			attribute.String("pass", nav.name),
			attribute.Int("rules", len(nav.rules)),
			attribute.Bool("reverse", nav.reverse),
		),
	)
	defer span.End()

	order, err := g.Toposort()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if nav.reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	attrs := metric.WithAttributes(attribute.String("pass", nav.name))
	passReplaced, passRejected := 0, 0

	for _, id := range order {
		select {
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "context canceled")
			return ctx.Err()
		default:
		}

		if nav.nodesVisited != nil {
			nav.nodesVisited.Add(ctx, 1, attrs)
		}

		for _, rule := range nav.rules {
			replaced, rejected, err := applyLocal(g, rule, id)
			passRejected += rejected
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			if replaced > 0 {
				passReplaced += replaced
				nav.logger.Debug("node rewritten",
					slog.String("pass", nav.name),
					slog.String("rule", rule.Name()),
					slog.Int("node", int(id)),
				)
				break // first non-reject wins; next node
			}
			if rejected > 0 {
				// Rejection is treated exactly like the rule returning
				// no change; keep trying later rules.
				continue
			}
		}
	}

	nav.replacements.Add(int64(passReplaced))
	nav.rejections.Add(int64(passRejected))
	if nav.replacedCtr != nil {
		nav.replacedCtr.Add(ctx, int64(passReplaced), attrs)
	}
	if nav.rejectedCtr != nil {
		nav.rejectedCtr.Add(ctx, int64(passRejected), attrs)
	}

	span.SetStatus(codes.Ok, "")
	nav.logger.Debug("navigator pass complete",
		slog.String("pass", nav.name),
		slog.Int("nodes", len(order)),
		slog.Int("replaced", passReplaced),
		slog.Int("rejected", passRejected),
	)
	return nil
}
