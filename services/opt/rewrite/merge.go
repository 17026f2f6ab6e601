// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// Merge deduplicates structurally identical subgraphs.
//
// # Structural Equality
//
// Two apply nodes are duplicates when they invoke the same operator
// over the identical (already canonicalized) input variables, compared
// by arena identity and in order. Equality is strictly structural: the
// pass knows nothing about algebraic identities, so add(a, b) and
// add(b, a) are never merged. Constants are canonicalized first, by
// (type, value).
//
// # Traversal
//
// Nodes are processed bottom-up (topological order) so that input
// canonicalization happens before a consumer's key is computed: merging
// two leaves immediately exposes their consumers as duplicates within
// the same run. Running Merge on its own output changes nothing.
//
// Rewrites create new structural duplicates, so pipelines register
// Merge at multiple priorities: before, between, and after other
// passes.
type Merge struct {
	logger *slog.Logger

	replacements atomic.Int64
}

// MergeOption configures a Merge pass.
type MergeOption func(*Merge)

// WithMergeLogger sets the logger. Default: slog.Default().
func WithMergeLogger(l *slog.Logger) MergeOption {
	return func(m *Merge) {
		m.logger = l
	}
}

// NewMerge creates a structural deduplication pass.
func NewMerge(opts ...MergeOption) *Merge {
	m := &Merge{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements Rewriter.
func (m *Merge) Name() string { return "merge" }

// Prepare implements Rewriter.
func (m *Merge) Prepare(*graph.Graph) error { return nil }

// Replacements implements Replacing.
func (m *Merge) Replacements() int64 { return m.replacements.Load() }

// constKey identifies a constant for canonicalization.
type constKey struct {
	typ   string
	value float64
}

// Apply implements Rewriter.
func (m *Merge) Apply(ctx context.Context, g *graph.Graph) error {
	if ctx == nil {
		return ErrNilContext
	}

	_, span := tracer.Start(ctx, "rewrite.Merge")
	defer span.End()

	merged := 0

	// Canonicalize constants first: equal-valued constants of the same
	// type collapse onto the lowest-ID one.
	canonConst := make(map[constKey]graph.VarID)
	for id := graph.VarID(0); int(id) < g.VarCount(); id++ {
		v := g.Var(id)
		if !v.IsConst() || len(g.Consumers(id)) == 0 {
			continue
		}
		key := constKey{typ: v.Type, value: *v.Const}
		canon, ok := canonConst[key]
		if !ok {
			canonConst[key] = id
			continue
		}
		if err := g.ReplaceValidate(id, canon); err != nil {
			if isRejection(err) {
				continue
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		merged++
	}

	order, err := g.Toposort()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Hash buckets candidate duplicates; an exact (op, inputs) check
	// decides, so hash collisions only cost a comparison.
	buckets := make(map[uint64][]graph.NodeID, len(order))

	for _, id := range order {
		n := g.Node(id)
		if n == nil {
			continue
		}

		key := structuralKey(n)
		dup := graph.InvalidNode
		for _, candID := range buckets[key] {
			if cand := g.Node(candID); cand != nil && sameStructure(cand, n) {
				dup = candID
				break
			}
		}
		if dup == graph.InvalidNode {
			buckets[key] = append(buckets[key], id)
			continue
		}

		// Later node folds onto the earlier one, output by output.
		earlier := g.Node(dup)
		rejectedAny := false
		for i, out := range n.Outputs {
			if err := g.ReplaceValidate(out, earlier.Outputs[i]); err != nil {
				if isRejection(err) {
					rejectedAny = true
					continue
				}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			merged++
		}
		if rejectedAny {
			// Partially merged nodes stay indexed so later duplicates
			// can still fold onto the earlier node.
			buckets[key] = append(buckets[key], id)
			continue
		}

		// Fully folded: nothing references the duplicate anymore, so
		// retire it now. Keeps the structural-key uniqueness property
		// over the whole arena, not just the reachable subgraph.
		if err := g.Remove(id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	m.replacements.Add(int64(merged))
	span.SetAttributes(attribute.Int("merged", merged))
	span.SetStatus(codes.Ok, "")
	if merged > 0 {
		m.logger.Debug("merge pass complete", slog.Int("merged", merged))
	}
	return nil
}

// structuralKey hashes (operator, input identities). Inputs are already
// canonical when the node is reached bottom-up.
func structuralKey(n *graph.Apply) uint64 {
	h := fnv.New64a()
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], uint32(n.Op))
	h.Write(buf[:])
	for _, in := range n.Inputs {
		binary.LittleEndian.PutUint32(buf[:], uint32(in))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// sameStructure reports whether two nodes invoke the same operator over
// identical inputs, in order.
func sameStructure(a, b *graph.Apply) bool {
	if a.Op != b.Op || len(a.Inputs) != len(b.Inputs) {
		return false
	}
	for i := range a.Inputs {
		if a.Inputs[i] != b.Inputs[i] {
			return false
		}
	}
	return true
}
