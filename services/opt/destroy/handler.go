// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package destroy implements the destroy handler: the graph feature
// that makes in-place rewrites safe to validate.
//
// An in-place operator overwrites one of its inputs' storage. That is
// only correct when no other live consumer depends on the pre-mutation
// value. The handler tracks which variables are destroyed and by whom,
// and vetoes any replacement that would leave a destroyed variable with
// another live reader.
//
// # Scheduling Invariant
//
// Rewrites that introduce in-place operators must run strictly after
// the handler is attached; scheduling them before it is a correctness
// bug (silently wrong results), because in-place safety cannot be
// checked without the tracking in place. The registry enforces this
// ordering at registration time.
package destroy

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// HandlerKind is the feature kind of Handler.
const HandlerKind = "destroy-handler"

// ErrUnsafeInplace is the cause reported when a replacement would let
// an in-place operator destroy a value another live consumer still
// needs, or destroy a graph input or output.
var ErrUnsafeInplace = fmt.Errorf("unsafe in-place operation")

// Handler is the destroy-tracking graph feature.
//
// It maintains a map from destroyed variable to the apply node
// destroying it, kept current across node creation and replacement, and
// validates every proposed replacement against it.
type Handler struct {
	// destroyers maps a variable to the in-place node overwriting it.
	destroyers map[graph.VarID]graph.NodeID
}

// NewHandler creates an unattached destroy handler.
func NewHandler() *Handler {
	return &Handler{
		destroyers: make(map[graph.VarID]graph.NodeID),
	}
}

// Kind implements graph.Feature.
func (h *Handler) Kind() string { return HandlerKind }

// OnAttach implements graph.Feature: initializes destroy tracking from
// a full scan of the current graph.
func (h *Handler) OnAttach(g *graph.Graph) {
	for _, id := range allLiveNodes(g) {
		h.track(g, id)
	}
}

// OnAddApply implements graph.ApplyObserver.
func (h *Handler) OnAddApply(g *graph.Graph, id graph.NodeID) {
	h.track(g, id)
}

// OnReplace implements graph.ReplaceObserver: a destroyer whose
// destroyed input was rebound now destroys the replacement.
func (h *Handler) OnReplace(_ *graph.Graph, old, new graph.VarID) {
	if d, ok := h.destroyers[old]; ok {
		delete(h.destroyers, old)
		h.destroyers[new] = d
	}
}

// track records the variables destroyed by the node's operator.
func (h *Handler) track(g *graph.Graph, id graph.NodeID) {
	n := g.Node(id)
	if n == nil || !n.Op.Inplace() {
		return
	}
	for i, in := range n.Inputs {
		if n.Op.Destroys(i) {
			h.destroyers[in] = id
		}
	}
}

// Destroyer returns the node destroying the variable, if any.
func (h *Handler) Destroyer(v graph.VarID) (graph.NodeID, bool) {
	d, ok := h.destroyers[v]
	return d, ok
}

// Validate implements graph.Validator.
//
// The proposed replacement of old by new is checked against every
// tracked destroyer in the post-replacement world: a destroyed variable
// must have no live consumer other than its destroyer, must not be a
// graph input or constant (caller-owned storage), and must not be a
// declared graph output.
func (h *Handler) Validate(g *graph.Graph, old, new graph.VarID) error {
	if len(h.destroyers) == 0 {
		return nil
	}

	live := liveAfterReplace(g, old, new)

	for v, d := range h.destroyers {
		if !live[d] {
			continue // destroyer itself is orphaned by this replacement
		}

		// The destroyer's input rebinds along with everyone else's.
		destroyed := v
		if v == old {
			destroyed = new
		}

		dv := g.Var(destroyed)
		if dv == nil {
			return graph.ErrVarNotFound
		}
		if dv.Owner == graph.InvalidNode {
			return fmt.Errorf("%w: node %d would destroy graph input %q",
				ErrUnsafeInplace, d, dv.Name)
		}
		if !live[dv.Owner] {
			continue
		}

		for _, out := range outputsAfterReplace(g, old, new) {
			if out == destroyed {
				return fmt.Errorf("%w: node %d would destroy graph output",
					ErrUnsafeInplace, d)
			}
		}

		for _, use := range consumersAfterReplace(g, destroyed, old, new) {
			if use.Node != d && live[use.Node] {
				return fmt.Errorf("%w: variable %d destroyed by node %d but still read by node %d",
					ErrUnsafeInplace, destroyed, d, use.Node)
			}
		}
	}
	return nil
}

// liveAfterReplace computes the set of apply nodes reachable from the
// graph outputs as they would be after replacing old by new. Consumers
// that the replacement orphans do not count as live readers.
func liveAfterReplace(g *graph.Graph, old, new graph.VarID) map[graph.NodeID]bool {
	live := make(map[graph.NodeID]bool)

	var visit func(v graph.VarID)
	visit = func(v graph.VarID) {
		if v == old {
			v = new
		}
		owner := g.Var(v).Owner
		if owner == graph.InvalidNode || live[owner] {
			return
		}
		n := g.Node(owner)
		if n == nil {
			return
		}
		live[owner] = true
		for _, in := range n.Inputs {
			visit(in)
		}
	}
	for _, out := range g.Outputs() {
		visit(out)
	}
	return live
}

// outputsAfterReplace returns the graph outputs as they would be after
// the replacement.
func outputsAfterReplace(g *graph.Graph, old, new graph.VarID) []graph.VarID {
	outs := append([]graph.VarID(nil), g.Outputs()...)
	for i, out := range outs {
		if out == old {
			outs[i] = new
		}
	}
	return outs
}

// consumersAfterReplace returns the consumer edges of v as they would
// be after the replacement: old's consumers migrate onto new.
func consumersAfterReplace(g *graph.Graph, v, old, new graph.VarID) []graph.Use {
	uses := append([]graph.Use(nil), g.Consumers(v)...)
	if v == new {
		uses = append(uses, g.Consumers(old)...)
	}
	return uses
}

// allLiveNodes enumerates the live apply nodes in the arena.
func allLiveNodes(g *graph.Graph) []graph.NodeID {
	order, err := g.Toposort()
	if err != nil {
		return nil
	}
	return order
}

// Marker is the pipeline pass that attaches the destroy handler.
//
// It performs no rewriting itself; its Prepare phase attaches the
// feature so that later passes introducing in-place operators are
// validated. It satisfies the rewrite engine's global-rule interface.
type Marker struct{}

// NewMarker creates the destroy handler marker pass.
func NewMarker() Marker { return Marker{} }

// Name identifies the marker in pipelines and registries.
func (Marker) Name() string { return "destroy_handler" }

// Prepare attaches a Handler to the graph. Attachment is idempotent by
// feature kind, so repeated pipelines share one handler.
func (Marker) Prepare(g *graph.Graph) error {
	g.AttachFeature(NewHandler())
	return nil
}

// Apply is a no-op; the marker only carries the Prepare side effect.
func (Marker) Apply(context.Context, *graph.Graph) error { return nil }
