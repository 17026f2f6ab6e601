// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "fmt"

// Replace rebinds every consumer edge of old to new, including the
// graph's declared outputs. No validation is performed; rewrite engines
// should go through ReplaceValidate.
//
// Replacing a variable with itself is a no-op.
func (g *Graph) Replace(old, new VarID) error {
	if !g.validVar(old) {
		return fmt.Errorf("%w: old %d", ErrVarNotFound, old)
	}
	if !g.validVar(new) {
		return fmt.Errorf("%w: new %d", ErrVarNotFound, new)
	}
	if old == new {
		return nil
	}

	uses := g.consumers[old]
	for _, use := range uses {
		g.nodes[use.Node].Inputs[use.Slot] = new
	}
	g.consumers[new] = append(g.consumers[new], uses...)
	g.consumers[old] = nil

	for i, out := range g.outputs {
		if out == old {
			g.outputs[i] = new
		}
	}

	for _, f := range g.features {
		if obs, ok := f.(ReplaceObserver); ok {
			obs.OnReplace(g, old, new)
		}
	}

	return nil
}

// ReplaceValidate is Replace guarded by the attached validation
// features.
//
// Every attached Validator is asked to accept or reject the replacement
// before any mutation happens. On rejection the graph is left unchanged
// for this call and the error wraps ErrInvalidRewrite; callers treat
// that exactly like the rule returning no change.
func (g *Graph) ReplaceValidate(old, new VarID) error {
	if !g.validVar(old) {
		return fmt.Errorf("%w: old %d", ErrVarNotFound, old)
	}
	if !g.validVar(new) {
		return fmt.Errorf("%w: new %d", ErrVarNotFound, new)
	}
	if old == new {
		return nil
	}

	for _, f := range g.features {
		v, ok := f.(Validator)
		if !ok {
			continue
		}
		if err := v.Validate(g, old, new); err != nil {
			g.logger.Debug("replacement rejected",
				"feature", f.Kind(), "old", old, "new", new, "reason", err)
			return fmt.Errorf("%w: feature %s: %w", ErrInvalidRewrite, f.Kind(), err)
		}
	}

	return g.Replace(old, new)
}

// Prune removes apply nodes that are no longer reachable from the
// graph's declared outputs, detaching their consumer edges. Returns the
// number of nodes removed.
//
// Rewrites orphan nodes rather than deleting them eagerly; Prune is the
// collection point, typically run once per pipeline.
func (g *Graph) Prune() int {
	reachable := make([]bool, len(g.nodes))

	var visit func(v VarID)
	visit = func(v VarID) {
		owner := g.vars[v].Owner
		if owner == InvalidNode || reachable[owner] || g.nodes[owner].dead {
			return
		}
		reachable[owner] = true
		for _, in := range g.nodes[owner].Inputs {
			visit(in)
		}
	}
	for _, out := range g.outputs {
		visit(out)
	}

	removed := 0
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.dead || reachable[n.ID] {
			continue
		}
		n.dead = true
		removed++
		for slot, in := range n.Inputs {
			g.removeUse(in, Use{Node: n.ID, Slot: slot})
		}
	}

	if removed > 0 {
		g.logger.Debug("pruned unreachable nodes", "removed", removed)
	}
	return removed
}

// Remove deletes a single apply node whose outputs nothing references,
// detaching its input edges and marking it dead.
//
// A node whose outputs still have consumers, or appear among the
// graph's declared outputs, cannot be removed; ErrNodeInUse is
// returned and the graph is unchanged. Passes that fold a node onto a
// canonical copy use Remove to retire the duplicate immediately
// instead of leaving it for the pipeline-end Prune.
func (g *Graph) Remove(id NodeID) error {
	if id < 0 || int(id) >= len(g.nodes) || g.nodes[id].dead {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	n := &g.nodes[id]
	for _, out := range n.Outputs {
		if len(g.consumers[out]) > 0 {
			return fmt.Errorf("%w: output %d has consumers", ErrNodeInUse, out)
		}
		for _, declared := range g.outputs {
			if declared == out {
				return fmt.Errorf("%w: output %d is a graph output", ErrNodeInUse, out)
			}
		}
	}

	n.dead = true
	for slot, in := range n.Inputs {
		g.removeUse(in, Use{Node: id, Slot: slot})
	}
	return nil
}

// removeUse deletes one consumer edge from a variable's use list.
func (g *Graph) removeUse(v VarID, use Use) {
	uses := g.consumers[v]
	for i := range uses {
		if uses[i] == use {
			g.consumers[v] = append(uses[:i], uses[i+1:]...)
			return
		}
	}
}
