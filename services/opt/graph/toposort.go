// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "sort"

// Toposort returns the apply nodes reachable from the graph's outputs
// in a topological order: every node appears after the owners of all
// its inputs.
//
// The order is deterministic: among nodes whose dependencies are all
// satisfied, the lowest NodeID is emitted first. Same graph, same
// order, every call.
//
// Returns ErrCycle if the reachable subgraph contains a cycle, which
// indicates a broken rewrite.
func (g *Graph) Toposort() ([]NodeID, error) {
	reachable := g.reachableNodes()

	// Count, per reachable node, how many of its inputs are produced
	// by reachable nodes that have not been emitted yet.
	indegree := make(map[NodeID]int, len(reachable))
	for _, id := range reachable {
		deg := 0
		for _, in := range g.nodes[id].Inputs {
			owner := g.vars[in].Owner
			if owner != InvalidNode && !g.nodes[owner].dead {
				deg++
			}
		}
		indegree[id] = deg
	}

	// Ready set kept sorted ascending by NodeID for the deterministic
	// tie-break.
	ready := make([]NodeID, 0, len(reachable))
	for _, id := range reachable {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]NodeID, 0, len(reachable))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, out := range g.nodes[id].Outputs {
			for _, use := range g.consumers[out] {
				if _, ok := indegree[use.Node]; !ok {
					continue // consumer not reachable from outputs
				}
				indegree[use.Node]--
				if indegree[use.Node] == 0 {
					ready = insertSorted(ready, use.Node)
				}
			}
		}
	}

	if len(order) != len(reachable) {
		return nil, ErrCycle
	}
	return order, nil
}

// reachableNodes returns the live apply nodes reachable from the
// declared outputs, in arbitrary order.
func (g *Graph) reachableNodes() []NodeID {
	seen := make(map[NodeID]bool)
	var out []NodeID

	var visit func(v VarID)
	visit = func(v VarID) {
		owner := g.vars[v].Owner
		if owner == InvalidNode || seen[owner] || g.nodes[owner].dead {
			return
		}
		seen[owner] = true
		out = append(out, owner)
		for _, in := range g.nodes[owner].Inputs {
			visit(in)
		}
	}
	for _, o := range g.outputs {
		visit(o)
	}
	return out
}

// insertSorted inserts id into a NodeID slice kept in ascending order.
func insertSorted(s []NodeID, id NodeID) []NodeID {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= id })
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = id
	return s
}
