// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"log/slog"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of apply nodes.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxVars is the default maximum number of variables.
	DefaultMaxVars = 4_000_000
)

// VarID addresses a variable in the graph arena.
type VarID int32

// NodeID addresses an apply node in the graph arena.
type NodeID int32

// Invalid arena addresses.
const (
	InvalidVar  VarID  = -1
	InvalidNode NodeID = -1
)

// Variable is a value node in the data-flow graph.
//
// A variable is either a graph input or constant (Owner == InvalidNode)
// or output OutIndex of its owning apply node.
type Variable struct {
	// ID is the variable's arena address.
	ID VarID

	// Name is an optional human-readable label. Graph inputs carry the
	// name from the front end; rewrite-created variables are unnamed.
	Name string

	// Type is an opaque type tag used by validation features.
	// Replacements that change the type are rejected by the type guard.
	Type string

	// Owner is the apply node producing this variable, or InvalidNode
	// for graph inputs and constants.
	Owner NodeID

	// OutIndex is this variable's position in Owner's outputs.
	// Zero when Owner is InvalidNode.
	OutIndex int

	// Const holds the value for constant variables, nil otherwise.
	// Constants with equal values are merged by the merge pass.
	Const *float64
}

// IsConst reports whether the variable is a constant.
func (v *Variable) IsConst() bool {
	return v.Const != nil
}

// Apply is one operator invocation with ordered inputs and outputs.
type Apply struct {
	// ID is the node's arena address.
	ID NodeID

	// Op is the operator tag.
	Op Op

	// Inputs are the consumed variables, in operator argument order.
	Inputs []VarID

	// Outputs are the produced variables. len(Outputs) == Op.NumOutputs().
	Outputs []VarID

	// dead marks nodes orphaned by rewrites and removed by Prune.
	dead bool
}

// Use records one consumer edge: input slot Slot of apply node Node.
type Use struct {
	Node NodeID
	Slot int
}

// Options configures Graph behavior and limits.
type Options struct {
	// MaxNodes is the maximum number of apply nodes. Default: 1,000,000.
	MaxNodes int

	// MaxVars is the maximum number of variables. Default: 4,000,000.
	MaxVars int

	// Logger receives graph diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns sensible defaults for graph configuration.
func DefaultOptions() Options {
	return Options{
		MaxNodes: DefaultMaxNodes,
		MaxVars:  DefaultMaxVars,
		Logger:   slog.Default(),
	}
}

// Option is a functional option for configuring Graph.
type Option func(*Options)

// WithMaxNodes sets the maximum number of apply nodes.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		o.MaxNodes = n
	}
}

// WithMaxVars sets the maximum number of variables.
func WithMaxVars(n int) Option {
	return func(o *Options) {
		o.MaxVars = n
	}
}

// WithLogger sets the logger used for graph diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Graph is the computation graph the rewrite engine mutates.
//
// Lifecycle:
//
//  1. Create with New()
//  2. Build with AddInput(), AddConstant(), AddApply()
//  3. Declare result variables with SetOutputs()
//  4. Hand to the rewrite engine, which mutates through ReplaceValidate
//
// Unlike a frozen read-only graph, this graph stays mutable for its whole
// life; the validated-replace entry point is the mutation discipline.
type Graph struct {
	vars  []Variable
	nodes []Apply

	// consumers[v] lists the input slots currently reading variable v.
	// Maintained incrementally by AddApply and Replace.
	consumers [][]Use

	// outputs are the graph's declared result variables.
	outputs []VarID

	features []Feature

	options Options
	logger  *slog.Logger
}

// New creates an empty graph.
//
// Example:
//
//	g := graph.New()
//	x := g.AddInput("x", "tensor")
//	y := g.AddInput("y", "tensor")
//	sum, _ := g.AddApply(graph.OpAdd, x, y)
//	g.SetOutputs(sum[0])
func New(opts ...Option) *Graph {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	return &Graph{
		options: options,
		logger:  options.Logger,
	}
}

// AddInput creates a graph input variable with the given name and type.
func (g *Graph) AddInput(name, typ string) VarID {
	return g.addVar(Variable{
		Name:  name,
		Type:  typ,
		Owner: InvalidNode,
	})
}

// AddConstant creates a constant variable with the given value and type.
func (g *Graph) AddConstant(value float64, typ string) VarID {
	v := value
	return g.addVar(Variable{
		Type:  typ,
		Owner: InvalidNode,
		Const: &v,
	})
}

// addVar appends a variable to the arena and returns its address.
// Panics if the variable limit is exceeded; the limit exists to catch
// runaway rewrites, not normal construction.
func (g *Graph) addVar(v Variable) VarID {
	if len(g.vars) >= g.options.MaxVars {
		panic(ErrMaxVarsExceeded)
	}
	id := VarID(len(g.vars))
	v.ID = id
	g.vars = append(g.vars, v)
	g.consumers = append(g.consumers, nil)
	return id
}

// AddApply creates an apply node for op over the given inputs and
// returns the new node's output variables.
//
// The input count must match the operator's fixed arity. Output
// variables inherit the type of the first input (operators here are
// type-preserving; type inference proper is out of scope).
func (g *Graph) AddApply(op Op, inputs ...VarID) ([]VarID, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOp, int(op))
	}
	if len(inputs) != op.NumInputs() {
		return nil, fmt.Errorf("%w: %s expects %d inputs, got %d",
			ErrArity, op, op.NumInputs(), len(inputs))
	}
	for _, in := range inputs {
		if !g.validVar(in) {
			return nil, fmt.Errorf("%w: input %d", ErrVarNotFound, in)
		}
	}
	if len(g.nodes) >= g.options.MaxNodes {
		return nil, ErrMaxNodesExceeded
	}

	id := NodeID(len(g.nodes))

	typ := ""
	if len(inputs) > 0 {
		typ = g.vars[inputs[0]].Type
	}

	outputs := make([]VarID, op.NumOutputs())
	for i := range outputs {
		outputs[i] = g.addVar(Variable{
			Type:     typ,
			Owner:    id,
			OutIndex: i,
		})
	}

	g.nodes = append(g.nodes, Apply{
		ID:      id,
		Op:      op,
		Inputs:  append([]VarID(nil), inputs...),
		Outputs: outputs,
	})

	for slot, in := range inputs {
		g.consumers[in] = append(g.consumers[in], Use{Node: id, Slot: slot})
	}

	for _, f := range g.features {
		if obs, ok := f.(ApplyObserver); ok {
			obs.OnAddApply(g, id)
		}
	}

	return outputs, nil
}

// SetOutputs declares the graph's result variables.
func (g *Graph) SetOutputs(vars ...VarID) error {
	for _, v := range vars {
		if !g.validVar(v) {
			return fmt.Errorf("%w: output %d", ErrVarNotFound, v)
		}
	}
	g.outputs = append([]VarID(nil), vars...)
	return nil
}

// Outputs returns the graph's declared result variables.
// The returned slice must not be mutated.
func (g *Graph) Outputs() []VarID {
	return g.outputs
}

// Var returns the variable at the given arena address.
// Returns nil for invalid addresses.
func (g *Graph) Var(id VarID) *Variable {
	if !g.validVar(id) {
		return nil
	}
	return &g.vars[id]
}

// Node returns the apply node at the given arena address.
// Returns nil for invalid addresses and pruned nodes.
func (g *Graph) Node(id NodeID) *Apply {
	if !g.validNode(id) || g.nodes[id].dead {
		return nil
	}
	return &g.nodes[id]
}

// Consumers returns the input slots currently reading the variable.
// The returned slice must not be mutated.
func (g *Graph) Consumers(id VarID) []Use {
	if !g.validVar(id) {
		return nil
	}
	return g.consumers[id]
}

// Owner returns the apply node producing the variable, or nil for
// inputs and constants.
func (g *Graph) Owner(id VarID) *Apply {
	v := g.Var(id)
	if v == nil || v.Owner == InvalidNode {
		return nil
	}
	return g.Node(v.Owner)
}

// NodeCount returns the number of live apply nodes.
func (g *Graph) NodeCount() int {
	n := 0
	for i := range g.nodes {
		if !g.nodes[i].dead {
			n++
		}
	}
	return n
}

// VarCount returns the total number of variables in the arena,
// including ones orphaned by rewrites.
func (g *Graph) VarCount() int {
	return len(g.vars)
}

func (g *Graph) validVar(id VarID) bool {
	return id >= 0 && int(id) < len(g.vars)
}

func (g *Graph) validNode(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// FindApply returns an existing live apply node with the given operator
// and exact input sequence, or InvalidNode if none exists.
//
// Used by rewrite rules that construct replacement subgraphs, so they
// reuse shared structure instead of duplicating it.
func (g *Graph) FindApply(op Op, inputs []VarID) NodeID {
	if len(inputs) == 0 {
		return InvalidNode
	}
	for _, use := range g.consumers[inputs[0]] {
		if use.Slot != 0 {
			continue
		}
		n := g.Node(use.Node)
		if n == nil || n.Op != op || len(n.Inputs) != len(inputs) {
			continue
		}
		match := true
		for i, in := range n.Inputs {
			if in != inputs[i] {
				match = false
				break
			}
		}
		if match {
			return n.ID
		}
	}
	return InvalidNode
}
