// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// graphFile is the YAML shape of a graph description.
type graphFile struct {
	Inputs  []inputSpec `yaml:"inputs"`
	Nodes   []nodeSpec  `yaml:"nodes"`
	Outputs []string    `yaml:"outputs"`
}

// inputSpec declares a graph input, or a constant when Value is set.
type inputSpec struct {
	Name  string   `yaml:"name"`
	Type  string   `yaml:"type,omitempty"`
	Value *float64 `yaml:"value,omitempty"`
}

// nodeSpec declares one apply node. Inputs and the output are referred
// to by name; nodes must appear after the names they consume.
type nodeSpec struct {
	Op  string   `yaml:"op"`
	In  []string `yaml:"in"`
	Out string   `yaml:"out"`
}

// loadGraph reads a YAML graph description and builds the graph.
//
// Every error carries the offending name, so a hand-written description
// is debuggable from the message alone.
func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph description: %w", err)
	}

	var gf graphFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parsing graph description: %w", err)
	}

	g := graph.New()
	vars := make(map[string]graph.VarID, len(gf.Inputs)+len(gf.Nodes))

	for _, in := range gf.Inputs {
		if in.Name == "" {
			return nil, fmt.Errorf("%s: input without a name", path)
		}
		if _, ok := vars[in.Name]; ok {
			return nil, fmt.Errorf("%s: duplicate name %q", path, in.Name)
		}
		if in.Value != nil {
			vars[in.Name] = g.AddConstant(*in.Value, in.Type)
		} else {
			vars[in.Name] = g.AddInput(in.Name, in.Type)
		}
	}

	for _, n := range gf.Nodes {
		op, ok := graph.OpByName(n.Op)
		if !ok {
			return nil, fmt.Errorf("%s: unknown operator %q", path, n.Op)
		}
		if n.Out == "" {
			return nil, fmt.Errorf("%s: %s node without an output name", path, n.Op)
		}
		if _, ok := vars[n.Out]; ok {
			return nil, fmt.Errorf("%s: duplicate name %q", path, n.Out)
		}
		inputs := make([]graph.VarID, len(n.In))
		for i, name := range n.In {
			v, ok := vars[name]
			if !ok {
				return nil, fmt.Errorf("%s: %s reads undefined name %q", path, n.Op, name)
			}
			inputs[i] = v
		}
		outs, err := g.AddApply(op, inputs...)
		if err != nil {
			return nil, fmt.Errorf("%s: node %q: %w", path, n.Out, err)
		}
		vars[n.Out] = outs[0]
		g.Var(outs[0]).Name = n.Out
	}

	if len(gf.Outputs) == 0 {
		return nil, fmt.Errorf("%s: no outputs declared", path)
	}
	outputs := make([]graph.VarID, len(gf.Outputs))
	for i, name := range gf.Outputs {
		v, ok := vars[name]
		if !ok {
			return nil, fmt.Errorf("%s: undefined output %q", path, name)
		}
		outputs[i] = v
	}
	if err := g.SetOutputs(outputs...); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
