// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command graphopt optimizes computation graphs from the command line.
//
// Usage:
//
//	graphopt optimize --graph g.yaml [--query q.yaml] [--max-sweeps N] [--json]
//	graphopt plan [--query q.yaml]
//
// The graph description is YAML:
//
//	inputs:
//	  - {name: x, type: tensor}
//	  - {name: one, value: 1}
//	nodes:
//	  - {op: mul, in: [x, one], out: scaled}
//	outputs: [scaled]
//
// The query config selects and shapes the optimization pipeline; see
// the optdb package for its format. Without --query the standard
// pipeline runs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
