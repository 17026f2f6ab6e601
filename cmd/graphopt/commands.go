// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	graphPath string
	queryPath string
	maxSweeps int
	jsonOut   bool
	inplace   bool
	verbose   bool
	telem     bool

	rootCmd = &cobra.Command{
		Use:   "graphopt",
		Short: "Rule-based optimizer for symbolic computation graphs",
	}

	optimizeCmd = &cobra.Command{
		Use:   "optimize",
		Short: "Load a graph description, run the optimization pipeline, report the result",
		RunE:  runOptimize, // Defined in cmd_optimize.go
	}

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Print the pass order a query resolves to, without running anything",
		RunE:  runPlan, // Defined in cmd_plan.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&queryPath, "query", "",
		"Query config YAML selecting the pipeline (default: the standard pipeline)")
	rootCmd.PersistentFlags().BoolVar(&inplace, "inplace", false,
		"Include the in-place substitution group")

	optimizeCmd.Flags().StringVar(&graphPath, "graph", "",
		"Graph description YAML (required)")
	_ = optimizeCmd.MarkFlagRequired("graph")
	optimizeCmd.Flags().IntVar(&maxSweeps, "max-sweeps", 0,
		"Cap equilibrium sweeps (0 uses the rule-count-derived default)")
	optimizeCmd.Flags().BoolVar(&jsonOut, "json", false,
		"Print the run report as JSON")
	optimizeCmd.Flags().BoolVar(&telem, "telemetry", false,
		"Dump traces and metrics to stdout after the run")

	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(planCmd)
}
