// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianOpt/services/opt/optdb"
	"github.com/AleutianAI/AleutianOpt/services/opt/rewrite"
	"github.com/AleutianAI/AleutianOpt/services/opt/simplify"
)

func runPlan(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	defer logger.Close()

	q, err := loadQuery()
	if err != nil {
		return err
	}

	registry := simplify.NewDefaultRegistry(
		optdb.WithRegistryLogger(logger.Slog()),
	)
	rw, err := registry.Resolve(q)
	if err != nil {
		return err
	}

	printPlan(cmd, rw, 0)
	return nil
}

// printPlan renders the resolved pipeline, indenting nested pipelines.
func printPlan(cmd *cobra.Command, rw rewrite.Rewriter, depth int) {
	indent := strings.Repeat("  ", depth)
	out := cmd.OutOrStdout()
	switch p := rw.(type) {
	case *rewrite.Sequence:
		fmt.Fprintf(out, "%s%s (sequence)\n", indent, p.Name())
		for _, member := range p.Passes() {
			printPlan(cmd, member, depth+1)
		}
	case *rewrite.Equilibrium:
		fmt.Fprintf(out, "%s%s (equilibrium, %d rules)\n", indent, p.Name(), p.NumRules())
	default:
		fmt.Fprintf(out, "%s%s\n", indent, p.Name())
	}
}
