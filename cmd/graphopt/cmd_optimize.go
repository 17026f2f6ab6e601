// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianOpt/pkg/logging"
	"github.com/AleutianAI/AleutianOpt/pkg/telemetry"
	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
	"github.com/AleutianAI/AleutianOpt/services/opt/optdb"
	"github.com/AleutianAI/AleutianOpt/services/opt/rewrite"
	"github.com/AleutianAI/AleutianOpt/services/opt/simplify"
)

// timeResolution keeps printed durations readable.
const timeResolution = 10 * time.Microsecond

func newLogger() *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	return logging.New(logging.Config{
		Level:   level,
		Service: "graphopt",
	})
}

// loadQuery resolves the --query/--inplace flags into a query.
func loadQuery() (optdb.Query, error) {
	if queryPath == "" {
		if inplace {
			return simplify.InplaceQuery(), nil
		}
		return simplify.DefaultQuery(), nil
	}
	q, err := optdb.LoadQuery(queryPath)
	if err != nil {
		return optdb.Query{}, err
	}
	if inplace {
		q = q.Including(optdb.InplaceTag)
	}
	return q, nil
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig("graphopt")
	if telem {
		tcfg.TraceExporter = telemetry.ExporterStdout
		tcfg.MetricExporter = telemetry.ExporterStdout
	}
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err.Error())
		}
	}()

	// Graph description and query config load concurrently; both must
	// succeed before anything runs.
	var (
		g *graph.Graph
		q optdb.Query
	)
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		g, err = loadGraph(graphPath)
		return err
	})
	eg.Go(func() error {
		var err error
		q, err = loadQuery()
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	registry := simplify.NewDefaultRegistry(
		optdb.WithRegistryLogger(logger.Slog()),
		optdb.WithMaxSweeps(maxSweeps),
	)
	rw, err := registry.Resolve(q)
	if err != nil {
		return err
	}
	pipeline, ok := rw.(*rewrite.Sequence)
	if !ok {
		return fmt.Errorf("query resolved to a non-pipeline pass %q", rw.Name())
	}
	if err := pipeline.Prepare(g); err != nil {
		return err
	}

	report, runErr := pipeline.Run(ctx, g)
	if runErr != nil && !errors.Is(runErr, rewrite.ErrNonConvergence) {
		return runErr
	}

	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}

	if runErr != nil {
		// Non-convergence: the printed graph state is best-effort.
		logger.Warn("optimization halted early", "error", runErr.Error())
	}
	return nil
}

func printReport(cmd *cobra.Command, r *rewrite.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s: %d -> %d nodes (%d pruned) in %s\n",
		r.SessionID, r.NodesBefore, r.NodesAfter, r.Pruned, r.Duration.Round(timeResolution))
	for _, p := range r.Passes {
		status := fmt.Sprintf("%d replacements", p.Replacements)
		if p.Error != "" {
			status = "FAILED: " + p.Error
		}
		fmt.Fprintf(out, "  %-24s %-10s %s\n", p.Name, p.Duration.Round(timeResolution), status)
	}
}
