// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rewrite

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianOpt/services/opt/graph"
)

// Sequence runs member passes strictly in order on the same graph.
//
// Prepare runs every member's Prepare in order before any Apply, so a
// marker pass early in the sequence (e.g. the destroy handler) has its
// feature attached before later passes need it.
//
// A member's non-convergence halts the run: the error is reported and
// the graph is kept in its best-effort state. Rewrite rejections never
// surface here; they are absorbed inside the members.
type Sequence struct {
	name   string
	passes []Rewriter
	logger *slog.Logger

	metricsOnce     sync.Once
	passLatency     metric.Float64Histogram
	pipelineLatency metric.Float64Histogram
}

// SequenceOption configures a Sequence.
type SequenceOption func(*Sequence)

// WithSequenceLogger sets the logger. Default: slog.Default().
func WithSequenceLogger(l *slog.Logger) SequenceOption {
	return func(s *Sequence) {
		s.logger = l
	}
}

// NewSequence creates a pipeline running the given passes in order.
func NewSequence(name string, passes []Rewriter, opts ...SequenceOption) *Sequence {
	s := &Sequence{
		name:   name,
		passes: passes,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Rewriter.
func (s *Sequence) Name() string { return s.name }

// Passes returns the member passes in execution order.
func (s *Sequence) Passes() []Rewriter { return s.passes }

// Prepare implements Rewriter: every member's Prepare, in order.
func (s *Sequence) Prepare(g *graph.Graph) error {
	for _, p := range s.passes {
		if err := p.Prepare(g); err != nil {
			return err
		}
	}
	return nil
}

// Apply implements Rewriter. See Run for the detailed report.
func (s *Sequence) Apply(ctx context.Context, g *graph.Graph) error {
	_, err := s.Run(ctx, g)
	return err
}

// PassReport records one member pass's execution.
type PassReport struct {
	// Name is the pass name.
	Name string

	// Duration is the pass wall time.
	Duration time.Duration

	// Replacements is the number of replacements the pass performed,
	// when the pass reports them (zero otherwise).
	Replacements int64

	// Error is the pass failure, empty on success.
	Error string
}

// Report summarizes one pipeline run.
type Report struct {
	// SessionID correlates logs, traces, and this report.
	SessionID string

	// Duration is the total run wall time.
	Duration time.Duration

	// NodesBefore and NodesAfter count live apply nodes around the run
	// (after the final prune).
	NodesBefore int
	NodesAfter  int

	// Pruned is the number of orphaned nodes collected after the run.
	Pruned int

	// Passes are the per-member reports, in execution order. A halted
	// run reports only the members that started.
	Passes []PassReport
}

// initMetrics lazily initializes metrics. Logs failures but continues.
func (s *Sequence) initMetrics() {
	s.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		s.passLatency, err = meter.Float64Histogram("rewrite_pass_duration_seconds",
			metric.WithDescription("Time spent in each rewrite pass"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pass_latency: "+err.Error())
		}

		s.pipelineLatency, err = meter.Float64Histogram("rewrite_pipeline_duration_seconds",
			metric.WithDescription("Total rewrite pipeline time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "pipeline_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			s.logger.Error("failed to initialize some pipeline metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run executes the pipeline and returns a report.
//
// On non-convergence of a member the run halts: the report covers the
// passes that ran, the best-effort graph is kept, and the error wraps
// ErrNonConvergence. Any other member error also halts the run.
func (s *Sequence) Run(ctx context.Context, g *graph.Graph) (*Report, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	s.initMetrics()

	ctx, span := tracer.Start(ctx, "rewrite.Pipeline",
		trace.WithAttributes(
			attribute.String("pipeline", s.name),
			attribute.Int("passes", len(s.passes)),
		),
	)
	defer span.End()

	start := time.Now()
	sessionID := uuid.NewString()[:12]

	report := &Report{
		SessionID:   sessionID,
		NodesBefore: g.NodeCount(),
	}

	s.logger.Info("pipeline started",
		slog.String("pipeline", s.name),
		slog.String("session_id", sessionID),
		slog.Int("passes", len(s.passes)),
		slog.Int("nodes", report.NodesBefore),
	)

	var runErr error
	for _, p := range s.passes {
		passStart := time.Now()
		before := passReplacements(p)
		err := p.Apply(ctx, g)
		passDuration := time.Since(passStart)

		pr := PassReport{
			Name:         p.Name(),
			Duration:     passDuration,
			Replacements: passReplacements(p) - before,
		}
		if err != nil {
			pr.Error = err.Error()
		}
		report.Passes = append(report.Passes, pr)

		if s.passLatency != nil {
			s.passLatency.Record(ctx, passDuration.Seconds(),
				metric.WithAttributes(
					attribute.String("pipeline", s.name),
					attribute.String("pass", p.Name()),
				),
			)
		}

		if err != nil {
			runErr = err
			if errors.Is(err, ErrNonConvergence) {
				// Recoverable: keep the best-effort graph.
				s.logger.Warn("pipeline halted on non-convergence",
					slog.String("session_id", sessionID),
					slog.String("pass", p.Name()),
					slog.String("error", err.Error()),
				)
			} else {
				s.logger.Error("pipeline pass failed",
					slog.String("session_id", sessionID),
					slog.String("pass", p.Name()),
					slog.String("error", err.Error()),
				)
			}
			break
		}
	}

	report.Pruned = g.Prune()
	report.NodesAfter = g.NodeCount()
	report.Duration = time.Since(start)

	if s.pipelineLatency != nil {
		s.pipelineLatency.Record(ctx, report.Duration.Seconds(),
			metric.WithAttributes(attribute.String("pipeline", s.name)),
		)
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		s.logger.Info("pipeline completed",
			slog.String("session_id", sessionID),
			slog.Duration("duration", report.Duration),
			slog.Int("nodes_before", report.NodesBefore),
			slog.Int("nodes_after", report.NodesAfter),
			slog.Int("pruned", report.Pruned),
		)
	}

	return report, runErr
}

// passReplacements reads a pass's replacement counter when it has one.
func passReplacements(p Rewriter) int64 {
	if r, ok := p.(Replacing); ok {
		return r.Replacements()
	}
	return 0
}
