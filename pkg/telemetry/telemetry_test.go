// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), DefaultConfig("test"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInit_Stdout(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterStdout

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInit_Errors(t *testing.T) {
	if _, err := Init(nil, DefaultConfig("test")); !errors.Is(err, ErrNilContext) { //nolint:staticcheck
		t.Fatalf("want ErrNilContext, got %v", err)
	}

	cfg := DefaultConfig("test")
	cfg.TraceExporter = "jaeger"
	if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("want ErrUnknownExporter, got %v", err)
	}

	cfg = DefaultConfig("test")
	cfg.MetricExporter = "prometheus"
	if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
		t.Fatalf("want ErrUnknownExporter, got %v", err)
	}
}
