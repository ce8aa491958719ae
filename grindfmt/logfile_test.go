// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLogfileGolden(t *testing.T) {
	path := filepath.Join("testdata", "memcheck.bench.log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	p := &LogfileParser{Tool: ToolMemcheck}
	m, summary, err := p.ParseWithSummary(f, path)
	if err != nil {
		t.Fatalf("ParseWithSummary: %v", err)
	}

	want := Costs{Errors: 2, Contexts: 1, SuppressedErrors: 3, SuppressedContexts: 2}
	if diff := cmp.Diff(want, m.Totals); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}
	if m.Tool != ToolMemcheck {
		t.Errorf("tool = %s, want memcheck", m.Tool)
	}
	if summary.PID != 4713 {
		t.Errorf("pid = %d, want 4713", summary.PID)
	}
	if summary.Command != "./bench --run 0" {
		t.Errorf("command = %q", summary.Command)
	}
}

func TestLogfileMissingSummaryIsTruncation(t *testing.T) {
	in := "==99== Memcheck, a memory error detector\n==99== Command: ./bench\n==99== \n"
	p := &LogfileParser{Tool: ToolMemcheck}
	_, err := p.Parse(strings.NewReader(in), "memcheck.log")
	var trunc *TruncatedArtifactError
	if !errors.As(err, &trunc) {
		t.Fatalf("got %v, want TruncatedArtifactError", err)
	}
}

func TestLogfileZeroErrors(t *testing.T) {
	in := "==7== Command: ./ok\n==7== ERROR SUMMARY: 0 errors from 0 contexts (suppressed: 0 from 0)\n"
	p := &LogfileParser{Tool: ToolDRD}
	m, err := p.Parse(strings.NewReader(in), "drd.log")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Zero errors is a measurement, not an absence.
	if v, ok := m.Totals[Errors]; !ok || v != 0 {
		t.Errorf("Errors = %v (present %v), want measured 0", v, ok)
	}
}
