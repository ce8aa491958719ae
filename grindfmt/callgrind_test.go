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

func parseTestdata(t *testing.T, tool Tool, name string) *Model {
	t.Helper()
	path := filepath.Join("testdata", name)
	m, err := ParseFile(tool, path)
	if err != nil {
		t.Fatalf("ParseFile(%s): %v", path, err)
	}
	return m
}

func TestCallgrindGolden(t *testing.T) {
	m := parseTestdata(t, ToolCallgrind, "callgrind.bench.out")

	wantTotals := Costs{
		Ir: 750, Dr: 150, Dw: 75,
		I1mr: 5, D1mr: 3, D1mw: 1,
		ILmr: 1, DLmr: 0, DLmw: 0,
		RAMHits: 1, LLHits: 8, L1Hits: 966,
		TotalRW: 975, EstimatedCycles: 1041,
	}
	if diff := cmp.Diff(wantTotals, m.Totals); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}

	g := m.Graph
	if g == nil {
		t.Fatal("callgrind model has no graph")
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(g.Nodes))
	}

	main := g.Node(0)
	if main.Frame.Func != "main" || main.Frame.File != "main.c" || main.Frame.Binary != "/home/user/bench" {
		t.Errorf("unexpected root frame %+v", main.Frame)
	}
	if main.Frame.Line != 10 {
		t.Errorf("root frame line = %d, want 10", main.Frame.Line)
	}
	wantMainSelf := Costs{Ir: 150, Dr: 30, Dw: 15, I1mr: 1, D1mr: 1, D1mw: 0, ILmr: 0, DLmr: 0, DLmw: 0}
	if diff := cmp.Diff(wantMainSelf, main.Self); diff != "" {
		t.Errorf("main self mismatch (-want +got):\n%s", diff)
	}

	compute := g.Node(1)
	if compute.Frame.Func != "compute" || compute.Frame.File != "compute.c" {
		t.Errorf("unexpected callee frame %+v", compute.Frame)
	}
	wantComputeSelf := Costs{Ir: 600, Dr: 120, Dw: 60, I1mr: 4, D1mr: 2, D1mw: 1, ILmr: 1, DLmr: 0, DLmw: 0}
	if diff := cmp.Diff(wantComputeSelf, compute.Self); diff != "" {
		t.Errorf("compute self mismatch (-want +got):\n%s", diff)
	}

	if len(main.Edges) != 1 {
		t.Fatalf("root has %d edges, want 1", len(main.Edges))
	}
	e := main.Edges[0]
	if e.Callee != 1 || e.Calls != 2 || e.Cycle {
		t.Errorf("unexpected edge %+v", e)
	}
	if e.Costs[Ir] != 600 {
		t.Errorf("edge Ir = %d, want 600", e.Costs[Ir])
	}

	if got := g.Inclusive(0, Ir); got != 750 {
		t.Errorf("Inclusive(root, Ir) = %d, want 750", got)
	}
}

func TestCallgrindUnmeasuredKindsAbsent(t *testing.T) {
	m := parseTestdata(t, ToolCallgrind, "callgrind.bench.out")
	// Branch simulation was off, so branch kinds must be absent, not
	// zero.
	for _, k := range []EventKind{Bc, Bcm, Bi, Bim} {
		if _, ok := m.Totals[k]; ok {
			t.Errorf("unmeasured kind %s present in totals", k)
		}
	}
}

func TestCallgrindTruncated(t *testing.T) {
	_, err := ParseFile(ToolCallgrind, filepath.Join("testdata", "callgrind.truncated.out"))
	var trunc *TruncatedArtifactError
	if !errors.As(err, &trunc) {
		t.Fatalf("got error %v, want TruncatedArtifactError", err)
	}
	if file, line := trunc.Pos(); !strings.HasSuffix(file, "callgrind.truncated.out") || line == 0 {
		t.Errorf("truncation position = %s:%d, want named file and nonzero line", file, line)
	}
}

func TestCallgrindEmptyArtifact(t *testing.T) {
	p := &CallgrindParser{}
	_, err := p.Parse(strings.NewReader(""), "empty.out")
	var trunc *TruncatedArtifactError
	if !errors.As(err, &trunc) {
		t.Fatalf("got error %v, want TruncatedArtifactError", err)
	}
}

func TestCallgrindRejectsUnsupportedVersion(t *testing.T) {
	in := "# callgrind format\nversion: 2\nevents: Ir\nfn=main\n0 10\n"
	p := &CallgrindParser{}
	_, err := p.Parse(strings.NewReader(in), "v2.out")
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("got error %v, want SyntaxError", err)
	}
	if !strings.Contains(syn.Msg, "version") {
		t.Errorf("error %q does not name the version", syn.Msg)
	}
}

func TestCallgrindSelfRecursion(t *testing.T) {
	in := `# callgrind format
version: 1
events: Ir
positions: line

fl=(1) fib.c
fn=(1) fib
5 100
cfn=(1)
calls=10 5
5 90
`
	p := &CallgrindParser{}
	m, err := p.Parse(strings.NewReader(in), "recurse.out")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g := m.Graph
	if len(g.Nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(g.Nodes))
	}
	if len(g.Nodes[0].Edges) != 1 || !g.Nodes[0].Edges[0].Cycle {
		t.Fatal("recursive edge not marked as cycle")
	}
	// No summary line: totals fall back to the self-cost sum, and the
	// cycle edge must not double-count.
	if m.Totals[Ir] != 100 {
		t.Errorf("totals Ir = %d, want 100", m.Totals[Ir])
	}
	if got := g.Inclusive(0, Ir); got != 100 {
		t.Errorf("Inclusive = %d, want 100", got)
	}
}

func TestCallgrindRelativePositions(t *testing.T) {
	in := `# callgrind format
version: 1
events: Ir Dr
positions: line

fl=(1) a.c
fn=(1) f
10 5 1
+2 7 2
* 3
-1 4 1
`
	p := &CallgrindParser{}
	m, err := p.Parse(strings.NewReader(in), "rel.out")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Counts beyond the written fields are measured zeros.
	want := Costs{Ir: 19, Dr: 4}
	if diff := cmp.Diff(want, m.Totals); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}
}

func TestCallgrindJumpRecords(t *testing.T) {
	in := `# callgrind format
version: 1
events: Ir
positions: line

fl=(1) loop.c
fn=(1) f
10 100
jump=2 20
20 50
jcnd=3/10 10
30 25
`
	p := &CallgrindParser{}
	m, err := p.Parse(strings.NewReader(in), "jump.out")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Jump records carry their positions inline; the cost lines
	// around them are ordinary self cost and must all be counted.
	if m.Totals[Ir] != 175 {
		t.Errorf("totals Ir = %d, want 175", m.Totals[Ir])
	}
}

func TestCallgrindIntegrityViolation(t *testing.T) {
	in := `# callgrind format
version: 1
events: Ir
positions: line

fl=(1) a.c
fn=(1) f
1 100
summary: 40
`
	p := &CallgrindParser{}
	_, err := p.Parse(strings.NewReader(in), "bad.out")
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("got error %v, want SyntaxError for graph exceeding totals", err)
	}
}

func TestCallgrindGoldenIsStable(t *testing.T) {
	// Two parses of the same artifact must produce equal models.
	a := parseTestdata(t, ToolCallgrind, "callgrind.bench.out")
	b := parseTestdata(t, ToolCallgrind, "callgrind.bench.out")
	if !a.Totals.Equal(b.Totals) {
		t.Error("totals differ across parses")
	}
	if diff := cmp.Diff(a.Graph.Nodes, b.Graph.Nodes); diff != "" {
		t.Errorf("graphs differ across parses:\n%s", diff)
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(ToolCallgrind, filepath.Join("testdata", "does-not-exist.out"))
	if !os.IsNotExist(err) {
		t.Fatalf("got %v, want file-not-found", err)
	}
}
