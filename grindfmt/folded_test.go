// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteFolded(t *testing.T) {
	g, _, _, _, _ := buildDiamond()
	var buf bytes.Buffer
	if err := WriteFolded(&buf, g, Ir); err != nil {
		t.Fatal(err)
	}
	// c (self 30) sorts before b (self 20); d is emitted under its
	// first visited parent only.
	want := strings.Join([]string{
		"a 10",
		"a;c 30",
		"a;c;d 40",
		"a;b 20",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("folded output:\n%q\nwant:\n%q", got, want)
	}
}

func TestWriteFoldedDeterministic(t *testing.T) {
	m := parseTestdata(t, ToolCallgrind, "callgrind.bench.out")
	var a, b bytes.Buffer
	if err := WriteFolded(&a, m.Graph, Ir); err != nil {
		t.Fatal(err)
	}
	if err := WriteFolded(&b, m.Graph, Ir); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("folded output differs across runs")
	}
	if a.Len() == 0 {
		t.Error("folded output is empty")
	}
}

func TestWriteFoldedSkipsCycles(t *testing.T) {
	g := NewGraph()
	f := g.Intern(Frame{Func: "f"})
	g.Node(f).Self = Costs{Ir: 5}
	g.AddCall(f, f, 2, Costs{Ir: 5})

	var buf bytes.Buffer
	if err := WriteFolded(&buf, g, Ir); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "f 5\n"; got != want {
		t.Errorf("folded output = %q, want %q", got, want)
	}
}

func TestWriteFoldedLineGrammar(t *testing.T) {
	m := parseTestdata(t, ToolCallgrind, "callgrind.bench.out")
	var buf bytes.Buffer
	if err := WriteFolded(&buf, m.Graph, Ir); err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		frames, cost, ok := strings.Cut(line, " ")
		if !ok || frames == "" {
			t.Fatalf("malformed folded line %q", line)
		}
		for _, c := range cost {
			if c < '0' || c > '9' {
				t.Fatalf("non-integer cost in line %q", line)
			}
		}
	}
}
