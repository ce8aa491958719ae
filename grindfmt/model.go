// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"fmt"
	"strings"
)

// A Tool identifies the Valgrind tool that produced a model. The
// values match the ids accepted by valgrind's --tool option.
type Tool string

const (
	ToolCallgrind Tool = "callgrind"
	ToolDHAT      Tool = "dhat"
	ToolMassif    Tool = "massif"
	ToolMemcheck  Tool = "memcheck"
	ToolHelgrind  Tool = "helgrind"
	ToolDRD       Tool = "drd"
)

// Tools lists the supported tools in a fixed order.
var Tools = []Tool{
	ToolCallgrind,
	ToolDHAT,
	ToolMassif,
	ToolMemcheck,
	ToolHelgrind,
	ToolDRD,
}

// ParseTool converts a tool id string to a Tool.
func ParseTool(s string) (Tool, error) {
	for _, t := range Tools {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tool %q", s)
}

// HasOutputFile reports whether the tool writes a dedicated cost
// artifact in addition to its log output. Memcheck, helgrind and DRD
// report only through their log files.
func (t Tool) HasOutputFile() bool {
	switch t {
	case ToolCallgrind, ToolDHAT, ToolMassif:
		return true
	}
	return false
}

// MeasuresViaLog reports whether the tool's measurement is parsed from
// its log output. DHAT has an output file, but it holds the viewer's
// JSON profile; the summary totals appear only in the log, as with the
// error checkers.
func (t Tool) MeasuresViaLog() bool {
	switch t {
	case ToolCallgrind, ToolMassif:
		return false
	}
	return true
}

// A Model is the normalized result of one profiling run.
//
// Totals holds the run's total measured costs. Graph is non-nil only
// for tools that attribute costs to call edges; totals-only tools
// (DHAT, massif, the error checkers) leave it nil.
type Model struct {
	Tool   Tool   `json:"tool"`
	Totals Costs  `json:"totals"`
	Graph  *Graph `json:"graph,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Model) Clone() *Model {
	out := &Model{Tool: m.Tool, Totals: m.Totals.Clone()}
	if m.Graph != nil {
		g := NewGraph()
		g.Nodes = make([]Node, len(m.Graph.Nodes))
		for i, n := range m.Graph.Nodes {
			edges := make([]Edge, len(n.Edges))
			for j, e := range n.Edges {
				edges[j] = Edge{Callee: e.Callee, Calls: e.Calls, Costs: e.Costs.Clone(), Cycle: e.Cycle}
			}
			g.Nodes[i] = Node{Frame: n.Frame, Self: n.Self.Clone(), Edges: edges}
		}
		g.rebuildIndex()
		out.Graph = g
	}
	return out
}

// Merge accumulates other into m. Both models must come from the same
// tool. Totals add elementwise; when m has no graph, other's graph is
// adopted. Merge is used when one run produces an artifact per child
// process.
func (m *Model) Merge(other *Model) error {
	if m.Tool != other.Tool {
		return fmt.Errorf("cannot merge %s model into %s model", other.Tool, m.Tool)
	}
	m.Totals.Add(other.Totals)
	if m.Graph == nil {
		m.Graph = other.Graph
	}
	return nil
}

// inclusiveKinds are the event kinds for which edge costs are
// inclusive (self plus descendants), so that the sum of root edge
// costs is bounded by the run totals.
var inclusiveKinds = []EventKind{Ir, Dr, Dw, I1mr, D1mr, D1mw, ILmr, DLmr, DLmw, Bc, Bcm, Bi, Bim}

// CheckIntegrity verifies that the call graph is consistent with the
// totals: for every inclusive kind, the inclusive cost reachable from
// the graph roots must not exceed the total. A violation means the
// artifact was misparsed or malformed and is reported as an error, not
// repaired.
func (m *Model) CheckIntegrity() error {
	if m.Graph == nil {
		return nil
	}
	roots := m.Graph.Roots()
	for _, kind := range inclusiveKinds {
		total, measured := m.Totals[kind]
		if !measured {
			continue
		}
		var sum uint64
		visited := make(map[NodeID]bool)
		for _, root := range roots {
			sum += m.Graph.inclusive(root, kind, visited)
		}
		if sum > total {
			return fmt.Errorf("call graph %s cost %d exceeds run total %d", kind, sum, total)
		}
	}
	return nil
}

// A BenchmarkID is the stable identity of one benchmark case. Two runs
// are comparable only when their ids are equal; runs with different
// ids are never implicitly compared.
type BenchmarkID struct {
	Group string `json:"group" yaml:"group"`
	Name  string `json:"name" yaml:"name"`
	Param string `json:"param,omitempty" yaml:"param,omitempty"`
}

// String renders the id as group::name or group::name/param.
func (id BenchmarkID) String() string {
	var sb strings.Builder
	sb.WriteString(id.Group)
	sb.WriteString("::")
	sb.WriteString(id.Name)
	if id.Param != "" {
		sb.WriteString("/")
		sb.WriteString(id.Param)
	}
	return sb.String()
}
