// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import "sort"

// A Frame identifies one cost attribution unit: a binary, an optional
// function symbol within it, and an optional source position.
type Frame struct {
	Binary string `json:"binary,omitempty"`
	Func   string `json:"func,omitempty"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Name returns the display name of the frame for folded-stack output.
func (f Frame) Name() string {
	if f.Func != "" {
		return f.Func
	}
	if f.Binary != "" {
		return f.Binary
	}
	return "???"
}

// A NodeID indexes a Node within its Graph's arena. Nodes refer to each
// other by NodeID rather than by pointer so that recursive call
// structures contain no ownership cycles.
type NodeID int

// An Edge is one observed call from its owning node to Callee,
// carrying the inclusive cost attributed to that call edge and the
// number of times it was taken.
//
// Cycle marks an edge whose callee is already on the active call path
// (self- or mutual recursion). Inclusive-cost traversals skip cycle
// edges so recursive cost is counted exactly once.
type Edge struct {
	Callee NodeID `json:"callee"`
	Calls  uint64 `json:"calls"`
	Costs  Costs  `json:"costs"`
	Cycle  bool   `json:"cycle,omitempty"`
}

// A Node is one vertex of the call graph: a frame, its self cost, and
// its outgoing call edges.
type Node struct {
	Frame Frame  `json:"frame"`
	Self  Costs  `json:"self"`
	Edges []Edge `json:"edges,omitempty"`
}

// A Graph is a call graph stored in an arena. It may contain cycles;
// all traversals use a visited set keyed by NodeID and never loop.
type Graph struct {
	Nodes []Node `json:"nodes"`

	index    map[Frame]NodeID
	incoming map[NodeID]int // non-cycle incoming edge counts
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:    make(map[Frame]NodeID),
		incoming: make(map[NodeID]int),
	}
}

// Intern returns the NodeID for frame, adding a node if the frame has
// not been seen before.
func (g *Graph) Intern(frame Frame) NodeID {
	if g.index == nil {
		g.rebuildIndex()
	}
	if id, ok := g.index[frame]; ok {
		return id
	}
	id := NodeID(len(g.Nodes))
	g.Nodes = append(g.Nodes, Node{Frame: frame, Self: make(Costs)})
	g.index[frame] = id
	return id
}

// Node returns the node for id. The pointer is valid until the next
// call to Intern.
func (g *Graph) Node(id NodeID) *Node {
	return &g.Nodes[id]
}

// rebuildIndex reconstructs the lookup tables after a Graph has been
// deserialized, when only the Nodes slice is populated.
func (g *Graph) rebuildIndex() {
	g.index = make(map[Frame]NodeID, len(g.Nodes))
	g.incoming = make(map[NodeID]int)
	for i, n := range g.Nodes {
		g.index[n.Frame] = NodeID(i)
		for _, e := range n.Edges {
			if !e.Cycle {
				g.incoming[e.Callee]++
			}
		}
	}
}

// AddCall records one or more calls from caller to callee with the
// given inclusive edge cost. Repeated calls over the same edge merge
// into a single edge. The edge is marked as a cycle edge when callee
// is caller itself or can already reach caller, so that inclusive
// accounting skips it.
func (g *Graph) AddCall(caller, callee NodeID, calls uint64, costs Costs) {
	if g.incoming == nil {
		g.rebuildIndex()
	}
	cycle := callee == caller || g.reaches(callee, caller)
	n := g.Node(caller)
	for i := range n.Edges {
		e := &n.Edges[i]
		if e.Callee == callee {
			e.Calls += calls
			e.Costs.Add(costs)
			return
		}
	}
	n.Edges = append(n.Edges, Edge{
		Callee: callee,
		Calls:  calls,
		Costs:  costs.Clone(),
		Cycle:  cycle,
	})
	if !cycle {
		g.incoming[callee]++
	}
}

// reaches reports whether dst is reachable from src over non-cycle
// edges.
func (g *Graph) reaches(src, dst NodeID) bool {
	if src == dst {
		return true
	}
	visited := make(map[NodeID]bool)
	stack := []NodeID{src}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range g.Nodes[id].Edges {
			if e.Cycle {
				continue
			}
			if e.Callee == dst {
				return true
			}
			stack = append(stack, e.Callee)
		}
	}
	return false
}

// Roots returns the nodes with no non-cycle incoming edges, in
// ascending NodeID order. These are the entry points of the recorded
// call graph.
func (g *Graph) Roots() []NodeID {
	if g.incoming == nil {
		g.rebuildIndex()
	}
	var roots []NodeID
	for i := range g.Nodes {
		if g.incoming[NodeID(i)] == 0 {
			roots = append(roots, NodeID(i))
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// Inclusive returns the inclusive cost of id for kind: its self cost
// plus the self cost of every node reachable over non-cycle edges.
// Each node is counted once even when reachable along several paths.
func (g *Graph) Inclusive(id NodeID, kind EventKind) uint64 {
	visited := make(map[NodeID]bool)
	return g.inclusive(id, kind, visited)
}

func (g *Graph) inclusive(id NodeID, kind EventKind, visited map[NodeID]bool) uint64 {
	if visited[id] {
		return 0
	}
	visited[id] = true
	sum := g.Nodes[id].Self[kind]
	for _, e := range g.Nodes[id].Edges {
		if e.Cycle {
			continue
		}
		sum += g.inclusive(e.Callee, kind, visited)
	}
	return sum
}

// SelfTotals sums the self costs of every node in the graph.
func (g *Graph) SelfTotals() Costs {
	totals := make(Costs)
	for i := range g.Nodes {
		totals.Add(g.Nodes[i].Self)
	}
	return totals
}
