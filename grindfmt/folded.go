// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"bufio"
	"io"
	"sort"
	"strconv"
)

// WriteFolded writes the call graph as folded stack lines, the input
// format of flamegraph renderers:
//
//	frame;frame;...;frame cost\n
//
// Each line is one root-to-leaf path with the self cost of its leaf
// for the given event kind; paths whose leaf has no self cost are
// omitted. Sibling frames are ordered by descending self cost and then
// by name, and cycle edges are not descended, so the output for a
// given graph is byte-identical across runs.
func WriteFolded(w io.Writer, g *Graph, kind EventKind) error {
	bw := bufio.NewWriter(w)
	var stack []string
	var walk func(id NodeID, visited map[NodeID]bool) error
	walk = func(id NodeID, visited map[NodeID]bool) error {
		// The visited set persists for the whole traversal: a node
		// reachable along several paths is attributed to the first
		// path in sibling order, keeping the summed output equal to
		// the graph's total self cost.
		if visited[id] {
			return nil
		}
		visited[id] = true

		node := &g.Nodes[id]
		stack = append(stack, node.Frame.Name())
		defer func() { stack = stack[:len(stack)-1] }()

		if self := node.Self[kind]; self > 0 {
			for i, frame := range stack {
				if i > 0 {
					if err := bw.WriteByte(';'); err != nil {
						return err
					}
				}
				if _, err := bw.WriteString(frame); err != nil {
					return err
				}
			}
			if err := bw.WriteByte(' '); err != nil {
				return err
			}
			if _, err := bw.WriteString(strconv.FormatUint(self, 10)); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}

		for _, e := range sortedEdges(g, node, kind) {
			if e.Cycle {
				continue
			}
			if err := walk(e.Callee, visited); err != nil {
				return err
			}
		}
		return nil
	}

	visited := make(map[NodeID]bool)
	for _, root := range sortedRoots(g, kind) {
		if err := walk(root, visited); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// sortedEdges returns the node's edges ordered by descending callee
// self cost for kind, then by callee frame name.
func sortedEdges(g *Graph, node *Node, kind EventKind) []Edge {
	edges := make([]Edge, len(node.Edges))
	copy(edges, node.Edges)
	sort.SliceStable(edges, func(i, j int) bool {
		ci, cj := g.Nodes[edges[i].Callee].Self[kind], g.Nodes[edges[j].Callee].Self[kind]
		if ci != cj {
			return ci > cj
		}
		return g.Nodes[edges[i].Callee].Frame.Name() < g.Nodes[edges[j].Callee].Frame.Name()
	})
	return edges
}

// sortedRoots orders the graph roots the same way sibling frames are
// ordered.
func sortedRoots(g *Graph, kind EventKind) []NodeID {
	roots := g.Roots()
	sort.SliceStable(roots, func(i, j int) bool {
		ci, cj := g.Nodes[roots[i]].Self[kind], g.Nodes[roots[j]].Self[kind]
		if ci != cj {
			return ci > cj
		}
		return g.Nodes[roots[i]].Frame.Name() < g.Nodes[roots[j]].Frame.Name()
	})
	return roots
}
