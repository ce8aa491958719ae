// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"io"
	"strconv"
	"strings"
)

// A MassifParser reads the massif output format: a desc/cmd/time_unit
// header followed by snapshot records of the form
//
//	#-----------
//	snapshot=3
//	#-----------
//	time=1745
//	mem_heap_B=2048
//	mem_heap_extra_B=24
//	mem_stacks_B=0
//	heap_tree=empty
//
// The model's totals are taken from the peak heap snapshot, matching
// massif's own notion of the interesting measurement. Massif's heap
// trees attribute bytes to allocation sites, not call edges, so the
// model is totals-only.
type MassifParser struct{}

type massifSnapshot struct {
	heap      uint64
	heapExtra uint64
	stacks    uint64
	complete  bool
}

// Parse reads one massif artifact.
func (p *MassifParser) Parse(r io.Reader, fileName string) (*Model, error) {
	lr := newLineReader(r, fileName)
	sawHeader := false
	inSnapshot := false
	var cur, peak massifSnapshot
	haveSnapshot := false

	finish := func() {
		if inSnapshot && cur.complete {
			if !haveSnapshot || cur.heap+cur.heapExtra+cur.stacks > peak.heap+peak.heapExtra+peak.stacks {
				peak = cur
			}
			haveSnapshot = true
		}
	}

	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			continue
		case strings.HasPrefix(trimmed, "desc:"), strings.HasPrefix(trimmed, "cmd:"):
			sawHeader = true
		case strings.HasPrefix(trimmed, "time_unit:"):
			sawHeader = true
			unit := strings.TrimSpace(strings.TrimPrefix(trimmed, "time_unit:"))
			switch unit {
			case "i", "ms", "B":
				// the known massif time units
			default:
				return nil, lr.syntaxError("unsupported massif time unit %q", unit)
			}
		case strings.HasPrefix(trimmed, "snapshot="):
			if !sawHeader {
				return nil, lr.syntaxError("snapshot record before massif header")
			}
			finish()
			cur = massifSnapshot{}
			inSnapshot = true
		case strings.HasPrefix(trimmed, "time="):
			// snapshot timestamp, not a cost
		case strings.HasPrefix(trimmed, "mem_heap_B="):
			v, err := massifValue(trimmed)
			if err != nil {
				return nil, lr.syntaxError("%v", err)
			}
			cur.heap = v
		case strings.HasPrefix(trimmed, "mem_heap_extra_B="):
			v, err := massifValue(trimmed)
			if err != nil {
				return nil, lr.syntaxError("%v", err)
			}
			cur.heapExtra = v
		case strings.HasPrefix(trimmed, "mem_stacks_B="):
			v, err := massifValue(trimmed)
			if err != nil {
				return nil, lr.syntaxError("%v", err)
			}
			cur.stacks = v
			cur.complete = true
		case strings.HasPrefix(trimmed, "heap_tree="):
			// detailed snapshots carry an allocation tree; its node
			// lines start with "n" and are skipped below
		case strings.HasPrefix(trimmed, "n") && inSnapshot:
			// heap tree node line
		default:
			return nil, lr.syntaxError("unrecognized line %q", trimmed)
		}
	}
	if err := lr.err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, lr.truncated("no massif output found")
	}
	if inSnapshot && !cur.complete {
		return nil, lr.truncated("artifact ends inside a snapshot record")
	}
	finish()
	if !haveSnapshot {
		return nil, lr.truncated("massif header without any snapshot")
	}

	totals := Costs{
		HeapBytes:      peak.heap,
		HeapExtraBytes: peak.heapExtra,
		StackBytes:     peak.stacks,
	}
	return &Model{Tool: ToolMassif, Totals: totals}, nil
}

func massifValue(line string) (uint64, error) {
	_, val, _ := strings.Cut(line, "=")
	return strconv.ParseUint(strings.TrimSpace(val), 10, 64)
}
