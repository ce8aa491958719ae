// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grindfmt provides the normalized cost model for Valgrind tool
// output and a reader for each supported tool's artifact format.
//
// Each parser turns one raw artifact into a Model: the identity of the
// tool that produced it, the total measured costs, and, for tools that
// attribute costs to call edges, a call graph. The model is
// tool-agnostic so that comparison and export logic never needs to know
// which tool ran; adding a tool means adding one parser.
package grindfmt

import (
	"math"
	"sort"
)

// An EventKind names one measurable counter. The names match the event
// names the tools themselves use in their output, so a Costs read back
// from an artifact can be compared field-by-field against the raw file.
type EventKind string

// Callgrind event kinds. Ir is always collected; the cache and branch
// kinds appear only when the corresponding simulation was enabled.
const (
	Ir   EventKind = "Ir"   // instructions executed
	Dr   EventKind = "Dr"   // data reads
	Dw   EventKind = "Dw"   // data writes
	I1mr EventKind = "I1mr" // L1 instruction read misses
	D1mr EventKind = "D1mr" // L1 data read misses
	D1mw EventKind = "D1mw" // L1 data write misses
	ILmr EventKind = "ILmr" // LL instruction read misses
	DLmr EventKind = "DLmr" // LL data read misses
	DLmw EventKind = "DLmw" // LL data write misses
	Bc   EventKind = "Bc"   // conditional branches
	Bcm  EventKind = "Bcm"  // conditional branch mispredictions
	Bi   EventKind = "Bi"   // indirect branches
	Bim  EventKind = "Bim"  // indirect branch mispredictions
	Ge   EventKind = "Ge"   // global bus events

	SysCount   EventKind = "sysCount"
	SysTime    EventKind = "sysTime"
	SysCPUTime EventKind = "sysCpuTime"
)

// Kinds derived from the callgrind cache events after parsing, using
// the same formulas as callgrind_annotate. EstimatedCycles uses the
// usual 1/5/35 hit cost weighting.
const (
	L1Hits          EventKind = "L1Hits"
	LLHits          EventKind = "LLHits"
	RAMHits         EventKind = "RAMHits"
	TotalRW         EventKind = "TotalRW"
	EstimatedCycles EventKind = "EstimatedCycles"
)

// DHAT event kinds.
const (
	AllocBytes    EventKind = "AllocBytes"
	AllocBlocks   EventKind = "AllocBlocks"
	AtTGmaxBytes  EventKind = "AtTGmaxBytes"
	AtTGmaxBlocks EventKind = "AtTGmaxBlocks"
	AtTEndBytes   EventKind = "AtTEndBytes"
	AtTEndBlocks  EventKind = "AtTEndBlocks"
	ReadsBytes    EventKind = "ReadsBytes"
	WritesBytes   EventKind = "WritesBytes"
)

// Massif event kinds, taken from the peak heap snapshot.
const (
	HeapBytes      EventKind = "HeapBytes"
	HeapExtraBytes EventKind = "HeapExtraBytes"
	StackBytes     EventKind = "StackBytes"
)

// Error-reporting tool kinds (memcheck, helgrind, DRD log files).
const (
	Errors             EventKind = "Errors"
	Contexts           EventKind = "Contexts"
	SuppressedErrors   EventKind = "SuppressedErrors"
	SuppressedContexts EventKind = "SuppressedContexts"
)

// A Costs maps event kinds to measured counter values.
//
// A kind that is absent was not measured by the producing tool, which
// is different from a measured zero: a run without branch simulation
// has no Bc entry at all, while a run of an empty function may have
// Bc == 0.
type Costs map[EventKind]uint64

// Kinds returns the measured kinds in sorted order. All iteration over
// a Costs that can influence output goes through Kinds so results are
// deterministic.
func (c Costs) Kinds() []EventKind {
	kinds := make([]EventKind, 0, len(c))
	for k := range c {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Clone returns a copy of c that shares no state with c.
func (c Costs) Clone() Costs {
	if c == nil {
		return nil
	}
	out := make(Costs, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Add accumulates other into c elementwise. Kinds measured only in
// other become measured in c. Add is used to merge the artifacts of
// multi-process runs and to aggregate sub-node costs.
func (c Costs) Add(other Costs) {
	for k, v := range other {
		c[k] += v
	}
}

// Sub returns c minus other with saturating semantics: a difference
// that would underflow is reported as zero, never wrapped. The result
// covers the union of measured kinds.
func (c Costs) Sub(other Costs) Costs {
	out := make(Costs, len(c))
	for k, v := range c {
		if o := other[k]; o < v {
			out[k] = v - o
		} else {
			out[k] = 0
		}
	}
	for k := range other {
		if _, ok := c[k]; !ok {
			out[k] = 0
		}
	}
	return out
}

// Equal reports whether c and other measure the same kinds with the
// same values.
func (c Costs) Equal(other Costs) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		o, ok := other[k]
		if !ok || o != v {
			return false
		}
	}
	return true
}

// Factor returns the percentage delta of c relative to baseline for
// each kind measured in both. A zero baseline with a nonzero current
// value yields +Inf rather than an overflowed number; a kind that is
// zero on both sides yields 0.
func (c Costs) Factor(baseline Costs) map[EventKind]float64 {
	out := make(map[EventKind]float64)
	for k, v := range c {
		old, ok := baseline[k]
		if !ok {
			continue
		}
		out[k] = PercentDelta(old, v)
	}
	return out
}

// PercentDelta returns the percent change from old to new. Both zero
// is 0; a zero old value with nonzero new is +Inf.
func PercentDelta(old, new uint64) float64 {
	if old == new {
		return 0
	}
	if old == 0 {
		return math.Inf(1)
	}
	return (float64(new) - float64(old)) / float64(old) * 100.0
}
