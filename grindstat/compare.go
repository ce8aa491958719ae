// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindstat

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/go-grind/grind/grindfmt"
)

// A Status is the overall verdict of a comparison.
type Status string

const (
	StatusOK        Status = "ok"
	StatusRegressed Status = "regressed"
)

// A Row reports one event kind's old and new values. A kind measured
// by only one of the two runs has the corresponding Measured flag
// cleared and no delta; it is never presented as zero.
type Row struct {
	Kind        grindfmt.EventKind `json:"kind"`
	OldMeasured bool               `json:"oldMeasured"`
	NewMeasured bool               `json:"newMeasured"`
	Old         uint64             `json:"old"`
	New         uint64             `json:"new"`
	DeltaPct    float64            `json:"deltaPct"`
	Infinite    bool               `json:"infinite"` // baseline zero, current nonzero
}

// A RuleResult is the outcome of one rule, in declaration order.
type RuleResult struct {
	Rule     Rule `json:"rule"`
	Violated bool `json:"violated"`
	// Unmeasured is set when the rule's kind was not measured on both
	// sides, so the rule could not be evaluated.
	Unmeasured bool `json:"unmeasured,omitempty"`
}

// A Report is the full result of comparing a run against a baseline.
type Report struct {
	Tool        grindfmt.Tool        `json:"tool"`
	ID          grindfmt.BenchmarkID `json:"id"`
	Rows        []Row                `json:"rows"`
	RuleResults []RuleResult         `json:"ruleResults,omitempty"`
	Status      Status               `json:"status"`

	// TargetFailed records that the measured process exited abnormally.
	// The measurement may still be valid but the verdict must not hide
	// the failure.
	TargetFailed bool `json:"targetFailed,omitempty"`
}

// canonicalOrder lists the well-known event kinds in display order:
// the callgrind raw events, the derived cache summary, then the other
// tools' kinds. Kinds not listed sort after these, alphabetically.
var canonicalOrder = func() map[grindfmt.EventKind]int {
	kinds := []grindfmt.EventKind{
		grindfmt.Ir, grindfmt.Dr, grindfmt.Dw,
		grindfmt.I1mr, grindfmt.D1mr, grindfmt.D1mw,
		grindfmt.ILmr, grindfmt.DLmr, grindfmt.DLmw,
		grindfmt.Bc, grindfmt.Bcm, grindfmt.Bi, grindfmt.Bim, grindfmt.Ge,
		grindfmt.SysCount, grindfmt.SysTime, grindfmt.SysCPUTime,
		grindfmt.L1Hits, grindfmt.LLHits, grindfmt.RAMHits,
		grindfmt.TotalRW, grindfmt.EstimatedCycles,
		grindfmt.AllocBytes, grindfmt.AllocBlocks,
		grindfmt.AtTGmaxBytes, grindfmt.AtTGmaxBlocks,
		grindfmt.AtTEndBytes, grindfmt.AtTEndBlocks,
		grindfmt.ReadsBytes, grindfmt.WritesBytes,
		grindfmt.HeapBytes, grindfmt.HeapExtraBytes, grindfmt.StackBytes,
		grindfmt.Errors, grindfmt.Contexts,
		grindfmt.SuppressedErrors, grindfmt.SuppressedContexts,
	}
	m := make(map[grindfmt.EventKind]int, len(kinds))
	for i, k := range kinds {
		m[k] = i
	}
	return m
}()

func kindLess(a, b grindfmt.EventKind) bool {
	ia, oka := canonicalOrder[a]
	ib, okb := canonicalOrder[b]
	switch {
	case oka && okb:
		return ia < ib
	case oka:
		return true
	case okb:
		return false
	default:
		return a < b
	}
}

// Compare computes the per-kind deltas between a baseline model and a
// current model and evaluates rules in declaration order.
//
// Models produced by different tools are never comparable; that is a
// usage error, not a verdict. All rules are evaluated even after a
// failure so the report lists every outcome; the first violated
// fail-severity rule sets the overall status to regressed.
func Compare(old, cur *grindfmt.Model, rules []Rule) (*Report, error) {
	if old.Tool != cur.Tool {
		return nil, errors.Newf("cannot compare %s results against a %s baseline", cur.Tool, old.Tool)
	}

	kindSet := make(map[grindfmt.EventKind]bool, len(old.Totals)+len(cur.Totals))
	for k := range old.Totals {
		kindSet[k] = true
	}
	for k := range cur.Totals {
		kindSet[k] = true
	}
	kinds := make([]grindfmt.EventKind, 0, len(kindSet))
	for k := range kindSet {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kindLess(kinds[i], kinds[j]) })

	r := &Report{Tool: cur.Tool, Status: StatusOK}
	rowIndex := make(map[grindfmt.EventKind]int, len(kinds))
	for _, k := range kinds {
		oldV, oldOK := old.Totals[k]
		newV, newOK := cur.Totals[k]
		row := Row{Kind: k, OldMeasured: oldOK, NewMeasured: newOK, Old: oldV, New: newV}
		if oldOK && newOK {
			row.DeltaPct = grindfmt.PercentDelta(oldV, newV)
			row.Infinite = math.IsInf(row.DeltaPct, 1)
		}
		rowIndex[k] = len(r.Rows)
		r.Rows = append(r.Rows, row)
	}

	for _, rule := range rules {
		res := RuleResult{Rule: rule}
		i, ok := rowIndex[rule.Kind]
		if !ok || !r.Rows[i].OldMeasured || !r.Rows[i].NewMeasured {
			res.Unmeasured = true
			r.RuleResults = append(r.RuleResults, res)
			continue
		}
		res.Violated = violates(rule, r.Rows[i])
		if res.Violated && rule.Severity == Fail {
			r.Status = StatusRegressed
		}
		r.RuleResults = append(r.RuleResults, res)
	}
	return r, nil
}

func violates(rule Rule, row Row) bool {
	delta := row.DeltaPct
	switch rule.Direction {
	case Increase:
		return delta > rule.ThresholdPct
	case Decrease:
		return -delta > rule.ThresholdPct
	case Either:
		return math.Abs(delta) > rule.ThresholdPct
	}
	return false
}
