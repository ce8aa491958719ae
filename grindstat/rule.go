// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grindstat compares normalized cost models and evaluates
// regression rules against the differences.
//
// Comparison is exact: the inputs are deterministic event counters, so
// there is no statistical testing, only percentage deltas checked
// against configured thresholds.
package grindstat

import (
	"fmt"

	"github.com/go-grind/grind/grindfmt"
)

// A Direction restricts which sign of change a rule reacts to.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
	Either   Direction = "either"
)

// ParseDirection converts a configuration string to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Increase, Decrease, Either:
		return Direction(s), nil
	case "":
		return Increase, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// A Severity decides whether a violated rule fails the run or only
// warns.
type Severity string

const (
	Warn Severity = "warn"
	Fail Severity = "fail"
)

// ParseSeverity converts a configuration string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case Warn, Fail:
		return Severity(s), nil
	case "":
		return Fail, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// A Rule is one regression check: the event kind to watch, the percent
// change that counts as a violation, the direction of change the rule
// reacts to, and what a violation means for the run.
type Rule struct {
	Kind         grindfmt.EventKind `json:"kind" yaml:"kind"`
	ThresholdPct float64            `json:"thresholdPct" yaml:"threshold_pct"`
	Direction    Direction          `json:"direction" yaml:"direction"`
	Severity     Severity           `json:"severity" yaml:"severity"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s %s >%.4g%% (%s)", r.Kind, r.Direction, r.ThresholdPct, r.Severity)
}

// MergeRules combines batch-wide default rules with case-specific
// rules. A case rule strictly overrides every default rule for the
// same event kind; the result keeps case rules first, in their
// declared order, then the surviving defaults in theirs.
func MergeRules(defaults, caseRules []Rule) []Rule {
	if len(caseRules) == 0 {
		return defaults
	}
	overridden := make(map[grindfmt.EventKind]bool, len(caseRules))
	for _, r := range caseRules {
		overridden[r.Kind] = true
	}
	merged := make([]Rule, 0, len(caseRules)+len(defaults))
	merged = append(merged, caseRules...)
	for _, r := range defaults {
		if !overridden[r.Kind] {
			merged = append(merged, r)
		}
	}
	return merged
}
