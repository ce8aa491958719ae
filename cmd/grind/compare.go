// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/go-grind/grind/baseline"
	"github.com/go-grind/grind/grindfmt"
	"github.com/go-grind/grind/grindstat"
)

var (
	compareRules []string
	compareJSON  bool
)

var compareCmd = &cobra.Command{
	Use:   "compare OLD.json NEW.json",
	Short: "compare two saved measurements",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldSnap, err := readSnapshot(args[0])
		if err != nil {
			return err
		}
		newSnap, err := readSnapshot(args[1])
		if err != nil {
			return err
		}

		rules := make([]grindstat.Rule, 0, len(compareRules))
		for _, spec := range compareRules {
			r, err := parseRuleSpec(spec)
			if err != nil {
				return err
			}
			rules = append(rules, r)
		}

		report, err := grindstat.Compare(oldSnap.Model, newSnap.Model, rules)
		if err != nil {
			return err
		}
		report.ID = newSnap.ID

		if compareJSON {
			if err := grindstat.WriteJSON(os.Stdout, report); err != nil {
				return err
			}
		} else {
			var buf bytes.Buffer
			grindstat.FormatText(&buf, report)
			os.Stdout.Write(buf.Bytes())
		}
		if report.Status == grindstat.StatusRegressed {
			os.Exit(1)
		}
		return nil
	},
}

func readSnapshot(path string) (*baseline.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap baseline.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if snap.Model == nil {
		return nil, errors.Newf("%s contains no model", path)
	}
	return &snap, nil
}

// parseRuleSpec reads "KIND:PCT[:DIRECTION[:SEVERITY]]", for example
// "Ir:5", "EstimatedCycles:10:either:warn".
func parseRuleSpec(spec string) (grindstat.Rule, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 4 {
		return grindstat.Rule{}, errors.Newf("invalid rule %q: want KIND:PCT[:DIRECTION[:SEVERITY]]", spec)
	}
	pct, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || pct < 0 {
		return grindstat.Rule{}, errors.Newf("invalid rule threshold %q", parts[1])
	}
	rule := grindstat.Rule{Kind: grindfmt.EventKind(parts[0]), ThresholdPct: pct}
	dir := ""
	if len(parts) > 2 {
		dir = parts[2]
	}
	if rule.Direction, err = grindstat.ParseDirection(dir); err != nil {
		return grindstat.Rule{}, errors.Wrapf(err, "rule %q", spec)
	}
	sev := ""
	if len(parts) > 3 {
		sev = parts[3]
	}
	if rule.Severity, err = grindstat.ParseSeverity(sev); err != nil {
		return grindstat.Rule{}, errors.Wrapf(err, "rule %q", spec)
	}
	return rule, nil
}

func init() {
	compareCmd.Flags().StringArrayVar(&compareRules, "rule", nil, "regression rule, KIND:PCT[:DIRECTION[:SEVERITY]] (repeatable)")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "emit the report as JSON")
}
