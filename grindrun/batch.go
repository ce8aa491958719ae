// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindrun

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/go-grind/grind/baseline"
	"github.com/go-grind/grind/grindfmt"
	"github.com/go-grind/grind/grindstat"
)

// A CaseResult is the outcome of one batch case.
type CaseResult struct {
	ID grindfmt.BenchmarkID

	// Report is nil when the case established a new baseline or
	// failed before comparison.
	Report *grindstat.Report

	// Established is set when no baseline existed and this run's
	// measurement was saved as the first one.
	Established bool

	// Model is the run's parsed measurement, kept so callers can save
	// it under additional slots.
	Model *grindfmt.Model

	// TargetFailed mirrors the run's exit contract violation.
	TargetFailed bool

	// Err records a case-level failure: spawn, parse or store errors.
	// One failing case does not stop its siblings.
	Err error
}

// A BatchResult aggregates all case outcomes in configuration order.
type BatchResult struct {
	Cases []CaseResult
}

// Counts returns how many cases passed, regressed and errored.
// Newly established baselines count as passed.
func (b *BatchResult) Counts() (ok, regressed, failed int) {
	for _, c := range b.Cases {
		switch {
		case c.Err != nil || c.TargetFailed:
			failed++
		case c.Report != nil && c.Report.Status == grindstat.StatusRegressed:
			regressed++
		default:
			ok++
		}
	}
	return ok, regressed, failed
}

// ExitCode is the process exit contract: zero only when every case
// passed.
func (b *BatchResult) ExitCode() int {
	_, regressed, failed := b.Counts()
	if regressed > 0 || failed > 0 {
		return 1
	}
	return 0
}

// A Batch runs every configured case, compares against stored
// baselines and records the results.
type Batch struct {
	Config *Config
	Runner *Runner
	Store  *baseline.Store
	Log    logrus.FieldLogger
}

// NewBatch wires a batch from a validated configuration.
func NewBatch(cfg *Config) *Batch {
	log := logrus.StandardLogger()
	return &Batch{
		Config: cfg,
		Runner: &Runner{
			ValgrindPath: cfg.ValgrindPath,
			AllowASLR:    cfg.AllowASLR,
			Log:          log,
		},
		Store: baseline.NewStore(cfg.BaselineDir),
		Log:   log,
	}
}

func (b *Batch) log() logrus.FieldLogger {
	if b.Log != nil {
		return b.Log
	}
	return logrus.StandardLogger()
}

// Run executes the whole batch. Global failures, a missing valgrind
// binary or an invalid configuration, return an error and run nothing.
// Per-case failures are recorded in the result.
func (b *Batch) Run(ctx context.Context) (*BatchResult, error) {
	if err := b.Config.Validate(); err != nil {
		return nil, err
	}
	if _, err := b.Runner.valgrind(); err != nil {
		return nil, err
	}

	result := &BatchResult{Cases: make([]CaseResult, len(b.Config.Cases))}

	g, ctx := errgroup.WithContext(ctx)
	limit := b.Config.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i := range b.Config.Cases {
		i := i
		cc := &b.Config.Cases[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				result.Cases[i] = CaseResult{ID: cc.ID, Err: err}
				return nil
			}
			result.Cases[i] = b.runCase(ctx, cc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Batch) runCase(ctx context.Context, cc *CaseConfig) CaseResult {
	out := CaseResult{ID: cc.ID}
	log := b.log().WithField("case", cc.ID.String())

	inv := &Invocation{
		Tool:     b.Config.Tool,
		ToolArgs: b.Config.ToolArgs,
		Target:   cc.Command[0],
		Args:     cc.Command[1:],
		Env:      cc.Env,
		EnvClear: cc.EnvClear,
		ExitWith: cc.ExitWith,
		Timeout:  time.Duration(b.Config.Timeout),
		Name:     caseArtifactName(cc.ID),
	}
	if b.Config.KeepArtifacts {
		inv.ArtifactDir = filepath.Join(b.Config.ArtifactDir, sanitizeName(cc.ID.String()))
	}

	res, err := b.Runner.Run(ctx, inv)
	if err != nil {
		out.Err = err
		return out
	}
	defer res.Close()
	out.TargetFailed = res.TargetFailed
	if res.TargetFailed {
		log.WithField("exitCode", res.ExitCode).Warn("target violated its exit contract")
	}

	model, err := ParseResult(b.Config.Tool, res)
	if err != nil {
		out.Err = err
		return out
	}
	out.Model = model

	prov := baseline.Provenance{Command: cc.Command, Time: time.Now().UTC()}

	snap, err := b.Store.Load(cc.ID, b.Config.Slot)
	switch {
	case errors.Is(err, baseline.ErrNotFound):
		if err := b.Store.Save(cc.ID, baseline.SlotCurrent, model, prov); err != nil {
			out.Err = err
			return out
		}
		out.Established = true
		log.Info("established baseline")
		return out
	case err != nil:
		out.Err = err
		return out
	}

	rules := grindstat.MergeRules(b.Config.DefaultRules, cc.Rules)
	report, err := grindstat.Compare(snap.Model, model, rules)
	if err != nil {
		out.Err = err
		return out
	}
	report.ID = cc.ID
	report.TargetFailed = res.TargetFailed
	out.Report = report

	// The comparison slot may be a named save; "current" always
	// tracks the latest measurement.
	if err := b.Store.Save(cc.ID, baseline.SlotCurrent, model, prov); err != nil {
		out.Err = err
		return out
	}
	return out
}

func caseArtifactName(id grindfmt.BenchmarkID) string {
	name := id.Name
	if id.Param != "" {
		name += "." + id.Param
	}
	return name
}
