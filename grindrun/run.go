// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindrun

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/go-grind/grind/grindfmt"
)

// ErrToolNotFound reports that the valgrind binary is not installed or
// not on PATH. This is a global failure: no case can run without it.
var ErrToolNotFound = errors.New("valgrind executable not found")

// An ExitWith is the expected exit behavior of the target. The zero
// value expects success.
type ExitWith struct {
	// Kind is "success", "failure" or "code".
	Kind string
	// Code is the exact expected code when Kind is "code".
	Code int
}

// Matches reports whether an observed target exit code satisfies the
// contract.
func (e ExitWith) Matches(code int) bool {
	switch e.Kind {
	case "", "success":
		return code == 0
	case "failure":
		return code != 0
	case "code":
		return code == e.Code
	}
	return false
}

func (e ExitWith) String() string {
	switch e.Kind {
	case "", "success":
		return "success"
	case "failure":
		return "failure"
	case "code":
		return "exit code " + strconv.Itoa(e.Code)
	}
	return e.Kind
}

// An Invocation describes one target run under one tool.
type Invocation struct {
	Tool     grindfmt.Tool
	ToolArgs []string

	// Target command.
	Target string
	Args   []string
	Dir    string

	// Env entries override or extend the inherited environment. With
	// EnvClear the child starts from an empty environment; the dynamic
	// linker variables survive, and memcheck additionally keeps PATH,
	// HOME and DEBUGINFOD_URLS so it can locate debug info.
	Env      map[string]string
	EnvClear bool

	ExitWith ExitWith
	Timeout  time.Duration

	// Name becomes the artifact filename stem after sanitization.
	Name string

	// ArtifactDir, when set, receives the artifacts and is kept.
	// Otherwise a temporary directory is used and removed after the
	// artifacts have been parsed.
	ArtifactDir string
}

// A RunResult reports one completed (or killed) run and the artifacts
// it left behind.
type RunResult struct {
	ExitCode int
	// TargetFailed is set when the exit code violates the invocation's
	// ExitWith contract, including kills on timeout. Artifacts are
	// still enumerated; a measurement of a failed target is reported,
	// not discarded silently.
	TargetFailed bool
	TimedOut     bool

	// OutFiles are the tool's cost artifacts, one per child pid.
	// LogFiles are the tool's log outputs. Both sorted.
	OutFiles []string
	LogFiles []string

	// Stderr is the combined valgrind/target stderr, kept for
	// diagnostics when something went wrong.
	Stderr []byte

	Duration time.Duration

	cleanup func()
}

// Close removes the run's temporary artifact directory, if any. Safe
// to call more than once.
func (r *RunResult) Close() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// A Runner launches targets under valgrind.
type Runner struct {
	// ValgrindPath overrides the "valgrind" binary looked up on PATH.
	ValgrindPath string

	// AllowASLR skips the setarch wrapper that disables address space
	// layout randomization. Leaving ASLR on makes pointer-dependent
	// counts nondeterministic.
	AllowASLR bool

	Log logrus.FieldLogger
}

func (r *Runner) log() logrus.FieldLogger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

func (r *Runner) valgrind() (string, error) {
	name := r.ValgrindPath
	if name == "" {
		name = "valgrind"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(ErrToolNotFound, "%s", name)
	}
	return path, nil
}

// aslrWrapper returns the setarch prefix that disables ASLR, or nil
// when unavailable. Randomized load addresses change instruction and
// data counts between otherwise identical runs.
func (r *Runner) aslrWrapper() []string {
	if r.AllowASLR || runtime.GOOS != "linux" {
		return nil
	}
	setarch, err := exec.LookPath("setarch")
	if err != nil {
		r.log().Debug("setarch not found, running with ASLR enabled")
		return nil
	}
	return []string{setarch, "-R"}
}

// preservedEnv lists variables that survive EnvClear for every tool.
var preservedEnv = []string{"LD_PRELOAD", "LD_LIBRARY_PATH"}

// memcheckPreservedEnv additionally survives for memcheck.
var memcheckPreservedEnv = []string{"PATH", "HOME", "DEBUGINFOD_URLS"}

func buildEnv(tool grindfmt.Tool, inv *Invocation) []string {
	var env []string
	if inv.EnvClear {
		keep := append([]string(nil), preservedEnv...)
		if tool == grindfmt.ToolMemcheck {
			keep = append(keep, memcheckPreservedEnv...)
		}
		for _, k := range keep {
			if v, ok := os.LookupEnv(k); ok {
				env = append(env, k+"="+v)
			}
		}
	} else {
		env = os.Environ()
	}

	keys := make([]string, 0, len(inv.Env))
	for k := range inv.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = setEnv(env, k, inv.Env[k])
	}
	return env
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// Run executes the invocation and enumerates its artifacts. The
// returned result must be Closed after its artifact files have been
// consumed. A nil error does not imply the target succeeded; check
// TargetFailed.
func (r *Runner) Run(ctx context.Context, inv *Invocation) (*RunResult, error) {
	valgrind, err := r.valgrind()
	if err != nil {
		return nil, err
	}
	if inv.Target == "" {
		return nil, errors.New("invocation has no target command")
	}

	dir := inv.ArtifactDir
	cleanup := func() {}
	if dir == "" {
		dir, err = os.MkdirTemp("", "grind-*")
		if err != nil {
			return nil, errors.Wrap(err, "creating artifact directory")
		}
		tmp := dir
		cleanup = func() { os.RemoveAll(tmp) }
	} else if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, errors.Wrap(err, "creating artifact directory")
	}

	name := sanitizeName(inv.Name)
	argv := r.aslrWrapper()
	argv = append(argv, valgrind)
	argv = append(argv, toolArgs(r.log(), inv.Tool, dir, name, inv.ToolArgs)...)
	argv = append(argv, inv.Target)
	argv = append(argv, inv.Args...)

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = buildEnv(inv.Tool, inv)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// The target may fork. Kill the whole process group on
	// cancellation so no child outlives the run.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	r.log().WithFields(logrus.Fields{
		"tool":   inv.Tool,
		"target": inv.Target,
	}).Debug("starting run")

	start := time.Now()
	runErr := cmd.Run()
	res := &RunResult{
		Duration: time.Since(start),
		Stderr:   stderr.Bytes(),
		cleanup:  cleanup,
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(runErr, &exitErr):
			exitCode = exitErr.ExitCode()
			if exitCode < 0 {
				// Killed by signal.
				exitCode = 128
			}
		case ctx.Err() != nil:
			res.TimedOut = true
			exitCode = 128
		default:
			res.Close()
			return nil, errors.Wrap(runErr, "starting valgrind")
		}
	}
	if ctx.Err() != nil {
		res.TimedOut = true
	}
	res.ExitCode = exitCode
	res.TargetFailed = res.TimedOut || !inv.ExitWith.Matches(exitCode)

	if inv.Tool.HasOutputFile() {
		res.OutFiles, err = globSorted(outGlob(dir, inv.Tool, name))
		if err != nil {
			res.Close()
			return nil, err
		}
	}
	res.LogFiles, err = globSorted(logGlob(dir, inv.Tool, name))
	if err != nil {
		res.Close()
		return nil, err
	}

	if err := checkToolFatal(inv.Tool, res); err != nil {
		res.Close()
		return nil, err
	}
	return res, nil
}

func globSorted(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrap(err, "enumerating artifacts")
	}
	sort.Strings(files)
	return files, nil
}

// checkToolFatal distinguishes a failing target, which is a
// measurement outcome, from valgrind itself failing to run the target
// at all, which is an error. A tool-fatal run leaves no artifact to
// parse.
func checkToolFatal(tool grindfmt.Tool, res *RunResult) error {
	if len(res.LogFiles) > 0 || (tool.HasOutputFile() && len(res.OutFiles) > 0) {
		return nil
	}
	if res.TimedOut {
		return nil
	}
	msg := "valgrind produced no artifacts"
	for _, line := range strings.Split(string(res.Stderr), "\n") {
		if strings.HasPrefix(line, "valgrind:") {
			msg = strings.TrimSpace(line)
			break
		}
	}
	return errors.Newf("%s tool failed: %s", tool, msg)
}

// ParseResult parses every artifact of a run into one model.
// Callgrind and massif measurements come from their output files;
// DHAT and the error checkers report through their logs (DHAT's
// output file is the viewer profile and is only retained, never
// parsed). One model per child pid, merged by cost addition.
func ParseResult(tool grindfmt.Tool, res *RunResult) (*grindfmt.Model, error) {
	files := res.OutFiles
	if tool.MeasuresViaLog() {
		files = res.LogFiles
	}
	if len(files) == 0 {
		return nil, errors.Newf("%s run produced no parseable artifacts", tool)
	}

	var merged *grindfmt.Model
	for _, f := range files {
		m, err := grindfmt.ParseFile(tool, f)
		if err != nil {
			return nil, err
		}
		if merged == nil {
			merged = m
			continue
		}
		if err := merged.Merge(m); err != nil {
			return nil, errors.Wrapf(err, "merging %s", f)
		}
	}
	return merged, nil
}
