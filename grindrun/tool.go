// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grindrun launches targets under Valgrind tools and turns
// their artifacts into normalized models.
//
// Runs are deterministic by construction: address space randomization
// is disabled, callgrind's cache simulation uses fixed geometry, and
// the child environment is controlled. The same target binary produces
// the same event counts on every run.
package grindrun

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/go-grind/grind/grindfmt"
)

// Fixed cache geometry for callgrind. Measuring with the host's real
// cache sizes would make counts differ across machines.
var callgrindCacheArgs = []string{
	"--I1=32768,8,64",
	"--D1=32768,8,64",
	"--LL=8388608,16,64",
	"--cache-sim=yes",
}

// reservedToolFlags are valgrind options the runner owns. User values
// for these would break artifact discovery or determinism, so they are
// dropped with a warning instead of being passed through.
var reservedToolFlags = []string{
	"--cache-sim",
	"--callgrind-out-file",
	"--dhat-out-file",
	"--massif-out-file",
	"--log-file",
	"--xml-file",
	"--tool",
}

func reservedFlag(arg string) string {
	for _, f := range reservedToolFlags {
		if arg == f || strings.HasPrefix(arg, f+"=") {
			return f
		}
	}
	return ""
}

// artifactBase returns the artifact filename stem for a tool and a
// sanitized case name, without the pid suffix valgrind appends via %p.
func artifactBase(tool grindfmt.Tool, name string) string {
	return fmt.Sprintf("%s.%s", tool, name)
}

// outFileFlag returns the per-tool option that redirects the cost
// artifact, or "" for tools that only log.
func outFileFlag(tool grindfmt.Tool) string {
	switch tool {
	case grindfmt.ToolCallgrind:
		return "--callgrind-out-file"
	case grindfmt.ToolDHAT:
		return "--dhat-out-file"
	case grindfmt.ToolMassif:
		return "--massif-out-file"
	}
	return ""
}

// toolArgs builds the valgrind argument list for one run: tool
// selection, determinism defaults, artifact redirection into dir, and
// the user's tool args with reserved flags filtered out.
func toolArgs(log logrus.FieldLogger, tool grindfmt.Tool, dir, name string, userArgs []string) []string {
	args := []string{"--tool=" + string(tool)}
	if tool == grindfmt.ToolCallgrind {
		args = append(args, callgrindCacheArgs...)
	}

	base := filepath.Join(dir, artifactBase(tool, name))
	if flag := outFileFlag(tool); flag != "" {
		args = append(args, fmt.Sprintf("%s=%s.out.%%p", flag, base))
	}
	args = append(args, fmt.Sprintf("--log-file=%s.log.%%p", base))

	for _, a := range userArgs {
		if f := reservedFlag(a); f != "" {
			log.Warnf("ignoring tool argument %q: %s is managed by the runner", a, f)
			continue
		}
		args = append(args, a)
	}
	return args
}

// outGlob and logGlob match the artifacts of one run, one file per
// child pid.
func outGlob(dir string, tool grindfmt.Tool, name string) string {
	return filepath.Join(dir, artifactBase(tool, name)+".out.*")
}

func logGlob(dir string, tool grindfmt.Tool, name string) string {
	return filepath.Join(dir, artifactBase(tool, name)+".log.*")
}

// sanitizeName maps a benchmark name to a filename-safe artifact stem.
func sanitizeName(s string) string {
	if s == "" {
		return "run"
	}
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
