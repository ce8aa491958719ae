// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindrun

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-grind/grind/grindfmt"
	"github.com/go-grind/grind/grindstat"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o666))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
tool: callgrind
baseline_dir: /tmp/baselines
timeout: 30s
tool_args: ["--dump-instr=yes"]
default_rules:
  - kind: Ir
    threshold_pct: 5
cases:
  - id: {group: codec, name: encode, param: small}
    command: ["./bench", "encode"]
    env: {BENCH_MODE: fast}
  - id: {group: codec, name: decode}
    command: ["./bench", "decode"]
    exit_with: failure
    rules:
      - kind: Ir
        threshold_pct: 20
        direction: either
        severity: warn
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, grindfmt.ToolCallgrind, cfg.Tool)
	assert.Equal(t, Duration(30*time.Second), cfg.Timeout)
	assert.Equal(t, "current", cfg.Slot)
	require.Len(t, cfg.Cases, 2)

	// Omitted rule fields take their documented defaults.
	require.Len(t, cfg.DefaultRules, 1)
	assert.Equal(t, grindstat.Increase, cfg.DefaultRules[0].Direction)
	assert.Equal(t, grindstat.Fail, cfg.DefaultRules[0].Severity)

	decode := cfg.Cases[1]
	assert.Equal(t, ExitWith{Kind: "failure"}, decode.ExitWith)
	require.Len(t, decode.Rules, 1)
	assert.Equal(t, grindstat.Either, decode.Rules[0].Direction)
	assert.Equal(t, grindstat.Warn, decode.Rules[0].Severity)
}

func TestLoadConfigExitWithCode(t *testing.T) {
	path := writeConfig(t, `
tool: callgrind
baseline_dir: /tmp/baselines
cases:
  - id: {group: g, name: n}
    command: ["./bench"]
    exit_with: 42
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ExitWith{Kind: "code", Code: 42}, cfg.Cases[0].ExitWith)
}

func TestLoadConfigUnknownField(t *testing.T) {
	path := writeConfig(t, `
tool: callgrind
baseline_dir: /tmp/baselines
threshhold: 5
cases:
  - id: {group: g, name: n}
    command: ["./bench"]
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshhold")
}

func TestValidateDuplicateID(t *testing.T) {
	cfg := &Config{
		Tool:        grindfmt.ToolCallgrind,
		BaselineDir: "/tmp/b",
		Cases: []CaseConfig{
			{ID: grindfmt.BenchmarkID{Group: "g", Name: "n"}, Command: []string{"./a"}},
			{ID: grindfmt.BenchmarkID{Group: "g", Name: "n"}, Command: []string{"./b"}},
		},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate benchmark id g::n")
}

func TestValidateRejections(t *testing.T) {
	base := func() *Config {
		return &Config{
			Tool:        grindfmt.ToolCallgrind,
			BaselineDir: "/tmp/b",
			Cases: []CaseConfig{
				{ID: grindfmt.BenchmarkID{Group: "g", Name: "n"}, Command: []string{"./a"}},
			},
		}
	}

	cfg := base()
	cfg.Tool = "cachegrind"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.BaselineDir = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Cases = nil
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Cases[0].Command = nil
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Cases[0].ID.Name = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.DefaultRules = []grindstat.Rule{{Kind: grindfmt.Ir, ThresholdPct: -1}}
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Cases[0].Rules = []grindstat.Rule{{Kind: grindfmt.Ir, Direction: "sideways"}}
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
tool: callgrind
baseline_dir: /tmp/baselines
timeout: soon
cases:
  - id: {group: g, name: n}
    command: ["./bench"]
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid duration "soon"`)
}
