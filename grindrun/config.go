// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindrun

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-grind/grind/grindfmt"
	"github.com/go-grind/grind/grindstat"
)

// A Config describes one batch of benchmark cases.
type Config struct {
	// ValgrindPath overrides the valgrind binary. Optional.
	ValgrindPath string `yaml:"valgrind_path,omitempty"`

	// Tool selects the valgrind tool for every case in the batch.
	Tool grindfmt.Tool `yaml:"tool"`

	// ToolArgs are extra valgrind options applied to every case.
	ToolArgs []string `yaml:"tool_args,omitempty"`

	Timeout   Duration `yaml:"timeout,omitempty"`
	AllowASLR bool     `yaml:"allow_aslr,omitempty"`

	// KeepArtifacts preserves raw tool output under ArtifactDir
	// instead of a removed temporary directory.
	KeepArtifacts bool   `yaml:"keep_artifacts,omitempty"`
	ArtifactDir   string `yaml:"artifact_dir,omitempty"`

	BaselineDir string `yaml:"baseline_dir"`

	// Slot names the baseline to compare against. Defaults to
	// "current", the slot every run saves.
	Slot string `yaml:"slot,omitempty"`

	// Parallelism bounds concurrently running cases. Zero means one
	// at a time; concurrent cases share machine caches, so parallel
	// runs trade isolation for speed.
	Parallelism int `yaml:"parallelism,omitempty"`

	DefaultRules []grindstat.Rule `yaml:"default_rules,omitempty"`

	Cases []CaseConfig `yaml:"cases"`
}

// A CaseConfig is one benchmark case in a batch.
type CaseConfig struct {
	ID grindfmt.BenchmarkID `yaml:"id"`

	// Target command, argv style.
	Command []string `yaml:"command"`

	Env      map[string]string `yaml:"env,omitempty"`
	EnvClear bool              `yaml:"env_clear,omitempty"`

	ExitWith ExitWith `yaml:"exit_with,omitempty"`

	// Rules override the batch defaults. A case rule replaces every
	// default rule for the same event kind.
	Rules []grindstat.Rule `yaml:"rules,omitempty"`
}

// A Duration is a time.Duration that unmarshals from YAML strings
// like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Newf("invalid duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts "success", "failure" or a bare integer.
func (e *ExitWith) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		switch s {
		case "", "success":
			*e = ExitWith{Kind: "success"}
			return nil
		case "failure":
			*e = ExitWith{Kind: "failure"}
			return nil
		}
	}
	var code int
	if err := value.Decode(&code); err == nil {
		*e = ExitWith{Kind: "code", Code: code}
		return nil
	}
	return errors.Newf("invalid exit_with %q: want success, failure or an exit code", value.Value)
}

// MarshalYAML renders the contract back in its config form.
func (e ExitWith) MarshalYAML() (interface{}, error) {
	if e.Kind == "code" {
		return e.Code, nil
	}
	if e.Kind == "" {
		return "success", nil
	}
	return e.Kind, nil
}

// LoadConfig reads and validates a batch configuration. Unknown YAML
// fields are errors; a typoed rule key silently doing nothing would be
// worse than a rejected file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening config")
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return &cfg, nil
}

// Validate checks the batch configuration. Duplicate benchmark
// identities are rejected here, before any case runs: two cases with
// the same id would race to write the same baseline key.
func (c *Config) Validate() error {
	if _, err := grindfmt.ParseTool(string(c.Tool)); err != nil {
		return err
	}
	if c.BaselineDir == "" {
		return errors.New("baseline_dir is required")
	}
	if len(c.Cases) == 0 {
		return errors.New("no cases configured")
	}
	if c.Slot == "" {
		c.Slot = "current"
	}

	if err := validateRules(c.DefaultRules); err != nil {
		return errors.Wrap(err, "default_rules")
	}

	seen := make(map[grindfmt.BenchmarkID]bool, len(c.Cases))
	for i := range c.Cases {
		cc := &c.Cases[i]
		if cc.ID.Group == "" || cc.ID.Name == "" {
			return errors.Newf("case %d: id needs group and name", i)
		}
		if seen[cc.ID] {
			return errors.Newf("duplicate benchmark id %s", cc.ID)
		}
		seen[cc.ID] = true
		if len(cc.Command) == 0 {
			return errors.Newf("case %s: command is required", cc.ID)
		}
		if err := validateRules(cc.Rules); err != nil {
			return errors.Wrapf(err, "case %s rules", cc.ID)
		}
	}
	return nil
}

func validateRules(rules []grindstat.Rule) error {
	for i := range rules {
		r := &rules[i]
		if r.Kind == "" {
			return errors.Newf("rule %d: kind is required", i)
		}
		if r.ThresholdPct < 0 {
			return errors.Newf("rule %d (%s): threshold must not be negative", i, r.Kind)
		}
		dir, err := grindstat.ParseDirection(string(r.Direction))
		if err != nil {
			return errors.Wrapf(err, "rule %d (%s)", i, r.Kind)
		}
		r.Direction = dir
		sev, err := grindstat.ParseSeverity(string(r.Severity))
		if err != nil {
			return errors.Wrapf(err, "rule %d (%s)", i, r.Kind)
		}
		r.Severity = sev
	}
	return nil
}
