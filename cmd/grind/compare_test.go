// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-grind/grind/grindfmt"
	"github.com/go-grind/grind/grindstat"
)

func TestParseRuleSpec(t *testing.T) {
	r, err := parseRuleSpec("Ir:5")
	require.NoError(t, err)
	assert.Equal(t, grindstat.Rule{
		Kind: grindfmt.Ir, ThresholdPct: 5,
		Direction: grindstat.Increase, Severity: grindstat.Fail,
	}, r)

	r, err = parseRuleSpec("EstimatedCycles:10:either:warn")
	require.NoError(t, err)
	assert.Equal(t, grindstat.Rule{
		Kind: grindfmt.EstimatedCycles, ThresholdPct: 10,
		Direction: grindstat.Either, Severity: grindstat.Warn,
	}, r)

	for _, bad := range []string{"", "Ir", "Ir:x", "Ir:-3", "Ir:5:up", "Ir:5:increase:meh", "Ir:5:increase:fail:extra"} {
		_, err := parseRuleSpec(bad)
		assert.Error(t, err, bad)
	}
}
