// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"io"
	"regexp"
	"strconv"
	"strings"
)

// A DHATParser reads the summary a DHAT run writes to its log file:
//
//	==12345== Total:     1,311 bytes in 26 blocks
//	==12345== At t-gmax: 1,311 bytes in 26 blocks
//	==12345== At t-end:  0 bytes in 0 blocks
//	==12345== Reads:     5,122 bytes
//	==12345== Writes:    3,747 bytes
//
// DHAT attributes allocations to program points rather than call
// edges, so the model is totals-only.
type DHATParser struct{}

var (
	dhatPrefixRE = regexp.MustCompile(`^\s*(==|--)([0-9:.]+\s+)?[0-9]+(==|--)\s?(?P<rest>.*)$`)
	dhatBlocksRE = regexp.MustCompile(`^(?P<bytes>[0-9,]+) bytes(?: in (?P<blocks>[0-9,]+) blocks)?`)
)

// dhatFields maps the labels of the summary lines to the event kinds
// for the byte and block counts they carry.
var dhatFields = map[string][2]EventKind{
	"Total":     {AllocBytes, AllocBlocks},
	"At t-gmax": {AtTGmaxBytes, AtTGmaxBlocks},
	"At t-end":  {AtTEndBytes, AtTEndBlocks},
	"Reads":     {ReadsBytes, ""},
	"Writes":    {WritesBytes, ""},
}

// Parse reads one DHAT log file.
func (p *DHATParser) Parse(r io.Reader, fileName string) (*Model, error) {
	lr := newLineReader(r, fileName)
	totals := make(Costs)
	sawHeader := false
	sawTotal := false
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		m := dhatPrefixRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sawHeader = true
		rest := m[dhatPrefixRE.SubexpIndex("rest")]
		label, value, found := strings.Cut(rest, ":")
		if !found {
			continue
		}
		kinds, ok := dhatFields[strings.TrimSpace(label)]
		if !ok {
			continue
		}
		bm := dhatBlocksRE.FindStringSubmatch(strings.TrimSpace(value))
		if bm == nil {
			return nil, lr.syntaxError("malformed %s line %q", label, strings.TrimSpace(value))
		}
		bytes, err := parseGroupedUint(bm[dhatBlocksRE.SubexpIndex("bytes")])
		if err != nil {
			return nil, lr.syntaxError("invalid byte count: %v", err)
		}
		totals[kinds[0]] = bytes
		if blockStr := bm[dhatBlocksRE.SubexpIndex("blocks")]; blockStr != "" && kinds[1] != "" {
			blocks, err := parseGroupedUint(blockStr)
			if err != nil {
				return nil, lr.syntaxError("invalid block count: %v", err)
			}
			totals[kinds[1]] = blocks
		}
		if kinds[0] == AllocBytes {
			sawTotal = true
		}
	}
	if err := lr.err(); err != nil {
		return nil, err
	}
	if !sawHeader {
		return nil, lr.truncated("no DHAT output found")
	}
	if !sawTotal {
		return nil, lr.truncated("log ends before the Total summary line")
	}
	return &Model{Tool: ToolDHAT, Totals: totals}, nil
}

// parseGroupedUint parses a decimal count that may use "," digit
// grouping, as valgrind writes.
func parseGroupedUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(s, ",", ""), 10, 64)
}
