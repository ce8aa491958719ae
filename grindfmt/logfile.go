// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"io"
	"regexp"
	"strconv"
)

// A LogfileParser reads the log output of the error-checking tools
// (memcheck, helgrind, DRD), which report no cost artifact of their
// own. Every line carries an "==pid==" or "--pid--" marker, possibly
// with a timestamp when --time-stamp=yes is set. The measurement is
// the final error summary:
//
//	==12345== ERROR SUMMARY: 2 errors from 1 contexts (suppressed: 0 from 0)
//
// A log that ends without an error summary means the tool died before
// finishing, which is reported as truncation.
type LogfileParser struct {
	Tool Tool
}

var (
	logPrefixRE  = regexp.MustCompile(`^\s*(==|--)([0-9:.]+\s+)?(?P<pid>[0-9]+)(==|--)\s?(?P<rest>.*)$`)
	logFieldRE   = regexp.MustCompile(`^(?P<key>[^:]+?)\s*:\s*(?P<value>.*?)\s*$`)
	logSummaryRE = regexp.MustCompile(`^ERROR SUMMARY:\s*(?P<errors>[0-9,]+) errors from (?P<contexts>[0-9,]+) contexts \(suppressed: (?P<serrors>[0-9,]+) from (?P<scontexts>[0-9,]+)\)`)
)

// A LogSummary is the parsed header of a tool log file, exposed for
// provenance reporting alongside the cost model.
type LogSummary struct {
	PID     int
	Command string
	Fields  map[string]string
}

// Parse reads one memcheck/helgrind/DRD log file.
func (p *LogfileParser) Parse(r io.Reader, fileName string) (*Model, error) {
	m, _, err := p.parse(r, fileName)
	return m, err
}

// ParseWithSummary is Parse plus the log header fields.
func (p *LogfileParser) ParseWithSummary(r io.Reader, fileName string) (*Model, *LogSummary, error) {
	return p.parse(r, fileName)
}

func (p *LogfileParser) parse(r io.Reader, fileName string) (*Model, *LogSummary, error) {
	lr := newLineReader(r, fileName)
	summary := &LogSummary{Fields: make(map[string]string)}
	totals := make(Costs)
	sawAny := false
	sawSummary := false

	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		m := logPrefixRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if !sawAny {
			pid, err := strconv.Atoi(m[logPrefixRE.SubexpIndex("pid")])
			if err == nil {
				summary.PID = pid
			}
			sawAny = true
		}
		rest := m[logPrefixRE.SubexpIndex("rest")]
		if sm := logSummaryRE.FindStringSubmatch(rest); sm != nil {
			var err error
			if totals[Errors], err = parseGroupedUint(sm[logSummaryRE.SubexpIndex("errors")]); err != nil {
				return nil, nil, lr.syntaxError("invalid error count: %v", err)
			}
			if totals[Contexts], err = parseGroupedUint(sm[logSummaryRE.SubexpIndex("contexts")]); err != nil {
				return nil, nil, lr.syntaxError("invalid context count: %v", err)
			}
			if totals[SuppressedErrors], err = parseGroupedUint(sm[logSummaryRE.SubexpIndex("serrors")]); err != nil {
				return nil, nil, lr.syntaxError("invalid suppressed error count: %v", err)
			}
			if totals[SuppressedContexts], err = parseGroupedUint(sm[logSummaryRE.SubexpIndex("scontexts")]); err != nil {
				return nil, nil, lr.syntaxError("invalid suppressed context count: %v", err)
			}
			sawSummary = true
			continue
		}
		if fm := logFieldRE.FindStringSubmatch(rest); fm != nil {
			key := fm[logFieldRE.SubexpIndex("key")]
			value := fm[logFieldRE.SubexpIndex("value")]
			if key == "Command" {
				summary.Command = value
			}
			if _, ok := summary.Fields[key]; !ok {
				summary.Fields[key] = value
			}
		}
	}
	if err := lr.err(); err != nil {
		return nil, nil, err
	}
	if !sawAny {
		return nil, nil, lr.truncated("no tool log output found")
	}
	if !sawSummary {
		return nil, nil, lr.truncated("log ends before the error summary")
	}
	return &Model{Tool: p.Tool, Totals: totals}, summary, nil
}
