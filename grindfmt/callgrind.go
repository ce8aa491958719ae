// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// A CallgrindParser reads the callgrind profile format
// (https://valgrind.org/docs/manual/cl-format.html) and produces a
// Model with a full call graph.
//
// The format deduplicates repeated object, file and function names by
// compressed references of the form "(N)"; the parser keeps one
// interning table per name space, scoped to the parse, so independent
// parses never share state. Positions inside cost lines may be
// absolute, relative ("+n"/"-n") or repeated ("*").
type CallgrindParser struct{}

// callgrind name spaces. Caller and callee specifications share the
// same table: cob shares with ob, cfi/cfl with fl/fi/fe, cfn with fn.
type callgrindNames struct {
	objs  map[int]string
	files map[int]string
	funcs map[int]string
}

type pendingCall struct {
	active bool
	calls  uint64
	callee Frame
	line   int // line of the calls= spec, for truncation reporting
}

type callgrindState struct {
	r      *lineReader
	events []EventKind
	posLen int // number of position fields per cost line
	graph  *Graph

	names callgrindNames

	curObj  string
	curFile string
	curFn   string
	curNode NodeID
	haveFn  bool
	lastPos int64

	calleeObj  string
	calleeFile string
	call       pendingCall

	totals      Costs
	totalsFound bool
}

// Parse reads one callgrind artifact.
func (p *CallgrindParser) Parse(r io.Reader, fileName string) (*Model, error) {
	st := &callgrindState{
		r:      newLineReader(r, fileName),
		posLen: 1, // "positions: line" is the default
		graph:  NewGraph(),
		names: callgrindNames{
			objs:  make(map[int]string),
			files: make(map[int]string),
			funcs: make(map[int]string),
		},
		totals: make(Costs),
	}

	if err := st.parseHeader(); err != nil {
		return nil, err
	}
	if err := st.parseBody(); err != nil {
		return nil, err
	}
	if err := st.r.err(); err != nil {
		return nil, err
	}
	if st.call.active {
		return nil, &TruncatedArtifactError{fileName, st.call.line, "calls record without a following cost line"}
	}

	totals := st.totals
	if !st.totalsFound {
		totals = st.graph.SelfTotals()
	}
	addDerivedKinds(totals)

	m := &Model{Tool: ToolCallgrind, Totals: totals, Graph: st.graph}
	if err := m.CheckIntegrity(); err != nil {
		return nil, st.r.syntaxError("%v", err)
	}
	return m, nil
}

// parseHeader consumes lines up to and including the events
// declaration. The format specifier comment is optional in practice;
// its absence is tolerated the way callgrind_annotate tolerates it.
func (s *callgrindState) parseHeader() error {
	first := true
	for {
		line, ok := s.r.next()
		if !ok {
			if err := s.r.err(); err != nil {
				return err
			}
			return s.r.truncated("artifact ends before events declaration")
		}
		trimmed := strings.TrimSpace(line)
		if first && trimmed != "" {
			first = false
			if strings.HasPrefix(trimmed, "#") {
				if !strings.Contains(trimmed, "callgrind format") {
					return s.r.syntaxError("unrecognized format specifier %q", trimmed)
				}
				continue
			}
			logrus.Debugf("%s: missing format specifier, assuming callgrind format", s.r.fileName)
		}
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			// skip
		case strings.HasPrefix(trimmed, "version:"):
			v := strings.TrimSpace(strings.TrimPrefix(trimmed, "version:"))
			if v != "1" {
				return s.r.syntaxError("unsupported callgrind format version %q", v)
			}
		case strings.HasPrefix(trimmed, "positions:"):
			if err := s.setPositions(trimmed); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, "events:"):
			fields := strings.Fields(strings.TrimPrefix(trimmed, "events:"))
			if len(fields) == 0 {
				return s.r.syntaxError("empty events declaration")
			}
			s.events = make([]EventKind, len(fields))
			for i, f := range fields {
				s.events[i] = EventKind(f)
			}
			return nil
		default:
			// creator:, pid:, cmd:, part:, desc: and anything else
			// before the events line is descriptive only.
		}
	}
}

func (s *callgrindState) setPositions(line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "positions:"))
	switch len(fields) {
	case 1:
		if fields[0] != "instr" && fields[0] != "line" {
			return s.r.syntaxError("invalid positions mode %q", fields[0])
		}
		s.posLen = 1
	case 2:
		s.posLen = 2
	default:
		return s.r.syntaxError("invalid positions declaration %q", line)
	}
	return nil
}

func (s *callgrindState) parseBody() error {
	for {
		line, ok := s.r.next()
		if !ok {
			return s.r.err()
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			s.lastPos = 0
		case strings.HasPrefix(trimmed, "summary:"), strings.HasPrefix(trimmed, "totals:"):
			if err := s.parseTotals(trimmed); err != nil {
				return err
			}
		case isCostLine(trimmed):
			if err := s.parseCostLine(trimmed); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, "calls="):
			if err := s.parseCalls(trimmed); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, "jump="), strings.HasPrefix(trimmed, "jcnd="):
			// Jump records are self-contained: the count and the
			// source and target positions are all on this line. The
			// following cost line is an ordinary one.
		case strings.Contains(trimmed, "="):
			if err := s.parseNameSpec(trimmed); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, "positions:"):
			if err := s.setPositions(trimmed); err != nil {
				return err
			}
		case strings.HasPrefix(trimmed, "events:"):
			return s.r.syntaxError("duplicate events declaration")
		default:
			return s.r.syntaxError("unrecognized line %q", trimmed)
		}
	}
}

func isCostLine(line string) bool {
	if line == "" {
		return false
	}
	switch line[0] {
	case '+', '-', '*':
		return true
	}
	return line[0] >= '0' && line[0] <= '9'
}

func (s *callgrindState) parseTotals(line string) error {
	rest := strings.TrimPrefix(strings.TrimPrefix(line, "summary:"), "totals:")
	fields := strings.Fields(rest)
	if len(fields) > len(s.events) {
		return s.r.syntaxError("summary has %d counts but only %d events are declared", len(fields), len(s.events))
	}
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return s.r.syntaxError("invalid summary count %q", f)
		}
		s.totals[s.events[i]] += v
	}
	// Declared events beyond the written counts are zero by the
	// format's rule, and they were measured.
	for _, ev := range s.events[len(fields):] {
		s.totals[ev] += 0
	}
	s.totalsFound = true
	return nil
}

// parseNameSpec handles ob=, fl=, fi=, fe=, fn= and the callee
// variants cob=, cfi=, cfl=, cfn=.
func (s *callgrindState) parseNameSpec(line string) error {
	eq := strings.IndexByte(line, '=')
	key, val := line[:eq], line[eq+1:]
	var table map[int]string
	switch key {
	case "ob", "cob":
		table = s.names.objs
	case "fl", "fi", "fe", "cfi", "cfl":
		table = s.names.files
	case "fn", "cfn":
		table = s.names.funcs
	default:
		return s.r.syntaxError("unrecognized specification %q", key)
	}
	name, err := s.resolveName(table, val)
	if err != nil {
		return err
	}
	switch key {
	case "ob":
		s.curObj = name
	case "fl", "fi", "fe":
		s.curFile = name
	case "fn":
		s.curFn = name
		s.haveFn = true
		s.lastPos = 0
		s.curNode = s.graph.Intern(Frame{Binary: s.curObj, Func: s.curFn, File: s.curFile})
	case "cob":
		s.calleeObj = name
	case "cfi", "cfl":
		s.calleeFile = name
	case "cfn":
		if s.call.active {
			return s.r.syntaxError("cfn while a calls record is pending")
		}
		obj := s.calleeObj
		if obj == "" {
			obj = s.curObj
		}
		file := s.calleeFile
		if file == "" {
			file = s.curFile
		}
		s.call.callee = Frame{Binary: obj, Func: name, File: file}
	}
	return nil
}

// resolveName parses a name that may use compression: "(N) name"
// defines entry N, "(N)" refers back to it, and a bare name is
// uncompressed.
func (s *callgrindState) resolveName(table map[int]string, val string) (string, error) {
	val = strings.TrimSpace(val)
	if !strings.HasPrefix(val, "(") {
		return val, nil
	}
	close := strings.IndexByte(val, ')')
	if close < 0 {
		return "", s.r.syntaxError("unterminated name reference %q", val)
	}
	id, err := strconv.Atoi(val[1:close])
	if err != nil {
		return "", s.r.syntaxError("invalid name reference %q", val)
	}
	rest := strings.TrimSpace(val[close+1:])
	if rest != "" {
		table[id] = rest
		return rest, nil
	}
	name, ok := table[id]
	if !ok {
		return "", s.r.syntaxError("name reference (%d) used before definition", id)
	}
	return name, nil
}

func (s *callgrindState) parseCalls(line string) error {
	if s.call.callee.Func == "" {
		return s.r.syntaxError("calls record without a preceding cfn")
	}
	if s.call.active {
		return s.r.syntaxError("calls record while another is pending")
	}
	fields := strings.Fields(strings.TrimPrefix(line, "calls="))
	if len(fields) < 1 {
		return s.r.syntaxError("empty calls record")
	}
	count, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return s.r.syntaxError("invalid call count %q", fields[0])
	}
	// The remaining fields are the target positions; they do not
	// affect cost attribution.
	s.call.active = true
	s.call.calls = count
	s.call.line = s.r.line
	return nil
}

func (s *callgrindState) parseCostLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) < s.posLen {
		return s.r.syntaxError("cost line has fewer fields than declared positions")
	}
	if !s.haveFn {
		return s.r.syntaxError("cost line before any fn specification")
	}
	if s.events == nil {
		return s.r.syntaxError("cost line before events declaration")
	}

	pos, err := s.parsePosition(fields[0])
	if err != nil {
		return err
	}
	s.lastPos = pos
	counts := fields[s.posLen:]
	if len(counts) > len(s.events) {
		return s.r.syntaxError("cost line has %d counts but only %d events are declared", len(counts), len(s.events))
	}
	costs := make(Costs, len(s.events))
	for i, f := range counts {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return s.r.syntaxError("invalid event count %q", f)
		}
		costs[s.events[i]] = v
	}
	// Counts beyond the written fields are zero but still measured.
	for _, ev := range s.events[len(counts):] {
		costs[ev] = 0
	}

	if s.call.active {
		calleeID := s.graph.Intern(s.call.callee)
		s.graph.AddCall(s.curNode, calleeID, s.call.calls, costs)
		s.call = pendingCall{}
		s.calleeObj = ""
		s.calleeFile = ""
		return nil
	}

	node := s.graph.Node(s.curNode)
	if node.Frame.Line == 0 && s.posLen == 1 && pos > 0 {
		node.Frame.Line = int(pos)
	}
	node.Self.Add(costs)
	return nil
}

// parsePosition decodes one position field, which may be absolute
// (decimal or 0x hex), relative to the previous position, or "*" for
// an exact repeat.
func (s *callgrindState) parsePosition(field string) (int64, error) {
	switch {
	case field == "*":
		return s.lastPos, nil
	case strings.HasPrefix(field, "+"):
		n, err := strconv.ParseInt(field[1:], 10, 64)
		if err != nil {
			return 0, s.r.syntaxError("invalid relative position %q", field)
		}
		return s.lastPos + n, nil
	case strings.HasPrefix(field, "-"):
		n, err := strconv.ParseInt(field[1:], 10, 64)
		if err != nil {
			return 0, s.r.syntaxError("invalid relative position %q", field)
		}
		return s.lastPos - n, nil
	case strings.HasPrefix(field, "0x") || strings.HasPrefix(field, "0X"):
		n, err := strconv.ParseInt(field[2:], 16, 64)
		if err != nil {
			return 0, s.r.syntaxError("invalid position %q", field)
		}
		return n, nil
	default:
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return 0, s.r.syntaxError("invalid position %q", field)
		}
		return n, nil
	}
}

// addDerivedKinds computes the cache hit summary kinds from the raw
// cache simulation events, using the formulas callgrind_annotate uses.
// The estimated cycle count weights L1, LL and RAM accesses 1/5/35.
func addDerivedKinds(totals Costs) {
	required := []EventKind{Ir, Dr, Dw, I1mr, D1mr, D1mw, ILmr, DLmr, DLmw}
	for _, k := range required {
		if _, ok := totals[k]; !ok {
			return
		}
	}
	ramHits := totals[ILmr] + totals[DLmr] + totals[DLmw]
	l1Miss := totals[I1mr] + totals[D1mr] + totals[D1mw]
	var llHits uint64
	if l1Miss > ramHits {
		llHits = l1Miss - ramHits
	}
	totalRW := totals[Ir] + totals[Dr] + totals[Dw]
	var l1Hits uint64
	if totalRW > llHits+ramHits {
		l1Hits = totalRW - llHits - ramHits
	}
	totals[RAMHits] = ramHits
	totals[LLHits] = llHits
	totals[L1Hits] = l1Hits
	totals[TotalRW] = totalRW
	totals[EstimatedCycles] = l1Hits + 5*llHits + 35*ramHits
}
