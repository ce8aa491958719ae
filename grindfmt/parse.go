// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindfmt

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// A SyntaxError reports a malformed artifact at a particular line.
type SyntaxError struct {
	FileName string
	Line     int
	Msg      string
}

// Pos returns the position of the error as a file name and a 1-based
// line number within that file.
func (e *SyntaxError) Pos() (fileName string, line int) {
	return e.FileName, e.Line
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.FileName, e.Line, e.Msg)
}

// A TruncatedArtifactError reports an artifact that ends in the middle
// of a record, typically because the producing tool crashed or was
// killed mid-write. It is distinct from SyntaxError so that callers
// can decide to retry the run rather than reject the input.
type TruncatedArtifactError struct {
	FileName string
	Line     int
	Msg      string
}

// Pos returns the position at which the truncation was detected.
func (e *TruncatedArtifactError) Pos() (fileName string, line int) {
	return e.FileName, e.Line
}

func (e *TruncatedArtifactError) Error() string {
	return fmt.Sprintf("%s:%d: truncated artifact: %s", e.FileName, e.Line, e.Msg)
}

// A Parser turns one tool's raw artifact into a Model.
//
// fileName is used in error positions; it is purely diagnostic. On
// failure the returned error is a *SyntaxError, a
// *TruncatedArtifactError, or an I/O error.
type Parser interface {
	Parse(r io.Reader, fileName string) (*Model, error)
}

// ParserFor returns the parser for the given tool's artifacts.
func ParserFor(tool Tool) (Parser, error) {
	switch tool {
	case ToolCallgrind:
		return &CallgrindParser{}, nil
	case ToolDHAT:
		return &DHATParser{}, nil
	case ToolMassif:
		return &MassifParser{}, nil
	case ToolMemcheck, ToolHelgrind, ToolDRD:
		return &LogfileParser{Tool: tool}, nil
	}
	return nil, fmt.Errorf("no parser for tool %q", tool)
}

// ParseFile parses the artifact at path with the parser for tool.
func ParseFile(tool Tool, path string) (*Model, error) {
	p, err := ParserFor(tool)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f, path)
}

// lineReader tracks the current 1-based line number while scanning an
// artifact, so parsers can build position-bearing errors with no extra
// bookkeeping at each call site.
type lineReader struct {
	s        *bufio.Scanner
	fileName string
	line     int
}

func newLineReader(r io.Reader, fileName string) *lineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineReader{s: s, fileName: fileName}
}

// next advances to the next line, reporting false at EOF or on I/O
// error.
func (r *lineReader) next() (string, bool) {
	if !r.s.Scan() {
		return "", false
	}
	r.line++
	return r.s.Text(), true
}

func (r *lineReader) err() error {
	return r.s.Err()
}

// syntaxError returns a *SyntaxError at the reader's current position.
func (r *lineReader) syntaxError(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{r.fileName, r.line, fmt.Sprintf(format, args...)}
}

// truncated returns a *TruncatedArtifactError at the reader's current
// position.
func (r *lineReader) truncated(format string, args ...interface{}) *TruncatedArtifactError {
	return &TruncatedArtifactError{r.fileName, r.line, fmt.Sprintf(format, args...)}
}
