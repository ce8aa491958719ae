// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grindstat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/go-grind/grind/grindfmt"
)

// FormatText appends a fixed-width text rendering of the report to buf.
func FormatText(buf *bytes.Buffer, r *Report) {
	rows := toText(r)

	var max []int
	for _, row := range rows {
		for len(max) < len(row.cols) {
			max = append(max, 0)
		}
		for i, s := range row.cols {
			n := utf8.RuneCountInString(s)
			if max[i] < n {
				max[i] = n
			}
		}
	}

	if id := r.ID.String(); id != "::" {
		fmt.Fprintf(buf, "%s (%s)\n", id, r.Tool)
	} else {
		fmt.Fprintf(buf, "%s\n", r.Tool)
	}

	// headings
	for i, s := range rows[0].cols {
		switch i {
		case 0:
			fmt.Fprintf(buf, "%-*s", max[i], s)
		case len(rows[0].cols) - 1:
			fmt.Fprintf(buf, "  %s\n", s)
		default:
			fmt.Fprintf(buf, "  %*s", max[i], s)
		}
	}

	// data
	for _, row := range rows[1:] {
		for i, s := range row.cols {
			switch i {
			case 0:
				fmt.Fprintf(buf, "%-*s", max[i], s)
			case len(row.cols) - 1:
				// Left-align the verdict.
				fmt.Fprintf(buf, "  %s", s)
			default:
				fmt.Fprintf(buf, "  %*s", max[i], s)
			}
		}
		fmt.Fprintf(buf, "\n")
	}

	if r.TargetFailed {
		fmt.Fprintf(buf, "target exited abnormally\n")
	}
	fmt.Fprintf(buf, "status: %s\n", r.Status)
}

// A textRow is a row of printed text columns.
type textRow struct {
	cols []string
}

func newTextRow(cols ...string) *textRow {
	return &textRow{cols: cols}
}

func toText(r *Report) []*textRow {
	rows := []*textRow{newTextRow("event", "old", "new", "delta", "")}

	// First violated rule per kind wins the verdict column; a fail
	// verdict is never downgraded by a later warn rule.
	verdicts := make(map[grindfmt.EventKind]string)
	for _, res := range r.RuleResults {
		if res.Violated && verdicts[res.Rule.Kind] == "" {
			verdicts[res.Rule.Kind] = string(res.Rule.Severity)
		}
	}

	for _, row := range r.Rows {
		old, cur := "-", "-"
		if row.OldMeasured {
			old = strconv.FormatUint(row.Old, 10)
		}
		if row.NewMeasured {
			cur = strconv.FormatUint(row.New, 10)
		}
		rows = append(rows, newTextRow(string(row.Kind), old, cur, formatDelta(row), verdicts[row.Kind]))
	}
	return rows
}

func formatDelta(row Row) string {
	switch {
	case !row.OldMeasured || !row.NewMeasured:
		return "-"
	case row.Infinite:
		return "+inf%"
	default:
		return fmt.Sprintf("%+.2f%%", row.DeltaPct)
	}
}

// WriteJSON writes the report as indented JSON followed by a newline.
// Rows and rule results keep their canonical order, so equal reports
// encode to identical bytes.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
