// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/go-grind/grind/grindfmt"
)

var foldEvent string

var foldCmd = &cobra.Command{
	Use:   "fold ARTIFACT",
	Short: "print a callgrind artifact as folded stacks for flamegraph tools",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := grindfmt.ParseFile(grindfmt.ToolCallgrind, args[0])
		if err != nil {
			return err
		}
		if model.Graph == nil {
			return errors.Newf("%s contains no call graph", args[0])
		}
		return grindfmt.WriteFolded(os.Stdout, model.Graph, grindfmt.EventKind(foldEvent))
	},
}

func init() {
	foldCmd.Flags().StringVar(&foldEvent, "event", string(grindfmt.Ir), "event kind to attribute")
}
