// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Grind runs benchmark targets under Valgrind tools and fails CI when
// deterministic event counts regress against stored baselines.
//
// Usage:
//
//	grind run --config grind.yaml [--baseline NAME] [--save NAME] [--json]
//	grind compare OLD.json NEW.json [--rule KIND:PCT[:DIRECTION[:SEVERITY]]]...
//	grind fold ARTIFACT [--event KIND]
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "grind",
	Short:         "deterministic Valgrind-based benchmark regression harness",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level (debug, info, warning, error)")
	rootCmd.AddCommand(runCmd, compareCmd, foldCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(2)
	}
}
