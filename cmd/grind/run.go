// Copyright 2025 The Grind Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-grind/grind/baseline"
	"github.com/go-grind/grind/grindrun"
	"github.com/go-grind/grind/grindstat"
)

var (
	runConfigPath string
	runBaseline   string
	runSave       string
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the configured cases and compare against baselines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := grindrun.LoadConfig(runConfigPath)
		if err != nil {
			return err
		}
		if runBaseline != "" {
			cfg.Slot = runBaseline
		}

		batch := grindrun.NewBatch(cfg)
		result, err := batch.Run(cmd.Context())
		if err != nil {
			return err
		}

		for _, c := range result.Cases {
			switch {
			case c.Err != nil:
				logrus.WithField("case", c.ID.String()).Error(c.Err)
			case c.Established:
				fmt.Printf("%s: baseline established\n", c.ID)
			case runJSON:
				if err := grindstat.WriteJSON(os.Stdout, c.Report); err != nil {
					return err
				}
			default:
				var buf bytes.Buffer
				grindstat.FormatText(&buf, c.Report)
				buf.WriteByte('\n')
				os.Stdout.Write(buf.Bytes())
			}

			if runSave != "" && c.Model != nil {
				prov := baseline.Provenance{Time: time.Now().UTC()}
				if err := batch.Store.Save(c.ID, runSave, c.Model, prov); err != nil {
					return err
				}
			}
		}

		ok, regressed, failed := result.Counts()
		fmt.Printf("%d ok, %d regressed, %d failed\n", ok, regressed, failed)
		if code := result.ExitCode(); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "grind.yaml", "batch configuration file")
	runCmd.Flags().StringVar(&runBaseline, "baseline", "", "baseline slot to compare against (default \"current\")")
	runCmd.Flags().StringVar(&runSave, "save", "", "additionally save measurements under this slot name")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "emit reports as JSON")
}
