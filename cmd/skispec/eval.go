// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SkiSpec/services/skispec/eval"
)

// errEvalFailed makes the process exit non-zero when any case fails.
var errEvalFailed = errors.New("eval failed")

func newEvalCmd() *cobra.Command {
	var (
		datasetPath string
		filters     []string
		concurrency int
		judge       bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the golden dataset against a server",
		Long: `Posts every dataset case to the server in a fresh session, compares the
normalized answers and prints a report with unified diffs for failures.
Exits non-zero when any case fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				ds  *eval.Dataset
				err error
			)
			if datasetPath != "" {
				ds, err = eval.LoadDatasetFile(datasetPath)
			} else {
				ds, err = eval.DefaultDataset()
			}
			if err != nil {
				return err
			}

			cases := ds.Filter(filters...)
			if len(cases) == 0 {
				return fmt.Errorf("no cases match %v", filters)
			}

			runner := eval.NewRunner(eval.RunnerConfig{
				BaseURL:     serverURL,
				Concurrency: concurrency,
				Judge:       judge,
				Logger:      newLogger(os.Stderr, logLevel),
			})
			report, err := runner.Run(cmd.Context(), cases)
			if err != nil {
				return err
			}

			if err := report.Render(cmd.OutOrStdout(), eval.ColorEnabled(os.Stdout)); err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("%w: %d/%d passed", errEvalFailed, report.Passed, report.Total())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset YAML file (default: embedded golden dataset)")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "only run cases whose id or category has one of these prefixes")
	cmd.Flags().IntVar(&concurrency, "concurrency", eval.DefaultConcurrency, "cases in flight")
	cmd.Flags().BoolVar(&judge, "judge", false, "also grade exact cases with the server's evaluator")
	return cmd
}
