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
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SkiSpec/services/skispec/advisor"
	"github.com/AleutianAI/SkiSpec/services/skispec/config"
)

func newAskCmd() *cobra.Command {
	var (
		sessionID string
		local     bool
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Ask one question",
		Long: `Sends one message to the server and prints the answer. With --local the
pipeline runs in-process against the configured rule tables, without a server.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if !local {
				resp, err := newChatClient(serverURL).Chat(cmd.Context(), sessionID, message)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, resp.Response)
				if verbose {
					fmt.Fprintf(out, "\nsession: %s\n", resp.SessionID)
				}
				return nil
			}

			cfg, err := config.LoadServiceConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(io.Discard, logLevel)
			if verbose {
				logger = newLogger(os.Stderr, logLevel)
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(logger)

			resp, err := a.pipeline.Respond(cmd.Context(), advisor.Request{SessionID: sessionID, Message: message})
			if err != nil {
				fmt.Fprintln(out, advisor.ServerErrorText(err))
				return err
			}
			fmt.Fprintln(out, resp.Text)
			if verbose {
				logger.Info("Answered",
					slog.String("outcome", string(resp.Outcome)),
					slog.String("source", string(resp.Source)),
					slog.String("rule_id", resp.RuleID),
					slog.String("reason", resp.Reason),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().BoolVar(&local, "local", false, "run the pipeline in-process")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print session id and decision details")
	return cmd
}
