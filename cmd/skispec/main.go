// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command skispec serves and exercises the SkiSpec gear compatibility
// advisor.
//
// Usage:
//
//	skispec serve [--config skispec.yaml]
//	skispec ask "I am an intermediate skier who likes powder"
//	skispec eval [--judge] [--filter oos_]
//	skispec chat
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SkiSpec/services/skispec/eval"
)

// Global flag values shared by every command.
var (
	configPath string
	logLevel   string
	serverURL  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "skispec",
		Short: "Ski, boot and binding compatibility advisor",
		Long: `SkiSpec recommends ski type, waist width, boot flex, binding type and a
DIN guidance range from a skier's description. It refuses out-of-scope and
unsafe requests and never prescribes an exact DIN value.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SKISPEC_CONFIG"), "service config YAML file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "SkiSpec server base URL for client commands")

	root.AddCommand(newServeCmd(), newAskCmd(), newEvalCmd(), newChatCmd())
	return root
}

func defaultServerURL() string {
	if u := os.Getenv("SKISPEC_URL"); u != "" {
		return u
	}
	return eval.DefaultBaseURL
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
