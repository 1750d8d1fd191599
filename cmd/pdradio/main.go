/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/pdradio/internal/config"
	"github.com/friendsincode/pdradio/internal/logging"
	"github.com/friendsincode/pdradio/internal/server"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdradio",
	Short: "PD Radio - public domain music from the Internet Archive",
	Long: `PD Radio streams public domain recordings from the Internet Archive.

Pick one of six genre stations; the player searches the archive, loads the
first matching item and plays its audio files in order. "pdradio serve" runs
the web player, the other commands drive the same player from a terminal.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}
	return nil
}

// openRuntime loads configuration and opens the shared services.
func openRuntime() (*server.Runtime, error) {
	if err := loadConfig(); err != nil {
		return nil, err
	}
	rt, err := server.NewRuntime(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize runtime: %w", err)
	}
	return rt, nil
}
