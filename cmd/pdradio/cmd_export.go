/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/playlist"
)

var (
	exportStation string
	exportStdout  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a station's current track list as an M3U playlist",
	Long: `Load a station and write its tracks as an extended M3U playlist to the
configured storage backend (PDRADIO_STORAGE_BACKEND).

Examples:
  pdradio export --station folk
  pdradio export --station folk --stdout > folk.m3u
`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportStation, "station", "s", "", "Station id (see pdradio stations)")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Print the playlist instead of storing it")
	_ = exportCmd.MarkFlagRequired("station")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	// Exporting plays nothing, so the controller gets no sink, events or history.
	controller, err := playback.New(playback.Options{
		Catalog: rt.Catalog,
		Archive: rt.Archive,
		Filter:  rt.Filter,
		Volume:  cfg.DefaultVolume,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	state, err := controller.LoadStation(cmd.Context(), exportStation)
	if err != nil {
		return err
	}
	if state.Phase != playback.PhaseReady {
		return fmt.Errorf("%s: %s", state.StationName, state.ErrorMessage)
	}

	body := playlist.M3U(playlist.Title(state.StationName, state.ItemTitle), state.Tracks)
	if exportStdout {
		fmt.Print(body)
		return nil
	}

	store, err := rt.ObjectStore(cmd.Context())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	key := playlist.ExportKey(state.StationID, state.Identifier)
	start := time.Now()
	if err := store.Put(cmd.Context(), key, []byte(body)); err != nil {
		return fmt.Errorf("store playlist: %w", err)
	}
	logger.Info().Str("key", key).Dur("elapsed", time.Since(start)).Msg("playlist exported")
	fmt.Printf("%s (%d tracks)\n", key, len(state.Tracks))
	return nil
}
