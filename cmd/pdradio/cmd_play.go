/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/pdradio/internal/audio"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/playback"
)

var (
	playStation   string
	playTrack     int
	playMPVBinary string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a station through a local mpv process",
	Long: `Load a station and play it through mpv until the last track ends or
the command is interrupted.

Tracks advance automatically when mpv reports the end of a file. Pass an
empty --mpv-binary to attach to an mpv already listening on PDRADIO_MPV_SOCKET.

Examples:
  pdradio play --station jazz
  pdradio play --station classical --track 3
`,
	Args: cobra.NoArgs,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringVarP(&playStation, "station", "s", "", "Station id (see pdradio stations)")
	playCmd.Flags().IntVarP(&playTrack, "track", "t", 1, "Track number to start with (1-based)")
	playCmd.Flags().StringVar(&playMPVBinary, "mpv-binary", "mpv", "mpv executable to start")
	_ = playCmd.MarkFlagRequired("station")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	sink := audio.NewMPV(audio.MPVConfig{SocketPath: cfg.MPVSocket, Binary: playMPVBinary}, logger)
	defer sink.Close()

	bus := events.NewBus()
	started := bus.Subscribe(events.EventTrackStarted)
	defer bus.Unsubscribe(events.EventTrackStarted, started)

	controller, err := rt.NewController(sink, bus)
	if err != nil {
		return err
	}
	defer controller.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := controller.LoadStation(ctx, playStation)
	if err != nil {
		return err
	}
	if state.Phase != playback.PhaseReady {
		return fmt.Errorf("%s: %s", state.StationName, state.ErrorMessage)
	}

	fmt.Printf("%s · %s\n", state.ItemTitle, state.Creator)
	for _, t := range state.Tracks {
		fmt.Printf("%3d. %s (%s)\n", t.Index+1, t.Title, playback.FormatClock(t.DurationSeconds))
	}

	if playTrack != 1 {
		if _, err := controller.SelectTrack(ctx, playTrack-1); err != nil {
			return fmt.Errorf("track %d: %w", playTrack, err)
		}
	}

	go func() {
		err := sink.WatchEnded(ctx, func() {
			done, err := advanceOnEnd(context.WithoutCancel(ctx), controller)
			if err != nil {
				logger.Warn().Err(err).Msg("advance after track end failed")
				return
			}
			if done {
				fmt.Println("end of playlist")
				stop()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("mpv event watcher stopped")
			stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case payload, ok := <-started:
			if !ok {
				return nil
			}
			fmt.Printf("▶ %v\n", payload["title"])
		}
	}
}

// advanceOnEnd moves past a finished track and reports whether nothing is
// left to play.
func advanceOnEnd(ctx context.Context, controller *playback.Controller) (bool, error) {
	s, err := controller.OnTrackEnded(ctx)
	if err != nil {
		return false, err
	}
	return !s.IsPlaying, nil
}
