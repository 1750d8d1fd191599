/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/pdradio/internal/archive"
	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/station"
)

type twoTrackArchive struct{}

func (twoTrackArchive) Search(context.Context, string) ([]archive.Doc, error) {
	return []archive.Doc{{Identifier: "item", Title: "Item"}}, nil
}

func (twoTrackArchive) Metadata(context.Context, string) ([]archive.File, error) {
	return []archive.File{
		{Name: "a.mp3", Title: "A", Length: "10"},
		{Name: "b.mp3", Title: "B", Length: "20"},
	}, nil
}

func (twoTrackArchive) DownloadURL(identifier, name string) string {
	return "https://archive.test/download/" + identifier + "/" + name
}

func TestAdvanceOnEndStopsAfterLastTrack(t *testing.T) {
	catalog, err := station.New(station.Station{ID: "jazz", Name: "Jazz", Query: "jazz"})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	controller, err := playback.New(playback.Options{
		Catalog: catalog,
		Archive: twoTrackArchive{},
		Filter:  archive.NewAudioFilter("mp3"),
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("playback.New: %v", err)
	}
	defer controller.Close()

	ctx := context.Background()
	if _, err := controller.LoadStation(ctx, "jazz"); err != nil {
		t.Fatalf("LoadStation: %v", err)
	}

	done, err := advanceOnEnd(ctx, controller)
	if err != nil || done {
		t.Fatalf("first track end: done=%v err=%v", done, err)
	}
	if got := controller.State().CurrentIndex; got != 1 {
		t.Fatalf("expected second track, got index %d", got)
	}

	done, err = advanceOnEnd(ctx, controller)
	if err != nil || !done {
		t.Fatalf("last track end: done=%v err=%v", done, err)
	}
}
