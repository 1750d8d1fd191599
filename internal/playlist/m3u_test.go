/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"testing"

	"github.com/friendsincode/pdradio/internal/archive"
)

func TestM3U(t *testing.T) {
	tracks := []archive.Track{
		{Index: 0, Name: "01.mp3", Title: "First Track", DurationSeconds: 61.4, URL: "https://archive.org/download/x/01.mp3"},
		{Index: 1, Name: "02.mp3", Title: "Second\nTrack", URL: "https://archive.org/download/x/02.mp3"},
		{Index: 2, Name: "03.mp3", Title: "No URL"},
		{Index: 3, Name: "04.mp3", DurationSeconds: 10, URL: "https://archive.org/download/x/04.mp3"},
	}

	got := M3U("PD Radio - Jazz", tracks)
	want := "#EXTM3U\n" +
		"#PLAYLIST:PD Radio - Jazz\n" +
		"#EXTINF:61,First Track\nhttps://archive.org/download/x/01.mp3\n" +
		"#EXTINF:-1,Second Track\nhttps://archive.org/download/x/02.mp3\n" +
		"#EXTINF:10,04.mp3\nhttps://archive.org/download/x/04.mp3\n"
	if got != want {
		t.Fatalf("M3U mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestM3UEmpty(t *testing.T) {
	if got := M3U("", nil); got != "#EXTM3U\n" {
		t.Fatalf("M3U(nil) = %q", got)
	}
}

func TestExportKey(t *testing.T) {
	tests := []struct {
		station, identifier, want string
	}{
		{"jazz", "jazz-item", "playlists/jazz/jazz-item.m3u"},
		{"jazz", "a/b", "playlists/jazz/a_b.m3u"},
		{"jazz", "..", "playlists/jazz/_.m3u"},
	}
	for _, tt := range tests {
		if got := ExportKey(tt.station, tt.identifier); got != tt.want {
			t.Errorf("ExportKey(%q, %q) = %q, want %q", tt.station, tt.identifier, got, tt.want)
		}
	}
}

func TestTitle(t *testing.T) {
	if got := Title("Jazz", ""); got != "PD Radio - Jazz" {
		t.Fatalf("Title without item = %q", got)
	}
	if got := Title("Jazz", "Test Album"); got != "PD Radio - Jazz - Test Album" {
		t.Fatalf("Title with item = %q", got)
	}
}
