/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist renders the loaded track list as an extended M3U file.
package playlist

import (
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/friendsincode/pdradio/internal/archive"
)

// ContentType is the media type served for M3U playlists.
const ContentType = "audio/x-mpegurl"

// M3U renders tracks in order. Tracks without a URL are skipped; unknown
// durations are written as -1.
func M3U(title string, tracks []archive.Track) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	if title = oneLine(title); title != "" {
		fmt.Fprintf(&b, "#PLAYLIST:%s\n", title)
	}
	for _, t := range tracks {
		if t.URL == "" {
			continue
		}
		seconds := -1
		if t.DurationSeconds > 0 {
			seconds = int(math.Round(t.DurationSeconds))
		}
		name := oneLine(t.Title)
		if name == "" {
			name = oneLine(t.Name)
		}
		fmt.Fprintf(&b, "#EXTINF:%d,%s\n%s\n", seconds, name, t.URL)
	}
	return b.String()
}

// Title names a playlist after its station and archive item.
func Title(stationName, itemTitle string) string {
	if itemTitle == "" {
		return "PD Radio - " + stationName
	}
	return fmt.Sprintf("PD Radio - %s - %s", stationName, itemTitle)
}

// ExportKey is the object key a playlist export is stored under.
func ExportKey(stationID, identifier string) string {
	return path.Join("playlists", safeSegment(stationID), safeSegment(identifier)+".m3u")
}

func oneLine(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return strings.TrimSpace(s)
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
