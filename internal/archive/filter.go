/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package archive

import (
	"math"
	"path"
	"strconv"
	"strings"
)

// Track is one playable audio file of the loaded item.
type Track struct {
	Index           int     `json:"index"`
	Name            string  `json:"name"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds"`
	URL             string  `json:"url,omitempty"`
}

// AudioFilter keeps files whose extension is on the allow-list.
type AudioFilter struct {
	exts map[string]struct{}
}

// NewAudioFilter builds a filter from extensions such as "mp3" or ".ogg".
func NewAudioFilter(extensions ...string) AudioFilter {
	f := AudioFilter{exts: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			f.exts[ext] = struct{}{}
		}
	}
	return f
}

// Matches reports whether name carries an allowed extension.
func (f AudioFilter) Matches(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return false
	}
	_, ok := f.exts[ext]
	return ok
}

// Extensions returns the allow-list in no particular order.
func (f AudioFilter) Extensions() []string {
	out := make([]string, 0, len(f.exts))
	for ext := range f.exts {
		out = append(out, ext)
	}
	return out
}

// Apply filters files down to tracks, keeping source order and reassigning
// indices densely from 0.
func (f AudioFilter) Apply(files []File) []Track {
	tracks := make([]Track, 0, len(files))
	for _, file := range files {
		if !f.Matches(file.Name) {
			continue
		}
		title := strings.TrimSpace(file.Title)
		if title == "" {
			title = file.Name
		}
		tracks = append(tracks, Track{
			Index:           len(tracks),
			Name:            file.Name,
			Title:           title,
			DurationSeconds: ParseLength(file.Length),
		})
	}
	return tracks
}

// ParseLength converts the archive's length field to seconds. It accepts
// plain seconds ("180.5") and clock forms ("3:05", "1:02:03"). Anything
// else yields 0.
func ParseLength(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	var total float64
	for _, part := range strings.Split(raw, ":") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		total = total*60 + v
	}
	return total
}
