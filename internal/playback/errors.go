/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"errors"
	"fmt"
)

// Error kinds of the controller. Caller errors (ErrUnknownStation,
// ErrOutOfRange) are returned; pipeline errors end up in State.
var (
	ErrUnknownStation = errors.New("unknown station")
	ErrSearchFailed   = errors.New("search failed")
	ErrMetadataFailed = errors.New("metadata failed")
	ErrNoResults      = errors.New("no results")
	ErrNoAudioFiles   = errors.New("no audio files")
	ErrOutOfRange     = errors.New("out of range")
	ErrClosed         = errors.New("controller closed")
)

const (
	// MessageNoResults is shown when the search returned no documents.
	MessageNoResults = "No results found"
	// MessageNoAudioFiles is shown when the item had no playable files.
	MessageNoAudioFiles = "Error: no audio files found"
)

// userMessage turns a pipeline error into the text the player shows.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoResults):
		return MessageNoResults
	case errors.Is(err, ErrNoAudioFiles):
		return MessageNoAudioFiles
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
