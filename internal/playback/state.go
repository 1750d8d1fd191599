/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"errors"

	"github.com/friendsincode/pdradio/internal/archive"
	"github.com/friendsincode/pdradio/internal/station"
)

// Phase is the controller's top-level state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseEmpty   Phase = "empty"
	PhaseReady   Phase = "ready"
)

// NoTrack marks CurrentIndex as unset.
const NoTrack = -1

// DefaultVolume is the initial volume.
const DefaultVolume = 0.7

// State is a snapshot of the player.
type State struct {
	Phase           Phase           `json:"phase"`
	StationID       string          `json:"station_id,omitempty"`
	StationName     string          `json:"station_name,omitempty"`
	Identifier      string          `json:"identifier,omitempty"`
	ItemTitle       string          `json:"item_title,omitempty"`
	Creator         string          `json:"creator,omitempty"`
	Tracks          []archive.Track `json:"tracks"`
	CurrentIndex    int             `json:"current_index"`
	IsPlaying       bool            `json:"is_playing"`
	IsLoading       bool            `json:"is_loading"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Volume          float64         `json:"volume"`
	PositionSeconds float64         `json:"position_seconds"`
	DurationSeconds float64         `json:"duration_seconds"`
	Generation      uint64          `json:"generation"`
}

func initialState(volume float64) State {
	return State{
		Phase:        PhaseIdle,
		Tracks:       []archive.Track{},
		CurrentIndex: NoTrack,
		Volume:       volume,
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	s.Tracks = append([]archive.Track{}, s.Tracks...)
	return s
}

// CurrentTrack returns the selected track, if any.
func (s State) CurrentTrack() (archive.Track, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Tracks) {
		return archive.Track{}, false
	}
	return s.Tracks[s.CurrentIndex], true
}

// HasTrack reports whether a track is selected.
func (s State) HasTrack() bool {
	_, ok := s.CurrentTrack()
	return ok
}

// Transitions below keep one invariant: tracks and a valid CurrentIndex
// exist only in PhaseReady.

func (s *State) beginSelection(st station.Station, gen uint64) {
	volume := s.Volume
	*s = initialState(volume)
	s.Phase = PhaseLoading
	s.IsLoading = true
	s.StationID = st.ID
	s.StationName = st.Name
	s.Generation = gen
}

func (s *State) finishReady(doc archive.Doc, tracks []archive.Track) {
	s.Phase = PhaseReady
	s.IsLoading = false
	s.ErrorMessage = ""
	s.Identifier = doc.Identifier
	s.ItemTitle = doc.Title
	s.Creator = doc.Creator
	s.Tracks = tracks
	s.CurrentIndex = 0
	s.PositionSeconds = 0
	s.DurationSeconds = tracks[0].DurationSeconds
}

func (s *State) finishFailed(err error) {
	s.Phase = PhaseError
	if errors.Is(err, ErrNoResults) || errors.Is(err, ErrNoAudioFiles) {
		s.Phase = PhaseEmpty
	}
	s.IsLoading = false
	s.IsPlaying = false
	s.Tracks = []archive.Track{}
	s.CurrentIndex = NoTrack
	s.ErrorMessage = userMessage(err)
}

func (s *State) moveTo(index int, playing bool) {
	s.CurrentIndex = index
	s.IsPlaying = playing
	s.PositionSeconds = 0
	s.DurationSeconds = s.Tracks[index].DurationSeconds
}
