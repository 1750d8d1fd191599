/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"fmt"
	"math"
)

// Now-playing labels.
const (
	LabelIdle      = "Select a station to begin"
	LabelLoading   = "Loading"
	LabelPlaying   = "Now Playing"
	LabelPaused    = "Paused"
	LabelError     = "Error"
	LabelNoResults = "No results"
)

// Placeholder is the now-playing title when nothing is selected.
const Placeholder = "—"

// ViewModel is what the page renders from a State.
type ViewModel struct {
	Label         string  `json:"label"`
	Title         string  `json:"title"`
	Subtitle      string  `json:"subtitle,omitempty"`
	Playing       bool    `json:"playing"`
	ActiveStation string  `json:"active_station,omitempty"`
	ActiveIndex   int     `json:"active_index"`
	TimeCurrent   string  `json:"time_current"`
	TimeDuration  string  `json:"time_duration"`
	Progress      float64 `json:"progress"` // 0..1
	Volume        float64 `json:"volume"`
}

// View derives the view model.
func View(s State) ViewModel {
	vm := ViewModel{
		Label:         LabelIdle,
		Title:         Placeholder,
		ActiveStation: s.StationID,
		ActiveIndex:   s.CurrentIndex,
		TimeCurrent:   FormatClock(0),
		TimeDuration:  FormatClock(0),
		Volume:        s.Volume,
	}

	switch s.Phase {
	case PhaseLoading:
		vm.Label = LabelLoading
		vm.Title = s.StationName
	case PhaseError:
		vm.Label = LabelError
		vm.Title = s.ErrorMessage
	case PhaseEmpty:
		vm.Label = LabelNoResults
		vm.Title = s.ErrorMessage
	case PhaseReady:
		track, ok := s.CurrentTrack()
		if !ok {
			break
		}
		vm.Label = LabelPaused
		if s.IsPlaying {
			vm.Label = LabelPlaying
		}
		vm.Playing = s.IsPlaying
		vm.Title = track.Title
		vm.Subtitle = s.ItemTitle
		if s.Creator != "" {
			vm.Subtitle = s.ItemTitle + " · " + s.Creator
		}
		duration := s.DurationSeconds
		if duration <= 0 {
			duration = track.DurationSeconds
		}
		vm.TimeCurrent = FormatClock(s.PositionSeconds)
		vm.TimeDuration = FormatClock(duration)
		if duration > 0 {
			vm.Progress = math.Min(1, math.Max(0, s.PositionSeconds/duration))
		}
	}
	return vm
}

// FormatClock renders seconds as m:ss. Invalid or negative input renders 0:00.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
