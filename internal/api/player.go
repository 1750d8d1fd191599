/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/playlist"
)

func (a *API) handleStationSelect(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	s, err := playerFor(r).SelectStation(r.Context(), stationID)
	a.writePlayer(w, http.StatusAccepted, s, err)
}

func (a *API) handlePlayerGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPlayerResponse(playerFor(r).State()))
}

func (a *API) handleTrackSelect(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	s, err := playerFor(r).SelectTrack(r.Context(), index)
	a.writePlayer(w, http.StatusOK, s, err)
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
	s, err := playerFor(r).TogglePlayPause(r.Context())
	a.writePlayer(w, http.StatusOK, s, err)
}

func (a *API) handleNext(w http.ResponseWriter, r *http.Request) {
	s, err := playerFor(r).Next(r.Context())
	a.writePlayer(w, http.StatusOK, s, err)
}

func (a *API) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s, err := playerFor(r).Previous(r.Context())
	a.writePlayer(w, http.StatusOK, s, err)
}

type endedRequest struct {
	Index *int `json:"index"`
}

func (a *API) handleEnded(w http.ResponseWriter, r *http.Request) {
	var req endedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	index := playback.NoTrack
	if req.Index != nil {
		index = *req.Index
	}
	s, err := playerFor(r).OnTrackEndedAt(r.Context(), index)
	a.writePlayer(w, http.StatusOK, s, err)
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (a *API) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeBody(r, &req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s, err := playerFor(r).SetVolume(r.Context(), *req.Volume)
	a.writePlayer(w, http.StatusOK, s, err)
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil || req.Position == nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	s, err := playerFor(r).Seek(r.Context(), *req.Position)
	a.writePlayer(w, http.StatusOK, s, err)
}

type progressRequest struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	playerFor(r).ReportProgress(req.Position, req.Duration)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	s := playerFor(r).State()
	if s.Phase != playback.PhaseReady {
		writeError(w, http.StatusNotFound, "no_tracks")
		return
	}
	w.Header().Set("Content-Type", playlist.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.StationID+".m3u"))
	_, _ = w.Write([]byte(playlist.M3U(playlist.Title(s.StationName, s.ItemTitle), s.Tracks)))
}

func (a *API) handlePlaylistExport(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return
	}
	s := playerFor(r).State()
	if s.Phase != playback.PhaseReady {
		writeError(w, http.StatusNotFound, "no_tracks")
		return
	}

	key := playlist.ExportKey(s.StationID, s.Identifier)
	if err := a.store.Put(r.Context(), key, []byte(playlist.M3U(playlist.Title(s.StationName, s.ItemTitle), s.Tracks))); err != nil {
		a.logger.Error().Err(err).Str("key", key).Msg("playlist export failed")
		writeError(w, http.StatusBadGateway, "export_failed")
		return
	}

	a.logger.Info().Str("key", key).Int("tracks", len(s.Tracks)).Msg("playlist exported")
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":    key,
		"tracks": len(s.Tracks),
	})
}
