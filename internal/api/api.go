/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/pdradio/internal/auth"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/history"
	"github.com/friendsincode/pdradio/internal/logbuffer"
	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/session"
	"github.com/friendsincode/pdradio/internal/station"
	"github.com/friendsincode/pdradio/internal/storage"
)

// Player is the controller surface the HTTP layer drives.
type Player interface {
	State() playback.State
	SelectStation(ctx context.Context, id string) (playback.State, error)
	SelectTrack(ctx context.Context, index int) (playback.State, error)
	TogglePlayPause(ctx context.Context) (playback.State, error)
	Next(ctx context.Context) (playback.State, error)
	Previous(ctx context.Context) (playback.State, error)
	OnTrackEndedAt(ctx context.Context, index int) (playback.State, error)
	SetVolume(ctx context.Context, volume float64) (playback.State, error)
	Seek(ctx context.Context, seconds float64) (playback.State, error)
	ReportProgress(position, duration float64)
}

// Sessions resolves the player a request drives.
type Sessions interface {
	Create() (*session.Session, error)
	Resolve(r *http.Request) (*session.Session, error)
}

// Deps are the collaborators of the API. Bus is the process-wide broker
// behind /activity. History, Store and LogBuffer are optional; their
// endpoints answer 503 without them.
type Deps struct {
	Sessions  Sessions
	Catalog   *station.Catalog
	Bus       events.Broker
	History   history.Store
	Store     storage.ObjectStore
	LogBuffer *logbuffer.Buffer
	JWTSecret []byte
	Logger    zerolog.Logger
}

// API exposes HTTP handlers.
type API struct {
	sessions  Sessions
	catalog   *station.Catalog
	bus       events.Broker
	history   history.Store
	store     storage.ObjectStore
	logBuffer *logbuffer.Buffer
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(deps Deps) *API {
	return &API{
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		bus:       deps.Bus,
		history:   deps.History,
		store:     deps.Store,
		logBuffer: deps.LogBuffer,
		jwtSecret: deps.JWTSecret,
		logger:    deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/stations", a.handleStationsList)
		r.Post("/sessions", a.handleSessionCreate)
		r.Get("/activity", a.handleActivity)
		r.Get("/history", a.handleHistory)

		r.Group(func(r chi.Router) {
			r.Use(a.requireSession)
			r.Post("/stations/{stationID}/select", a.handleStationSelect)
			r.Get("/events", a.handleEvents)

			r.Route("/player", func(r chi.Router) {
				r.Get("/", a.handlePlayerGet)
				r.Post("/tracks/{index}", a.handleTrackSelect)
				r.Post("/toggle", a.handleToggle)
				r.Post("/next", a.handleNext)
				r.Post("/previous", a.handlePrevious)
				r.Post("/ended", a.handleEnded)
				r.Post("/volume", a.handleVolume)
				r.Post("/seek", a.handleSeek)
				r.Post("/progress", a.handleProgress)
				r.Get("/playlist.m3u", a.handlePlaylist)
				r.Post("/playlist/export", a.handlePlaylistExport)
			})
		})

		r.Route("/system", func(r chi.Router) {
			if len(a.jwtSecret) > 0 {
				r.Use(auth.Middleware(a.jwtSecret, auth.ScopeAdmin))
			}
			r.Get("/logs", a.handleSystemLogs)
			r.Get("/logs/components", a.handleLogComponents)
			r.Delete("/logs", a.handleClearLogs)
			r.Delete("/history", a.handleClearHistory)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStationsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stations": a.catalog.List(),
	})
}

// playerResponse is the body of every player endpoint.
type playerResponse struct {
	State playback.State     `json:"state"`
	View  playback.ViewModel `json:"view"`
}

func newPlayerResponse(s playback.State) playerResponse {
	return playerResponse{State: s, View: playback.View(s)}
}

// writePlayer answers with the state, or maps err to a status code.
func (a *API) writePlayer(w http.ResponseWriter, status int, s playback.State, err error) {
	if err != nil {
		switch {
		case errors.Is(err, playback.ErrUnknownStation):
			writeError(w, http.StatusNotFound, "station_not_found")
		case errors.Is(err, playback.ErrOutOfRange):
			writeError(w, http.StatusBadRequest, "out_of_range")
		case errors.Is(err, playback.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, "player_closed")
		default:
			a.logger.Error().Err(err).Msg("player command failed")
			writeError(w, http.StatusInternalServerError, "player_error")
		}
		return
	}
	writeJSON(w, status, newPlayerResponse(s))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// decodeBody decodes an optional JSON body into dst. An empty body is not
// an error.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
