/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/friendsincode/pdradio/internal/session"
)

type sessionResponse struct {
	SessionID string `json:"session_id"`
	playerResponse
}

func (a *API) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if a.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions_unavailable")
		return
	}
	s, err := a.sessions.Create()
	if err != nil {
		a.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:      s.ID,
		playerResponse: newPlayerResponse(s.Controller.State()),
	})
}

// requireSession resolves the request's session and stores it in the
// context for the player handlers.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.sessions == nil {
			writeError(w, http.StatusServiceUnavailable, "sessions_unavailable")
			return
		}
		s, err := a.sessions.Resolve(r)
		if err != nil {
			a.writeSessionError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
	})
}

func (a *API) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrRequired):
		writeError(w, http.StatusBadRequest, "session_required")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, session.ErrFull):
		writeError(w, http.StatusServiceUnavailable, "too_many_sessions")
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "player_closed")
	default:
		a.logger.Error().Err(err).Msg("session lookup failed")
		writeError(w, http.StatusInternalServerError, "session_error")
	}
}

// playerFor returns the player of the session attached by requireSession.
func playerFor(r *http.Request) Player {
	s, _ := session.FromContext(r.Context())
	return s.Controller
}
