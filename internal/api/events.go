/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/session"
	"github.com/friendsincode/pdradio/internal/telemetry"
)

const wsPingInterval = 15 * time.Second

// handleEvents streams the session's events over a websocket, in publish
// order. A client asking for state_changed first receives the current state.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = []events.EventType{events.EventStateChanged}
	}
	for _, t := range eventTypes {
		if !t.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_event_type")
			return
		}
	}

	conn, ctx, done, ok := a.acceptSocket(w, r)
	if !ok {
		return
	}
	defer done()

	release := sess.Hold()
	defer release()
	stream := sess.Bus.SubscribeStream(eventTypes...)
	defer sess.Bus.UnsubscribeStream(stream)

	if slices.Contains(eventTypes, events.EventStateChanged) {
		if err := writeEvent(ctx, conn, events.EventStateChanged, playback.StatePayload(sess.Controller.State())); err != nil {
			a.logger.Debug().Err(err).Msg("websocket initial state failed")
			return
		}
	}

	a.pump(ctx, conn, stream)
}

// handleActivity streams track_started events from every listener on every
// node. Payloads carry the public listener id, never a session id.
func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable")
		return
	}

	sub := a.bus.Subscribe(events.EventTrackStarted)
	defer a.bus.Unsubscribe(events.EventTrackStarted, sub)

	conn, ctx, done, ok := a.acceptSocket(w, r)
	if !ok {
		return
	}
	defer done()

	in := make(chan events.Event, 16)
	go forward(ctx, events.EventTrackStarted, sub, in)

	a.pump(ctx, conn, in)
}

// acceptSocket upgrades the request. done closes the connection; ctx ends
// when the client goes away.
func (a *API) acceptSocket(w http.ResponseWriter, r *http.Request) (*ws.Conn, context.Context, func(), bool) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return nil, nil, nil, false
	}
	telemetry.APIWebSocketConnections.Inc()

	// The client never sends; CloseRead ends ctx when it goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	done := func() {
		cancel()
		telemetry.APIWebSocketConnections.Dec()
		conn.Close(ws.StatusInternalError, "server error")
	}
	return conn, ctx, done, true
}

// pump writes events from in until ctx ends, the channel closes or a write
// fails, pinging the client while idle.
func (a *API) pump(ctx context.Context, conn *ws.Conn, in <-chan events.Event) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev, ok := <-in:
			if !ok {
				conn.Close(ws.StatusGoingAway, "player closed")
				return
			}
			if err := writeEvent(ctx, conn, ev.Type, ev.Payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// forward copies one subscription into out until the subscription is
// closed. Events arriving after ctx ends are dropped.
func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- events.Event) {
	for payload := range sub {
		select {
		case out <- events.Event{Type: eventType, Payload: payload}:
		case <-ctx.Done():
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(map[string]any{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}
