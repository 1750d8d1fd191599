/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package session maps browser clients onto playback controllers. In the
// default private mode every page load gets its own player, event bus and
// remote audio sink; shared mode drives one player for everybody.
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/friendsincode/pdradio/internal/audio"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/playback"
)

const (
	// Header carries the session id on API requests.
	Header = "X-PDRadio-Session"
	// QueryParam carries the session id where headers cannot be set, such as
	// the websocket handshake.
	QueryParam = "session"
	// SharedID names the single session of shared mode.
	SharedID = "shared"
)

var (
	ErrRequired = errors.New("session id required")
	ErrNotFound = errors.New("session not found")
	ErrFull     = errors.New("too many active sessions")
	ErrClosed   = errors.New("session manager closed")
)

// Session is one player with its own event stream and audio output.
type Session struct {
	// ID is the client's handle on the session and is never published.
	ID string
	// ListenerID tags the session's events on the shared event bus.
	ListenerID string

	Controller *playback.Controller
	Bus        *events.Bus
	Sink       *audio.Remote

	lastSeen atomic.Int64
	holds    atomic.Int32
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Hold keeps the session from idle eviction until release is called, for
// example while its event stream is open.
func (s *Session) Hold() (release func()) {
	s.holds.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.holds.Add(-1)
			s.touch(time.Now())
		})
	}
}

func (s *Session) held() bool {
	return s.holds.Load() > 0
}

// publisher delivers controller events to the session's own bus and mirrors
// them, tagged with the listener id, to the process-wide broker.
type publisher struct {
	local    *events.Bus
	mirror   events.Publisher
	listener string
}

func (p publisher) Publish(eventType events.EventType, payload events.Payload) {
	p.local.Publish(eventType, payload)
	if p.mirror == nil {
		return
	}
	tagged := make(events.Payload, len(payload)+1)
	for k, v := range payload {
		tagged[k] = v
	}
	tagged["listener_id"] = p.listener
	p.mirror.Publish(eventType, tagged)
}

// IDFromRequest returns the session id named by the request header, or by
// the query parameter when the header is absent.
func IDFromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	return r.URL.Query().Get(QueryParam)
}

type contextKey string

const sessionContextKey contextKey = "pdradioSession"

// WithSession attaches a session to the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext retrieves the session attached by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok && s != nil
}
