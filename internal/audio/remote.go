/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"context"
	"sync"

	"github.com/friendsincode/pdradio/internal/events"
)

// Command names carried by events.EventAudio payloads.
const (
	CmdLoad   = "load"
	CmdPlay   = "play"
	CmdPause  = "pause"
	CmdStop   = "stop"
	CmdSeek   = "seek"
	CmdVolume = "volume"
)

// Session is the remote device's expected state.
type Session struct {
	URL      string  `json:"url"`
	Playing  bool    `json:"playing"`
	Volume   float64 `json:"volume"`
	Position float64 `json:"position"`
	Seq      uint64  `json:"seq"`
}

// Remote is the sink used when a browser is the output device. It keeps the
// session it expects the browser to be in and publishes each command on the
// player's in-process bus; the page applies them to its <audio> element.
// The controller calls sinks under its lock, so commands never leave the
// process here.
type Remote struct {
	bus *events.Bus

	mu      sync.Mutex
	session Session
}

// NewRemote creates a remote sink with the initial volume.
func NewRemote(bus *events.Bus, volume float64) *Remote {
	return &Remote{bus: bus, session: Session{Volume: volume}}
}

// Session returns a copy of the current session.
func (r *Remote) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Remote) apply(cmd string, mutate func(*Session), extra events.Payload) error {
	r.mu.Lock()
	mutate(&r.session)
	r.session.Seq++
	payload := events.Payload{
		"command": cmd,
		"seq":     r.session.Seq,
		"url":     r.session.URL,
		"playing": r.session.Playing,
		"volume":  r.session.Volume,
	}
	r.mu.Unlock()

	for k, v := range extra {
		payload[k] = v
	}
	r.bus.Publish(events.EventAudio, payload)
	return nil
}

func (r *Remote) Load(_ context.Context, url string) error {
	return r.apply(CmdLoad, func(s *Session) {
		s.URL = url
		s.Playing = false
		s.Position = 0
	}, nil)
}

func (r *Remote) Play(context.Context) error {
	return r.apply(CmdPlay, func(s *Session) { s.Playing = true }, nil)
}

func (r *Remote) Pause(context.Context) error {
	return r.apply(CmdPause, func(s *Session) { s.Playing = false }, nil)
}

func (r *Remote) Stop(context.Context) error {
	return r.apply(CmdStop, func(s *Session) {
		s.URL = ""
		s.Playing = false
		s.Position = 0
	}, nil)
}

func (r *Remote) Seek(_ context.Context, seconds float64) error {
	return r.apply(CmdSeek, func(s *Session) { s.Position = seconds }, events.Payload{"position": seconds})
}

func (r *Remote) SetVolume(_ context.Context, volume float64) error {
	return r.apply(CmdVolume, func(s *Session) { s.Volume = volume }, nil)
}
