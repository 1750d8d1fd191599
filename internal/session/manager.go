/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/pdradio/internal/audio"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/telemetry"
)

// Factory builds the controller of a new session around its sink and
// event publisher.
type Factory func(sink audio.Sink, pub events.Publisher) (*playback.Controller, error)

// Config configures a Manager.
type Config struct {
	Shared      bool
	IdleTimeout time.Duration // sessions unused for this long are closed
	MaxSessions int           // the least recently used idle session makes room beyond this
	Volume      float64       // initial volume of each remote sink
}

// Manager owns the live sessions.
type Manager struct {
	cfg     Config
	factory Factory
	mirror  events.Publisher
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager. mirror, when set, receives every controller
// event tagged with the session's listener id.
func NewManager(cfg Config, factory Factory, mirror events.Publisher, logger zerolog.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.Volume == 0 {
		cfg.Volume = playback.DefaultVolume
	}
	return &Manager{
		cfg:      cfg,
		factory:  factory,
		mirror:   mirror,
		logger:   logger.With().Str("component", "sessions").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Shared reports whether every client drives the same player.
func (m *Manager) Shared() bool {
	return m.cfg.Shared
}

// Create starts a session in the idle state. In shared mode it returns the
// shared session instead.
func (m *Manager) Create() (*Session, error) {
	if m.cfg.Shared {
		return m.getOrCreate(SharedID)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	var evicted *Session
	if len(m.sessions) >= m.cfg.MaxSessions {
		evicted = m.leastRecentIdleLocked()
		if evicted == nil {
			m.mu.Unlock()
			return nil, ErrFull
		}
		delete(m.sessions, evicted.ID)
	}
	s, err := m.newSessionLocked(uuid.NewString())
	m.mu.Unlock()

	if evicted != nil {
		m.closeSession(evicted, "capacity")
	}
	return s, err
}

// Open creates a session for a page load and returns its id and state.
func (m *Manager) Open() (string, playback.State, error) {
	s, err := m.Create()
	if err != nil {
		return "", playback.State{}, err
	}
	return s.ID, s.Controller.State(), nil
}

// Lookup returns the session with the given id and marks it used.
func (m *Manager) Lookup(id string) (*Session, error) {
	if m.cfg.Shared {
		return m.getOrCreate(SharedID)
	}
	if id == "" {
		return nil, ErrRequired
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Resolve looks up the session named by the request.
func (m *Manager) Resolve(r *http.Request) (*Session, error) {
	return m.Lookup(IDFromRequest(r))
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) getOrCreate(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[id]; ok {
		s.touch(m.now())
		return s, nil
	}
	return m.newSessionLocked(id)
}

func (m *Manager) newSessionLocked(id string) (*Session, error) {
	bus := events.NewBus()
	sink := audio.NewRemote(bus, m.cfg.Volume)
	listener := uuid.NewString()

	controller, err := m.factory(sink, publisher{local: bus, mirror: m.mirror, listener: listener})
	if err != nil {
		return nil, fmt.Errorf("create player: %w", err)
	}

	s := &Session{
		ID:         id,
		ListenerID: listener,
		Controller: controller,
		Bus:        bus,
		Sink:       sink,
	}
	s.touch(m.now())
	m.sessions[id] = s
	telemetry.PlayerSessionsActive.Set(float64(len(m.sessions)))
	m.logger.Debug().Str("listener_id", listener).Int("sessions", len(m.sessions)).Msg("session created")
	return s, nil
}

func (m *Manager) leastRecentIdleLocked() *Session {
	var oldest *Session
	for _, s := range m.sessions {
		if s.held() {
			continue
		}
		if oldest == nil || s.LastSeen().Before(oldest.LastSeen()) {
			oldest = s
		}
	}
	return oldest
}

// Sweep closes sessions that have been idle longer than the idle timeout and
// returns how many it closed. The shared session is never swept.
func (m *Manager) Sweep() int {
	if m.cfg.Shared {
		return 0
	}
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.held() || s.LastSeen().After(cutoff) {
			continue
		}
		idle = append(idle, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.closeSession(s, "idle")
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	interval := min(max(m.cfg.IdleTimeout/4, time.Second), time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info().Int("closed", n).Int("sessions", m.Len()).Msg("closed idle sessions")
			}
		}
	}
}

func (m *Manager) closeSession(s *Session, reason string) {
	if err := s.Controller.Close(); err != nil {
		m.logger.Warn().Err(err).Str("listener_id", s.ListenerID).Msg("closing session player failed")
	}
	telemetry.PlayerSessionsClosedTotal.WithLabelValues(reason).Inc()
	m.mu.RLock()
	telemetry.PlayerSessionsActive.Set(float64(len(m.sessions)))
	m.mu.RUnlock()
	m.logger.Debug().Str("listener_id", s.ListenerID).Str("reason", reason).Msg("session closed")
}

// Close closes every session. Later calls to Create and Lookup fail with
// ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Controller.Close(); err != nil {
			errs = append(errs, err)
		}
		telemetry.PlayerSessionsClosedTotal.WithLabelValues("shutdown").Inc()
	}
	telemetry.PlayerSessionsActive.Set(0)
	return errors.Join(errs...)
}
