/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/pdradio/internal/api"
	"github.com/friendsincode/pdradio/internal/config"
	"github.com/friendsincode/pdradio/internal/db"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/logbuffer"
	"github.com/friendsincode/pdradio/internal/session"
	"github.com/friendsincode/pdradio/internal/telemetry"
	"github.com/friendsincode/pdradio/internal/version"
	"github.com/friendsincode/pdradio/internal/web"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	runtime    *Runtime
	bus        events.Broker
	sessions   *session.Manager
	logBuffer  *logbuffer.Buffer
	api        *api.API
	webHandler *web.Handler

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("pdradio-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long-lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the websocket stream; the middleware timeout covers the rest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		// Audio is streamed straight from the archive, so media-src allows https.
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; media-src 'self' https: http: blob:; img-src 'self' data: https:; connect-src 'self' ws: wss:; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	rt, err := NewRuntime(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.runtime = rt
	s.DeferClose(rt.Close)

	bus, closeBus := rt.NewBroker()
	s.bus = bus
	s.DeferClose(closeBus)

	// Each page load drives its own player; the browser is its audio device.
	s.sessions = rt.NewSessions(bus)
	s.DeferClose(s.sessions.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	store, err := rt.ObjectStore(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("backend", string(s.cfg.StorageBackend)).Msg("playlist export storage unavailable")
		store = nil
	}

	s.api = api.New(api.Deps{
		Sessions:  s.sessions,
		Catalog:   rt.Catalog,
		Bus:       bus,
		History:   rt.History,
		Store:     store,
		LogBuffer: s.logBuffer,
		JWTSecret: []byte(s.cfg.JWTSigningKey),
		Logger:    s.logger,
	})

	webHandler, err := web.NewHandler(s.sessions, rt.Catalog, s.logger)
	if err != nil {
		return err
	}
	s.webHandler = webHandler

	return nil
}

// HTTPServer exposes the configured http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the player session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// LogBuffer returns the log buffer for system logs.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close stops background workers and releases resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.sessions.Run(ctx)
	}()

	// Start database metrics updater
	if s.runtime.DB != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.runtime.DB)
				}
			}
		}()
	}

	if s.cfg.IsProduction() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.checkForUpdate(ctx)
		}()
	}
}

func (s *Server) checkForUpdate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := version.Check(ctx, &http.Client{Transport: telemetry.Transport(http.DefaultTransport)}, "")
	if err != nil {
		s.logger.Debug().Err(err).Msg("update check failed")
		return
	}
	if info.UpdateAvailable {
		s.logger.Info().
			Str("current", info.CurrentVersion).
			Str("latest", info.LatestVersion).
			Str("url", info.ReleaseURL).
			Msg("a newer pdradio release is available")
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder
		b.WriteString(`{"status":"ok"`)
		if s.runtime.Cache != nil {
			if s.runtime.Cache.IsAvailable() {
				b.WriteString(`,"cache":true`)
			} else {
				b.WriteString(`,"cache":false`)
			}
		}
		b.WriteString(`}`)
		_, _ = w.Write([]byte(b.String()))
	})

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)

	// Web UI routes
	s.webHandler.Routes(s.router)
}
