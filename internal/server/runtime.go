/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/pdradio/internal/archive"
	"github.com/friendsincode/pdradio/internal/audio"
	"github.com/friendsincode/pdradio/internal/cache"
	"github.com/friendsincode/pdradio/internal/config"
	"github.com/friendsincode/pdradio/internal/db"
	"github.com/friendsincode/pdradio/internal/eventbus"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/history"
	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/session"
	"github.com/friendsincode/pdradio/internal/station"
	"github.com/friendsincode/pdradio/internal/storage"
)

// Runtime holds the services shared by the HTTP server and the CLI commands.
type Runtime struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Catalog *station.Catalog
	Filter  archive.AudioFilter
	Archive *archive.Client
	Cache   *cache.Cache
	DB      *gorm.DB
	History history.Store

	closers []func() error
}

// NewRuntime opens history storage, the optional Redis cache and the archive
// client. Close releases them in reverse order.
func NewRuntime(cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Catalog: station.Default(),
		Filter:  archive.NewAudioFilter(cfg.AudioExtensions...),
	}

	if err := rt.openHistory(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = cfg.RedisAddr
		cacheCfg.RedisPassword = cfg.RedisPassword
		cacheCfg.RedisDB = cfg.RedisDB
		cacheCfg.SearchTTL = cfg.CacheTTL
		rt.Cache = cache.New(cacheCfg, logger)
		rt.DeferClose(rt.Cache.Close)
	}

	rt.Archive = archive.New(archive.Config{
		BaseURL: cfg.ArchiveURL,
		Timeout: cfg.ArchiveTimeout,
		Rows:    cfg.SearchRows,
	}, logger)
	rt.Archive.SetCache(rt.Cache)

	return rt, nil
}

func (rt *Runtime) openHistory() error {
	switch rt.Config.HistoryBackend {
	case config.HistoryDB:
		database, err := db.Connect(rt.Config.DBBackend, rt.Config.DBDSN)
		if err != nil {
			return err
		}
		rt.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return err
		}
		rt.DB = database
		rt.History = history.NewGormStore(database)
	case config.HistoryBolt:
		store, err := history.OpenBolt(rt.Config.BoltPath)
		if err != nil {
			return err
		}
		rt.DeferClose(store.Close)
		rt.History = store
	default:
		rt.History = history.Nop{}
	}
	rt.Logger.Debug().Str("backend", string(rt.Config.HistoryBackend)).Msg("play history ready")
	return nil
}

// NewController builds a playback controller over the runtime's archive
// client and history. The caller owns Close.
func (rt *Runtime) NewController(sink audio.Sink, pub events.Publisher) (*playback.Controller, error) {
	return playback.New(playback.Options{
		Catalog: rt.Catalog,
		Archive: rt.Archive,
		Filter:  rt.Filter,
		Sink:    sink,
		Events:  pub,
		History: rt.History,
		Volume:  rt.Config.DefaultVolume,
		Logger:  rt.Logger,
	})
}

// NewSessions returns the session manager for the web player. Every session
// gets a controller from NewController; mirror receives their events.
func (rt *Runtime) NewSessions(mirror events.Publisher) *session.Manager {
	return session.NewManager(session.Config{
		Shared:      rt.Config.SessionMode == config.SessionShared,
		IdleTimeout: rt.Config.SessionIdleTimeout,
		MaxSessions: rt.Config.MaxSessions,
		Volume:      rt.Config.DefaultVolume,
	}, rt.NewController, mirror, rt.Logger)
}

// ObjectStore opens the configured playlist export store.
func (rt *Runtime) ObjectStore(ctx context.Context) (storage.ObjectStore, error) {
	return storage.New(ctx, rt.Config, rt.Logger)
}

// NewBroker returns the event bus selected by configuration. Redis and NATS
// buses mirror a local bus and fall back to it when their server is down.
func (rt *Runtime) NewBroker() (events.Broker, func() error) {
	local := events.NewBus()
	nodeID := eventbus.NewNodeID()

	switch rt.Config.EventBus {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = rt.Config.RedisAddr
		redisCfg.Password = rt.Config.RedisPassword
		redisCfg.DB = rt.Config.RedisDB
		bus := eventbus.NewRedisBus(redisCfg, local, nodeID, rt.Logger)
		return bus, bus.Close
	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = rt.Config.NATSURL
		bus := eventbus.NewNATSBus(natsCfg, local, nodeID, rt.Logger)
		return bus, bus.Close
	default:
		return local, func() error { return nil }
	}
}

// DeferClose registers a cleanup hook.
func (rt *Runtime) DeferClose(fn func() error) {
	rt.closers = append(rt.closers, fn)
}

// Close runs the cleanup hooks in reverse order.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close runtime: %w", errors.Join(errs...))
	}
	return nil
}
