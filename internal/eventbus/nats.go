/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"sync/atomic"
	"time"

	"github.com/friendsincode/pdradio/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "pdradio",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus publishes locally and mirrors every event to pdradio.events.<type>.
// Remote events from other nodes are re-published on the local bus.
type NATSBus struct {
	local  *events.Bus
	conn   *nats.Conn
	sub    *nats.Subscription
	nodeID string
	logger zerolog.Logger

	connected atomic.Bool
}

// NewNATSBus connects to NATS. When the server is unreachable the bus runs
// local-only and the error is logged, not returned.
func NewNATSBus(cfg NATSConfig, local *events.Bus, nodeID string, logger zerolog.Logger) *NATSBus {
	nb := &NATSBus{
		local:  local,
		nodeID: nodeID,
		logger: logger.With().Str("component", "eventbus").Str("backend", "nats").Logger(),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.connected.Store(false)
			nb.logger.Warn().Err(err).Msg("NATS disconnected, publishing locally only")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.connected.Store(true)
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-memory event bus")
		return nb
	}
	nb.conn = conn
	nb.connected.Store(true)

	sub, err := conn.Subscribe(SubjectPrefix+">", nb.handle)
	if err != nil {
		nb.logger.Error().Err(err).Msg("NATS subscribe failed; remote events will not be received")
	} else {
		nb.sub = sub
	}

	nb.logger.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return nb
}

func (nb *NATSBus) handle(msg *nats.Msg) {
	if _, ok := eventTypeFromSubject(msg.Subject); !ok {
		return
	}
	delivered, err := relay(nb.local, nb.nodeID, msg.Data)
	if err != nil {
		nb.logger.Error().Err(err).Str("subject", msg.Subject).Msg("dropping malformed NATS event")
		return
	}
	if delivered {
		nb.logger.Debug().Str("subject", msg.Subject).Msg("delivered remote event")
	}
}

// Remote reports whether events are currently mirrored to NATS.
func (nb *NATSBus) Remote() bool {
	return nb.conn != nil && nb.connected.Load()
}

// Publish sends the event to local subscribers and, when connected, to NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if !nb.Remote() {
		return
	}

	data, err := marshalEnvelope(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	if err := nb.conn.Publish(subjectFor(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Subscribe registers a local subscriber.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	nb.connected.Store(false)
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}
