/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventStateChanged carries the full player state after every transition.
	EventStateChanged EventType = "state_changed"
	// EventTrackStarted fires when a track is handed to the audio sink.
	EventTrackStarted EventType = "track_started"
	// EventSelectionFailed fires when a station load ends in the error phase.
	EventSelectionFailed EventType = "selection_failed"
	// EventAudio carries commands for a remote audio device (the browser).
	EventAudio EventType = "audio"
)

// Known lists every event type the player emits.
var Known = []EventType{EventStateChanged, EventTrackStarted, EventSelectionFailed, EventAudio}

// PlayerScoped reports whether events of this type belong to one player
// session. Such events are mirrored for outside consumers but never
// delivered to another session or another node's clients.
func (t EventType) PlayerScoped() bool {
	switch t {
	case EventStateChanged, EventAudio, EventSelectionFailed:
		return true
	}
	return false
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, k := range Known {
		if k == t {
			return true
		}
	}
	return false
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the write side of a bus.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Broker is a bus that also hands out subscriptions.
type Broker interface {
	Publisher
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Event is one published event, as carried by a Stream.
type Event struct {
	Type    EventType
	Payload Payload
}

// Stream receives events of several types in the order they were published.
type Stream chan Event

type streamSub struct {
	types map[EventType]struct{}
	ch    Stream
}

// Bus implements a simple in-process pubsub. Slow subscribers drop events.
type Bus struct {
	mu      sync.RWMutex
	subs    map[EventType][]Subscriber
	streams []streamSub
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// SubscribeStream registers one ordered subscription for all given types.
func (b *Bus) SubscribeStream(types ...EventType) Stream {
	sub := streamSub{types: make(map[EventType]struct{}, len(types)), ch: make(Stream, 64)}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}
	b.mu.Lock()
	b.streams = append(b.streams, sub)
	b.mu.Unlock()
	return sub.ch
}

// UnsubscribeStream removes the stream and closes it.
func (b *Bus) UnsubscribeStream(stream Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.streams {
		if candidate.ch == stream {
			b.streams = append(b.streams[:i], b.streams[i+1:]...)
			close(stream)
			return
		}
	}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// Sends never block, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
	for _, stream := range b.streams {
		if _, ok := stream.types[eventType]; !ok {
			continue
		}
		select {
		case stream.ch <- Event{Type: eventType, Payload: payload}:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// SubscriberCount returns the number of live subscriptions for eventType.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
