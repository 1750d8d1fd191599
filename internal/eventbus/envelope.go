/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus mirrors player events onto Redis or NATS for outside
// consumers. Every node keeps its own players: only shared events such as
// track_started are delivered from other nodes to local subscribers, while
// player-scoped events stay with the node that produced them.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/friendsincode/pdradio/internal/events"
	"github.com/google/uuid"
)

// SubjectPrefix prefixes every remote subject/channel.
const SubjectPrefix = "pdradio.events."

// envelope is the wire form of a mirrored event.
type envelope struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func subjectFor(eventType events.EventType) string {
	return SubjectPrefix + string(eventType)
}

func eventTypeFromSubject(subject string) (events.EventType, bool) {
	if !strings.HasPrefix(subject, SubjectPrefix) {
		return "", false
	}
	return events.EventType(strings.TrimPrefix(subject, SubjectPrefix)), true
}

func marshalEnvelope(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(envelope{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("unmarshal event envelope: missing event_type")
	}
	return &env, nil
}

// NewNodeID returns hostname plus a short random suffix.
func NewNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "pdradio"
	}
	return host + "-" + uuid.NewString()[:8]
}

// relay delivers a remote envelope to the local bus unless it originated
// here or belongs to a player on another node.
func relay(local events.Publisher, nodeID string, data []byte) (bool, error) {
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return false, err
	}
	if env.NodeID == nodeID || env.EventType.PlayerScoped() {
		return false, nil
	}
	local.Publish(env.EventType, env.Payload)
	return true, nil
}
