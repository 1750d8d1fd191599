/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history records the tracks the player started.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit applies when Recent is called with a non-positive limit.
const DefaultLimit = 20

// Entry is one started track.
type Entry struct {
	ID              string    `json:"id"`
	StationID       string    `json:"station_id"`
	Identifier      string    `json:"identifier"`
	TrackName       string    `json:"track_name"`
	Title           string    `json:"title"`
	DurationSeconds float64   `json:"duration_seconds"`
	PlayedAt        time.Time `json:"played_at"`
}

// Store persists entries. Recent returns newest first.
type Store interface {
	Add(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Clear(ctx context.Context) error
	Close() error
}

// normalize fills the generated fields.
func normalize(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PlayedAt.IsZero() {
		e.PlayedAt = time.Now()
	}
	e.PlayedAt = e.PlayedAt.UTC()
	return e
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Nop is used when history is disabled.
type Nop struct{}

func (Nop) Add(context.Context, Entry) error             { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }
func (Nop) Clear(context.Context) error                  { return nil }
func (Nop) Close() error                                 { return nil }
