/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package history

import (
	"context"
	"fmt"

	"github.com/friendsincode/pdradio/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps history in the play_history table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Add(ctx context.Context, entry Entry) error {
	entry = normalize(entry)
	row := models.PlayHistory{
		ID:              entry.ID,
		StationID:       entry.StationID,
		Identifier:      entry.Identifier,
		TrackName:       entry.TrackName,
		Title:           entry.Title,
		DurationSeconds: entry.DurationSeconds,
		PlayedAt:        entry.PlayedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert play history: %w", err)
	}
	return nil
}

func (s *GormStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	var rows []models.PlayHistory
	err := s.db.WithContext(ctx).
		Order("played_at DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query play history: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			ID:              r.ID,
			StationID:       r.StationID,
			Identifier:      r.Identifier,
			TrackName:       r.TrackName,
			Title:           r.Title,
			DurationSeconds: r.DurationSeconds,
			PlayedAt:        r.PlayedAt.UTC(),
		})
	}
	return entries, nil
}

func (s *GormStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.PlayHistory{}).Error; err != nil {
		return fmt.Errorf("clear play history: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle belongs to the caller.
func (s *GormStore) Close() error { return nil }
