/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"
	"time"

	"github.com/friendsincode/pdradio/internal/config"
	"github.com/friendsincode/pdradio/internal/models"
)

func TestConnectMigrateSQLite(t *testing.T) {
	database, err := Connect(config.DatabaseSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	row := models.PlayHistory{
		ID:         "00000000-0000-0000-0000-000000000001",
		StationID:  "jazz",
		Identifier: "item1",
		TrackName:  "a.mp3",
		Title:      "A",
		PlayedAt:   time.Now().UTC(),
	}
	if err := database.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var count int64
	if err := database.Model(&models.PlayHistory{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}

	UpdateConnectionMetrics(database)
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(config.DatabaseBackend("oracle"), "x"); err == nil {
		t.Fatal("expected error")
	}
}
