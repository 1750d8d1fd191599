/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// PlayHistory records one track started by the player.
type PlayHistory struct {
	ID              string    `gorm:"type:varchar(36);primaryKey"`
	StationID       string    `gorm:"type:varchar(64);index"`
	Identifier      string    `gorm:"type:varchar(255);index"`
	TrackName       string    `gorm:"type:varchar(512)"`
	Title           string    `gorm:"type:varchar(512)"`
	DurationSeconds float64
	PlayedAt        time.Time `gorm:"index"`
}

// TableName pins the table name across dialects.
func (PlayHistory) TableName() string { return "play_history" }
