/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio defines the single audio output the player drives.
package audio

import "context"

// Sink is one audio output session. Load replaces whatever was loaded before;
// callers stop the previous track first so at most one source is ever active.
type Sink interface {
	Load(ctx context.Context, url string) error
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Seek(ctx context.Context, seconds float64) error
	SetVolume(ctx context.Context, volume float64) error
}

// Nop discards every command.
type Nop struct{}

func (Nop) Load(context.Context, string) error       { return nil }
func (Nop) Play(context.Context) error               { return nil }
func (Nop) Pause(context.Context) error              { return nil }
func (Nop) Stop(context.Context) error               { return nil }
func (Nop) Seek(context.Context, float64) error      { return nil }
func (Nop) SetVolume(context.Context, float64) error { return nil }
