/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/session"
)

type wsMessage struct {
	Type    string `json:"type"`
	Payload struct {
		State playback.State     `json:"state"`
		View  playback.ViewModel `json:"view"`
	} `json:"payload"`
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, ctx context.Context, conn *ws.Conn) wsMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestEventsStreamsStateChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, wsURL(srv, "/api/v1/events?types=state_changed&session="+env.sess.ID), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	first := readMessage(t, ctx, conn)
	if first.Type != "state_changed" || first.Payload.State.Phase != playback.PhaseIdle {
		t.Fatalf("unexpected initial message %+v", first)
	}
	if first.Payload.View.Label != "Select a station to begin" {
		t.Fatalf("unexpected initial view %+v", first.Payload.View)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/stations/jazz/select", nil)
	req.Header.Set(session.Header, env.sess.ID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	resp.Body.Close()

	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type != "state_changed" {
			continue
		}
		if msg.Payload.State.Phase == playback.PhaseReady {
			if msg.Payload.View.Title != "First Track" {
				t.Fatalf("unexpected ready view %+v", msg.Payload.View)
			}
			return
		}
	}
}

func TestEventsRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/v1/events?types=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

type rawMessage struct {
	Type    string         `json:"type"`
	Payload events.Payload `json:"payload"`
}

func readRaw(t *testing.T, ctx context.Context, conn *ws.Conn) rawMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg rawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestEventsKeepPublishOrderAcrossTypes(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, wsURL(srv, "/api/v1/events?types=state_changed,audio&session="+env.sess.ID), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	if first := readRaw(t, ctx, conn); first.Type != "state_changed" {
		t.Fatalf("unexpected initial message %+v", first)
	}

	const n = 40
	for i := range n {
		eventType := events.EventAudio
		if i%2 == 1 {
			eventType = events.EventStateChanged
		}
		env.sess.Bus.Publish(eventType, events.Payload{"seq": i})
	}

	for i := range n {
		msg := readRaw(t, ctx, conn)
		want := "audio"
		if i%2 == 1 {
			want = "state_changed"
		}
		if msg.Type != want || msg.Payload["seq"] != float64(i) {
			t.Fatalf("message %d = %s %v, want %s seq %d", i, msg.Type, msg.Payload, want, i)
		}
	}
}

func TestEventsOnlyCarryOwnSession(t *testing.T) {
	env := newTestEnv(t, nil)
	other, err := env.sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, wsURL(srv, "/api/v1/events?types=state_changed,audio&session="+other.ID), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")
	readRaw(t, ctx, conn)

	env.load(t, "jazz")
	other.Bus.Publish(events.EventAudio, events.Payload{"command": "marker"})

	msg := readRaw(t, ctx, conn)
	if msg.Payload["command"] != "marker" {
		t.Fatalf("received another session's event: %+v", msg)
	}
}

func TestActivityStreamsTrackStarts(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, wsURL(srv, "/api/v1/activity"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	env.load(t, "jazz")

	msg := readRaw(t, ctx, conn)
	if msg.Type != "track_started" || msg.Payload["title"] != "First Track" {
		t.Fatalf("unexpected activity %+v", msg)
	}
	if msg.Payload["listener_id"] != env.sess.ListenerID {
		t.Fatalf("listener_id = %v, want %q", msg.Payload["listener_id"], env.sess.ListenerID)
	}
	for _, v := range msg.Payload {
		if v == env.sess.ID {
			t.Fatal("activity leaked the session id")
		}
	}
}
