/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const searchBody = `{"responseHeader":{"status":0},"response":{"numFound":2,"docs":[
	{"identifier":"test-album-1","title":"Test Album","creator":"Test Artist"},
	{"identifier":"test-album-2","title":["Other"],"creator":["A","B"]}
]}}`

const metadataBody = `{"files":[
	{"name":"track01.mp3","title":"First Track","length":"180.5"},
	{"name":"track02.mp3","title":"Second Track","length":"3:20"},
	{"name":"cover.jpg"},
	{"name":"track03.mp3","length":95}
]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second, Rows: 10, HTTPClient: srv.Client()}, zerolog.Nop())
}

func TestSearchParsesDocs(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/advancedsearch.php" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(searchBody))
	})

	docs, err := c.Search(context.Background(), "subject:(jazz) AND mediatype:(audio)")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	if docs[0] != (Doc{Identifier: "test-album-1", Title: "Test Album", Creator: "Test Artist"}) {
		t.Fatalf("unexpected first doc %+v", docs[0])
	}
	if docs[1].Title != "Other" || docs[1].Creator != "A" {
		t.Fatalf("expected array fields to use first element, got %+v", docs[1])
	}
	for _, want := range []string{"output=json", "rows=10", "fl%5B%5D=identifier", "q=subject%3A%28jazz%29"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSearchEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"numFound":0,"docs":[]}}`))
	})
	docs, err := c.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no docs, got %v", docs)
	}
}

func TestSearchStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})
	_, err := c.Search(context.Background(), "q")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != 500 || se.Op != "search" || !strings.Contains(se.Body, "Internal Server Error") {
		t.Fatalf("unexpected status error %+v", se)
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSearchDecodeError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"bad query"}`))
	})
	if _, err := c.Search(context.Background(), "q"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMetadataParsesFiles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metadata/test-album-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(metadataBody))
	})
	files, err := c.Metadata(context.Background(), "test-album-1")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 files, got %d", len(files))
	}
	if files[0].Length != "180.5" || files[3].Length != "95" || files[2].Title != "" {
		t.Fatalf("unexpected files %+v", files)
	}
}

func TestMetadataUnknownItemIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	files, err := c.Metadata(context.Background(), "missing")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
}

func TestMetadataStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Metadata(context.Background(), "x")
	var se *StatusError
	if !errors.As(err, &se) || se.Op != "metadata" || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected metadata StatusError, got %v", err)
	}
}

func TestContextCancellation(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Search(ctx, "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDownloadURL(t *testing.T) {
	c := New(Config{BaseURL: "https://archive.org/"}, zerolog.Nop())
	got := c.DownloadURL("my item", "disc 1/track 01.mp3")
	want := "https://archive.org/download/my%20item/disc%201/track%2001.mp3"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(metadataBody))
	}))
	t.Cleanup(srv.Close)

	small := New(Config{BaseURL: srv.URL, MaxBodyBytes: 32, HTTPClient: srv.Client()}, zerolog.Nop())
	_, err := small.Metadata(context.Background(), "item")
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
	if !strings.Contains(err.Error(), "limit 32 bytes") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	exact := New(Config{BaseURL: srv.URL, MaxBodyBytes: int64(len(metadataBody)), HTTPClient: srv.Client()}, zerolog.Nop())
	files, err := exact.Metadata(context.Background(), "item")
	if err != nil {
		t.Fatalf("body at the limit should parse: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("expected 4 files, got %d", len(files))
	}
}
