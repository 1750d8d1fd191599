/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package e2e provides end-to-end browser tests for the web player.
package e2e

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"

	"github.com/friendsincode/pdradio/internal/config"
	"github.com/friendsincode/pdradio/internal/logbuffer"
	"github.com/friendsincode/pdradio/internal/server"
)

const waitTimeout = 10 * time.Second

const searchResponse = `{"response":{"docs":[
	{"identifier":"test-album-001","title":"Test Album","creator":"Test Artist"},
	{"identifier":"test-album-002","title":"Second Album","creator":"Another Artist"}
]}}`

const metadataResponse = `{"files":[
	{"name":"track01.mp3","title":"First Track","length":"180.5"},
	{"name":"track02.mp3","title":"Second Track","length":"245.0"},
	{"name":"track03.mp3","title":"Third Track","length":"312.7"},
	{"name":"cover.jpg"}
]}`

// stubAudio keeps the page from loading real media so error events cannot
// advance the player behind the test's back.
const stubAudio = `() => {
	const OrigAudio = window.Audio;
	window.Audio = function () {
		const a = new OrigAudio();
		let fakeSrc = '';
		Object.defineProperty(a, 'src', {
			get() { return fakeSrc; },
			set(v) { fakeSrc = v; },
			configurable: true,
		});
		a.play = () => Promise.resolve();
		return a;
	};
}`

// fakeArchive serves the search, metadata and download endpoints.
type fakeArchive struct {
	mu          sync.Mutex
	searchDelay time.Duration
	searchFail  bool
	emptySearch bool
}

func (f *fakeArchive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	delay, fail, empty := f.searchDelay, f.searchFail, f.emptySearch
	f.mu.Unlock()

	switch {
	case r.URL.Path == "/advancedsearch.php":
		if delay > 0 {
			time.Sleep(delay)
		}
		if fail {
			http.Error(w, "Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if empty {
			_, _ = w.Write([]byte(`{"response":{"docs":[]}}`))
			return
		}
		_, _ = w.Write([]byte(searchResponse))
	case strings.HasPrefix(r.URL.Path, "/metadata/"):
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(metadataResponse))
	case strings.HasPrefix(r.URL.Path, "/download/"):
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	default:
		http.NotFound(w, r)
	}
}

// newApp starts a complete pdradio server backed by the fake archive.
func newApp(t *testing.T, fa *fakeArchive) string {
	t.Helper()

	archiveSrv := httptest.NewServer(fa)
	t.Cleanup(archiveSrv.Close)

	dir := t.TempDir()
	t.Setenv("PDRADIO_ENV", "test")
	t.Setenv("PDRADIO_ARCHIVE_URL", archiveSrv.URL)
	t.Setenv("PDRADIO_HISTORY_BACKEND", "none")
	t.Setenv("PDRADIO_EVENT_BUS", "memory")
	t.Setenv("PDRADIO_STORAGE_ROOT", filepath.Join(dir, "exports"))
	t.Setenv("PDRADIO_REDIS_ADDR", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	srv, err := server.New(cfg, logbuffer.New(100), zerolog.Nop())
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	app := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		app.Close()
		_ = srv.Close()
	})
	return app.URL
}

func launchBrowser(t *testing.T) *rod.Browser {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e tests in short mode")
	}

	// Check if we should run headless
	headless := os.Getenv("E2E_HEADLESS") != "false"

	l := launcher.New().Headless(headless)
	url := l.MustLaunch()
	browser := rod.New().ControlURL(url).MustConnect()
	t.Cleanup(browser.MustClose)
	return browser
}

// openPage navigates a fresh page to url, optionally with the Audio stub installed.
func openPage(t *testing.T, browser *rod.Browser, url string, stub bool) *rod.Page {
	t.Helper()
	page := browser.MustPage("")
	t.Cleanup(page.MustClose)
	if stub {
		page.MustEvalOnNewDocument(stubAudio)
	}
	page.MustNavigate(url).MustWaitLoad()
	return page
}

// waitFor polls js (a function returning a boolean) until it is true.
func waitFor(t *testing.T, page *rod.Page, what string, js string, args ...any) {
	t.Helper()
	if err := page.Timeout(waitTimeout).Wait(rod.Eval(js, args...)); err != nil {
		t.Fatalf("timed out waiting for %s: %v", what, err)
	}
}

func waitText(t *testing.T, page *rod.Page, selector, want string) {
	t.Helper()
	waitFor(t, page, selector+" text "+want,
		`(sel, want) => { const el = document.querySelector(sel); return !!el && el.textContent.trim() === want; }`,
		selector, want)
}

func waitCount(t *testing.T, page *rod.Page, selector string, want int) {
	t.Helper()
	waitFor(t, page, selector+" count",
		`(sel, want) => document.querySelectorAll(sel).length === want`, selector, want)
}

func waitClass(t *testing.T, page *rod.Page, selector, class string, present bool) {
	t.Helper()
	waitFor(t, page, selector+" class "+class,
		`(sel, cls, present) => { const el = document.querySelector(sel); return !!el && el.classList.contains(cls) === present; }`,
		selector, class, present)
}

func text(page *rod.Page, selector string) string {
	return strings.TrimSpace(page.MustElement(selector).MustText())
}

func count(page *rod.Page, selector string) int {
	return len(page.MustElements(selector))
}
