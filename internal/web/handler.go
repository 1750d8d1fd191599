/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/pdradio/internal/playback"
	"github.com/friendsincode/pdradio/internal/station"
	"github.com/friendsincode/pdradio/internal/version"
)

// PageTitle is the document title of the player page.
const PageTitle = "PD Radio — corvid-agent"

// Sessions opens a player for each page load.
type Sessions interface {
	Open() (id string, state playback.State, err error)
}

// Handler provides web UI endpoints with server-rendered templates.
type Handler struct {
	sessions  Sessions
	catalog   *station.Catalog
	logger    zerolog.Logger
	templates map[string]*template.Template // Each page gets its own template set
}

// PageData holds common data passed to all templates.
type PageData struct {
	Title    string
	Version  string
	Stations []station.Station
	State    playback.State
	View     playback.ViewModel
	Data     any // serialized into the page for the client script
}

// NewHandler creates a new web handler.
func NewHandler(sessions Sessions, catalog *station.Catalog, logger zerolog.Logger) (*Handler, error) {
	h := &Handler{
		sessions: sessions,
		catalog:  catalog,
		logger:   logger.With().Str("component", "web").Logger(),
	}

	if err := h.loadTemplates(); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return h, nil
}

func (h *Handler) loadTemplates() error {
	funcMap := template.FuncMap{
		"formatClock": playback.FormatClock,
		"add":         func(a, b int) int { return a + b },
		"percent":     percent,
		"jsonMarshal": jsonMarshal,
	}

	h.templates = make(map[string]*template.Template)

	var layoutFiles, partialFiles, pageFiles []string
	err := fs.WalkDir(TemplateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		switch {
		case strings.HasPrefix(path, "templates/layouts/"):
			layoutFiles = append(layoutFiles, path)
		case strings.HasPrefix(path, "templates/partials/"):
			partialFiles = append(partialFiles, path)
		case strings.HasPrefix(path, "templates/pages/"):
			pageFiles = append(pageFiles, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// For each page template, create its own template set with layouts and partials
	for _, pagePath := range pageFiles {
		tmpl := template.New("").Funcs(funcMap)

		for _, path := range append(append([]string{}, layoutFiles...), partialFiles...) {
			if err := parseInto(tmpl, path); err != nil {
				return err
			}
		}
		if err := parseInto(tmpl, pagePath); err != nil {
			return err
		}

		name := templateName(pagePath)
		h.templates[name] = tmpl
		h.logger.Debug().Str("template", name).Msg("loaded template")
	}

	return nil
}

func templateName(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".html")
}

func parseInto(tmpl *template.Template, path string) error {
	content, err := fs.ReadFile(TemplateFS, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if _, err := tmpl.New(templateName(path)).Parse(string(content)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Render renders a template with the given data.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, name string, data PageData) {
	if data.Title == "" {
		data.Title = PageTitle
	}
	data.Version = version.Version

	tmpl, ok := h.templates[name]
	if !ok {
		h.logger.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error().Err(err).Str("template", name).Msg("template render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(buf.String()))
}

// Index opens a session and renders the player page in its state. The page
// embeds the session id, so it must not be cached.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	id, s, err := h.sessions.Open()
	if err != nil {
		h.logger.Warn().Err(err).Msg("could not open player session")
		http.Error(w, "The player is busy, try again shortly", http.StatusServiceUnavailable)
		return
	}

	view := playback.View(s)
	h.Render(w, r, "pages/index", PageData{
		Stations: h.catalog.List(),
		State:    s,
		View:     view,
		Data: map[string]any{
			"session_id": id,
			"state":      s,
			"view":       view,
		},
	})
}

// staticResponseWriter wraps http.ResponseWriter to force correct MIME types
type staticResponseWriter struct {
	http.ResponseWriter
	contentType string
	wroteHeader bool
}

func (w *staticResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader && w.contentType != "" {
		w.Header().Set("Content-Type", w.contentType)
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *staticResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// StaticHandler returns an http.Handler for static files.
func (h *Handler) StaticHandler() http.Handler {
	fsys, _ := fs.Sub(StaticFS, "static")
	fileServer := http.FileServer(http.FS(fsys))
	return http.StripPrefix("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var contentType string
		switch path := r.URL.Path; {
		case strings.HasSuffix(path, ".css"):
			contentType = "text/css; charset=utf-8"
		case strings.HasSuffix(path, ".js"):
			contentType = "application/javascript; charset=utf-8"
		case strings.HasSuffix(path, ".svg"):
			contentType = "image/svg+xml"
		}

		sw := &staticResponseWriter{ResponseWriter: w, contentType: contentType}
		fileServer.ServeHTTP(sw, r)
	}))
}

// percent renders a 0..1 fraction as a CSS percentage value.
func percent(fraction float64) string {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	return fmt.Sprintf("%.1f", math.Min(fraction, 1)*100)
}

func jsonMarshal(v any) template.JS {
	if v == nil {
		return template.JS("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return template.JS("null")
	}
	return template.JS(b)
}
