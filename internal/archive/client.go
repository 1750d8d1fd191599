/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package archive is a small read-only client for the Internet Archive
// advanced search and metadata endpoints.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/buger/jsonparser"
	"github.com/friendsincode/pdradio/internal/cache"
	"github.com/friendsincode/pdradio/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	opSearch   = "search"
	opMetadata = "metadata"

	maxBodyBytes = 16 << 20
	errBodyBytes = 512
)

// Doc is one advanced search hit.
type Doc struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Creator    string `json:"creator"`
}

// File is one entry of an item's file listing.
type File struct {
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Length string `json:"length,omitempty"`
}

// Config configures the client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Rows         int
	MaxBodyBytes int64        // zero selects 16 MiB
	HTTPClient   *http.Client // optional; otherwise an otelhttp-instrumented client is built
}

// Client talks to the archive over HTTP.
type Client struct {
	base    string
	rows    int
	maxBody int64
	http    *http.Client
	cache   *cache.Cache
	logger  zerolog.Logger
}

// New creates a client.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Rows <= 0 {
		cfg.Rows = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = maxBodyBytes
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: telemetry.Transport(http.DefaultTransport),
		}
	}
	return &Client{
		base:    trimSlash(cfg.BaseURL),
		rows:    cfg.Rows,
		maxBody: cfg.MaxBodyBytes,
		http:    httpClient,
		logger:  logger.With().Str("component", "archive").Logger(),
	}
}

// SetCache enables response caching. A nil cache disables it.
func (c *Client) SetCache(cc *cache.Cache) {
	c.cache = cc
}

// Search runs an advanced search and returns the matching documents in order.
func (c *Client) Search(ctx context.Context, query string) ([]Doc, error) {
	if body, ok := c.cache.GetSearch(ctx, query, c.rows); ok {
		if docs, err := parseSearch(body); err == nil {
			return docs, nil
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Add("fl[]", "identifier")
	params.Add("fl[]", "title")
	params.Add("fl[]", "creator")
	params.Set("rows", strconv.Itoa(c.rows))
	params.Set("output", "json")

	body, err := c.get(ctx, opSearch, c.base+"/advancedsearch.php?"+params.Encode())
	if err != nil {
		return nil, err
	}
	docs, err := parseSearch(body)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetSearch(ctx, query, c.rows, body); err != nil {
		c.logger.Debug().Err(err).Msg("search response not cached")
	}
	return docs, nil
}

// Metadata returns the file listing of an item. Unknown items yield an empty listing.
func (c *Client) Metadata(ctx context.Context, identifier string) ([]File, error) {
	if body, ok := c.cache.GetMetadata(ctx, identifier); ok {
		if files, err := parseMetadata(body); err == nil {
			return files, nil
		}
	}

	body, err := c.get(ctx, opMetadata, c.base+"/metadata/"+url.PathEscape(identifier))
	if err != nil {
		return nil, err
	}
	files, err := parseMetadata(body)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetMetadata(ctx, identifier, body); err != nil {
		c.logger.Debug().Err(err).Msg("metadata response not cached")
	}
	return files, nil
}

// DownloadURL resolves the media URL of a file inside an item.
func (c *Client) DownloadURL(identifier, name string) string {
	return c.base + "/download/" + url.PathEscape(identifier) + "/" + escapeFilePath(name)
}

func (c *Client) get(ctx context.Context, op, target string) (body []byte, err error) {
	ctx, span := telemetry.StartSpan(ctx, "archive."+op, attribute.String("archive.url", target))
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		telemetry.ArchiveRequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
		telemetry.ArchiveRequestsTotal.WithLabelValues(op, status).Inc()
		telemetry.EndSpan(span, err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyBytes))
		c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("archive request failed")
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	// One byte past the limit tells a full body from a truncated one.
	body, err = io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		c.logger.Warn().Str("op", op).Int64("limit", c.maxBody).Msg("archive response too large")
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", op, ErrResponseTooLarge, c.maxBody)
	}
	c.logger.Debug().Str("op", op).Dur("elapsed", time.Since(start)).Int("bytes", len(body)).Msg("archive request done")
	return body, nil
}

func parseSearch(body []byte) ([]Doc, error) {
	docs := []Doc{}
	_, err := jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		id := firstString(value, "identifier")
		if id == "" {
			return
		}
		docs = append(docs, Doc{
			Identifier: id,
			Title:      firstString(value, "title"),
			Creator:    firstString(value, "creator"),
		})
	}, "response", "docs")
	if err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return docs, nil
}

func parseMetadata(body []byte) ([]File, error) {
	files := []File{}
	_, err := jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		name := firstString(value, "name")
		if name == "" {
			return
		}
		files = append(files, File{
			Name:   name,
			Title:  firstString(value, "title"),
			Length: scalar(value, "length"),
		})
	}, "files")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		if _, _, _, objErr := jsonparser.Get(body); objErr != nil {
			return nil, fmt.Errorf("decode metadata response: %w", objErr)
		}
		return files, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	return files, nil
}

// firstString reads a string field that the archive sometimes returns as an array.
func firstString(value []byte, key string) string {
	raw, dataType, _, err := jsonparser.Get(value, key)
	if err != nil {
		return ""
	}
	switch dataType {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return ""
		}
		return s
	case jsonparser.Array:
		var first string
		_, _ = jsonparser.ArrayEach(raw, func(item []byte, dt jsonparser.ValueType, _ int, _ error) {
			if first == "" && dt == jsonparser.String {
				first, _ = jsonparser.ParseString(item)
			}
		})
		return first
	}
	return ""
}

// scalar returns a string or number field as text.
func scalar(value []byte, key string) string {
	raw, dataType, _, err := jsonparser.Get(value, key)
	if err != nil {
		return ""
	}
	switch dataType {
	case jsonparser.String:
		s, _ := jsonparser.ParseString(raw)
		return s
	case jsonparser.Number:
		return string(raw)
	}
	return ""
}

func escapeFilePath(name string) string {
	// file names may contain sub-directories; keep the separators
	u := url.URL{Path: name}
	return u.EscapedPath()
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
