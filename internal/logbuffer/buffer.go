/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log lines in memory for the system API.
package logbuffer

import (
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/buger/jsonparser"
)

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Component string            `json:"component,omitempty"`
	StationID string            `json:"station_id,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a new log buffer with the specified capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add adds a log entry to the buffer.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// All returns all log entries in chronological order.
func (b *Buffer) All() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// QueryParams filters entries returned by Query.
type QueryParams struct {
	Level     string
	Component string
	StationID string
	Search    string // case-insensitive match on message and field values
	Since     time.Time
	Limit     int // newest entries are kept when the limit applies
}

// Query returns matching entries, newest first.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	all := b.All()
	search := strings.ToLower(params.Search)

	var out []LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		entry := all[i]
		if params.Level != "" && entry.Level != params.Level {
			continue
		}
		if params.Component != "" && entry.Component != params.Component {
			continue
		}
		if params.StationID != "" && entry.StationID != params.StationID {
			continue
		}
		if !params.Since.IsZero() && entry.Timestamp.Before(params.Since) {
			continue
		}
		if search != "" && !entry.matches(search) {
			continue
		}
		out = append(out, entry)
		if params.Limit > 0 && len(out) == params.Limit {
			break
		}
	}
	return out
}

func (e LogEntry) matches(needle string) bool {
	if strings.Contains(strings.ToLower(e.Message), needle) {
		return true
	}
	for _, v := range e.Fields {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

// Components returns the distinct component names currently buffered.
func (b *Buffer) Components() []string {
	seen := map[string]bool{}
	for _, e := range b.All() {
		if e.Component != "" {
			seen[e.Component] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Clear empties the buffer.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
}

// Writer adapts the buffer to io.Writer so zerolog can feed it JSON lines.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a writer that captures logs to the buffer.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer. Lines that are not JSON objects are passed through only.
func (w *Writer) Write(p []byte) (int, error) {
	if entry, ok := parseLine(p); ok {
		w.buffer.Add(entry)
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func parseLine(p []byte) (LogEntry, bool) {
	entry := LogEntry{Timestamp: time.Now(), Fields: map[string]string{}}
	err := jsonparser.ObjectEach(p, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		v := string(value)
		switch string(key) {
		case "level":
			entry.Level = v
		case "message":
			entry.Message = v
		case "component":
			entry.Component = v
		case "station_id":
			entry.StationID = v
		case "time":
			entry.Timestamp = parseTime(v, dataType)
		default:
			entry.Fields[string(key)] = v
		}
		return nil
	})
	if err != nil {
		return LogEntry{}, false
	}
	return entry, true
}

func parseTime(v string, dataType jsonparser.ValueType) time.Time {
	if dataType == jsonparser.Number {
		if secs, err := jsonparser.ParseInt([]byte(v)); err == nil {
			return time.Unix(secs, 0)
		}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Now()
}
