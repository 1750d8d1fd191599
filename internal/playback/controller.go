/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback owns the player state: station selection, the track
// list of the loaded item, the current track and transport controls.
package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/friendsincode/pdradio/internal/archive"
	"github.com/friendsincode/pdradio/internal/audio"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/history"
	"github.com/friendsincode/pdradio/internal/station"
	"github.com/friendsincode/pdradio/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const sinkTimeout = 5 * time.Second

// Archive is the subset of the archive client the controller needs.
type Archive interface {
	Search(ctx context.Context, query string) ([]archive.Doc, error)
	Metadata(ctx context.Context, identifier string) ([]archive.File, error)
	DownloadURL(identifier, name string) string
}

// HistoryWriter receives every track that starts playing.
type HistoryWriter interface {
	Add(ctx context.Context, entry history.Entry) error
}

// Options configures a Controller.
type Options struct {
	Catalog *station.Catalog
	Archive Archive
	Filter  archive.AudioFilter
	Sink    audio.Sink       // defaults to audio.Nop
	Events  events.Publisher // optional
	History HistoryWriter    // optional
	Volume  float64          // initial volume; zero selects DefaultVolume
	Logger  zerolog.Logger
}

type notice struct {
	eventType events.EventType
	payload   events.Payload
	entry     *history.Entry
}

// Controller is safe for concurrent use. Station selections run their
// archive requests in the background; a selection's results are applied
// only while it is still the latest one.
type Controller struct {
	catalog *station.Catalog
	archive Archive
	filter  archive.AudioFilter
	sink    audio.Sink
	pub     events.Publisher
	history HistoryWriter
	logger  zerolog.Logger

	mu         sync.Mutex
	state      State
	gen        uint64
	cancelSel  context.CancelFunc
	userPaused bool
	loaded     bool // the sink holds the current track
	unrecorded bool // the loaded track has not been written to history yet
	closed     bool

	selections sync.WaitGroup
	out        chan notice
	outDone    chan struct{}
}

// New creates a controller in the idle phase.
func New(opts Options) (*Controller, error) {
	if opts.Catalog == nil {
		return nil, errors.New("playback: catalog is required")
	}
	if opts.Archive == nil {
		return nil, errors.New("playback: archive client is required")
	}
	volume := opts.Volume
	if volume == 0 {
		volume = DefaultVolume
	}
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return nil, fmt.Errorf("playback: initial volume %v: %w", volume, ErrOutOfRange)
	}
	sink := opts.Sink
	if sink == nil {
		sink = audio.Nop{}
	}

	c := &Controller{
		catalog: opts.Catalog,
		archive: opts.Archive,
		filter:  opts.Filter,
		sink:    sink,
		pub:     opts.Events,
		history: opts.History,
		logger:  opts.Logger.With().Str("component", "playback").Logger(),
		state:   initialState(volume),
		out:     make(chan notice, 256),
		outDone: make(chan struct{}),
	}
	go c.dispatch()
	return c, nil
}

// dispatch publishes events and writes history in order, off the state lock.
func (c *Controller) dispatch() {
	defer close(c.outDone)
	for n := range c.out {
		if n.entry != nil {
			if c.history == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.history.Add(ctx, *n.entry); err != nil {
				c.logger.Warn().Err(err).Str("track", n.entry.TrackName).Msg("failed to record play history")
			}
			cancel()
			continue
		}
		if c.pub != nil {
			c.pub.Publish(n.eventType, n.payload)
		}
	}
}

func (c *Controller) enqueueLocked(n notice) {
	if c.closed {
		return
	}
	c.out <- n
}

// StatePayload is the payload of EventStateChanged.
func StatePayload(s State) events.Payload {
	return events.Payload{"state": s, "view": View(s)}
}

func (c *Controller) emitStateLocked() {
	c.enqueueLocked(notice{eventType: events.EventStateChanged, payload: StatePayload(c.state.Clone())})
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Catalog returns the station catalog.
func (c *Controller) Catalog() *station.Catalog {
	return c.catalog
}

// SelectStation starts loading a station and returns the loading state
// immediately. The pipeline outlives ctx's cancellation but keeps its values.
func (c *Controller) SelectStation(ctx context.Context, id string) (State, error) {
	run, snapshot, err := c.begin(ctx, id, true)
	if err != nil {
		return snapshot, err
	}
	go run()
	return snapshot, nil
}

// LoadStation runs the same pipeline in the caller's goroutine and returns
// the state once it has finished or been superseded.
func (c *Controller) LoadStation(ctx context.Context, id string) (State, error) {
	run, snapshot, err := c.begin(ctx, id, false)
	if err != nil {
		return snapshot, err
	}
	run()
	return c.State(), nil
}

// Wait blocks until no selection is in flight.
func (c *Controller) Wait() {
	c.selections.Wait()
}

func (c *Controller) begin(ctx context.Context, id string, detach bool) (func(), State, error) {
	st, err := c.catalog.Find(id)
	if err != nil {
		return nil, c.State(), fmt.Errorf("%w: %q", ErrUnknownStation, id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, c.state.Clone(), ErrClosed
	}

	if c.cancelSel != nil {
		c.cancelSel()
	}
	parent := ctx
	if detach {
		parent = context.WithoutCancel(ctx)
	}
	selCtx, cancel := context.WithCancel(parent)
	c.gen++
	gen := c.gen
	c.cancelSel = cancel

	if c.loaded {
		c.sinkDo(ctx, audio.CmdStop, c.sink.Stop)
		c.loaded = false
	}
	c.state.beginSelection(st, gen)
	c.emitStateLocked()
	c.logger.Info().Str("station_id", st.ID).Uint64("generation", gen).Msg("station selected")

	c.selections.Add(1)
	run := func() {
		defer c.selections.Done()
		defer cancel()
		c.runSelection(selCtx, gen, st)
	}
	return run, c.state.Clone(), nil
}

func (c *Controller) runSelection(ctx context.Context, gen uint64, st station.Station) {
	ctx, span := telemetry.StartSpan(ctx, "playback.select_station",
		attribute.String("station.id", st.ID),
		attribute.Int64("selection.generation", int64(gen)),
	)
	var spanErr error
	defer func() { telemetry.EndSpan(span, spanErr) }()

	docs, err := c.archive.Search(ctx, st.Query)
	if err != nil {
		spanErr = fmt.Errorf("%w: %w", ErrSearchFailed, err)
		c.fail(gen, st, spanErr)
		return
	}
	if len(docs) == 0 {
		c.fail(gen, st, ErrNoResults)
		return
	}
	if !c.current(gen) {
		c.discard(gen, st, "search")
		return
	}

	doc := docs[0]
	span.SetAttributes(attribute.String("archive.identifier", doc.Identifier))
	files, err := c.archive.Metadata(ctx, doc.Identifier)
	if err != nil {
		spanErr = fmt.Errorf("%w: %w", ErrMetadataFailed, err)
		c.fail(gen, st, spanErr)
		return
	}

	tracks := c.filter.Apply(files)
	if len(tracks) == 0 {
		c.fail(gen, st, ErrNoAudioFiles)
		return
	}
	for i := range tracks {
		tracks[i].URL = c.archive.DownloadURL(doc.Identifier, tracks[i].Name)
	}
	c.complete(ctx, gen, st, doc, tracks)
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && gen == c.gen
}

func (c *Controller) discard(gen uint64, st station.Station, stage string) {
	telemetry.StaleResultsDiscardedTotal.Inc()
	c.logger.Debug().
		Str("station_id", st.ID).
		Uint64("generation", gen).
		Str("stage", stage).
		Msg("discarding result of superseded selection")
}

func (c *Controller) fail(gen uint64, st station.Station, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		c.discard(gen, st, "fail")
		return
	}

	c.state.finishFailed(err)
	outcome := "error"
	switch {
	case errors.Is(err, ErrNoResults):
		outcome = "no_results"
	case errors.Is(err, ErrNoAudioFiles):
		outcome = "no_audio"
	}
	telemetry.StationSelectionsTotal.WithLabelValues(st.ID, outcome).Inc()
	c.logger.Warn().Err(err).Str("station_id", st.ID).Uint64("generation", gen).Msg("station selection failed")

	c.emitStateLocked()
	c.enqueueLocked(notice{eventType: events.EventSelectionFailed, payload: events.Payload{
		"station_id": st.ID,
		"phase":      string(c.state.Phase),
		"message":    c.state.ErrorMessage,
	}})
}

func (c *Controller) complete(ctx context.Context, gen uint64, st station.Station, doc archive.Doc, tracks []archive.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		c.discard(gen, st, "metadata")
		return
	}

	c.state.finishReady(doc, tracks)
	telemetry.StationSelectionsTotal.WithLabelValues(st.ID, "ok").Inc()
	c.logger.Info().
		Str("station_id", st.ID).
		Str("identifier", doc.Identifier).
		Int("tracks", len(tracks)).
		Msg("station loaded")

	c.startTrackLocked(ctx, !c.userPaused)
	c.emitStateLocked()
}

// startTrackLocked hands the current track to the sink, replacing whatever
// it held.
func (c *Controller) startTrackLocked(ctx context.Context, play bool) {
	track, ok := c.state.CurrentTrack()
	if !ok {
		return
	}

	c.sinkDo(ctx, audio.CmdStop, c.sink.Stop)
	c.sinkDo(ctx, audio.CmdLoad, func(ctx context.Context) error { return c.sink.Load(ctx, track.URL) })
	volume := c.state.Volume
	c.sinkDo(ctx, audio.CmdVolume, func(ctx context.Context) error { return c.sink.SetVolume(ctx, volume) })
	c.loaded = true
	c.unrecorded = true

	c.state.IsPlaying = play
	if play {
		c.sinkDo(ctx, audio.CmdPlay, c.sink.Play)
		c.recordLocked()
	}
}

// recordLocked announces the current track the first time it plays.
func (c *Controller) recordLocked() {
	if !c.unrecorded {
		return
	}
	track, ok := c.state.CurrentTrack()
	if !ok {
		return
	}
	c.unrecorded = false
	telemetry.TracksStartedTotal.WithLabelValues(c.state.StationID).Inc()

	c.enqueueLocked(notice{eventType: events.EventTrackStarted, payload: events.Payload{
		"station_id": c.state.StationID,
		"identifier": c.state.Identifier,
		"index":      track.Index,
		"name":       track.Name,
		"title":      track.Title,
		"url":        track.URL,
	}})
	c.enqueueLocked(notice{entry: &history.Entry{
		StationID:       c.state.StationID,
		Identifier:      c.state.Identifier,
		TrackName:       track.Name,
		Title:           track.Title,
		DurationSeconds: track.DurationSeconds,
		PlayedAt:        time.Now(),
	}})
}

func (c *Controller) stopLocked(ctx context.Context) {
	if c.loaded {
		c.sinkDo(ctx, audio.CmdStop, c.sink.Stop)
	}
	c.loaded = false
	c.state.IsPlaying = false
	c.state.PositionSeconds = 0
}

// sinkDo runs one sink command. Failures are logged and counted only; the
// browser or mpv reports real playback trouble through OnTrackEnded.
func (c *Controller) sinkDo(ctx context.Context, command string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		telemetry.AudioSinkErrorsTotal.WithLabelValues(command).Inc()
		c.logger.Warn().Err(err).Str("command", command).Msg("audio sink command failed")
	}
}

// SelectTrack jumps to a track of the loaded list and plays it.
func (c *Controller) SelectTrack(ctx context.Context, index int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseReady || index < 0 || index >= len(c.state.Tracks) {
		return c.state.Clone(), fmt.Errorf("%w: track %d of %d", ErrOutOfRange, index, len(c.state.Tracks))
	}
	c.userPaused = false
	c.state.moveTo(index, true)
	c.startTrackLocked(ctx, true)
	c.emitStateLocked()
	return c.state.Clone(), nil
}

// TogglePlayPause flips between playing and paused. Without a track it does nothing.
func (c *Controller) TogglePlayPause(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasTrack() {
		return c.state.Clone(), nil
	}
	switch {
	case c.state.IsPlaying:
		c.sinkDo(ctx, audio.CmdPause, c.sink.Pause)
		c.state.IsPlaying = false
		c.userPaused = true
	case !c.loaded:
		c.userPaused = false
		c.state.PositionSeconds = 0
		c.startTrackLocked(ctx, true)
	default:
		c.userPaused = false
		c.sinkDo(ctx, audio.CmdPlay, c.sink.Play)
		c.state.IsPlaying = true
		c.recordLocked()
	}
	c.emitStateLocked()
	return c.state.Clone(), nil
}

// Next moves to the following track. On the last track playback stops.
func (c *Controller) Next(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasTrack() {
		return c.state.Clone(), nil
	}
	c.userPaused = false
	c.advanceLocked(ctx, true)
	c.emitStateLocked()
	return c.state.Clone(), nil
}

// Previous moves to the preceding track; on the first track it restarts it.
func (c *Controller) Previous(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasTrack() {
		return c.state.Clone(), nil
	}
	c.userPaused = false
	index := c.state.CurrentIndex
	if index > 0 {
		index--
	}
	c.state.moveTo(index, true)
	c.startTrackLocked(ctx, true)
	c.emitStateLocked()
	return c.state.Clone(), nil
}

// OnTrackEnded is called by the audio output when the current track
// finished or failed. It advances like Next.
func (c *Controller) OnTrackEnded(ctx context.Context) (State, error) {
	return c.OnTrackEndedAt(ctx, NoTrack)
}

// OnTrackEndedAt is OnTrackEnded for a specific track index; reports for a
// track that is no longer current are ignored. NoTrack matches any track.
func (c *Controller) OnTrackEndedAt(ctx context.Context, index int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasTrack() || !c.loaded {
		return c.state.Clone(), nil
	}
	if index != NoTrack && index != c.state.CurrentIndex {
		c.logger.Debug().Int("reported", index).Int("current", c.state.CurrentIndex).Msg("ignoring stale track end")
		return c.state.Clone(), nil
	}
	c.advanceLocked(ctx, !c.userPaused)
	c.emitStateLocked()
	return c.state.Clone(), nil
}

func (c *Controller) advanceLocked(ctx context.Context, play bool) {
	next := c.state.CurrentIndex + 1
	if next >= len(c.state.Tracks) {
		c.stopLocked(ctx)
		return
	}
	c.state.moveTo(next, play)
	c.startTrackLocked(ctx, play)
}

// SetVolume sets the output volume, within [0,1].
func (c *Controller) SetVolume(ctx context.Context, volume float64) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return c.state.Clone(), fmt.Errorf("%w: volume %v", ErrOutOfRange, volume)
	}
	c.state.Volume = volume
	c.sinkDo(ctx, audio.CmdVolume, func(ctx context.Context) error { return c.sink.SetVolume(ctx, volume) })
	c.emitStateLocked()
	return c.state.Clone(), nil
}

// Seek moves within the current track. Positions are clamped to the track.
func (c *Controller) Seek(ctx context.Context, seconds float64) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return c.state.Clone(), fmt.Errorf("%w: position %v", ErrOutOfRange, seconds)
	}
	if !c.state.HasTrack() || !c.loaded {
		return c.state.Clone(), nil
	}
	seconds = math.Max(0, seconds)
	if d := c.state.DurationSeconds; d > 0 {
		seconds = math.Min(seconds, d)
	}
	c.sinkDo(ctx, audio.CmdSeek, func(ctx context.Context) error { return c.sink.Seek(ctx, seconds) })
	c.state.PositionSeconds = seconds
	c.emitStateLocked()
	return c.state.Clone(), nil
}

// ReportProgress records the position and duration reported by the audio
// output. It does not emit an event.
func (c *Controller) ReportProgress(position, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasTrack() {
		return
	}
	if !math.IsNaN(position) && !math.IsInf(position, 0) && position >= 0 {
		c.state.PositionSeconds = position
	}
	if !math.IsNaN(duration) && !math.IsInf(duration, 0) && duration > 0 {
		c.state.DurationSeconds = duration
	}
}

// Close cancels any selection, stops the audio output and flushes pending
// events. Later calls return ErrClosed or are no-ops.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.cancelSel != nil {
		c.cancelSel()
	}
	c.stopLocked(context.Background())
	c.closed = true
	c.mu.Unlock()

	c.selections.Wait()
	close(c.out)
	<-c.outDone
	return nil
}
