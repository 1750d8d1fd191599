/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/pdradio/internal/archive"
	"github.com/friendsincode/pdradio/internal/events"
	"github.com/friendsincode/pdradio/internal/history"
	"github.com/friendsincode/pdradio/internal/station"
	"github.com/friendsincode/pdradio/internal/telemetry"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

type fakeArchive struct {
	mu        sync.Mutex
	docs      map[string][]archive.Doc
	files     map[string][]archive.File
	searchErr error
	metaErr   error
	gates     map[string]chan struct{}
	metaGates map[string]chan struct{}
	metaErrs  map[string]error
	searches  []string
	metadata  []string

	// honorCancel lets a gated search return when its context ends.
	honorCancel bool
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		docs:      map[string][]archive.Doc{},
		files:     map[string][]archive.File{},
		gates:     map[string]chan struct{}{},
		metaGates: map[string]chan struct{}{},
		metaErrs:  map[string]error{},
	}
}

// gate makes searches for query block until the returned func is called.
func (f *fakeArchive) gate(query string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[query] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeArchive) Search(ctx context.Context, query string) ([]archive.Doc, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	gate := f.gates[query]
	honor := f.honorCancel
	f.mu.Unlock()
	if gate != nil {
		if honor {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			<-gate
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.docs[query], nil
}

// gateMetadata makes metadata requests for identifier block, regardless of
// their context, until the returned func is called.
func (f *fakeArchive) gateMetadata(identifier string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.metaGates[identifier] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeArchive) Metadata(ctx context.Context, identifier string) ([]archive.File, error) {
	f.mu.Lock()
	f.metadata = append(f.metadata, identifier)
	gate := f.metaGates[identifier]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.metaErrs[identifier]; err != nil {
		return nil, err
	}
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return f.files[identifier], nil
}

// waitMetadataCalls blocks until at least n metadata requests were made.
func (f *fakeArchive) waitMetadataCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.metadataCalls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d metadata calls, got %d", n, f.metadataCalls())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeArchive) DownloadURL(identifier, name string) string {
	return "https://archive.test/download/" + identifier + "/" + name
}

func (f *fakeArchive) metadataCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.metadata)
}

type fakeSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeSink) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return nil
}

func (s *fakeSink) Load(_ context.Context, url string) error { return s.record("load " + url) }
func (s *fakeSink) Play(context.Context) error               { return s.record("play") }
func (s *fakeSink) Pause(context.Context) error              { return s.record("pause") }
func (s *fakeSink) Stop(context.Context) error               { return s.record("stop") }
func (s *fakeSink) Seek(_ context.Context, seconds float64) error {
	return s.record(fmt.Sprintf("seek %g", seconds))
}
func (s *fakeSink) SetVolume(_ context.Context, volume float64) error {
	return s.record(fmt.Sprintf("volume %g", volume))
}

func (s *fakeSink) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.calls
	s.calls = nil
	return out
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *fakeHistory) Add(_ context.Context, e history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func (h *fakeHistory) all() []history.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Entry(nil), h.entries...)
}

type fixture struct {
	ctrl    *Controller
	archive *fakeArchive
	sink    *fakeSink
	history *fakeHistory
	bus     *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	catalog, err := station.New(
		station.Station{ID: "jazz", Name: "Jazz", Query: "jazz"},
		station.Station{ID: "blues", Name: "Blues", Query: "blues"},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	fa := newFakeArchive()
	fa.docs["jazz"] = []archive.Doc{
		{Identifier: "jazz-item", Title: "Jazz Sessions", Creator: "Quartet"},
		{Identifier: "jazz-other", Title: "Other"},
	}
	fa.files["jazz-item"] = []archive.File{
		{Name: "01.mp3", Title: "First Track", Length: "61"},
		{Name: "cover.jpg"},
		{Name: "02.mp3", Title: "Second Track", Length: "2:05"},
		{Name: "03.mp3", Title: "Third Track", Length: "30.5"},
	}
	fa.docs["blues"] = []archive.Doc{{Identifier: "blues-item", Title: "Delta"}}
	fa.files["blues-item"] = []archive.File{{Name: "a.mp3", Title: "Crossroads", Length: "100"}}

	f := &fixture{
		archive: fa,
		sink:    &fakeSink{},
		history: &fakeHistory{},
		bus:     events.NewBus(),
	}
	f.ctrl, err = New(Options{
		Catalog: catalog,
		Archive: fa,
		Filter:  archive.NewAudioFilter("mp3"),
		Sink:    f.sink,
		Events:  f.bus,
		History: f.history,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = f.ctrl.Close() })
	return f
}

func (f *fixture) load(t *testing.T, id string) State {
	t.Helper()
	s, err := f.ctrl.LoadStation(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadStation(%s): %v", id, err)
	}
	return s
}

func assertOnlyOneOf(t *testing.T, s State) {
	t.Helper()
	switch s.Phase {
	case PhaseIdle:
		if s.StationID != "" || len(s.Tracks) != 0 || s.CurrentIndex != NoTrack {
			t.Fatalf("idle state carries selection: %+v", s)
		}
	case PhaseLoading:
		if !s.IsLoading || len(s.Tracks) != 0 || s.CurrentIndex != NoTrack {
			t.Fatalf("loading state invalid: %+v", s)
		}
	case PhaseError, PhaseEmpty:
		if s.IsLoading || len(s.Tracks) != 0 || s.CurrentIndex != NoTrack || s.ErrorMessage == "" {
			t.Fatalf("%s state invalid: %+v", s.Phase, s)
		}
	case PhaseReady:
		if s.IsLoading || len(s.Tracks) == 0 || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Tracks) {
			t.Fatalf("ready state invalid: %+v", s)
		}
	default:
		t.Fatalf("unknown phase %q", s.Phase)
	}
}

func TestInitialState(t *testing.T) {
	f := newFixture(t)

	s := f.ctrl.State()
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseIdle || s.Volume != DefaultVolume || s.IsPlaying {
		t.Fatalf("unexpected initial state: %+v", s)
	}

	vm := View(s)
	if vm.Label != "Select a station to begin" || vm.Title != "—" {
		t.Fatalf("label=%q title=%q", vm.Label, vm.Title)
	}
	if vm.TimeCurrent != "0:00" || vm.TimeDuration != "0:00" || vm.Volume != 0.7 {
		t.Fatalf("unexpected view: %+v", vm)
	}
}

func TestLoadStationPopulatesTracks(t *testing.T) {
	f := newFixture(t)

	s := f.load(t, "jazz")
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseReady || s.StationID != "jazz" || s.Identifier != "jazz-item" {
		t.Fatalf("unexpected state: %+v", s)
	}
	if len(s.Tracks) != 3 {
		t.Fatalf("expected 3 audio tracks, got %d", len(s.Tracks))
	}
	for i, want := range []string{"First Track", "Second Track", "Third Track"} {
		if s.Tracks[i].Title != want || s.Tracks[i].Index != i {
			t.Fatalf("track %d = %+v, want %q", i, s.Tracks[i], want)
		}
	}
	if s.CurrentIndex != 0 || !s.IsPlaying {
		t.Fatalf("expected first track playing, got index=%d playing=%v", s.CurrentIndex, s.IsPlaying)
	}
	if s.Tracks[0].URL != "https://archive.test/download/jazz-item/01.mp3" {
		t.Fatalf("unexpected url %q", s.Tracks[0].URL)
	}
	if s.DurationSeconds != 61 {
		t.Fatalf("expected duration 61, got %v", s.DurationSeconds)
	}

	vm := View(s)
	if vm.Label != "Now Playing" || vm.Title != "First Track" || vm.Subtitle != "Jazz Sessions · Quartet" {
		t.Fatalf("unexpected view: %+v", vm)
	}

	calls := f.sink.take()
	want := []string{"stop", "load https://archive.test/download/jazz-item/01.mp3", "volume 0.7", "play"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("sink calls = %q, want %q", calls, want)
	}
}

func TestLoadStationNoResults(t *testing.T) {
	f := newFixture(t)
	f.archive.docs["jazz"] = nil

	s := f.load(t, "jazz")
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseEmpty || s.ErrorMessage != "No results found" {
		t.Fatalf("unexpected state: %+v", s)
	}
	if View(s).Title != "No results found" {
		t.Fatalf("title = %q", View(s).Title)
	}
	if f.archive.metadataCalls() != 0 {
		t.Fatal("metadata must not be requested without results")
	}
}

func TestLoadStationSearchFailure(t *testing.T) {
	f := newFixture(t)
	f.archive.searchErr = &archive.StatusError{Op: "search", StatusCode: 500, Body: "boom"}

	s := f.load(t, "jazz")
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseError || !strings.Contains(s.ErrorMessage, "Error") {
		t.Fatalf("unexpected state: %+v", s)
	}
	if !strings.Contains(View(s).Title, "Error") {
		t.Fatalf("title = %q", View(s).Title)
	}
	if f.archive.metadataCalls() != 0 {
		t.Fatal("metadata must not be requested after a failed search")
	}
	if calls := f.sink.take(); len(calls) != 0 {
		t.Fatalf("sink must stay untouched, got %q", calls)
	}
}

func TestLoadStationMetadataFailure(t *testing.T) {
	f := newFixture(t)
	f.archive.metaErr = errors.New("connection reset")

	s := f.load(t, "jazz")
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseError || !strings.Contains(s.ErrorMessage, "Error") {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestLoadStationNoAudioFiles(t *testing.T) {
	f := newFixture(t)
	f.archive.files["jazz-item"] = []archive.File{{Name: "cover.jpg"}, {Name: "notes.txt"}}

	s := f.load(t, "jazz")
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseEmpty || !strings.Contains(s.ErrorMessage, "Error") {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestUnknownStation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.SelectStation(context.Background(), "polka")
	if !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("expected ErrUnknownStation, got %v", err)
	}
	if f.ctrl.State().Phase != PhaseIdle {
		t.Fatal("unknown station must not change state")
	}
}

func TestSelectStationShowsLoading(t *testing.T) {
	f := newFixture(t)
	release := f.archive.gate("jazz")

	s, err := f.ctrl.SelectStation(context.Background(), "jazz")
	if err != nil {
		t.Fatalf("SelectStation: %v", err)
	}
	assertOnlyOneOf(t, s)
	if s.Phase != PhaseLoading || View(s).Label != "Loading" {
		t.Fatalf("unexpected state while loading: %+v", s)
	}
	if got := f.ctrl.State(); got.Phase != PhaseLoading {
		t.Fatalf("state changed before search finished: %+v", got)
	}

	release()
	f.ctrl.Wait()
	if got := f.ctrl.State(); got.Phase != PhaseReady {
		t.Fatalf("expected ready after release, got %+v", got)
	}
}

func TestStaleSelectionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	release := f.archive.gate("jazz")

	if _, err := f.ctrl.SelectStation(context.Background(), "jazz"); err != nil {
		t.Fatalf("SelectStation: %v", err)
	}
	blues := f.load(t, "blues")
	if blues.Phase != PhaseReady || blues.StationID != "blues" {
		t.Fatalf("unexpected blues state: %+v", blues)
	}

	// jazz answers after blues already won
	release()
	f.ctrl.Wait()

	s := f.ctrl.State()
	if s.StationID != "blues" || s.Tracks[0].Title != "Crossroads" {
		t.Fatalf("stale result overwrote state: %+v", s)
	}
	if f.archive.metadataCalls() != 1 {
		t.Fatalf("expected only blues metadata, got %d calls", f.archive.metadataCalls())
	}
}

func staleDiscards(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := telemetry.StaleResultsDiscardedTotal.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestSupersededDuringMetadata(t *testing.T) {
	tests := []struct {
		name    string
		metaErr error
	}{
		{name: "metadata succeeds late"},
		{name: "metadata fails late", metaErr: errors.New("HTTP 502 Bad Gateway")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			release := f.archive.gateMetadata("jazz-item")
			defer release()
			if tc.metaErr != nil {
				f.archive.metaErrs["jazz-item"] = tc.metaErr
			}
			failed := f.bus.Subscribe(events.EventSelectionFailed)
			defer f.bus.Unsubscribe(events.EventSelectionFailed, failed)
			before := staleDiscards(t)

			if _, err := f.ctrl.SelectStation(context.Background(), "jazz"); err != nil {
				t.Fatalf("SelectStation: %v", err)
			}
			f.archive.waitMetadataCalls(t, 1)

			blues := f.load(t, "blues")
			if blues.Phase != PhaseReady || blues.StationID != "blues" {
				t.Fatalf("unexpected blues state: %+v", blues)
			}

			// jazz metadata answers after blues already won
			release()
			f.ctrl.Wait()

			s := f.ctrl.State()
			if s.Phase != PhaseReady || s.StationID != "blues" || s.Tracks[0].Title != "Crossroads" {
				t.Fatalf("stale metadata result overwrote state: %+v", s)
			}
			if s.ErrorMessage != "" {
				t.Fatalf("stale failure leaked into state: %q", s.ErrorMessage)
			}
			if got := staleDiscards(t) - before; got != 1 {
				t.Fatalf("expected one discarded result, got %v", got)
			}
			select {
			case p := <-failed:
				t.Fatalf("superseded selection published a failure: %v", p)
			default:
			}
		})
	}
}

func TestReselectSameStation(t *testing.T) {
	f := newFixture(t)
	first := f.load(t, "jazz")
	second := f.load(t, "jazz")

	if second.Generation <= first.Generation {
		t.Fatalf("generation did not advance: %d -> %d", first.Generation, second.Generation)
	}
	if second.Phase != PhaseReady || second.CurrentIndex != 0 {
		t.Fatalf("unexpected state: %+v", second)
	}
}

func TestSelectTrackSequence(t *testing.T) {
	f := newFixture(t)
	f.load(t, "jazz")
	f.sink.take()

	for _, tc := range []struct {
		index int
		title string
	}{
		{1, "Second Track"},
		{2, "Third Track"},
	} {
		s, err := f.ctrl.SelectTrack(context.Background(), tc.index)
		if err != nil {
			t.Fatalf("SelectTrack(%d): %v", tc.index, err)
		}
		vm := View(s)
		if vm.Title != tc.title || vm.ActiveIndex != tc.index || !s.IsPlaying {
			t.Fatalf("after SelectTrack(%d): %+v", tc.index, vm)
		}
	}

	calls := f.sink.take()
	if len(calls) < 2 || calls[0] != "stop" || !strings.HasPrefix(calls[1], "load ") {
		t.Fatalf("expected stop before load, got %q", calls)
	}
}

func TestSelectTrackOutOfRange(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.SelectTrack(context.Background(), 0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange without tracks, got %v", err)
	}

	f.load(t, "jazz")
	for _, i := range []int{-1, 3, 99} {
		s, err := f.ctrl.SelectTrack(context.Background(), i)
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("SelectTrack(%d): expected ErrOutOfRange, got %v", i, err)
		}
		if s.CurrentIndex != 0 {
			t.Fatalf("SelectTrack(%d) changed index to %d", i, s.CurrentIndex)
		}
	}
}

func TestNextAndPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.load(t, "jazz")

	s, _ := f.ctrl.Next(ctx)
	if s.CurrentIndex != 1 || !s.IsPlaying {
		t.Fatalf("Next: %+v", s)
	}
	s, _ = f.ctrl.Next(ctx)
	if s.CurrentIndex != 2 {
		t.Fatalf("Next: %+v", s)
	}

	// last track: playback stops, index stays
	s, _ = f.ctrl.Next(ctx)
	if s.CurrentIndex != 2 || s.IsPlaying {
		t.Fatalf("Next at end: index=%d playing=%v", s.CurrentIndex, s.IsPlaying)
	}
	assertOnlyOneOf(t, s)

	s, _ = f.ctrl.Previous(ctx)
	if s.CurrentIndex != 1 || !s.IsPlaying {
		t.Fatalf("Previous: %+v", s)
	}
	f.ctrl.Previous(ctx)
	s, _ = f.ctrl.Previous(ctx)
	if s.CurrentIndex != 0 || !s.IsPlaying {
		t.Fatalf("Previous at start: %+v", s)
	}
}

func TestTransportWithoutTracksIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for name, op := range map[string]func(context.Context) (State, error){
		"toggle":   f.ctrl.TogglePlayPause,
		"next":     f.ctrl.Next,
		"previous": f.ctrl.Previous,
		"ended":    f.ctrl.OnTrackEnded,
	} {
		s, err := op(ctx)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.Phase != PhaseIdle || s.IsPlaying {
			t.Fatalf("%s changed state: %+v", name, s)
		}
	}
	if calls := f.sink.take(); len(calls) != 0 {
		t.Fatalf("sink used without tracks: %q", calls)
	}
}

func TestTogglePlayPause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.load(t, "jazz")
	f.sink.take()

	s, _ := f.ctrl.TogglePlayPause(ctx)
	if s.IsPlaying || View(s).Label != "Paused" {
		t.Fatalf("expected paused, got %+v", s)
	}
	s, _ = f.ctrl.TogglePlayPause(ctx)
	if !s.IsPlaying {
		t.Fatalf("expected playing, got %+v", s)
	}
	calls := f.sink.take()
	if strings.Join(calls, "|") != "pause|play" {
		t.Fatalf("sink calls = %q", calls)
	}
}

func TestPausedUserIsNotAutoplayed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.load(t, "jazz")
	f.ctrl.TogglePlayPause(ctx)

	s := f.load(t, "blues")
	if s.Phase != PhaseReady || s.IsPlaying {
		t.Fatalf("expected loaded but paused, got %+v", s)
	}
	s, _ = f.ctrl.TogglePlayPause(ctx)
	if !s.IsPlaying {
		t.Fatal("toggle should start the loaded track")
	}
}

func TestTrackEndedAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.load(t, "jazz")

	s, _ := f.ctrl.OnTrackEndedAt(ctx, 2)
	if s.CurrentIndex != 0 {
		t.Fatalf("end of a non-current track must be ignored, index=%d", s.CurrentIndex)
	}

	s, _ = f.ctrl.OnTrackEndedAt(ctx, 0)
	if s.CurrentIndex != 1 || !s.IsPlaying {
		t.Fatalf("expected advance to 1, got %+v", s)
	}
	f.ctrl.OnTrackEnded(ctx)
	s, _ = f.ctrl.OnTrackEnded(ctx)
	if s.CurrentIndex != 2 || s.IsPlaying {
		t.Fatalf("expected stop on last track, got %+v", s)
	}
}

func TestSetVolume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.ctrl.SetVolume(ctx, 0.25)
	if err != nil || s.Volume != 0.25 {
		t.Fatalf("SetVolume: %v %+v", err, s)
	}
	for _, v := range []float64{-0.1, 1.5, math.NaN()} {
		s, err := f.ctrl.SetVolume(ctx, v)
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("SetVolume(%v): expected ErrOutOfRange, got %v", v, err)
		}
		if s.Volume != 0.25 {
			t.Fatalf("SetVolume(%v) changed volume to %v", v, s.Volume)
		}
	}

	s = f.load(t, "jazz")
	if s.Volume != 0.25 {
		t.Fatalf("volume must survive station selection, got %v", s.Volume)
	}
}

func TestSeekClamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.load(t, "jazz")
	f.sink.take()

	s, _ := f.ctrl.Seek(ctx, 500)
	if s.PositionSeconds != 61 {
		t.Fatalf("expected clamp to 61, got %v", s.PositionSeconds)
	}
	s, _ = f.ctrl.Seek(ctx, -3)
	if s.PositionSeconds != 0 {
		t.Fatalf("expected clamp to 0, got %v", s.PositionSeconds)
	}
	if _, err := f.ctrl.Seek(ctx, math.NaN()); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if calls := f.sink.take(); strings.Join(calls, "|") != "seek 61|seek 0" {
		t.Fatalf("sink calls = %q", calls)
	}
}

func TestReportProgress(t *testing.T) {
	f := newFixture(t)
	f.load(t, "jazz")

	f.ctrl.ReportProgress(30.5, 61)
	vm := View(f.ctrl.State())
	if vm.TimeCurrent != "0:30" || vm.TimeDuration != "1:01" {
		t.Fatalf("unexpected clock %s / %s", vm.TimeCurrent, vm.TimeDuration)
	}
	if vm.Progress != 0.5 {
		t.Fatalf("expected progress 0.5, got %v", vm.Progress)
	}
}

func TestEventsAndHistory(t *testing.T) {
	f := newFixture(t)
	states := f.bus.Subscribe(events.EventStateChanged)
	started := f.bus.Subscribe(events.EventTrackStarted)

	f.load(t, "jazz")
	f.ctrl.TogglePlayPause(context.Background())
	f.ctrl.TogglePlayPause(context.Background())
	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var phases []string
	for len(states) > 0 {
		p := <-states
		s, ok := p["state"].(State)
		if !ok {
			t.Fatalf("state payload has type %T", p["state"])
		}
		phases = append(phases, string(s.Phase))
	}
	if len(phases) < 2 || phases[0] != "loading" || phases[1] != "ready" {
		t.Fatalf("unexpected phases %v", phases)
	}

	// a resumed track is not started again
	if n := len(started); n != 1 {
		t.Fatalf("expected 1 track_started event, got %d", n)
	}
	entries := f.history.all()
	if len(entries) != 1 || entries[0].TrackName != "01.mp3" || entries[0].StationID != "jazz" {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestCloseRejectsSelection(t *testing.T) {
	f := newFixture(t)
	f.archive.honorCancel = true
	release := f.archive.gate("jazz")
	defer release()
	if _, err := f.ctrl.SelectStation(context.Background(), "jazz"); err != nil {
		t.Fatalf("SelectStation: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = f.ctrl.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, err := f.ctrl.SelectStation(context.Background(), "jazz"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if s := f.ctrl.State(); s.Phase != PhaseLoading {
		t.Fatalf("result applied after Close: %+v", s)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{Archive: newFakeArchive()}); err == nil {
		t.Fatal("expected error without catalog")
	}
	if _, err := New(Options{Catalog: station.Default()}); err == nil {
		t.Fatal("expected error without archive")
	}
	_, err := New(Options{Catalog: station.Default(), Archive: newFakeArchive(), Volume: 2})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for volume, got %v", err)
	}
}
