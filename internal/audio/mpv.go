/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	socketCheckRetries  = 30
	socketCheckInterval = 100 * time.Millisecond
	socketReadDeadline  = 500 * time.Millisecond

	reqIDPause = 1
	reqIDPos   = 2
	reqIDDur   = 3
)

// ErrMPVUnavailable is returned when no mpv process answers on the socket.
var ErrMPVUnavailable = errors.New("mpv is not running")

// MPVCommand is one JSON IPC request.
type MPVCommand struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id,omitempty"`
}

// MPVResponse is a reply or an asynchronous event from mpv.
type MPVResponse struct {
	Error     string `json:"error"`
	Data      any    `json:"data"`
	RequestID int    `json:"request_id"`
	Event     string `json:"event"`
	Reason    string `json:"reason"`
}

// MPVState is what mpv reports about the loaded file.
type MPVState struct {
	Playing  bool
	Position float64
	Duration float64
}

// MPVConfig configures the mpv sink.
type MPVConfig struct {
	SocketPath string
	Binary     string // empty attaches to an mpv already listening on SocketPath
}

// MPV drives a local mpv process through its JSON IPC socket.
type MPV struct {
	cfg    MPVConfig
	logger zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewMPV creates the sink. The process is started on first Load.
func NewMPV(cfg MPVConfig, logger zerolog.Logger) *MPV {
	if cfg.Binary != "" {
		os.Remove(cfg.SocketPath)
	}
	return &MPV{cfg: cfg, logger: logger.With().Str("component", "mpv").Logger()}
}

func (p *MPV) running() bool {
	if p.cfg.Binary == "" {
		return true
	}
	if p.cmd == nil {
		return false
	}
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

func (p *MPV) ensureProcess() error {
	if p.running() {
		return nil
	}

	// A socket left by an exited mpv would pass the readiness check below.
	if err := os.Remove(p.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale mpv socket: %w", err)
	}

	p.logger.Info().Msg("starting mpv process")
	p.cmd = exec.Command(p.cfg.Binary,
		"--idle",
		"--input-ipc-server="+p.cfg.SocketPath,
		"--no-video",
		"--no-config",
		"--no-terminal",
	)
	if err := p.cmd.Start(); err != nil {
		p.cmd = nil
		return fmt.Errorf("start mpv: %w", err)
	}
	exited := make(chan struct{})
	p.exited = exited
	go func(cmd *exec.Cmd) {
		err := cmd.Wait()
		close(exited)
		p.logger.Info().Err(err).Msg("mpv process exited")
	}(p.cmd)

	for range socketCheckRetries {
		if _, err := os.Stat(p.cfg.SocketPath); err == nil {
			p.logger.Debug().Str("socket", p.cfg.SocketPath).Msg("mpv socket ready")
			return nil
		}
		time.Sleep(socketCheckInterval)
	}

	_ = p.cmd.Process.Kill()
	p.cmd = nil
	return fmt.Errorf("mpv started but socket did not appear at %s", p.cfg.SocketPath)
}

func (p *MPV) send(ctx context.Context, cmds ...MPVCommand) ([]MPVResponse, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", p.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMPVUnavailable, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(socketReadDeadline))

	enc := json.NewEncoder(conn)
	for i := range cmds {
		if cmds[i].RequestID == 0 {
			cmds[i].RequestID = 100 + i
		}
		if err := enc.Encode(cmds[i]); err != nil {
			return nil, fmt.Errorf("send mpv command: %w", err)
		}
	}

	var responses []MPVResponse
	scanner := bufio.NewScanner(conn)
	for len(responses) < len(cmds) && scanner.Scan() {
		var resp MPVResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			p.logger.Warn().Err(err).Str("line", scanner.Text()).Msg("unparseable mpv line")
			continue
		}
		if resp.Event == "" && resp.RequestID > 0 {
			responses = append(responses, resp)
		}
	}
	for _, resp := range responses {
		if resp.Error != "" && resp.Error != "success" {
			return responses, fmt.Errorf("mpv: %s", resp.Error)
		}
	}
	return responses, nil
}

func (p *MPV) command(ctx context.Context, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running() {
		return nil
	}
	_, err := p.send(ctx, MPVCommand{Command: args})
	return err
}

// Load replaces the current file. Playback stays paused until Play.
func (p *MPV) Load(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureProcess(); err != nil {
		return err
	}
	_, err := p.send(ctx,
		MPVCommand{Command: []any{"set_property", "pause", true}},
		MPVCommand{Command: []any{"loadfile", url, "replace"}},
	)
	return err
}

func (p *MPV) Play(ctx context.Context) error {
	return p.command(ctx, "set_property", "pause", false)
}

func (p *MPV) Pause(ctx context.Context) error {
	return p.command(ctx, "set_property", "pause", true)
}

func (p *MPV) Stop(ctx context.Context) error {
	return p.command(ctx, "stop")
}

func (p *MPV) Seek(ctx context.Context, seconds float64) error {
	return p.command(ctx, "seek", seconds, "absolute")
}

func (p *MPV) SetVolume(ctx context.Context, volume float64) error {
	return p.command(ctx, "set_property", "volume", volume*100)
}

// State polls pause, position and duration.
func (p *MPV) State(ctx context.Context) (MPVState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var state MPVState
	if !p.running() {
		return state, nil
	}
	responses, err := p.send(ctx,
		MPVCommand{Command: []any{"get_property", "pause"}, RequestID: reqIDPause},
		MPVCommand{Command: []any{"get_property", "time-pos"}, RequestID: reqIDPos},
		MPVCommand{Command: []any{"get_property", "duration"}, RequestID: reqIDDur},
	)
	if err != nil && len(responses) == 0 {
		return state, err
	}
	for _, resp := range responses {
		if resp.Error != "success" {
			continue
		}
		switch resp.RequestID {
		case reqIDPause:
			if paused, ok := resp.Data.(bool); ok {
				state.Playing = !paused
			}
		case reqIDPos:
			if pos, ok := resp.Data.(float64); ok {
				state.Position = pos
			}
		case reqIDDur:
			if dur, ok := resp.Data.(float64); ok {
				state.Duration = dur
			}
		}
	}
	return state, nil
}

// WatchEnded holds an IPC connection open and calls onEnded whenever a file
// finishes or fails. Replacing or stopping a file does not count. It returns
// when ctx is done or the connection drops.
func (p *MPV) WatchEnded(ctx context.Context, onEnded func()) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", p.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMPVUnavailable, err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg MPVResponse
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Event == "end-file" && (msg.Reason == "eof" || msg.Reason == "error") {
			p.logger.Debug().Str("reason", msg.Reason).Msg("mpv file ended")
			onEnded()
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("mpv event stream: %w", err)
	}
	return nil
}

// Close kills the mpv process started by this sink.
func (p *MPV) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Binary == "" {
		return nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error().Err(err).Msg("terminate mpv")
		}
		p.cmd = nil
	}
	os.Remove(p.cfg.SocketPath)
	return nil
}
