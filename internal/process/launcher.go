// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package process runs transcoder binaries as process-group leaders and
// reports their progress and exit.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/ffmpeg"
	"github.com/ManuGH/cuepoint/internal/log"
	"github.com/ManuGH/cuepoint/internal/procgroup"
)

var (
	_ encoding.Launcher = (*Launcher)(nil)
	_ encoding.Attacher = (*Launcher)(nil)
)

// Launcher starts processes with os/exec.
type Launcher struct {
	logger       zerolog.Logger
	tailLines    int
	pollInterval time.Duration
}

// Option customises a Launcher.
type Option func(*Launcher)

// WithTailLines sets how many stderr lines are kept for exit diagnostics.
func WithTailLines(n int) Option {
	return func(l *Launcher) { l.tailLines = n }
}

// WithPollInterval sets how often attached processes are probed.
func WithPollInterval(d time.Duration) Option {
	return func(l *Launcher) { l.pollInterval = d }
}

func New(opts ...Option) *Launcher {
	l := &Launcher{
		logger:       log.WithComponent("process"),
		tailLines:    50,
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Metadata is written next to the log file when a process starts.
type Metadata struct {
	SessionID string    `json:"sessionId"`
	StreamID  string    `json:"streamId"`
	PID       int       `json:"pid"`
	Command   []string  `json:"command"`
	LogPath   string    `json:"logPath"`
	StartedAt time.Time `json:"startedAt"`
}

// MetadataPath returns the launch metadata location for a session.
func MetadataPath(outputDir, sessionID string) string {
	return filepath.Join(outputDir, "encoding_"+sessionID+".json")
}

// Launch starts spec.Path. The process is not bound to ctx; it runs until
// it exits or is signalled.
func (l *Launcher) Launch(ctx context.Context, spec encoding.Spec) (encoding.ProcessHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(spec.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	cmd, err := command(spec.Path, spec.Args)
	if err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	procgroup.Set(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, err
	}

	h := &execHandle{
		pid:    cmd.Process.Pid,
		exited: make(chan encoding.ExitStatus, 1),
		tail:   ffmpeg.NewLineRing(l.tailLines),
	}
	logger := l.logger.With().
		Str(log.FieldSessionID, spec.SessionID).
		Str(log.FieldStreamID, spec.StreamID).
		Int(log.FieldPID, h.pid).
		Logger()

	if err := writeMetadata(spec, h.pid); err != nil {
		logger.Warn().Err(err).Msg("failed to write launch metadata")
	}

	out := &lockedWriter{w: logFile}
	var ioWg sync.WaitGroup
	ioWg.Add(2)
	go func() {
		defer ioWg.Done()
		_, _ = io.Copy(io.MultiWriter(out, h.tail), stderr)
	}()
	go func() {
		defer ioWg.Done()
		var parser ffmpeg.ProgressParser
		_ = parser.Scan(io.TeeReader(stdout, out), func(s ffmpeg.ProgressSample) {
			if spec.OnProgress == nil {
				return
			}
			spec.OnProgress(encoding.Progress{
				Percent:     s.Percent(spec.Duration),
				OutputBytes: s.TotalSize,
				OutTime:     s.OutTime,
			})
		})
		// Keep draining if the scanner stopped early so the child never blocks.
		_, _ = io.Copy(out, stdout)
	}()

	go func() {
		ioWg.Wait()
		status := exitStatus(cmd.Wait())
		if !status.Success() {
			logger.Warn().
				Int(log.FieldExitCode, status.Code).
				Str(log.FieldSignal, status.Signal).
				Strs("stderr_tail", h.tail.LastN(10)).
				Msg("transcoder exited unsuccessfully")
		}
		_ = logFile.Close()
		h.exited <- status
		close(h.exited)
	}()

	return h, nil
}

func writeMetadata(spec encoding.Spec, pid int) error {
	data, err := json.MarshalIndent(Metadata{
		SessionID: spec.SessionID,
		StreamID:  spec.StreamID,
		PID:       pid,
		Command:   append([]string{spec.Path}, spec.Args...),
		LogPath:   spec.LogPath,
		StartedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	pf, err := renameio.NewPendingFile(MetadataPath(spec.OutputDir, spec.SessionID), renameio.WithPermissions(0o640))
	if err != nil {
		return err
	}
	defer func() { _ = pf.Cleanup() }()
	if _, err := pf.Write(data); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func exitStatus(err error) encoding.ExitStatus {
	if err == nil {
		return encoding.ExitStatus{Code: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return encoding.ExitStatus{Code: exitErr.ExitCode(), Signal: signalName(exitErr.ProcessState)}
	}
	return encoding.ExitStatus{Code: -1, Err: err}
}

type execHandle struct {
	pid    int
	exited chan encoding.ExitStatus
	tail   *ffmpeg.LineRing
}

func (h *execHandle) PID() int { return h.pid }

func (h *execHandle) Exited() <-chan encoding.ExitStatus { return h.exited }

func (h *execHandle) Signal(sig encoding.Signal) error {
	return deliver(h.pid, sig)
}

// Tail returns the last stderr lines of the process.
func (h *execHandle) Tail(n int) []string { return h.tail.LastN(n) }

func deliver(pid int, sig encoding.Signal) error {
	switch sig {
	case encoding.SignalTerminate:
		return procgroup.Terminate(pid)
	case encoding.SignalKill:
		return procgroup.Kill(pid)
	default:
		return fmt.Errorf("unsupported signal %v", sig)
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
