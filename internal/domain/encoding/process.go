// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package encoding

import (
	"context"
	"time"
)

// Signal is a stop request delivered to a transcoder process.
type Signal int

const (
	SignalTerminate Signal = iota + 1
	SignalKill
)

func (s Signal) String() string {
	switch s {
	case SignalTerminate:
		return "SIGTERM"
	case SignalKill:
		return "SIGKILL"
	default:
		return "UNKNOWN"
	}
}

// ExitStatus describes how a process ended. Err is set when the process
// could not be waited on, in which case Code and Signal are meaningless.
type ExitStatus struct {
	Code   int    // -1 when terminated by a signal or Unknown
	Signal string // "SIGTERM", "SIGKILL", ... when terminated by a signal
	// Unknown is set when the process was not our child and only its
	// disappearance was observed. Signal then names the last signal sent.
	Unknown bool
	Err     error
}

// ffmpegSignalExit is the code ffmpeg returns after handling SIGTERM/SIGINT.
const ffmpegSignalExit = 255

// Success reports a clean exit.
func (e ExitStatus) Success() bool {
	return e.Err == nil && !e.Unknown && e.Signal == "" && e.Code == 0
}

// stoppedBySignal reports an exit caused by a delivered stop request.
func (e ExitStatus) stoppedBySignal() bool {
	return e.Err == nil && (e.Signal == SignalTerminate.String() || e.Signal == SignalKill.String() || e.Code == ffmpegSignalExit)
}

// ProcessHandle is a running transcoder.
type ProcessHandle interface {
	PID() int
	Signal(Signal) error
	// Exited delivers exactly one ExitStatus and is then closed.
	Exited() <-chan ExitStatus
}

// releaser is implemented by handles that hold resources while watching a
// process. Release is called when supervision ends without an exit.
type releaser interface {
	Release()
}

// Progress is a transcoder progress report.
type Progress struct {
	Percent     float64
	InputBytes  int64
	OutputBytes int64
	OutTime     time.Duration
}

// Spec describes one process launch.
type Spec struct {
	SessionID string
	StreamID  string
	Path      string
	Args      []string
	OutputDir string
	LogPath   string
	// Duration is the expected media duration; zero for live inputs.
	Duration   time.Duration
	OnProgress func(Progress)
}

// Launcher spawns transcoder processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (ProcessHandle, error)
}

// Attacher reconnects to a process started by an earlier daemon instance.
type Attacher interface {
	Attach(pid int) (ProcessHandle, bool)
}
