// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package procgroup spawns children in their own process group and
// signals them by PID, so a process started by an earlier daemon instance
// can still be stopped.
package procgroup

import (
	"errors"
	"os/exec"

	"github.com/ManuGH/cuepoint/internal/metrics"
)

// ErrUnsupported is returned where process groups are unavailable.
var ErrUnsupported = errors.New("procgroup: unsupported on this platform")

// Set configures cmd to start as the leader of a new process group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate sends SIGTERM to the group led by pid. A group that is already
// gone is not an error.
func Terminate(pid int) error {
	return record("SIGTERM", terminate(pid))
}

// Kill sends SIGKILL to the group led by pid. A group that is already gone
// is not an error.
func Kill(pid int) error {
	return record("SIGKILL", kill(pid))
}

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}

func record(sig string, err error) error {
	result := "sent"
	if err != nil {
		result = "error"
	}
	metrics.ProcessSignals.WithLabelValues(sig, result).Inc()
	return err
}
