// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// detachScript execs "$0" with SIGPIPE ignored. An ignored disposition
// survives exec, so a detached transcoder only sees EPIPE on its stdout and
// stderr once the daemon is gone.
const detachScript = `trap '' PIPE; exec "$0" "$@"`

// command resolves path first so a missing binary is a spawn error rather
// than a shell exiting 127.
func command(path string, args []string) (*exec.Cmd, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, err
	}
	argv := append([]string{"-c", detachScript, resolved}, args...)
	return exec.Command("/bin/sh", argv...), nil // #nosec G204 -- argv built from validated stream config
}

func signalName(ps *os.ProcessState) string {
	if ps == nil {
		return ""
	}
	ws, ok := ps.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	switch ws.Signal() {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGINT:
		return "SIGINT"
	default:
		return fmt.Sprintf("signal %d", int(ws.Signal()))
	}
}
