// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func signalName(*os.ProcessState) string { return "" }

func command(path string, args []string) (*exec.Cmd, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, err
	}
	return exec.Command(resolved, args...), nil // #nosec G204 -- argv built from validated stream config
}
