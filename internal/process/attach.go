// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package process

import (
	"sync"
	"time"

	"github.com/ManuGH/cuepoint/internal/domain/encoding"
	"github.com/ManuGH/cuepoint/internal/procgroup"
)

// Attach returns a handle for a live process that is not our child. Its
// exit is detected by polling, so the exit code is unknown; the status
// carries the last signal delivered through the handle.
func (l *Launcher) Attach(pid int) (encoding.ProcessHandle, bool) {
	if !procgroup.Alive(pid) {
		return nil, false
	}
	h := &attachedHandle{
		pid:    pid,
		exited: make(chan encoding.ExitStatus, 1),
		stop:   make(chan struct{}),
	}
	go h.poll(l.pollInterval)
	return h, true
}

type attachedHandle struct {
	pid      int
	exited   chan encoding.ExitStatus
	stop     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	lastSent encoding.Signal
}

func (h *attachedHandle) poll(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-t.C:
		}
		if procgroup.Alive(h.pid) {
			continue
		}
		st := encoding.ExitStatus{Code: -1, Unknown: true}
		h.mu.Lock()
		if h.lastSent != 0 {
			st.Signal = h.lastSent.String()
		}
		h.mu.Unlock()
		h.exited <- st
		close(h.exited)
		return
	}
}

func (h *attachedHandle) PID() int { return h.pid }

func (h *attachedHandle) Exited() <-chan encoding.ExitStatus { return h.exited }

// Signal records sig before delivery so a poll that sees the process gone
// always attributes the exit to it.
func (h *attachedHandle) Signal(sig encoding.Signal) error {
	h.mu.Lock()
	prev := h.lastSent
	h.lastSent = sig
	h.mu.Unlock()
	if err := deliver(h.pid, sig); err != nil {
		h.mu.Lock()
		if h.lastSent == sig {
			h.lastSent = prev
		}
		h.mu.Unlock()
		return err
	}
	return nil
}

// Release stops polling. Exited never fires afterwards.
func (h *attachedHandle) Release() {
	h.stopOnce.Do(func() { close(h.stop) })
}
