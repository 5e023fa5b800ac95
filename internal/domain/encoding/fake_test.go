// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package encoding

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/store/memstore"
)

// fakeHandle is a process that exits when the test says so.
type fakeHandle struct {
	pid    int
	exited chan ExitStatus

	mu           sync.Mutex
	signals      []Signal
	signalErr    error
	exitOnSignal map[Signal]bool
	done         bool
	tail         []string
	// polled handles report exits like a re-attached process: no code,
	// only the last signal delivered.
	polled bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, exited: make(chan ExitStatus, 1), exitOnSignal: map[Signal]bool{}}
}

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Exited() <-chan ExitStatus { return h.exited }

func (h *fakeHandle) Signal(sig Signal) error {
	h.mu.Lock()
	h.signals = append(h.signals, sig)
	err := h.signalErr
	exit := h.exitOnSignal[sig]
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if exit {
		h.exit(ExitStatus{Code: -1, Signal: sig.String()})
	}
	return nil
}

func (h *fakeHandle) Tail(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tail) > n {
		return append([]string(nil), h.tail[len(h.tail)-n:]...)
	}
	return append([]string(nil), h.tail...)
}

// exit delivers st once.
func (h *fakeHandle) exit(st ExitStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	if h.polled && st.Err == nil {
		st = ExitStatus{Code: -1, Unknown: true}
		if n := len(h.signals); n > 0 {
			st.Signal = h.signals[n-1].String()
		}
	}
	h.done = true
	h.exited <- st
	close(h.exited)
}

func (h *fakeHandle) sent() []Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Signal(nil), h.signals...)
}

// fakeLauncher hands out fakeHandles and remembers each launch.
type fakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	err     error
	specs   []Spec
	handles []*fakeHandle
	prepare func(*fakeHandle)
}

func (l *fakeLauncher) Launch(_ context.Context, spec Spec) (ProcessHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	if l.err != nil {
		return nil, l.err
	}
	l.nextPID++
	h := newFakeHandle(4000 + l.nextPID)
	if l.prepare != nil {
		l.prepare(h)
	}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) last() (Spec, *fakeHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return l.specs[len(l.specs)-1], nil
	}
	return l.specs[len(l.specs)-1], l.handles[len(l.handles)-1]
}

// fakeAttacher reports the processes listed in alive.
type fakeAttacher struct {
	alive map[int]*fakeHandle
}

func (a fakeAttacher) Attach(pid int) (ProcessHandle, bool) {
	h, ok := a.alive[pid]
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	h.polled = true
	h.mu.Unlock()
	return h, true
}

var errNoSuchProcess = errors.New("no such process")

var errStoreBusy = errors.New("database is locked")

// flakyStore fails the next failTerminal terminal session writes.
type flakyStore struct {
	*memstore.Store

	mu           sync.Mutex
	failTerminal int
}

func (f *flakyStore) UpdateSession(ctx context.Context, id string, patch model.SessionPatch) (*model.EncodingSession, error) {
	f.mu.Lock()
	fail := f.failTerminal > 0 && patch.Status != nil && patch.Status.Terminal()
	if fail {
		f.failTerminal--
	}
	f.mu.Unlock()
	if fail {
		return nil, errStoreBusy
	}
	return f.Store.UpdateSession(ctx, id, patch)
}
