// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package encoding

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/cuepoint/internal/bus"
	"github.com/ManuGH/cuepoint/internal/clock"
	"github.com/ManuGH/cuepoint/internal/domain/model"
	"github.com/ManuGH/cuepoint/internal/domain/ports"
	"github.com/ManuGH/cuepoint/internal/store/memstore"
	"github.com/ManuGH/cuepoint/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	stopGrace        = 5 * time.Second
	progressInterval = 5 * time.Second
)

type harness struct {
	clk      *clock.Fake
	store    *memstore.Store
	launcher *fakeLauncher
	sup      *Supervisor
}

func newHarness(t *testing.T, mutate ...func(*Deps, *Config)) *harness {
	t.Helper()
	clk := clock.NewFake(testutil.Epoch)
	st := memstore.New(memstore.WithClock(clk))
	require.NoError(t, st.PutStream(context.Background(), testutil.Stream("stream-1")))

	l := &fakeLauncher{}
	deps := Deps{Store: st, Launcher: l, Clock: clk, Audit: st}
	cfg := Config{
		FFmpegPath:       "/usr/bin/ffmpeg",
		OutputDir:        t.TempDir(),
		StopGrace:        stopGrace,
		ProgressInterval: progressInterval,
		WriteTimeout:     time.Second,
	}
	for _, m := range mutate {
		m(&deps, &cfg)
	}
	sup, err := New(deps, cfg, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sup.Shutdown(context.Background())) })
	return &harness{clk: clk, store: st, launcher: l, sup: sup}
}

func (h *harness) start(t *testing.T) (*model.EncodingSession, *fakeHandle) {
	t.Helper()
	sess, err := h.sup.Start(context.Background(), "stream-1")
	require.NoError(t, err)
	_, handle := h.launcher.last()
	return sess, handle
}

func (h *harness) session(t *testing.T, id string) *model.EncodingSession {
	t.Helper()
	sess, err := h.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func (h *harness) streamStatus(t *testing.T) model.StreamStatus {
	t.Helper()
	st, err := h.store.GetStream(context.Background(), "stream-1")
	require.NoError(t, err)
	return st.Status
}

// awaitStatus waits for the exit observer to persist want.
func (h *harness) awaitStatus(t *testing.T, id string, want model.SessionStatus) *model.EncodingSession {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.session(t, id).Status == want && len(h.sup.ListActiveSessionIDs()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	return h.session(t, id)
}

func TestStartLaunchesEncoderWithStreamProfile(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)

	assert.Equal(t, model.SessionRunning, sess.Status)
	assert.Equal(t, handle.PID(), sess.PID)
	assert.NotZero(t, sess.PID)
	assert.Equal(t, model.StreamEncoding, h.streamStatus(t))

	spec, _ := h.launcher.last()
	assert.Equal(t, "/usr/bin/ffmpeg", spec.Path)
	assert.True(t, containsPair(spec.Args, "-b:v", "5000k"), "args: %v", spec.Args)
	assert.True(t, containsPair(spec.Args, "-s", "1920x1080"), "args: %v", spec.Args)
	assert.Equal(t, "/usr/bin/ffmpeg", sess.CommandLine[0])
	assert.Equal(t, spec.Args, sess.CommandLine[1:])
	assert.Contains(t, sess.LogPath, "encoding_"+sess.ID+".log")

	id, ok := h.sup.ActiveSession("stream-1")
	require.True(t, ok)
	assert.Equal(t, sess.ID, id)
	assert.Equal(t, []string{sess.ID}, h.sup.ListActiveSessionIDs())
}

func containsPair(args []string, flag, value string) bool {
	i := slices.Index(args, flag)
	return i >= 0 && i+1 < len(args) && args[i+1] == value
}

func TestStartRejectsSecondSessionForStream(t *testing.T) {
	h := newHarness(t)
	first, _ := h.start(t)

	_, err := h.sup.Start(context.Background(), "stream-1")
	var already *model.AlreadyEncodingError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, first.ID, already.SessionID)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Len(t, h.launcher.specs, 1)
}

func TestConcurrentStartsYieldOneSession(t *testing.T) {
	h := newHarness(t)
	const callers = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started []*model.EncodingSession
		errs    []error
	)
	gate := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			sess, err := h.sup.Start(context.Background(), "stream-1")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			started = append(started, sess)
		}()
	}
	close(gate)
	wg.Wait()

	require.Len(t, started, 1)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		var already *model.AlreadyEncodingError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, started[0].ID, already.SessionID)
	}
	assert.Len(t, h.launcher.handles, 1)
	running, err := h.sup.Sessions(context.Background(), model.SessionRunning)
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestStartRejectsUntrackedPersistedSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.CreateSession(context.Background(), &model.EncodingSession{
		ID: "left-over", StreamID: "stream-1", Status: model.SessionRunning, PID: 77,
	}))

	_, err := h.sup.Start(context.Background(), "stream-1")
	var already *model.AlreadyEncodingError
	require.ErrorAs(t, err, &already)
	assert.Equal(t, "left-over", already.SessionID)
	assert.Empty(t, h.launcher.specs)
}

func TestStartUnknownStream(t *testing.T) {
	h := newHarness(t)
	_, err := h.sup.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCleanExitCompletesSession(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)

	handle.exit(ExitStatus{Code: 0})
	done := h.awaitStatus(t, sess.ID, model.SessionCompleted)

	assert.Equal(t, 100.0, done.Progress)
	require.NotNil(t, done.ExitCode)
	assert.Equal(t, 0, *done.ExitCode)
	require.NotNil(t, done.EndedAt)
	assert.Equal(t, model.StreamIdle, h.streamStatus(t))
	_, ok := h.sup.ActiveSession("stream-1")
	assert.False(t, ok)

	// The slot is free again.
	_, _ = h.start(t)
}

func TestNonZeroExitIsError(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)
	handle.tail = []string{"frame=1", "Connection refused", "Conversion failed!"}

	handle.exit(ExitStatus{Code: 1})
	failed := h.awaitStatus(t, sess.ID, model.SessionError)

	require.NotNil(t, failed.ExitCode)
	assert.Equal(t, 1, *failed.ExitCode)
	assert.Equal(t, "exited with code 1: frame=1 | Connection refused | Conversion failed!", failed.Reason)
	assert.Equal(t, model.StreamError, h.streamStatus(t))
}

func TestUnexpectedSignalIsError(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)

	handle.exit(ExitStatus{Code: -1, Signal: "SIGSEGV"})
	failed := h.awaitStatus(t, sess.ID, model.SessionError)
	assert.Equal(t, "terminated by SIGSEGV", failed.Reason)
}

func TestStopTerminatesGracefully(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Config) {
		d.Launcher.(*fakeLauncher).prepare = func(fh *fakeHandle) { fh.exitOnSignal[SignalTerminate] = true }
	})
	sess, handle := h.start(t)

	stopping, err := h.sup.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStopping, stopping.Status)

	done := h.awaitStatus(t, sess.ID, model.SessionCompleted)
	assert.Equal(t, "stopped by operator", done.Reason)
	assert.Equal(t, []Signal{SignalTerminate}, handle.sent())
	assert.Equal(t, model.StreamIdle, h.streamStatus(t))
	assert.Zero(t, h.clk.Pending(), "kill timer disarmed on exit")
}

func TestStopEscalatesAfterGrace(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Config) {
		d.Launcher.(*fakeLauncher).prepare = func(fh *fakeHandle) { fh.exitOnSignal[SignalKill] = true }
	})
	sess, handle := h.start(t)

	_, err := h.sup.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StreamStopping, h.streamStatus(t))

	h.clk.Advance(stopGrace - time.Millisecond)
	assert.Equal(t, []Signal{SignalTerminate}, handle.sent())

	h.clk.Advance(time.Millisecond)
	assert.Equal(t, []Signal{SignalTerminate, SignalKill}, handle.sent())

	done := h.awaitStatus(t, sess.ID, model.SessionCompleted)
	assert.Equal(t, "stopped by operator", done.Reason)
}

func TestExitWriteIsRetriedUntilPersisted(t *testing.T) {
	flaky := &flakyStore{failTerminal: 1}
	h := newHarness(t, func(d *Deps, _ *Config) {
		flaky.Store = d.Store.(*memstore.Store)
		d.Store = flaky
	})
	sess, handle := h.start(t)
	handle.exit(ExitStatus{Code: 1})
	require.Eventually(t, func() bool { return h.clk.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Until the exit is recorded the session still owns its stream.
	assert.Equal(t, []string{sess.ID}, h.sup.ListActiveSessionIDs())
	assert.Equal(t, model.SessionRunning, h.session(t, sess.ID).Status)
	_, err := h.sup.Start(context.Background(), "stream-1")
	var already *model.AlreadyEncodingError
	require.ErrorAs(t, err, &already)
	stopped, err := h.sup.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, stopped.Status)
	assert.Empty(t, handle.sent())

	h.clk.Advance(exitRetryMax)
	failed := h.awaitStatus(t, sess.ID, model.SessionError)
	assert.Equal(t, 1, *failed.ExitCode)
	assert.Equal(t, model.StreamError, h.streamStatus(t))
	_, _ = h.start(t)
}

func TestShutdownAbandonsUnpersistedExit(t *testing.T) {
	flaky := &flakyStore{failTerminal: 100}
	h := newHarness(t, func(d *Deps, _ *Config) {
		flaky.Store = d.Store.(*memstore.Store)
		d.Store = flaky
	})
	sess, handle := h.start(t)
	handle.exit(ExitStatus{Code: 1})
	require.Eventually(t, func() bool { return h.clk.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.sup.Shutdown(context.Background()))
	assert.Empty(t, h.sup.ListActiveSessionIDs())
	// Left RUNNING for the next Recover to mark lost.
	assert.Equal(t, model.SessionRunning, h.session(t, sess.ID).Status)
}

func TestStopTreatsExit255AsOperatorStop(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)

	_, err := h.sup.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	handle.exit(ExitStatus{Code: 255})

	done := h.awaitStatus(t, sess.ID, model.SessionCompleted)
	assert.Equal(t, 255, *done.ExitCode)
}

func TestStopOnStoppingIsNoop(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)

	_, err := h.sup.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	again, err := h.sup.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStopping, again.Status)
	assert.Equal(t, []Signal{SignalTerminate}, handle.sent())

	handle.exit(ExitStatus{Code: -1, Signal: "SIGTERM"})
	h.awaitStatus(t, sess.ID, model.SessionCompleted)
}

func TestStopOnFinishedSession(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)
	handle.exit(ExitStatus{Code: 0})
	h.awaitStatus(t, sess.ID, model.SessionCompleted)

	_, err := h.sup.Stop(context.Background(), sess.ID)
	var notActive *model.SessionNotActiveError
	require.ErrorAs(t, err, &notActive)
	assert.Equal(t, model.SessionCompleted, notActive.Status)

	_, err = h.sup.Stop(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStopWhenProcessCannotBeSignalled(t *testing.T) {
	h := newHarness(t, func(d *Deps, _ *Config) {
		d.Launcher.(*fakeLauncher).prepare = func(fh *fakeHandle) { fh.signalErr = errNoSuchProcess }
	})
	sess, handle := h.start(t)

	_, err := h.sup.Stop(context.Background(), sess.ID)
	var sigErr *model.SignalError
	require.ErrorAs(t, err, &sigErr)
	assert.ErrorIs(t, err, errNoSuchProcess)

	failed := h.session(t, sess.ID)
	assert.Equal(t, model.SessionError, failed.Status)
	assert.Contains(t, failed.Reason, "process unreachable")
	assert.Equal(t, model.StreamError, h.streamStatus(t))
	assert.Equal(t, []Signal{SignalTerminate, SignalKill}, handle.sent())
	assert.Empty(t, h.sup.ListActiveSessionIDs())
}

func TestSpawnFailureLeavesStreamUntouched(t *testing.T) {
	h := newHarness(t)
	h.launcher.err = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")

	_, err := h.sup.Start(context.Background(), "stream-1")
	var spawnErr *model.SpawnError
	require.ErrorAs(t, err, &spawnErr)

	sessions, err := h.sup.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, model.SessionError, sessions[0].Status)
	assert.Contains(t, sessions[0].Reason, "spawn failed")
	assert.NotNil(t, sessions[0].EndedAt)
	assert.Equal(t, model.StreamIdle, h.streamStatus(t))

	// A failed spawn does not hold the stream.
	h.launcher.err = nil
	_, _ = h.start(t)
}

func TestProgressIsThrottled(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)
	spec, _ := h.launcher.last()

	spec.OnProgress(Progress{Percent: 10, OutputBytes: 1000})
	assert.Equal(t, 10.0, h.session(t, sess.ID).Progress)

	spec.OnProgress(Progress{Percent: 20, OutputBytes: 2000})
	assert.Equal(t, 10.0, h.session(t, sess.ID).Progress, "second report inside the interval is held")

	st, err := h.sup.GetStatus(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Equal(t, 20.0, st.Progress)
	assert.Equal(t, int64(2000), st.OutputBytes)

	h.clk.Advance(progressInterval)
	spec.OnProgress(Progress{Percent: 30, OutputBytes: 3000})
	persisted := h.session(t, sess.ID)
	assert.Equal(t, 30.0, persisted.Progress)
	assert.Equal(t, int64(3000), persisted.OutputBytes)

	handle.exit(ExitStatus{Code: 1})
	failed := h.awaitStatus(t, sess.ID, model.SessionError)
	assert.Equal(t, 30.0, failed.Progress)
	assert.Equal(t, int64(3000), failed.OutputBytes)

	st, err = h.sup.GetStatus(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, st.Active)
	assert.Equal(t, model.SessionError, st.Status)
}

func TestLifecycleEventsArePublished(t *testing.T) {
	mem := bus.NewMemoryBus()
	h := newHarness(t, func(d *Deps, _ *Config) { d.Publisher = mem })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := mem.Subscribe(ctx, ports.TopicSession)
	require.NoError(t, err)
	defer sub.Close()

	sess, handle := h.start(t)
	handle.exit(ExitStatus{Code: 0})
	h.awaitStatus(t, sess.ID, model.SessionCompleted)

	var statuses []string
	for len(statuses) < 2 {
		select {
		case msg := <-sub.C():
			ev, ok := msg.Payload.(ports.SessionEvent)
			require.True(t, ok)
			assert.Equal(t, sess.ID, ev.SessionID)
			statuses = append(statuses, ev.Status)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing session events, got %v", statuses)
		}
	}
	assert.Equal(t, []string{"RUNNING", "COMPLETED"}, statuses)
}

func TestImmediateExitEventsFollowStartEvents(t *testing.T) {
	mem := bus.NewMemoryBus()
	h := newHarness(t, func(d *Deps, _ *Config) {
		d.Publisher = mem
		d.Launcher.(*fakeLauncher).prepare = func(fh *fakeHandle) { fh.exit(ExitStatus{Code: 1}) }
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := mem.Subscribe(ctx, ports.TopicStream)
	require.NoError(t, err)
	defer sub.Close()

	sess, _ := h.start(t)
	h.awaitStatus(t, sess.ID, model.SessionError)

	var statuses []string
	for len(statuses) < 2 {
		select {
		case msg := <-sub.C():
			ev, ok := msg.Payload.(ports.StreamStatusEvent)
			require.True(t, ok)
			statuses = append(statuses, ev.Status)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing stream events, got %v", statuses)
		}
	}
	assert.Equal(t, []string{string(model.StreamEncoding), string(model.StreamError)}, statuses)
	assert.Equal(t, model.StreamError, h.streamStatus(t))
}

func TestShutdownDetachLeavesProcessesRunning(t *testing.T) {
	h := newHarness(t)
	sess, handle := h.start(t)

	require.NoError(t, h.sup.Shutdown(context.Background()))
	assert.Empty(t, handle.sent())
	assert.Equal(t, model.SessionRunning, h.session(t, sess.ID).Status)
	assert.Empty(t, h.sup.ListActiveSessionIDs())

	_, err := h.sup.Start(context.Background(), "stream-1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdownTerminateStopsSessions(t *testing.T) {
	h := newHarness(t, func(d *Deps, c *Config) {
		c.ShutdownPolicy = ShutdownTerminate
		d.Launcher.(*fakeLauncher).prepare = func(fh *fakeHandle) { fh.exitOnSignal[SignalTerminate] = true }
	})
	sess, handle := h.start(t)

	require.NoError(t, h.sup.Shutdown(context.Background()))
	assert.Equal(t, []Signal{SignalTerminate}, handle.sent())
	assert.Equal(t, model.SessionCompleted, h.session(t, sess.ID).Status)
}

func TestNewValidatesDeps(t *testing.T) {
	st := memstore.New()
	_, err := New(Deps{Launcher: &fakeLauncher{}}, Config{})
	assert.Error(t, err)
	_, err = New(Deps{Store: st}, Config{})
	assert.Error(t, err)
	_, err = New(Deps{Store: st, Launcher: &fakeLauncher{}}, Config{ShutdownPolicy: "abandon"})
	assert.Error(t, err)
}

func TestClassifyExit(t *testing.T) {
	tests := []struct {
		name    string
		st      ExitStatus
		stopped bool
		want    model.SessionStatus
		reason  string
	}{
		{"clean", ExitStatus{Code: 0}, false, model.SessionCompleted, "exited normally"},
		{"operator terminate", ExitStatus{Code: -1, Signal: "SIGTERM"}, true, model.SessionCompleted, "stopped by operator"},
		{"reattached stop", ExitStatus{Code: -1, Unknown: true, Signal: "SIGTERM"}, true, model.SessionCompleted, "stopped by operator"},
		{"reattached stop without signal", ExitStatus{Code: -1, Unknown: true}, true, model.SessionCompleted, "stopped by operator"},
		{"reattached exit", ExitStatus{Code: -1, Unknown: true}, false, model.SessionError, "process exited with unknown status"},
		{"crash", ExitStatus{Code: 1}, false, model.SessionError, "exited with code 1"},
		{"unexpected kill", ExitStatus{Code: -1, Signal: "SIGKILL"}, false, model.SessionError, "terminated by SIGKILL"},
		{"unreachable", ExitStatus{Err: errNoSuchProcess}, true, model.SessionError, "process unreachable: no such process"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, reason, _ := classifyExit(tc.st, tc.stopped)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.reason, reason)
		})
	}
}
